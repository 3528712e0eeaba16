package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemBackend stores every entry as a file under <baseDir>/IMPEX/customcache/akeneo.
type FilesystemBackend struct {
	root string
}

// NewFilesystemBackend creates the cache root if it does not exist.
func NewFilesystemBackend(baseDir string) (*FilesystemBackend, error) {
	root := filepath.Join(baseDir, "IMPEX", "customcache", "akeneo")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root %s: %w", root, err)
	}
	return &FilesystemBackend{root: root}, nil
}

// Root returns the directory holding the cache
func (b *FilesystemBackend) Root() string {
	return b.root
}

func (b *FilesystemBackend) dir(folder string) string {
	return filepath.Join(b.root, filepath.FromSlash(folder))
}

func (b *FilesystemBackend) Read(_ context.Context, folder, name string) ([]byte, error) {
	body, err := os.ReadFile(filepath.Join(b.dir(folder), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return body, err
}

func (b *FilesystemBackend) Write(_ context.Context, folder, name string, body []byte) error {
	dir := b.dir(folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", folder, err)
	}
	return os.WriteFile(filepath.Join(dir, name), body, 0o644)
}

func (b *FilesystemBackend) Rename(_ context.Context, folder, from, to string) error {
	dir := b.dir(folder)
	err := os.Rename(filepath.Join(dir, from), filepath.Join(dir, to))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (b *FilesystemBackend) Delete(_ context.Context, folder, name string) error {
	err := os.Remove(filepath.Join(b.dir(folder), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (b *FilesystemBackend) DeletePrefix(_ context.Context, folder string) error {
	if folder == "" {
		entries, err := os.ReadDir(b.root)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(b.root, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	return os.RemoveAll(b.dir(folder))
}

func (b *FilesystemBackend) List(_ context.Context, folder string) ([]string, error) {
	entries, err := os.ReadDir(b.dir(folder))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Ping verifies the cache root is still a writable directory.
func (b *FilesystemBackend) Ping(_ context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return fmt.Errorf("cache root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache root %s is not a directory", b.root)
	}
	return nil
}
