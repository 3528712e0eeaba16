package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when an entry does not exist.
var ErrNotFound = errors.New("cache entry not found")

// Backend is a storage medium for cache entries. Folders are slash separated
// and rooted ("" is the root, otherwise they start with "/"); names include
// the entry extension.
type Backend interface {
	Read(ctx context.Context, folder, name string) ([]byte, error)
	Write(ctx context.Context, folder, name string, body []byte) error
	Rename(ctx context.Context, folder, from, to string) error
	Delete(ctx context.Context, folder, name string) error
	// DeletePrefix removes the folder and everything below it.
	DeletePrefix(ctx context.Context, folder string) error
	// List returns the names of the entries directly inside folder.
	List(ctx context.Context, folder string) ([]string, error)
}

// HealthChecker is implemented by backends that can verify their connection.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

func inFolder(folder, prefix string) bool {
	if prefix == "" {
		return true
	}
	return folder == prefix || len(folder) > len(prefix) && folder[:len(prefix)] == prefix && folder[len(prefix)] == '/'
}
