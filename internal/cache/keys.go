package cache

import (
	"strings"
	"unicode"
)

const entryExt = ".txt"

// Path is the location of one cache entry: a slash separated folder and an entry name.
type Path struct {
	Folder string
	Name   string
}

// File returns the stored name of the entry, extension included.
func (p Path) File() string {
	return p.Name + entryExt
}

// String returns the normalised key
func (p Path) String() string {
	return p.Folder + "/" + p.Name
}

// ParseKey normalises a cache key. Whitespace is removed, a scheme and host are
// stripped, as is a single trailing slash. Keys carrying a query string or a
// dot segment are not cacheable and return false.
func ParseKey(key string) (Path, bool) {
	norm := normalise(key)
	if norm == "" || strings.Contains(norm, "?") {
		return Path{}, false
	}
	idx := strings.LastIndex(norm, "/")
	p := Path{Folder: norm[:idx], Name: norm[idx+1:]}
	if p.Name == "" || !cleanSegments(p.Folder) || !cleanSegments(p.Name) {
		return Path{}, false
	}
	return p, true
}

// FolderOf normalises a folder prefix used by Clear and ListKeys. "" is the cache root.
func FolderOf(prefix string) (string, bool) {
	norm := normalise(prefix)
	if strings.Contains(norm, "?") || !cleanSegments(norm) {
		return "", false
	}
	if norm == "/" {
		return "", true
	}
	return norm, true
}

func normalise(key string) string {
	key = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, key)
	if key == "" {
		return ""
	}
	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
		if j := strings.Index(key, "/"); j >= 0 {
			key = key[j:]
		} else {
			key = "/"
		}
	}
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	if len(key) > 1 {
		key = strings.TrimSuffix(key, "/")
	}
	return key
}

func cleanSegments(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
