// Package store abstracts the durable object layer the lake reads from and
// writes to. Keys are full locations ("data/out/items/..." locally,
// "gs://bucket/out/items/..." remotely) so callers never split roots.
package store

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrNotFound = errors.New("store: object not found")

type Store interface {
	// Glob returns the sorted keys of objects matching pattern. "*", "?" and
	// "[...]" match within one path segment.
	Glob(ctx context.Context, pattern string) ([]string, error)
	// List returns the sorted keys of every object under prefix. Keys start
	// with prefix as given.
	List(ctx context.Context, prefix string) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Create returns a writer; the object is durable once Close returns nil.
	Create(ctx context.Context, key string) (io.WriteCloser, error)
	// Exists reports whether key names an object; directories and
	// prefixes do not count.
	Exists(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every object under prefix. A missing prefix is
	// not an error.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Join appends path elements to a location, keeping any scheme intact.
func Join(root string, elem ...string) string {
	root = strings.TrimRight(strings.TrimSpace(root), "/")
	rest := path.Join(elem...)
	rest = strings.TrimLeft(rest, "/")
	if root == "" {
		return rest
	}
	if rest == "" || rest == "." {
		return root
	}
	return root + "/" + rest
}

// AsDir returns location with exactly one trailing slash.
func AsDir(location string) string {
	return strings.TrimRight(location, "/") + "/"
}

// LiteralPrefix returns the part of pattern before its first glob
// metacharacter. Object stores list by it before matching.
func LiteralPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?[\\"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// MatchKey reports whether key matches pattern with path.Match semantics,
// so wildcards never cross "/".
func MatchKey(pattern, key string) (bool, error) {
	if strings.Count(pattern, "/") != strings.Count(key, "/") {
		return false, nil
	}
	return path.Match(pattern, key)
}
