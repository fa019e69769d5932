package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Local stores objects as files. Keys are filesystem paths using "/".
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Glob(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	matches, err := filepath.Glob(filepath.FromSlash(pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, filepath.ToSlash(m))
	}
	sort.Strings(out)
	return out, nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.FromSlash(strings.TrimRight(prefix, "/"))
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == root {
				return filepath.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			out = append(out, Join(prefix, filepath.ToSlash(rel)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.FromSlash(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

func (l *Local) Create(_ context.Context, key string) (io.WriteCloser, error) {
	p := filepath.FromSlash(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("create %q: %w", key, err)
	}
	return os.Create(p)
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(filepath.FromSlash(key))
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) DeletePrefix(_ context.Context, prefix string) error {
	p := filepath.Clean(filepath.FromSlash(prefix))
	if p == "." || p == string(filepath.Separator) || strings.TrimSpace(prefix) == "" {
		return fmt.Errorf("delete prefix: refusing to remove %q", prefix)
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("delete prefix %q: %w", prefix, err)
	}
	return nil
}
