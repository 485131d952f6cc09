package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	dir string
}

// NewLocalReader creates a Reader backed by a local directory tree.
// The layout mirrors the legacy bucket: one .json blob per upload,
// nested under per-user subdirectories.
func NewLocalReader(dir string) Reader {
	return &localReader{dir: dir}
}

// ListResultKeys walks the directory and returns the relative paths of
// all .json files, sorted.
func (r *localReader) ListResultKeys(
	_ context.Context,
) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(
		r.dir,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
				return nil
			}

			rel, err := filepath.Rel(r.dir, path)
			if err != nil {
				return err
			}

			keys = append(keys, filepath.ToSlash(rel))

			return nil
		},
	)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("walking %s: %w", r.dir, err)
	}

	sort.Strings(keys)

	return keys, nil
}

// GetResult reads {dir}/{key}.
// Returns (nil, nil) when the file does not exist.
func (r *localReader) GetResult(
	_ context.Context, key string,
) ([]byte, error) {
	p := filepath.Join(r.dir, filepath.FromSlash(key))

	data, err := os.ReadFile(p) //nolint:gosec // trusted paths from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}
