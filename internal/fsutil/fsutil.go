// Package fsutil provides file system utilities shared by the pipeline
// engines: overwrite-policy file creation and output tree mirroring.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// OutputExistsError reports a write refused by the no-overwrite policy. The
// refusal happens before any data is written.
type OutputExistsError struct {
	Path string
}

func (e *OutputExistsError) Error() string {
	return fmt.Sprintf("output %q already exists (use overwrite to replace)", e.Path)
}

// Create opens path for writing, creating parent directories as needed.
// Without overwrite it fails with *OutputExistsError when the path already
// exists, leaving the existing file untouched.
func Create(path string, overwrite bool) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if !overwrite {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return nil, &OutputExistsError{Path: path}
			}
			return nil, err
		}
		return f, nil
	}
	return os.Create(path)
}

// CheckWritable reports the overwrite-policy violation for path without
// opening it. Engines call this up front to fail fast before doing work.
func CheckWritable(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return &OutputExistsError{Path: path}
	}
	return nil
}

// MirrorPath computes the output location for a member artifact: outDir joined
// with the member path made relative to root. Worker outputs are therefore
// deterministic and mutually distinct.
func MirrorPath(outDir, root, memberPath string) (string, error) {
	rel, err := filepath.Rel(root, memberPath)
	if err != nil {
		return "", fmt.Errorf("member path %q not under ensemble root %q: %w", memberPath, root, err)
	}
	return filepath.Join(outDir, rel), nil
}

// FindFilesByExtension recursively searches the given root path for all files
// ending with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
