// Package pathwalk resolves slash-separated pathnames against a directory
// tree by repeatedly asking the caller to iterate one directory's children,
// the same generic pattern GRUB's fshelp layer offers every on-disk
// filesystem driver: the walker knows nothing about extents, attributes,
// or superblocks, only how to consume an iteration hook and compare names.
package pathwalk

import (
	"fmt"
	"strings"
)

// IterateFunc lists dir's children, calling visit(name, isDir, child) for
// each until visit returns true or the directory is exhausted. It returns
// a non-nil error only for a structural fault in dir itself, never for the
// walk failing to find anything. N is whatever a filesystem driver uses to
// identify a resolved directory or file — Find never inspects it directly.
type IterateFunc[N any] func(dir N, visit func(name string, isDir bool, child N) bool) error

// NotFoundError is returned when path does not resolve to anything under
// start.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("pathwalk: %q not found", e.Path) }

// NotADirectoryError is returned when a non-final path component names a
// file instead of a directory.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("pathwalk: %q is not a directory", e.Path)
}

// Find resolves path against start by repeatedly calling iterate. Empty
// components produced by leading, trailing, or repeated slashes are
// skipped, so "/a//b/" resolves the same as "a/b". The returned bool
// reports whether the resolved node is a directory.
func Find[N any](path string, start N, iterate IterateFunc[N]) (N, bool, error) {
	cur := start
	curIsDir := true

	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if !curIsDir {
			return cur, false, &NotADirectoryError{Path: strings.Join(parts[:i], "/")}
		}

		var found N
		var foundIsDir bool
		var ok bool
		err := iterate(cur, func(name string, isDir bool, child N) bool {
			if name == part {
				found, foundIsDir, ok = child, isDir, true
				return true
			}
			return false
		})
		if err != nil {
			var zero N
			return zero, false, err
		}
		if !ok {
			var zero N
			return zero, false, &NotFoundError{Path: path}
		}
		cur, curIsDir = found, foundIsDir
	}
	return cur, curIsDir, nil
}
