// Package bundle assembles the generated files and rendered reports into
// the single downloadable archive returned to the caller.
package bundle

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// FileSet is a collection of named byte streams keyed by relative,
// traversal-free paths. Paths are unique; adding a duplicate is an error.
type FileSet struct {
	files map[string][]byte
}

// NewFileSet returns an empty file set.
func NewFileSet() *FileSet {
	return &FileSet{files: map[string][]byte{}}
}

// ValidatePath enforces the archive path invariant: relative, slash
// separated, no traversal segments.
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("bundle: empty path")
	}
	if strings.Contains(p, "\\") {
		return fmt.Errorf("bundle: path %q must use forward slashes", p)
	}
	if path.IsAbs(p) {
		return fmt.Errorf("bundle: path %q must be relative", p)
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return fmt.Errorf("bundle: path %q contains a traversal segment", p)
		}
		if segment == "" {
			return fmt.Errorf("bundle: path %q contains an empty segment", p)
		}
	}
	return nil
}

// Add stores a file under the path.
func (fs *FileSet) Add(p string, data []byte) error {
	if err := ValidatePath(p); err != nil {
		return err
	}
	if _, exists := fs.files[p]; exists {
		return fmt.Errorf("bundle: duplicate path %q", p)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	fs.files[p] = stored
	return nil
}

// Merge adds every file from other, failing on path collisions.
func (fs *FileSet) Merge(other *FileSet) error {
	if other == nil {
		return nil
	}
	for _, p := range other.Paths() {
		if err := fs.Add(p, other.files[p]); err != nil {
			return err
		}
	}
	return nil
}

// File returns the contents stored under the path.
func (fs *FileSet) File(p string) ([]byte, bool) {
	data, ok := fs.files[p]
	return data, ok
}

// Paths returns every path in sorted order, which fixes the archive entry
// order and keeps bundling deterministic.
func (fs *FileSet) Paths() []string {
	out := make([]string, 0, len(fs.files))
	for p := range fs.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of files.
func (fs *FileSet) Len() int {
	return len(fs.files)
}
