package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// archiveEpoch is the fixed modification time stamped on every archive
// entry. Identical file sets must produce byte-identical archives, so the
// wall clock never leaks into the output.
var archiveEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Write streams the file set as a zip archive with sorted entries.
func Write(w io.Writer, fs *FileSet) error {
	zw := zip.NewWriter(w)
	for _, p := range fs.Paths() {
		data, _ := fs.File(p)
		header := &zip.FileHeader{
			Name:     p,
			Method:   zip.Deflate,
			Modified: archiveEpoch,
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			return fmt.Errorf("bundle: create entry %s: %w", p, err)
		}
		if _, err := entry.Write(data); err != nil {
			zw.Close()
			return fmt.Errorf("bundle: write entry %s: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("bundle: finalize archive: %w", err)
	}
	return nil
}

// CreateArchive writes the file set to dir under the given handle name and
// returns the archive's path.
func CreateArchive(dir, handle string, fs *FileSet) (string, error) {
	if err := ValidatePath(handle); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("bundle: ensure output dir: %w", err)
	}
	path := filepath.Join(dir, handle)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("bundle: create archive: %w", err)
	}
	if err := Write(f, fs); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("bundle: close archive: %w", err)
	}
	return path, nil
}
