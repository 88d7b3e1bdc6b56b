package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrFileNotFound = errors.New("files: file not found")
	ErrNotAFile     = errors.New("files: not a regular file")
)

// FS reads and writes single files by name
type FS interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// Dir is an FS rooted at a local directory. Names are joined onto the root
// without sanitizing, so a name containing ".." can leave it.
type Dir string

// Path returns the on-disk path for name
func (d Dir) Path(name string) string {
	return filepath.Join(string(d), name)
}

// ReadFile implements FS.
func (d Dir) ReadFile(name string) ([]byte, error) {
	path := d.Path(name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, name)
	}

	return os.ReadFile(path)
}

// WriteFile implements FS. The file is created or truncated.
func (d Dir) WriteFile(name string, data []byte) error {
	return os.WriteFile(d.Path(name), data, 0644)
}
