package syncer

import (
	"os"

	"github.com/google/renameio/v2"
)

// FileSystem abstracts the filesystem operations of a synchronization run.
type FileSystem interface {
	// MkdirAll creates a directory path and all necessary parents.
	MkdirAll(path string) error

	// Exists reports whether the given path exists.
	Exists(path string) bool

	// WriteAtomic makes data visible under path in one step: readers see
	// either the previous content or all of data, never a partial file.
	WriteAtomic(path string, data []byte) error

	// ReadFile returns the content of path.
	ReadFile(path string) ([]byte, error)

	// Remove deletes a file. Removing a missing file is not an error.
	Remove(path string) error
}

// OSFileSystem implements FileSystem using the real filesystem.
type OSFileSystem struct{}

var _ FileSystem = (*OSFileSystem)(nil)

func (OSFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic writes to a temporary file in the same directory and renames
// it over path.
func (OSFileSystem) WriteAtomic(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0o644)
}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSFileSystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
