package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSystemDestination stores snapshots as files under a root directory:
//
//	<root>/
//	  <name>          (snapshot, possibly age-encrypted)
//	  <name>.version  (decimal version of the last Put)
type FileSystemDestination struct {
	root string
}

var _ Destination = (*FileSystemDestination)(nil)

// NewFileSystemDestination creates root if needed and returns a destination writing into it.
func NewFileSystemDestination(root string) (*FileSystemDestination, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &FileSystemDestination{root: root}, nil
}

func (d *FileSystemDestination) Put(name string, r io.Reader, size int64, version int64) error {
	if err := d.writeFile(d.path(name), r, size); err != nil {
		return err
	}
	// Version goes last: a version file always has its blob.
	v := strconv.FormatInt(version, 10)
	return d.writeFile(d.path(name)+".version", strings.NewReader(v), int64(len(v)))
}

func (d *FileSystemDestination) Get(name string, w io.Writer) error {
	f, err := os.Open(d.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// Version returns 0 if no version file exists.
func (d *FileSystemDestination) Version(name string) (int64, error) {
	data, err := os.ReadFile(d.path(name) + ".version")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

func (d *FileSystemDestination) ValidateSetup() error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("backup root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup root is not a directory: %s", d.root)
	}
	return nil
}

func (d *FileSystemDestination) path(name string) string {
	return filepath.Join(d.root, filepath.Base(name))
}

// writeFile writes r to destPath through a temp file in the same directory and a rename.
func (d *FileSystemDestination) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
