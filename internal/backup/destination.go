package backup

import (
	"errors"
	"io"
)

// ErrNotFound is returned when a destination holds no blob under the requested name.
var ErrNotFound = errors.New("backup not found")

// Destination stores named snapshot blobs together with a version marker.
type Destination interface {
	// Put stores size bytes read from r under name, replacing any previous blob.
	Put(name string, r io.Reader, size int64, version int64) error

	// Get writes the blob stored under name to w.
	Get(name string, w io.Writer) error

	// Version returns the version recorded by the last Put, or 0 if there is none.
	Version(name string) (int64, error)

	// ValidateSetup verifies the destination is usable.
	ValidateSetup() error
}

// Encryptor turns snapshot bytes into ciphertext and back.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
	Decrypt(r io.Reader, w io.Writer) error
}
