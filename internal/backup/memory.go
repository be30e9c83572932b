package backup

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MemoryDestination keeps snapshots in memory. Safe for concurrent use.
type MemoryDestination struct {
	blobs    map[string][]byte
	versions map[string]int64
	mu       sync.RWMutex
}

var _ Destination = (*MemoryDestination)(nil)

// NewMemoryDestination creates an empty in-memory destination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{
		blobs:    make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryDestination) Put(name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[name] = data
	m.versions[name] = version
	return nil
}

func (m *MemoryDestination) Get(name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (m *MemoryDestination) Version(name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[name], nil
}

func (m *MemoryDestination) ValidateSetup() error {
	return nil
}
