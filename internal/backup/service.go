package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"unitprice/internal/unitprice"
)

// SnapshotName is the blob name a database snapshot is stored under.
const SnapshotName = "unitprice.snapshot"

// Service copies the store into a Destination and back out again.
type Service struct {
	store  unitprice.Store
	dest   Destination
	enc    Encryptor // nil stores plaintext
	clock  unitprice.Clock
	logger unitprice.Logger
}

// NewService creates a backup service. enc may be nil.
func NewService(store unitprice.Store, dest Destination, enc Encryptor, clock unitprice.Clock, logger unitprice.Logger) *Service {
	if logger == nil {
		logger = unitprice.NewNopLogger()
	}
	return &Service{store: store, dest: dest, enc: enc, clock: clock, logger: logger}
}

// Backup snapshots the store and stores it in the destination.
// It returns the version recorded, which always exceeds the previous one.
func (s *Service) Backup(ctx context.Context) (int64, error) {
	dir, err := os.MkdirTemp("", "unitprice-backup-*")
	if err != nil {
		return 0, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot")
	if err := s.store.Snapshot(ctx, snapshot); err != nil {
		return 0, fmt.Errorf("taking snapshot: %w", err)
	}

	payload := snapshot
	if s.enc != nil {
		payload = filepath.Join(dir, "snapshot.age")
		if err := encryptFile(s.enc, snapshot, payload); err != nil {
			return 0, err
		}
	}

	prev, err := s.dest.Version(SnapshotName)
	if err != nil {
		return 0, fmt.Errorf("reading backup version: %w", err)
	}
	version := s.clock.Now().Unix()
	if version <= prev {
		version = prev + 1
	}

	f, err := os.Open(payload)
	if err != nil {
		return 0, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}

	if err := s.dest.Put(SnapshotName, f, info.Size(), version); err != nil {
		return 0, fmt.Errorf("storing snapshot: %w", err)
	}

	s.logger.Info("backup stored", "version", version, "bytes", info.Size(), "encrypted", s.enc != nil)
	return version, nil
}

// Restore writes the latest snapshot to outPath, which must not exist.
// It returns the version restored.
func (s *Service) Restore(ctx context.Context, outPath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	version, err := s.dest.Version(SnapshotName)
	if err != nil {
		return 0, fmt.Errorf("reading backup version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, SnapshotName)
	}

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating restore target: %w", err)
	}

	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(outPath)
		}
	}()

	if s.enc == nil {
		if err := s.dest.Get(SnapshotName, out); err != nil {
			return 0, fmt.Errorf("fetching snapshot: %w", err)
		}
	} else {
		var buf bytes.Buffer
		if err := s.dest.Get(SnapshotName, &buf); err != nil {
			return 0, fmt.Errorf("fetching snapshot: %w", err)
		}
		if err := s.enc.Decrypt(&buf, out); err != nil {
			return 0, fmt.Errorf("decrypting snapshot: %w", err)
		}
	}

	if err := out.Sync(); err != nil {
		return 0, fmt.Errorf("syncing restore target: %w", err)
	}

	success = true
	s.logger.Info("backup restored", "version", version, "path", outPath)
	return version, nil
}

func encryptFile(enc Encryptor, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}

	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	return out.Close()
}
