package backup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"unitprice/internal/backup"
	"unitprice/internal/database"
	"unitprice/internal/testutil"
	"unitprice/internal/unitprice"
)

func seedHistory(t *testing.T, store unitprice.Store, id string) {
	t.Helper()
	item := unitprice.Item{ID: 1, Price: 10, PerUnitAmount: 2, Count: 1, TotalAmount: 2, UnitPrice: 5}
	rec := &unitprice.HistoryRecord{
		ID:             id,
		Items:          []unitprice.Item{item},
		BestItem:       item,
		CreatedAt:      time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		TotalItemCount: 1,
	}
	if err := store.AddHistory(context.Background(), rec); err != nil {
		t.Fatalf("AddHistory() error = %v", err)
	}
}

func restoredHistoryIDs(t *testing.T, path string) []string {
	t.Helper()
	restored, err := database.NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("opening restored snapshot: %v", err)
	}
	defer restored.Close()

	recs, err := restored.GetHistory(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func newEncryptor(t *testing.T) *backup.AgeEncryptor {
	t.Helper()
	e, err := backup.NewAgeEncryptor("test passphrase")
	if err != nil {
		t.Fatalf("NewAgeEncryptor() error = %v", err)
	}
	return e.WithWorkFactor(10)
}

func TestService_BackupRestore(t *testing.T) {
	tests := []struct {
		name    string
		encrypt bool
	}{
		{"plaintext", false},
		{"encrypted", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := testutil.NewTestStore(t)
			seedHistory(t, store, "h1")

			var enc backup.Encryptor
			if tt.encrypt {
				enc = newEncryptor(t)
			}
			dest := backup.NewMemoryDestination()
			clock := testutil.FixedClock()
			svc := backup.NewService(store, dest, enc, clock, nil)

			version, err := svc.Backup(ctx)
			if err != nil {
				t.Fatalf("Backup() error = %v", err)
			}
			if version != clock.Now().Unix() {
				t.Errorf("Backup() version = %d, want %d", version, clock.Now().Unix())
			}

			out := filepath.Join(t.TempDir(), "restored.db")
			got, err := svc.Restore(ctx, out)
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if got != version {
				t.Errorf("Restore() version = %d, want %d", got, version)
			}

			ids := restoredHistoryIDs(t, out)
			if len(ids) != 1 || ids[0] != "h1" {
				t.Errorf("restored history = %v, want [h1]", ids)
			}
		})
	}
}

func TestService_Backup_EncryptedIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	seedHistory(t, store, "h1")

	root := t.TempDir()
	dest, err := backup.NewFileSystemDestination(root)
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}
	svc := backup.NewService(store, dest, newEncryptor(t), testutil.FixedClock(), nil)
	if _, err := svc.Backup(ctx); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, backup.SnapshotName))
	if err != nil {
		t.Fatalf("reading stored snapshot: %v", err)
	}
	if len(data) >= 16 && string(data[:16]) == "SQLite format 3\x00" {
		t.Error("stored snapshot is a plaintext SQLite file")
	}
}

func TestService_Backup_VersionIncreases(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	svc := backup.NewService(store, backup.NewMemoryDestination(), nil, clock, nil)

	first, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	second, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if second <= first {
		t.Errorf("second version %d should exceed first %d", second, first)
	}

	clock.Advance(time.Hour)
	third, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if third != clock.Now().Unix() {
		t.Errorf("third version = %d, want %d", third, clock.Now().Unix())
	}
}

func TestService_Restore_LatestWins(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	svc := backup.NewService(store, backup.NewMemoryDestination(), nil, clock, nil)

	seedHistory(t, store, "h1")
	if _, err := svc.Backup(ctx); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	seedHistory(t, store, "h2")
	clock.Advance(time.Minute)
	if _, err := svc.Backup(ctx); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "restored.db")
	if _, err := svc.Restore(ctx, out); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if ids := restoredHistoryIDs(t, out); len(ids) != 2 {
		t.Errorf("restored history = %v, want 2 records", ids)
	}
}

func TestService_Restore_NoBackup(t *testing.T) {
	svc := backup.NewService(testutil.NewTestStore(t), backup.NewMemoryDestination(), nil, testutil.FixedClock(), nil)

	out := filepath.Join(t.TempDir(), "restored.db")
	_, err := svc.Restore(context.Background(), out)
	if !errors.Is(err, backup.ErrNotFound) {
		t.Fatalf("Restore() error = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("restore target should not exist, stat error = %v", err)
	}
}

func TestService_Restore_RefusesExistingTarget(t *testing.T) {
	ctx := context.Background()
	svc := backup.NewService(testutil.NewTestStore(t), backup.NewMemoryDestination(), nil, testutil.FixedClock(), nil)
	if _, err := svc.Backup(ctx); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "existing.db")
	if err := os.WriteFile(out, []byte("keep me"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := svc.Restore(ctx, out); err == nil {
		t.Fatal("Restore() expected error for existing target")
	}
	data, _ := os.ReadFile(out)
	if string(data) != "keep me" {
		t.Errorf("existing target was modified: %q", data)
	}
}

func TestService_Restore_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	dest := backup.NewMemoryDestination()

	if _, err := backup.NewService(store, dest, newEncryptor(t), testutil.FixedClock(), nil).Backup(ctx); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	wrong, err := backup.NewAgeEncryptor("not the passphrase")
	if err != nil {
		t.Fatalf("NewAgeEncryptor() error = %v", err)
	}
	out := filepath.Join(t.TempDir(), "restored.db")
	if _, err := backup.NewService(store, dest, wrong, testutil.FixedClock(), nil).Restore(ctx, out); err == nil {
		t.Fatal("Restore() expected error for wrong passphrase")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("restore target should be removed on failure, stat error = %v", err)
	}
}

func TestService_Backup_Badger(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestBadgerStore(t)
	seedHistory(t, store, "h1")

	dest := backup.NewMemoryDestination()
	svc := backup.NewService(store, dest, nil, testutil.FixedClock(), nil)
	if _, err := svc.Backup(ctx); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "badger.bak")
	if _, err := svc.Restore(ctx, out); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() == 0 {
		t.Error("restored badger backup is empty")
	}
}
