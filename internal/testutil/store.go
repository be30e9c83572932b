package testutil

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"unitprice/internal/database"
	"unitprice/internal/unitprice"
)

// ErrInjected is the cause wrapped by FailingStore write failures.
var ErrInjected = errors.New("injected failure")

// NewTestStore creates an in-memory SQLite store with the schema applied.
// The store is closed when the test completes.
func NewTestStore(t *testing.T) unitprice.Store {
	t.Helper()

	s, err := database.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewTestBadgerStore creates an in-memory BadgerDB store.
// The store is closed when the test completes.
func NewTestBadgerStore(t *testing.T) unitprice.Store {
	t.Helper()

	s, err := database.NewBadgerStore(database.BadgerConfig{InMemory: true}, nil)
	if err != nil {
		t.Fatalf("failed to open badger store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// FailingStore wraps a Store and, while Fail is set, rejects every write
// with an error wrapping unitprice.ErrStorage. Reads pass through.
type FailingStore struct {
	unitprice.Store
	Fail atomic.Bool

	// Only, when set, limits failures to the named write, e.g. "add favorite".
	Only string
}

// NewFailingStore wraps store with failures initially switched on.
func NewFailingStore(store unitprice.Store) *FailingStore {
	f := &FailingStore{Store: store}
	f.Fail.Store(true)
	return f
}

func (f *FailingStore) err(op string) error {
	if !f.Fail.Load() || (f.Only != "" && f.Only != op) {
		return nil
	}
	return errors.Join(unitprice.ErrStorage, ErrInjected, errors.New(op))
}

func (f *FailingStore) AddHistory(ctx context.Context, rec *unitprice.HistoryRecord) error {
	if err := f.err("add history"); err != nil {
		return err
	}
	return f.Store.AddHistory(ctx, rec)
}

func (f *FailingStore) DeleteHistory(ctx context.Context, id string) error {
	if err := f.err("delete history"); err != nil {
		return err
	}
	return f.Store.DeleteHistory(ctx, id)
}

func (f *FailingStore) ClearHistory(ctx context.Context) error {
	if err := f.err("clear history"); err != nil {
		return err
	}
	return f.Store.ClearHistory(ctx)
}

func (f *FailingStore) AddFavorite(ctx context.Context, fav *unitprice.Favorite) error {
	if err := f.err("add favorite"); err != nil {
		return err
	}
	return f.Store.AddFavorite(ctx, fav)
}

func (f *FailingStore) DeleteFavorite(ctx context.Context, id int64) error {
	if err := f.err("delete favorite"); err != nil {
		return err
	}
	return f.Store.DeleteFavorite(ctx, id)
}

func (f *FailingStore) CreateFolder(ctx context.Context, folder *unitprice.Folder) error {
	if err := f.err("create folder"); err != nil {
		return err
	}
	return f.Store.CreateFolder(ctx, folder)
}

func (f *FailingStore) RenameFolder(ctx context.Context, id, name string, at time.Time) error {
	if err := f.err("rename folder"); err != nil {
		return err
	}
	return f.Store.RenameFolder(ctx, id, name, at)
}

func (f *FailingStore) DeleteFolder(ctx context.Context, id string) error {
	if err := f.err("delete folder"); err != nil {
		return err
	}
	return f.Store.DeleteFolder(ctx, id)
}

var _ unitprice.Store = (*FailingStore)(nil)
