package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"unitprice/internal/unitprice"
)

// Opener opens the underlying store. It is called at most once per
// successful open.
type Opener func(ctx context.Context) (unitprice.Store, error)

// LazyStore opens its underlying store on first use and reuses it
// afterwards. A failed open is retried on the next call.
type LazyStore struct {
	mu     sync.Mutex
	open   Opener
	store  unitprice.Store
	logger unitprice.Logger
}

// NewLazyStore wraps open without calling it.
func NewLazyStore(open Opener, logger unitprice.Logger) *LazyStore {
	if logger == nil {
		logger = unitprice.NewNopLogger()
	}
	return &LazyStore{open: open, logger: logger}
}

// EnsureOpen returns the open store, opening it if needed. Safe for
// concurrent use; concurrent first callers share one open.
func (l *LazyStore) EnsureOpen(ctx context.Context) (unitprice.Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		return l.store, nil
	}
	store, err := l.open(ctx)
	if err != nil {
		l.logger.Warn("opening store failed", "error", err)
		return nil, fmt.Errorf("opening store: %w: %w", unitprice.ErrStorage, err)
	}
	l.logger.Debug("store opened")
	l.store = store
	return store, nil
}

// Opened reports whether the underlying store has been opened.
func (l *LazyStore) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store != nil
}

func (l *LazyStore) AddHistory(ctx context.Context, rec *unitprice.HistoryRecord) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.AddHistory(ctx, rec)
}

func (l *LazyStore) GetHistory(ctx context.Context, limit int) ([]*unitprice.HistoryRecord, error) {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetHistory(ctx, limit)
}

func (l *LazyStore) DeleteHistory(ctx context.Context, id string) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.DeleteHistory(ctx, id)
}

func (l *LazyStore) ClearHistory(ctx context.Context) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.ClearHistory(ctx)
}

func (l *LazyStore) AddFavorite(ctx context.Context, fav *unitprice.Favorite) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.AddFavorite(ctx, fav)
}

func (l *LazyStore) GetFavorites(ctx context.Context, folderID *string) ([]*unitprice.Favorite, error) {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetFavorites(ctx, folderID)
}

func (l *LazyStore) GetAllFavorites(ctx context.Context) ([]*unitprice.Favorite, error) {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAllFavorites(ctx)
}

func (l *LazyStore) GetFavoritesByTag(ctx context.Context, tag string) ([]*unitprice.Favorite, error) {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetFavoritesByTag(ctx, tag)
}

func (l *LazyStore) DeleteFavorite(ctx context.Context, id int64) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.DeleteFavorite(ctx, id)
}

func (l *LazyStore) CreateFolder(ctx context.Context, folder *unitprice.Folder) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.CreateFolder(ctx, folder)
}

func (l *LazyStore) GetFolders(ctx context.Context) ([]*unitprice.Folder, error) {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetFolders(ctx)
}

func (l *LazyStore) RenameFolder(ctx context.Context, id, name string, at time.Time) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.RenameFolder(ctx, id, name, at)
}

func (l *LazyStore) DeleteFolder(ctx context.Context, id string) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.DeleteFolder(ctx, id)
}

func (l *LazyStore) Snapshot(ctx context.Context, destPath string) error {
	s, err := l.EnsureOpen(ctx)
	if err != nil {
		return err
	}
	return s.Snapshot(ctx, destPath)
}

// Close closes the underlying store if it was opened. A later call to
// EnsureOpen opens it again.
func (l *LazyStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}

var _ unitprice.Store = (*LazyStore)(nil)
