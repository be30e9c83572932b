package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"unitprice/internal/unitprice"
)

func TestLazyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("does not open until first use", func(t *testing.T) {
		var opens atomic.Int32
		lazy := NewLazyStore(func(context.Context) (unitprice.Store, error) {
			opens.Add(1)
			return NewSQLiteStore(":memory:", nil)
		}, nil)
		defer lazy.Close()

		if lazy.Opened() {
			t.Error("Opened() = true before first use")
		}
		if opens.Load() != 0 {
			t.Errorf("opener called %d times before first use", opens.Load())
		}

		if err := lazy.CreateFolder(ctx, folder("a", "A", 0)); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		got, err := lazy.GetFolders(ctx)
		if err != nil {
			t.Fatalf("GetFolders() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("len(GetFolders()) = %d, want 1 (same connection reused)", len(got))
		}
		if opens.Load() != 1 {
			t.Errorf("opener called %d times, want 1", opens.Load())
		}
	})

	t.Run("concurrent first use opens once", func(t *testing.T) {
		var opens atomic.Int32
		lazy := NewLazyStore(func(context.Context) (unitprice.Store, error) {
			opens.Add(1)
			return NewSQLiteStore(":memory:", nil)
		}, nil)
		defer lazy.Close()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := lazy.EnsureOpen(ctx); err != nil {
					t.Errorf("EnsureOpen() error = %v", err)
				}
			}()
		}
		wg.Wait()

		if opens.Load() != 1 {
			t.Errorf("opener called %d times, want 1", opens.Load())
		}
	})

	t.Run("retries after a failed open", func(t *testing.T) {
		boom := errors.New("disk on fire")
		calls := 0
		lazy := NewLazyStore(func(context.Context) (unitprice.Store, error) {
			calls++
			if calls == 1 {
				return nil, boom
			}
			return NewSQLiteStore(":memory:", nil)
		}, nil)
		defer lazy.Close()

		_, err := lazy.GetHistory(ctx, 0)
		if !errors.Is(err, unitprice.ErrStorage) || !errors.Is(err, boom) {
			t.Fatalf("GetHistory() error = %v, want ErrStorage wrapping the open failure", err)
		}
		if lazy.Opened() {
			t.Error("Opened() = true after failed open")
		}

		if _, err := lazy.GetHistory(ctx, 0); err != nil {
			t.Errorf("second GetHistory() error = %v", err)
		}
		if calls != 2 {
			t.Errorf("opener called %d times, want 2", calls)
		}
	})

	t.Run("close without open", func(t *testing.T) {
		lazy := NewLazyStore(func(context.Context) (unitprice.Store, error) {
			t.Fatal("opener should not be called")
			return nil, nil
		}, nil)
		if err := lazy.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
}
