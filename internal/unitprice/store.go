package unitprice

import (
	"context"
	"time"
)

// DefaultHistoryLimit is used by GetHistory when the caller passes limit <= 0.
const DefaultHistoryLimit = 50

// Store persists history records, favorites and folders.
//
// Every failure of the underlying database is returned wrapping ErrStorage.
// Timestamps are returned in UTC. A zero timestamp, or one outside the years
// 1678 to 2262, is rejected with ErrInvalidInput before anything is written.
// Implementations must be safe for concurrent use.
type Store interface {
	// History

	// AddHistory inserts a record. Fails with ErrDuplicateKey if the id exists.
	AddHistory(ctx context.Context, rec *HistoryRecord) error

	// GetHistory returns up to limit records, newest CreatedAt first.
	// A limit <= 0 means DefaultHistoryLimit.
	GetHistory(ctx context.Context, limit int) ([]*HistoryRecord, error)

	// DeleteHistory removes a record. Missing ids are not an error.
	DeleteHistory(ctx context.Context, id string) error

	// ClearHistory removes every record.
	ClearHistory(ctx context.Context) error

	// Favorites

	// AddFavorite inserts or replaces a favorite keyed by fav.ID. A zero ID
	// is assigned by the store and written back into fav. Fails with
	// ErrFolderNotFound when fav.FolderID names a folder that does not exist.
	AddFavorite(ctx context.Context, fav *Favorite) error

	// GetFavorites returns favorites filed under folderID; nil returns the
	// unfiled favorites only.
	GetFavorites(ctx context.Context, folderID *string) ([]*Favorite, error)

	// GetAllFavorites returns every favorite regardless of folder.
	GetAllFavorites(ctx context.Context) ([]*Favorite, error)

	// GetFavoritesByTag returns every favorite carrying the exact tag.
	GetFavoritesByTag(ctx context.Context, tag string) ([]*Favorite, error)

	// DeleteFavorite removes a favorite. Missing ids are not an error.
	DeleteFavorite(ctx context.Context, id int64) error

	// Folders

	// CreateFolder inserts a folder. Fails with ErrDuplicateKey if the id exists.
	CreateFolder(ctx context.Context, folder *Folder) error

	// GetFolders returns every folder, most recently updated first.
	GetFolders(ctx context.Context) ([]*Folder, error)

	// RenameFolder changes a folder's name and sets UpdatedAt to at.
	// Fails with ErrFolderNotFound if the folder does not exist.
	RenameFolder(ctx context.Context, id, name string, at time.Time) error

	// DeleteFolder removes the folder and moves every favorite filed under
	// it to the root, atomically. Missing ids are not an error.
	DeleteFolder(ctx context.Context, id string) error

	// Snapshot writes a consistent copy of the whole database to destPath.
	Snapshot(ctx context.Context, destPath string) error

	// Close releases the underlying database handle.
	Close() error
}
