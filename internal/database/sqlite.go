package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"unitprice/internal/database/migrations"
	"unitprice/internal/unitprice"
)

// SQLiteStore implements unitprice.Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger unitprice.Logger
}

// NewSQLiteStore opens the database at path, migrates it to the latest
// schema and verifies the result. path can be ":memory:".
func NewSQLiteStore(path string, logger unitprice.Logger) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := migrations.CheckSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("checking database schema: %w", err)
	}

	s := NewSQLiteStoreFromDB(db, logger)
	s.path = path
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing, already migrated connection.
func NewSQLiteStoreFromDB(db *sql.DB, logger unitprice.Logger) *SQLiteStore {
	if logger == nil {
		logger = unitprice.NewNopLogger()
	}
	return &SQLiteStore{db: db, logger: logger}
}

// OpenConnection opens and configures a SQLite connection with foreign keys
// enabled on every pooled connection. ":memory:" is limited to a single
// connection so all callers see the same database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=1&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemoryPath(path) {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// History operations

func (s *SQLiteStore) AddHistory(ctx context.Context, rec *unitprice.HistoryRecord) error {
	if err := checkTimes("inserting history", rec.CreatedAt); err != nil {
		return err
	}
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("encoding history items: %w", err)
	}
	best, err := json.Marshal(rec.BestItem)
	if err != nil {
		return fmt.Errorf("encoding best item: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (id, items_json, best_item_json, created_at, total_item_count)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, string(items), string(best), rec.CreatedAt.UnixNano(), rec.TotalItemCount)
	if err != nil {
		return classify("inserting history", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, limit int) ([]*unitprice.HistoryRecord, error) {
	if limit <= 0 {
		limit = unitprice.DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, items_json, best_item_json, created_at, total_item_count
		 FROM history ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("querying history", err)
	}
	defer rows.Close()

	recs := []*unitprice.HistoryRecord{}
	for rows.Next() {
		var (
			rec         unitprice.HistoryRecord
			items, best string
			createdAt   int64
		)
		if err := rows.Scan(&rec.ID, &items, &best, &createdAt, &rec.TotalItemCount); err != nil {
			return nil, classify("scanning history", err)
		}
		if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
			return nil, fmt.Errorf("decoding history %s items: %w: %w", rec.ID, unitprice.ErrStorage, err)
		}
		if err := json.Unmarshal([]byte(best), &rec.BestItem); err != nil {
			return nil, fmt.Errorf("decoding history %s best item: %w: %w", rec.ID, unitprice.ErrStorage, err)
		}
		rec.CreatedAt = fromUnixNano(createdAt)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating history", err)
	}
	return recs, nil
}

func (s *SQLiteStore) DeleteHistory(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id); err != nil {
		return classify("deleting history", err)
	}
	return nil
}

func (s *SQLiteStore) ClearHistory(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	if err != nil {
		return classify("clearing history", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("history cleared", "deleted", n)
	return nil
}

// Favorite operations

const favoriteColumns = `f.id, f.item_id, f.price, f.per_unit_amount, f.count, f.total_amount,
	f.unit_price, f.timestamp, f.theme_index, f.label, f.folder_id, f.favorite_at, f.note,
	(SELECT json_group_array(tag ORDER BY position) FROM favorite_tags t WHERE t.favorite_id = f.id)`

func (s *SQLiteStore) AddFavorite(ctx context.Context, fav *unitprice.Favorite) error {
	if err := checkTimes("saving favorite", fav.FavoriteAt); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("starting transaction", err)
	}
	defer tx.Rollback()

	it := fav.Item
	args := []any{
		it.ID, it.Price, it.PerUnitAmount, it.Count, it.TotalAmount, it.UnitPrice,
		it.Timestamp, it.ThemeIndex, it.Label, nullString(fav.FolderID), fav.FavoriteAt.UnixNano(), fav.Note,
	}

	id := fav.ID
	if id == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO favorites (item_id, price, per_unit_amount, count, total_amount, unit_price,
				timestamp, theme_index, label, folder_id, favorite_at, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return classify("inserting favorite", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return classify("reading favorite id", err)
		}
	} else {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO favorites (id, item_id, price, per_unit_amount, count, total_amount, unit_price,
				timestamp, theme_index, label, folder_id, favorite_at, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				item_id = excluded.item_id, price = excluded.price,
				per_unit_amount = excluded.per_unit_amount, count = excluded.count,
				total_amount = excluded.total_amount, unit_price = excluded.unit_price,
				timestamp = excluded.timestamp, theme_index = excluded.theme_index,
				label = excluded.label, folder_id = excluded.folder_id,
				favorite_at = excluded.favorite_at, note = excluded.note`,
			append([]any{id}, args...)...)
		if err != nil {
			return classify("upserting favorite", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM favorite_tags WHERE favorite_id = ?`, id); err != nil {
			return classify("clearing favorite tags", err)
		}
	}

	for i, tag := range fav.Tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO favorite_tags (favorite_id, tag, position) VALUES (?, ?, ?)
			 ON CONFLICT(favorite_id, tag) DO NOTHING`, id, tag, i)
		if err != nil {
			return classify("inserting favorite tag", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("committing transaction", err)
	}
	fav.ID = id
	return nil
}

func (s *SQLiteStore) GetFavorites(ctx context.Context, folderID *string) ([]*unitprice.Favorite, error) {
	if folderID == nil {
		return s.queryFavorites(ctx, `WHERE f.folder_id IS NULL`)
	}
	return s.queryFavorites(ctx, `WHERE f.folder_id = ?`, *folderID)
}

func (s *SQLiteStore) GetAllFavorites(ctx context.Context) ([]*unitprice.Favorite, error) {
	return s.queryFavorites(ctx, "")
}

func (s *SQLiteStore) GetFavoritesByTag(ctx context.Context, tag string) ([]*unitprice.Favorite, error) {
	return s.queryFavorites(ctx,
		`WHERE f.id IN (SELECT favorite_id FROM favorite_tags WHERE tag = ?)`, tag)
}

func (s *SQLiteStore) DeleteFavorite(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id); err != nil {
		return classify("deleting favorite", err)
	}
	return nil
}

func (s *SQLiteStore) queryFavorites(ctx context.Context, where string, args ...any) ([]*unitprice.Favorite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+favoriteColumns+` FROM favorites f `+where+` ORDER BY f.id`, args...)
	if err != nil {
		return nil, classify("querying favorites", err)
	}
	defer rows.Close()

	favs := []*unitprice.Favorite{}
	for rows.Next() {
		var (
			fav        unitprice.Favorite
			folderID   sql.NullString
			favoriteAt int64
			tags       string
		)
		it := &fav.Item
		err := rows.Scan(&fav.ID, &it.ID, &it.Price, &it.PerUnitAmount, &it.Count, &it.TotalAmount,
			&it.UnitPrice, &it.Timestamp, &it.ThemeIndex, &it.Label, &folderID, &favoriteAt, &fav.Note, &tags)
		if err != nil {
			return nil, classify("scanning favorite", err)
		}
		if folderID.Valid {
			fav.FolderID = &folderID.String
		}
		fav.FavoriteAt = fromUnixNano(favoriteAt)
		if err := json.Unmarshal([]byte(tags), &fav.Tags); err != nil {
			return nil, fmt.Errorf("decoding favorite %d tags: %w: %w", fav.ID, unitprice.ErrStorage, err)
		}
		favs = append(favs, &fav)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating favorites", err)
	}
	return favs, nil
}

// Folder operations

func (s *SQLiteStore) CreateFolder(ctx context.Context, folder *unitprice.Folder) error {
	if err := checkTimes("inserting folder", folder.CreatedAt, folder.UpdatedAt); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, name, icon, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		folder.ID, folder.Name, folder.Icon, folder.Color,
		folder.CreatedAt.UnixNano(), folder.UpdatedAt.UnixNano())
	if err != nil {
		return classify("inserting folder", err)
	}
	return nil
}

func (s *SQLiteStore) GetFolders(ctx context.Context) ([]*unitprice.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, icon, color, created_at, updated_at
		 FROM folders ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, classify("querying folders", err)
	}
	defer rows.Close()

	folders := []*unitprice.Folder{}
	for rows.Next() {
		var (
			f                    unitprice.Folder
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Icon, &f.Color, &createdAt, &updatedAt); err != nil {
			return nil, classify("scanning folder", err)
		}
		f.CreatedAt = fromUnixNano(createdAt)
		f.UpdatedAt = fromUnixNano(updatedAt)
		folders = append(folders, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating folders", err)
	}
	return folders, nil
}

func (s *SQLiteStore) RenameFolder(ctx context.Context, id, name string, at time.Time) error {
	if err := checkTimes("renaming folder", at); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE folders SET name = ?, updated_at = ? WHERE id = ?`, name, at.UnixNano(), id)
	if err != nil {
		return classify("renaming folder", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("renaming folder", err)
	}
	if n == 0 {
		return fmt.Errorf("renaming folder %s: %w", id, unitprice.ErrFolderNotFound)
	}
	return nil
}

// DeleteFolder moves the folder's favorites to the root and deletes the
// folder in one transaction.
func (s *SQLiteStore) DeleteFolder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("starting transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE favorites SET folder_id = NULL WHERE folder_id = ?`, id)
	if err != nil {
		return classify("reparenting favorites", err)
	}
	moved, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
		return classify("deleting folder", err)
	}

	if err := tx.Commit(); err != nil {
		return classify("committing transaction", err)
	}
	s.logger.Debug("folder deleted", "id", id, "reparented", moved)
	return nil
}

// Snapshot writes a complete copy of the database to destPath using
// VACUUM INTO. destPath must not exist.
func (s *SQLiteStore) Snapshot(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
		return classify("backing up database", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// classify maps driver errors onto the unitprice error kinds.
func classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%s: %w", op, unitprice.ErrDuplicateKey)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: %w", op, unitprice.ErrFolderNotFound)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, unitprice.ErrStorage, err)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// isMemoryPath reports whether path selects an in-memory database.
func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

var _ unitprice.Store = (*SQLiteStore)(nil)
