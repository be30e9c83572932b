package database

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"unitprice/internal/database/migrations"
	"unitprice/internal/unitprice"
)

// Key layout. Index keys end in fixed-width big-endian integers so that
// byte order matches numeric order.
var (
	historyPrefix    = []byte("history/")
	historyByCreated = []byte("idx/history/created/") // + time + seq + id
	folderPrefix     = []byte("folder/")
	folderByUpdated  = []byte("idx/folder/updated/") // + time + id
	favoritePrefix   = []byte("fav/")                // + id
	favoriteByFolder = []byte("idx/fav/folder/")     // + folder id + 0x00 + fav id
	favoriteAtRoot   = []byte("idx/fav/root/")       // + fav id
	favoriteByTag    = []byte("idx/fav/tag/")        // + tag + 0x00 + fav id

	historySeqKey    = []byte("meta/history_seq")
	favoriteSeqKey   = []byte("meta/favorite_seq")
	schemaVersionKey = []byte("meta/schema_version")
)

const (
	maxConflictRetries = 10
	historySeqLease    = 64
	clearBatchSize     = 500
)

// BadgerConfig holds configuration for a BadgerDB-backed store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Data is lost on Close.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// BadgerStore implements unitprice.Store on BadgerDB, maintaining its own
// secondary index keys.
type BadgerStore struct {
	db         *badger.DB
	historySeq *badger.Sequence
	path       string
	logger     unitprice.Logger

	// deleteFolderHook, when set, runs inside the DeleteFolder transaction
	// after the favorites are reparented. Tests use it to fail the cascade.
	deleteFolderHook func() error
}

type historyValue struct {
	Seq    uint64                   `json:"seq"`
	Record *unitprice.HistoryRecord `json:"record"`
}

// badgerLogger adapts unitprice.Logger to BadgerDB's Logger interface.
// Badger's info output is demoted to debug.
type badgerLogger struct {
	logger unitprice.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens (creating if needed) a BadgerDB store.
func NewBadgerStore(cfg BadgerConfig, logger unitprice.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = unitprice.NewNopLogger()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{db: db, path: cfg.Path, logger: logger}
	if err := s.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}
	// History seq numbers come from a leased sequence, not a counter key.
	s.historySeq, err = db.GetSequence(historySeqKey, historySeqLease)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("leasing history sequence: %w", err)
	}
	return s, nil
}

// checkSchema stamps a fresh database with the schema version and rejects
// databases written by a different version.
func (s *BadgerStore) checkSchema() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(schemaVersionKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set(schemaVersionKey, u64(migrations.SchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		if got := binary.BigEndian.Uint64(v); got != migrations.SchemaVersion {
			return fmt.Errorf("badger database is at schema version %d, binary expects %d", got, migrations.SchemaVersion)
		}
		return nil
	})
}

// Path returns the database directory, or "" for in-memory stores.
func (s *BadgerStore) Path() string {
	return s.path
}

// History operations

func (s *BadgerStore) AddHistory(ctx context.Context, rec *unitprice.HistoryRecord) error {
	if err := checkTimes("inserting history", rec.CreatedAt); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageErr("inserting history", err)
	}
	stored := *rec
	stored.CreatedAt = rec.CreatedAt.UTC()
	seq, err := s.historySeq.Next()
	if err != nil {
		return storageErr("inserting history", err)
	}
	return s.update(ctx, "inserting history", func(txn *badger.Txn) error {
		key := join(historyPrefix, []byte(rec.ID))
		if exists, err := has(txn, key); err != nil {
			return err
		} else if exists {
			return unitprice.ErrDuplicateKey
		}
		if err := setJSON(txn, key, historyValue{Seq: seq, Record: &stored}); err != nil {
			return err
		}
		return txn.Set(historyIndexKey(rec, seq), nil)
	})
}

func (s *BadgerStore) GetHistory(ctx context.Context, limit int) ([]*unitprice.HistoryRecord, error) {
	if limit <= 0 {
		limit = unitprice.DefaultHistoryLimit
	}

	recs := []*unitprice.HistoryRecord{}
	err := s.view(ctx, "querying history", func(txn *badger.Txn) error {
		keys := scanKeys(txn, historyByCreated, true, limit)
		for _, k := range keys {
			id := k[len(historyByCreated)+16:]
			var v historyValue
			found, err := getJSON(txn, join(historyPrefix, id), &v)
			if err != nil {
				return err
			}
			if found {
				recs = append(recs, v.Record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *BadgerStore) DeleteHistory(ctx context.Context, id string) error {
	return s.update(ctx, "deleting history", func(txn *badger.Txn) error {
		key := join(historyPrefix, []byte(id))
		var v historyValue
		found, err := getJSON(txn, key, &v)
		if err != nil || !found {
			return err
		}
		if err := txn.Delete(historyIndexKey(v.Record, v.Seq)); err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// ClearHistory deletes history in batches of clearBatchSize keys.
func (s *BadgerStore) ClearHistory(ctx context.Context) error {
	for {
		deleted := 0
		err := s.update(ctx, "clearing history", func(txn *badger.Txn) error {
			deleted = 0
			for _, prefix := range [][]byte{historyPrefix, historyByCreated} {
				for _, k := range scanKeys(txn, prefix, false, clearBatchSize) {
					if err := txn.Delete(k); err != nil {
						return err
					}
					deleted++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if deleted == 0 {
			return nil
		}
	}
}

func historyIndexKey(rec *unitprice.HistoryRecord, seq uint64) []byte {
	return join(historyByCreated, timeKey(rec.CreatedAt), u64(seq), []byte(rec.ID))
}

// Favorite operations

func (s *BadgerStore) AddFavorite(ctx context.Context, fav *unitprice.Favorite) error {
	if err := checkTimes("saving favorite", fav.FavoriteAt); err != nil {
		return err
	}
	var id int64
	err := s.update(ctx, "saving favorite", func(txn *badger.Txn) error {
		if fav.FolderID != nil {
			exists, err := has(txn, join(folderPrefix, []byte(*fav.FolderID)))
			if err != nil {
				return err
			}
			if !exists {
				return unitprice.ErrFolderNotFound
			}
		}

		id = fav.ID
		if id == 0 {
			seq, err := nextSeq(txn, favoriteSeqKey)
			if err != nil {
				return err
			}
			id = int64(seq)
		} else {
			if err := raiseSeq(txn, favoriteSeqKey, uint64(id)); err != nil {
				return err
			}
			var old unitprice.Favorite
			found, err := getJSON(txn, favoriteKey(id), &old)
			if err != nil {
				return err
			}
			if found {
				if err := deleteFavoriteIndexes(txn, &old); err != nil {
					return err
				}
			}
		}

		stored := *fav
		stored.ID = id
		stored.Tags = uniqueTags(fav.Tags)
		stored.FavoriteAt = fav.FavoriteAt.UTC()
		if err := setJSON(txn, favoriteKey(id), &stored); err != nil {
			return err
		}
		for _, k := range favoriteIndexKeys(&stored) {
			if err := txn.Set(k, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	fav.ID = id
	return nil
}

func (s *BadgerStore) GetFavorites(ctx context.Context, folderID *string) ([]*unitprice.Favorite, error) {
	prefix := favoriteAtRoot
	if folderID != nil {
		prefix = join(favoriteByFolder, []byte(*folderID), []byte{0})
	}
	return s.favoritesByIndex(ctx, "querying favorites", prefix)
}

func (s *BadgerStore) GetAllFavorites(ctx context.Context) ([]*unitprice.Favorite, error) {
	favs := []*unitprice.Favorite{}
	err := s.view(ctx, "querying favorites", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(favoritePrefix); it.ValidForPrefix(favoritePrefix); it.Next() {
			var fav unitprice.Favorite
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &fav)
			}); err != nil {
				return err
			}
			favs = append(favs, &fav)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return favs, nil
}

func (s *BadgerStore) GetFavoritesByTag(ctx context.Context, tag string) ([]*unitprice.Favorite, error) {
	return s.favoritesByIndex(ctx, "querying favorites by tag", join(favoriteByTag, []byte(tag), []byte{0}))
}

func (s *BadgerStore) DeleteFavorite(ctx context.Context, id int64) error {
	return s.update(ctx, "deleting favorite", func(txn *badger.Txn) error {
		var fav unitprice.Favorite
		found, err := getJSON(txn, favoriteKey(id), &fav)
		if err != nil || !found {
			return err
		}
		if err := deleteFavoriteIndexes(txn, &fav); err != nil {
			return err
		}
		return txn.Delete(favoriteKey(id))
	})
}

// favoritesByIndex loads the favorites whose ids trail the keys under prefix.
func (s *BadgerStore) favoritesByIndex(ctx context.Context, op string, prefix []byte) ([]*unitprice.Favorite, error) {
	favs := []*unitprice.Favorite{}
	err := s.view(ctx, op, func(txn *badger.Txn) error {
		for _, k := range scanKeys(txn, prefix, false, 0) {
			id := int64(binary.BigEndian.Uint64(k[len(k)-8:]))
			var fav unitprice.Favorite
			found, err := getJSON(txn, favoriteKey(id), &fav)
			if err != nil {
				return err
			}
			if found {
				favs = append(favs, &fav)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return favs, nil
}

// uniqueTags drops repeated tags, keeping first occurrences in order.
func uniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func favoriteKey(id int64) []byte {
	return join(favoritePrefix, u64(uint64(id)))
}

func favoriteIndexKeys(fav *unitprice.Favorite) [][]byte {
	id := u64(uint64(fav.ID))
	keys := make([][]byte, 0, len(fav.Tags)+1)
	if fav.FolderID == nil {
		keys = append(keys, join(favoriteAtRoot, id))
	} else {
		keys = append(keys, join(favoriteByFolder, []byte(*fav.FolderID), []byte{0}, id))
	}
	for _, tag := range fav.Tags {
		keys = append(keys, join(favoriteByTag, []byte(tag), []byte{0}, id))
	}
	return keys
}

func deleteFavoriteIndexes(txn *badger.Txn, fav *unitprice.Favorite) error {
	for _, k := range favoriteIndexKeys(fav) {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Folder operations

func (s *BadgerStore) CreateFolder(ctx context.Context, folder *unitprice.Folder) error {
	if err := checkTimes("inserting folder", folder.CreatedAt, folder.UpdatedAt); err != nil {
		return err
	}
	stored := *folder
	stored.CreatedAt = folder.CreatedAt.UTC()
	stored.UpdatedAt = folder.UpdatedAt.UTC()
	return s.update(ctx, "inserting folder", func(txn *badger.Txn) error {
		key := join(folderPrefix, []byte(folder.ID))
		if exists, err := has(txn, key); err != nil {
			return err
		} else if exists {
			return unitprice.ErrDuplicateKey
		}
		if err := setJSON(txn, key, &stored); err != nil {
			return err
		}
		return txn.Set(folderIndexKey(&stored), nil)
	})
}

func (s *BadgerStore) GetFolders(ctx context.Context) ([]*unitprice.Folder, error) {
	folders := []*unitprice.Folder{}
	err := s.view(ctx, "querying folders", func(txn *badger.Txn) error {
		for _, k := range scanKeys(txn, folderByUpdated, true, 0) {
			id := k[len(folderByUpdated)+8:]
			var f unitprice.Folder
			found, err := getJSON(txn, join(folderPrefix, id), &f)
			if err != nil {
				return err
			}
			if found {
				folders = append(folders, &f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func (s *BadgerStore) RenameFolder(ctx context.Context, id, name string, at time.Time) error {
	if err := checkTimes("renaming folder", at); err != nil {
		return err
	}
	return s.update(ctx, "renaming folder", func(txn *badger.Txn) error {
		key := join(folderPrefix, []byte(id))
		var f unitprice.Folder
		found, err := getJSON(txn, key, &f)
		if err != nil {
			return err
		}
		if !found {
			return unitprice.ErrFolderNotFound
		}
		if err := txn.Delete(folderIndexKey(&f)); err != nil {
			return err
		}
		f.Name = name
		f.UpdatedAt = at.UTC()
		if err := setJSON(txn, key, &f); err != nil {
			return err
		}
		return txn.Set(folderIndexKey(&f), nil)
	})
}

// DeleteFolder moves the folder's favorites to the root and deletes the
// folder in one read-write transaction.
func (s *BadgerStore) DeleteFolder(ctx context.Context, id string) error {
	moved := 0
	err := s.update(ctx, "deleting folder", func(txn *badger.Txn) error {
		moved = 0
		for _, k := range scanKeys(txn, join(favoriteByFolder, []byte(id), []byte{0}), false, 0) {
			favID := int64(binary.BigEndian.Uint64(k[len(k)-8:]))
			var fav unitprice.Favorite
			found, err := getJSON(txn, favoriteKey(favID), &fav)
			if err != nil {
				return err
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
			if !found {
				continue
			}
			fav.FolderID = nil
			if err := setJSON(txn, favoriteKey(favID), &fav); err != nil {
				return err
			}
			if err := txn.Set(join(favoriteAtRoot, u64(uint64(favID))), nil); err != nil {
				return err
			}
			moved++
		}
		if s.deleteFolderHook != nil {
			if err := s.deleteFolderHook(); err != nil {
				return err
			}
		}

		key := join(folderPrefix, []byte(id))
		var f unitprice.Folder
		found, err := getJSON(txn, key, &f)
		if err != nil || !found {
			return err
		}
		if err := txn.Delete(folderIndexKey(&f)); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("folder deleted", "id", id, "reparented", moved)
	return nil
}

func folderIndexKey(f *unitprice.Folder) []byte {
	return join(folderByUpdated, timeKey(f.UpdatedAt), []byte(f.ID))
}

// Snapshot streams a full backup of the database to destPath, which must
// not exist.
func (s *BadgerStore) Snapshot(ctx context.Context, destPath string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("backing up database", err)
	}
	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return storageErr("backing up database", err)
	}
	if _, err := s.db.Backup(f, 0); err != nil {
		f.Close()
		return storageErr("backing up database", err)
	}
	if err := f.Close(); err != nil {
		return storageErr("backing up database", err)
	}
	return nil
}

// Close returns the unused sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.historySeq.Release(); err != nil {
		s.logger.Warn("releasing history sequence", "error", err)
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *BadgerStore) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return storageErr(op, err)
	}
	for attempt := 0; ; attempt++ {
		txn := s.db.NewTransaction(true)
		err := fn(txn)
		if err == nil {
			err = txn.Commit()
		}
		txn.Discard()

		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			s.logger.Debug("badger transaction conflict, retrying", "op", op, "attempt", attempt+1)
			continue
		}
		return storageErr(op, err)
	}
}

func (s *BadgerStore) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return storageErr(op, err)
	}
	return storageErr(op, s.db.View(fn))
}

// storageErr wraps err with op, classifying anything that is not already a
// unitprice error kind as ErrStorage.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unitprice.ErrDuplicateKey), errors.Is(err, unitprice.ErrFolderNotFound):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, unitprice.ErrStorage, err)
}

// scanKeys returns copies of the keys under prefix, optionally in reverse
// order and capped at limit (0 = no cap).
func scanKeys(txn *badger.Txn, prefix []byte, reverse bool, limit int) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = reverse

	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = join(prefix, bytes.Repeat([]byte{0xFF}, 16))
	}

	var keys [][]byte
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys
}

func has(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(b []byte) error {
		return json.Unmarshal(b, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func nextSeq(txn *badger.Txn, key []byte) (uint64, error) {
	n, err := readSeq(txn, key)
	if err != nil {
		return 0, err
	}
	n++
	return n, txn.Set(key, u64(n))
}

// raiseSeq makes sure the counter at key is at least n.
func raiseSeq(txn *badger.Txn, key []byte, n uint64) error {
	cur, err := readSeq(txn, key)
	if err != nil || cur >= n {
		return err
	}
	return txn.Set(key, u64(n))
}

func readSeq(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func u64(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

// timeKey encodes t so that byte order matches chronological order,
// including instants before 1970.
func timeKey(t time.Time) []byte {
	return u64(uint64(t.UnixNano()) ^ (1 << 63))
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

var _ unitprice.Store = (*BadgerStore)(nil)
