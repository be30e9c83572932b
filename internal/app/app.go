package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"unitprice/internal/backup"
	"unitprice/internal/config"
	"unitprice/internal/database"
	"unitprice/internal/expr"
	"unitprice/internal/unitprice"
)

// App is the application layer between the CLI and the core.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw command-line text, and releases the store and log file on Close.
type App struct {
	cfg       *config.Config
	store     *database.LazyStore
	organizer *unitprice.Organizer
	dest      backup.Destination
	clock     unitprice.Clock
	idgen     unitprice.IDGenerator
	logger    unitprice.Logger
	logFile   *os.File
}

// New creates a fully wired App from the given config. Log records at or
// above LOG_LEVEL are echoed to console. The caller must call Close when done.
func New(cfg *config.Config, console io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	l, logFile, err := newLogger(cfg.LogDir, runID, console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	clock := unitprice.RealClock{}
	idgen := unitprice.UUIDGenerator{}
	store := database.NewLazyStoreFromConfig(cfg.Database, logger)

	return &App{
		cfg:       cfg,
		store:     store,
		organizer: unitprice.NewOrganizer(store, clock, idgen, logger),
		clock:     clock,
		idgen:     idgen,
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// Organizer returns the favorites/folder organizer bound to the app's store.
func (a *App) Organizer() *unitprice.Organizer {
	return a.organizer
}

// NewSession starts an empty comparison session. An empty mode uses the configured default.
func (a *App) NewSession(mode string) (*unitprice.Session, error) {
	if mode == "" {
		mode = a.cfg.Session.Mode
	}
	m, err := unitprice.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	return unitprice.NewSession(m, a.store, expr.Evaluator{}, a.clock, a.idgen, a.logger), nil
}

// ItemArg is one item as typed on the command line, split into its expressions.
type ItemArg struct {
	Price    string
	Quantity string
	Count    string
	Label    string
}

// ParseItemArg splits a command-line item.
//
// Amount mode takes PRICE:QUANTITY[:COUNT]. Labeled mode takes
// PRICE:COUNT[:LABEL]. Each part may itself be an expression such as "2*500".
func ParseItemArg(arg string, mode unitprice.Mode) (ItemArg, error) {
	switch mode {
	case unitprice.ModeLabeled:
		parts := strings.SplitN(arg, ":", 3)
		if len(parts) < 2 {
			return ItemArg{}, fmt.Errorf("%w: %q: want PRICE:COUNT[:LABEL]", unitprice.ErrInvalidInput, arg)
		}
		out := ItemArg{Price: parts[0], Count: parts[1]}
		if len(parts) == 3 {
			out.Label = parts[2]
		}
		return out, nil
	default:
		parts := strings.Split(arg, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return ItemArg{}, fmt.Errorf("%w: %q: want PRICE:QUANTITY[:COUNT]", unitprice.ErrInvalidInput, arg)
		}
		out := ItemArg{Price: parts[0], Quantity: parts[1]}
		if len(parts) == 3 {
			out.Count = parts[2]
		}
		return out, nil
	}
}

// CompareResult is the outcome of one Compare call.
type CompareResult struct {
	Items         []unitprice.Item
	Best          []unitprice.Item
	BestUnitPrice float64
	Record        *unitprice.HistoryRecord

	// Rejected holds one error per argument that was not valid input.
	Rejected []error
	// StorageErrors holds failures to record history. The comparison itself still succeeded.
	StorageErrors []error
}

// Compare ranks the given items by unit price. Invalid arguments are skipped
// and reported in Rejected. In amount mode the session is recorded to history
// only when record is set; labeled mode records after every item.
func (a *App) Compare(ctx context.Context, mode string, args []string, record bool) (*CompareResult, error) {
	session, err := a.NewSession(mode)
	if err != nil {
		return nil, err
	}

	res := &CompareResult{}
	for _, arg := range args {
		in, err := ParseItemArg(arg, session.Mode())
		if err != nil {
			res.Rejected = append(res.Rejected, err)
			continue
		}
		_, err = session.AddItem(ctx, in.Price, in.Quantity, in.Count, in.Label)
		switch {
		case err == nil:
		case errors.Is(err, unitprice.ErrInvalidInput):
			res.Rejected = append(res.Rejected, fmt.Errorf("%q: %w", arg, err))
		case errors.Is(err, unitprice.ErrStorage):
			res.StorageErrors = append(res.StorageErrors, err)
		default:
			return nil, err
		}
	}

	res.Items = session.Items()
	res.Best = session.BestItems()
	res.BestUnitPrice = session.BestUnitPrice()

	if record && session.Mode() == unitprice.ModeAmount && len(res.Items) > 0 {
		rec, err := session.Commit(ctx)
		if err != nil {
			if !errors.Is(err, unitprice.ErrStorage) {
				return nil, err
			}
			res.StorageErrors = append(res.StorageErrors, err)
		} else {
			res.Record = rec
		}
	}
	return res, nil
}

// FavoriteArg parses a single command-line item and saves it as a favorite.
func (a *App) FavoriteArg(ctx context.Context, mode, arg string, opts unitprice.FavoriteOptions) (*unitprice.Favorite, error) {
	session, err := a.NewSession(mode)
	if err != nil {
		return nil, err
	}
	in, err := ParseItemArg(arg, session.Mode())
	if err != nil {
		return nil, err
	}
	item, err := session.NewItem(in.Price, in.Quantity, in.Count, in.Label)
	if err != nil {
		return nil, err
	}
	return a.organizer.Favorite(ctx, *item, opts)
}

// History returns the most recent comparisons, newest first, up to the configured limit.
func (a *App) History(ctx context.Context) ([]*unitprice.HistoryRecord, error) {
	return a.store.GetHistory(ctx, a.cfg.Session.HistoryLimit)
}

// DeleteHistory removes one history record. Unknown ids are not an error.
func (a *App) DeleteHistory(ctx context.Context, id string) error {
	return a.store.DeleteHistory(ctx, id)
}

// ClearHistory removes every history record.
func (a *App) ClearHistory(ctx context.Context) error {
	return a.store.ClearHistory(ctx)
}

// Backup snapshots the database into the configured backup destination.
// passphrase is required when backups are encrypted.
func (a *App) Backup(ctx context.Context, passphrase string) (int64, error) {
	svc, err := a.backupService(passphrase)
	if err != nil {
		return 0, err
	}
	return svc.Backup(ctx)
}

// Restore writes the latest backup to outPath, which must not exist yet.
func (a *App) Restore(ctx context.Context, outPath, passphrase string) (int64, error) {
	svc, err := a.backupService(passphrase)
	if err != nil {
		return 0, err
	}
	return svc.Restore(ctx, outPath)
}

// EncryptsBackups reports whether Backup and Restore need a passphrase.
func (a *App) EncryptsBackups() bool {
	return a.cfg.Backup.Encrypt
}

func (a *App) backupService(passphrase string) (*backup.Service, error) {
	if a.dest == nil {
		dest, err := backup.NewDestinationFromConfig(a.cfg.Backup)
		if err != nil {
			return nil, fmt.Errorf("creating backup destination: %w", err)
		}
		if err := dest.ValidateSetup(); err != nil {
			return nil, fmt.Errorf("backup destination: %w", err)
		}
		a.dest = dest
	}

	var enc backup.Encryptor
	if a.cfg.Backup.Encrypt {
		e, err := backup.NewAgeEncryptor(passphrase)
		if err != nil {
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
		enc = e
	}
	return backup.NewService(a.store, a.dest, enc, a.clock, a.logger), nil
}

// Close closes the store if it was opened and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
