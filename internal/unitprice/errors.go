package unitprice

import "errors"

var (
	// ErrInvalidInput is returned when an expression does not evaluate or
	// evaluates to a value outside its domain (e.g. a non-positive quantity).
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateKey is returned when inserting a record whose primary key exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStorage wraps every failure coming from the underlying database.
	ErrStorage = errors.New("storage failure")

	// ErrFolderNotFound is returned when a favorite is filed under a folder
	// that does not exist, or a missing folder is renamed.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrFavoriteNotFound is returned when editing a favorite that does not exist.
	ErrFavoriteNotFound = errors.New("favorite not found")

	// ErrEmptySession is returned when committing a session with no items.
	ErrEmptySession = errors.New("session has no items")
)
