package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a well-formed identity has no record.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidID is returned when an identity is not a valid UUID.
	ErrInvalidID = errors.New("invalid id")

	// ErrVersionConflict is returned when an update carries a stale version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateName is returned when a schema name is already taken.
	ErrDuplicateName = errors.New("duplicate schema name")

	// ErrDuplicateID is returned when a record with the same identity exists.
	ErrDuplicateID = errors.New("duplicate id")
)

// constraintError maps SQLite constraint violations onto store sentinels.
// Other errors are returned unchanged.
func constraintError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique:
		return ErrDuplicateName
	case sqlite3.ErrConstraintPrimaryKey:
		return ErrDuplicateID
	default:
		return err
	}
}
