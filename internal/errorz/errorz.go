package errorz

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConstraintViolated = errors.New("constraint violated")
	ErrTxBadState         = errors.New("transaction is in a known bad state")

	// ErrUnauthenticated indicates no (valid) actor was provided.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the actor is known, but not allowed to perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrExpired indicates something is no longer available because time ran out or it was closed.
	ErrExpired = errors.New("expired")
	// ErrConsumed indicates a single-use capability was used before.
	ErrConsumed = errors.New("already consumed")
	// ErrConflict indicates the request conflicts with the current state.
	ErrConflict = errors.New("conflict")
)

// MapDBErr maps database errors to appropriate errorz errors.
// If err is nil, MapDBErr returns nil.
func MapDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	sErr := sqlite3.Error{}
	if errors.As(err, &sErr) {
		if sErr.Code == sqlite3.ErrConstraint {
			return ErrConstraintViolated
		}
	}

	return err
}
