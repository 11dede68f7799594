// Package store implements the transactions of all domain packages on SQLite.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/willemschots/volunteerhub/internal/org"
	"github.com/willemschots/volunteerhub/internal/poll"
	"github.com/willemschots/volunteerhub/internal/portal"
	"github.com/willemschots/volunteerhub/internal/signup"
)

// Store is responsible for interacting with a database.
type Store struct {
	db *sql.DB
}

// New creates a new Store. db should be opened for writing.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx: tx,
	}, nil
}

// Org returns the store as an org.Store.
func (s *Store) Org() org.Store {
	return bound[org.Tx]{s: s, wrap: func(tx *Tx) org.Tx { return tx }}
}

// Signup returns the store as a signup.Store.
func (s *Store) Signup() signup.Store {
	return bound[signup.Tx]{s: s, wrap: func(tx *Tx) signup.Tx { return tx }}
}

// Poll returns the store as a poll.Store.
func (s *Store) Poll() poll.Store {
	return bound[poll.Tx]{s: s, wrap: func(tx *Tx) poll.Tx { return tx }}
}

// Portal returns the store as a portal.Store.
func (s *Store) Portal() portal.Store {
	return bound[portal.Tx]{s: s, wrap: func(tx *Tx) portal.Tx { return tx }}
}

// bound adapts Store.BeginTx to the Tx interface of a domain package.
type bound[T any] struct {
	s    *Store
	wrap func(tx *Tx) T
}

func (b bound[T]) BeginTx(ctx context.Context) (T, error) {
	tx, err := b.s.BeginTx(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return b.wrap(tx), nil
}

// Tx is a database transaction. It implements the Tx interfaces of all domain packages.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// utc normalizes times before they are stored, so that the stored
// text representation sorts chronologically.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
