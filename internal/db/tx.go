package db

import (
	"context"
	"errors"
)

// Tx is a transaction that can be committed or rolled back.
type Tx interface {
	Commit() error
	Rollback() error
}

// InTx begins a transaction using begin and runs f inside it. The transaction
// is committed if f succeeds and rolled back otherwise. Rollback errors are
// joined with the error returned by f.
func InTx[T Tx](ctx context.Context, begin func(context.Context) (T, error), f func(tx T) error) error {
	tx, err := begin(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	return tx.Commit()
}
