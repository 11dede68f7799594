package store

import (
	"database/sql"
	"fmt"

	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

// exec runs the query and returns the number of affected rows.
func (t *Tx) exec(q *db.Query) (int64, error) {
	s, params, err := q.Get()
	if err != nil {
		return 0, err
	}

	result, err := t.tx.Exec(s, params...)
	if err != nil {
		return 0, errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errorz.MapDBErr(err)
	}

	return rows, nil
}

// execOne runs the query and returns errorz.ErrNotFound when no row was affected.
func (t *Tx) execOne(q *db.Query, what string) error {
	rows, err := t.exec(q)
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("%s not found: %w", what, errorz.ErrNotFound)
	}

	return nil
}

// query runs the query and scans every row using scan.
func query[T any](t *Tx, q *db.Query, scan func(rows *sql.Rows) (T, error)) ([]T, error) {
	s, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}
