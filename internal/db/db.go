package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// Both pools use WAL mode so that reads and writes don't block each other,
	// wait up to 5 seconds for a lock and enforce foreign keys. Signup capacity
	// and cascading deletes of tenants depend on the latter.
	// The write pool also uses immediate transactions to prevent locking issues.
	writeOptions = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate"
	readOptions  = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000"
)

// ErrForeignKeysOff is returned when the opened database does not enforce
// foreign keys, for example because the driver ignored the options.
var ErrForeignKeysOff = errors.New("foreign keys are not enforced")

// OpenSQLite opens a pool of SQLite3 connections. Different settings
// are appropriate for reading and writing, so this function needs to know
// what the sql.DB will be used for. The pool is checked with a single
// query before it is returned.
//
// See this comment for more information:
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
func OpenSQLite(dbFile string, write bool) (*sql.DB, error) {
	optsPostfix := readOptions
	if write {
		optsPostfix = writeOptions
	}

	db, err := sql.Open("sqlite3", dbFile+optsPostfix)
	if err != nil {
		return nil, err
	}

	if write {
		// use only a single connection for writing.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		// don't close this connection.
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	err = checkForeignKeys(db)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to check %s: %w", dbFile, err), db.Close())
	}

	return db, nil
}

func checkForeignKeys(db *sql.DB) error {
	var enabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	if err != nil {
		return err
	}

	if enabled != 1 {
		return ErrForeignKeysOff
	}

	return nil
}
