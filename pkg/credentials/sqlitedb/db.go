// Package sqlitedb provides a SQLite implementation of credentials.CredStore.
package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// DB provides dual reader/writer database connections.
// The writer is limited to a single connection to avoid "database is locked" errors.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// NewDB opens the SQLite database file at dbPath in WAL mode.
func NewDB(dbPath string) (*DB, error) {
	return openDB(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&%s", dbPath, pragmas))
}

// NewMemoryDB opens a named in-memory database shared by the reader & writer connections.
// The database lives until its last connection is closed.
func NewMemoryDB(name string) (*DB, error) {
	return openDB(fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", name, pragmas))
}

func openDB(dsn string) (*DB, error) {
	writer, err := sql.Open("sqlite", dsn)
	if nil != err {
		return nil, wrapError(err, "failed opening writer")
	}
	writer.SetMaxOpenConns(1)
	err = writer.Ping()
	if nil != err {
		writer.Close()
		return nil, wrapError(err, "failed writer ping")
	}

	reader, err := sql.Open("sqlite", dsn)
	if nil != err {
		writer.Close()
		return nil, wrapError(err, "failed opening reader")
	}
	reader.SetMaxOpenConns(4)
	err = reader.Ping()
	if nil != err {
		reader.Close()
		writer.Close()
		return nil, wrapError(err, "failed reader ping")
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

// Close closes both reader and writer connections.
func (self *DB) Close() error {
	return wrapError(errors.Join(self.Reader.Close(), self.Writer.Close()), "failed closing db")
}
