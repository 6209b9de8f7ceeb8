package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
)

const sqliteBatchSize = 10000

// SQLiteSink stores records in the events table of a SQLite database,
// inserting them in batches.
type SQLiteSink struct {
	db   *sql.DB
	stmt *sql.Stmt
	path string

	pending   []Record
	batchSize int
	closed    bool
}

// NewSQLiteSink creates the database at path, which must not exist. An
// empty path picks a unique name in the working directory.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		path = "partsim_trace_" + xid.New().String() + ".sqlite3"
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("sqlite trace: file %s already exists", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite trace: %w", err)
	}
	s := &SQLiteSink{db: db, path: path, batchSize: sqliteBatchSize}
	if err := s.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	s.stmt, err = db.Prepare(`INSERT INTO events VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite trace: %w", err)
	}
	return s, nil
}

// Path returns the database file name.
func (s *SQLiteSink) Path() string { return s.path }

func (s *SQLiteSink) createTable() error {
	for _, q := range []string{
		`CREATE TABLE events
		(
			time         INTEGER NOT NULL,
			event_type   VARCHAR(20) NOT NULL,
			task_name    VARCHAR(200) NOT NULL,
			cpu          VARCHAR(100),
			frequency    INTEGER,
			arrival_time INTEGER
		);`,
		`CREATE INDEX events_time_index ON events (time);`,
		`CREATE INDEX events_task_index ON events (task_name);`,
		`CREATE INDEX events_type_index ON events (event_type);`,
	} {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite trace: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Write(r Record) error {
	if s.closed {
		return nil
	}
	s.pending = append(s.pending, r)
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush writes the buffered records in one transaction.
func (s *SQLiteSink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite trace: %w", err)
	}
	stmt := tx.Stmt(s.stmt)
	for _, r := range s.pending {
		var cpu any
		if r.CPU != "" {
			cpu = r.CPU
		}
		if _, err := stmt.Exec(int64(r.Time), string(r.Kind), r.Task, cpu, r.Frequency, int64(r.Arrival)); err != nil {
			return errors.Join(fmt.Errorf("sqlite trace: %w", err), tx.Rollback())
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite trace: %w", err)
	}
	s.pending = nil
	return nil
}

func (s *SQLiteSink) Close() error {
	if s.closed {
		return nil
	}
	err := s.Flush()
	s.closed = true
	return errors.Join(err, s.stmt.Close(), s.db.Close())
}
