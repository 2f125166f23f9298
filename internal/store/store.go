package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the database file created under the data directory.
const DBFileName = "codeknowl.db"

// timeLayout is a fixed-width UTC timestamp so that text ordering in SQL
// matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the SQLite data access layer for repository registration and
// index-run bookkeeping.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the repos and index_runs tables. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339.
		return time.Parse(time.RFC3339Nano, v)
	}
	return t, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS repos (
  repo_id         TEXT PRIMARY KEY,
  local_path      TEXT NOT NULL,
  created_at_utc  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS index_runs (
  run_id          TEXT PRIMARY KEY,
  repo_id         TEXT NOT NULL REFERENCES repos(repo_id),
  status          TEXT NOT NULL,
  started_at_utc  TEXT NOT NULL,
  finished_at_utc TEXT,
  error           TEXT,
  head_commit     TEXT
);

CREATE INDEX IF NOT EXISTS idx_index_runs_repo ON index_runs(repo_id, started_at_utc);
CREATE INDEX IF NOT EXISTS idx_index_runs_status ON index_runs(repo_id, status);
`
