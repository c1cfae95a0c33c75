package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/result"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRuns is returned by Last when nothing has been recorded.
var ErrNoRuns = errors.New("no runs recorded")

// Run is one recorded run.
type Run struct {
	ID         string
	Started    time.Time
	Stopped    time.Time
	TestsRun   int
	Successful bool
	Summary    map[string]int
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.Stopped.Sub(r.Started)
}

// NewRun captures the state of a finished aggregator.
func NewRun(id string, started, stopped time.Time, a *result.Aggregator) Run {
	return Run{
		ID:         id,
		Started:    started,
		Stopped:    stopped,
		TestsRun:   a.TestsRun(),
		Successful: a.WasSuccessful(),
		Summary:    a.Summary(),
	}
}

// Store is a run history backed by SQLite.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	stopped_at TEXT NOT NULL,
	tests_run  INTEGER NOT NULL,
	successful INTEGER NOT NULL,
	summary    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// Open opens or creates the history database at path. path may carry a
// sqlite:// or sqlite: prefix; ":memory:" keeps the history in memory.
func Open(path string) (*Store, error) {
	dsn := parseConnectionString(path)
	if dsn == "" {
		return nil, fmt.Errorf("history path is empty")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	// one connection so an in-memory database is shared by every query
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db, timeout: 30 * time.Second}, nil
}

func parseConnectionString(connStr string) string {
	connStr = strings.TrimSpace(connStr)
	if s, ok := strings.CutPrefix(connStr, "sqlite://"); ok {
		return s
	}
	if s, ok := strings.CutPrefix(connStr, "sqlite:"); ok {
		return s
	}
	return connStr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores run. Recording the same ID twice replaces the first entry.
func (s *Store) Record(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, stopped_at, tests_run, successful, summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Started.UTC().Format(time.RFC3339Nano),
		run.Stopped.UTC().Format(time.RFC3339Nano),
		run.TestsRun,
		run.Successful,
		string(summary),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Last returns the most recently started run.
func (s *Store) Last(ctx context.Context) (*Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	return &runs[0], nil
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT id, started_at, stopped_at, tests_run, successful, summary
		FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs and reports how many went.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`, max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run              Run
		started, stopped string
		summary          string
	)
	if err := rows.Scan(&run.ID, &started, &stopped, &run.TestsRun, &run.Successful, &summary); err != nil {
		return Run{}, fmt.Errorf("failed to scan row: %w", err)
	}

	var err error
	if run.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("run %s: bad start time: %w", run.ID, err)
	}
	if run.Stopped, err = time.Parse(time.RFC3339Nano, stopped); err != nil {
		return Run{}, fmt.Errorf("run %s: bad stop time: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return Run{}, fmt.Errorf("run %s: bad summary: %w", run.ID, err)
	}
	return run, nil
}
