package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver.
)

// SQLStore keeps run history in a SQL table. It works with both the SQLite
// and the PostgreSQL drivers.
type SQLStore struct {
	db       *sql.DB
	limit    int
	postgres bool
}

// OpenSQLite opens (or creates) a SQLite history database at path.
func OpenSQLite(ctx context.Context, path string, limit int) (*SQLStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}
	// one writer, and :memory: must stay on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s, err := newSQLStore(ctx, db, limit, false)
	if err != nil {
		return nil, err
	}
	slog.Info("opened sqlite history database", "path", path)
	return s, nil
}

// OpenPostgres connects to PostgreSQL through the pgx driver.
func OpenPostgres(ctx context.Context, dsn string, limit int) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s, err := newSQLStore(ctx, db, limit, true)
	if err != nil {
		return nil, err
	}
	slog.Info("PostgreSQL history store connected")
	return s, nil
}

func newSQLStore(ctx context.Context, db *sql.DB, limit int, postgres bool) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &SQLStore{db: db, limit: limit, postgres: postgres}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_history (
			id TEXT PRIMARY KEY,
			started_at BIGINT NOT NULL,
			summary TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $N for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save upserts run and prunes history beyond the store limit.
func (s *SQLStore) Save(ctx context.Context, run RunSummary) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO run_history (id, started_at, summary)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			started_at = excluded.started_at,
			summary    = excluded.summary`),
		run.ID, run.StartedAt.UnixMilli(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if s.limit > 0 {
		res, err := tx.ExecContext(ctx, s.rebind(`
			DELETE FROM run_history WHERE id NOT IN (
				SELECT id FROM run_history ORDER BY started_at DESC LIMIT ?
			)`), s.limit)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			slog.Debug("pruned run history", "rows", rows)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	q := `SELECT summary FROM run_history ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		var r RunSummary
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decoding run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, id string) (RunSummary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT summary FROM run_history WHERE id = ?`), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, ErrNotFound
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("getting run: %w", err)
	}
	var r RunSummary
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return RunSummary{}, fmt.Errorf("decoding run: %w", err)
	}
	return r, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
