package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/slngen/slngen/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration.
type Config struct {
	// Path is the database file, or ":memory:".
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate
// before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	// Every connection to :memory: is a separate database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store in one step.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Init opens the database, creating its directory, and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if !isMemory(s.cfg.Path) {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginRun implements engine.HistoryStore.
func (s *SQLiteStore) BeginRun(ctx context.Context, info engine.RunInfo) (string, error) {
	solutions, err := json.Marshal(info.Solutions)
	if err != nil {
		return "", fmt.Errorf("failed to encode solutions: %w", err)
	}
	started := info.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	id := uuid.NewString()
	query := `
		INSERT INTO runs (id, solutions, output_root, status, error_count, started_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		id,
		string(solutions),
		info.OutputRoot,
		engine.RunStatusRunning,
		started.UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	return id, nil
}

// RecordArtifact implements engine.HistoryStore.
func (s *SQLiteStore) RecordArtifact(ctx context.Context, runID string, rec engine.ArtifactRecord) error {
	query := `
		INSERT INTO artifacts (run_id, path, entity, kind, target, emitter, sha256, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		runID,
		rec.Path,
		rec.Entity,
		rec.Kind,
		rec.Target,
		rec.Emitter,
		rec.SHA256,
		rec.Status,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}
	return nil
}

// CompleteRun implements engine.HistoryStore.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status engine.RunStatus, errorCount int) error {
	query := `
		UPDATE runs
		SET status = ?, error_count = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, errorCount, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	return nil
}

// PreviousArtifacts implements engine.HistoryStore. Only artifacts the run
// left on disk count.
func (s *SQLiteStore) PreviousArtifacts(ctx context.Context, outputRoot, excludeRunID string) ([]string, error) {
	query := `
		SELECT path FROM artifacts
		WHERE run_id = (
			SELECT id FROM runs
			WHERE output_root = ? AND status = ? AND id != ?
			ORDER BY started_at DESC
			LIMIT 1
		)
		AND status IN (?, ?)
		ORDER BY path
	`

	rows, err := s.db.QueryContext(ctx, query,
		outputRoot,
		engine.RunStatusSucceeded,
		excludeRunID,
		engine.ArtifactWritten,
		engine.ArtifactUnchanged,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query previous artifacts: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return paths, nil
}

const runColumns = `id, solutions, output_root, status, error_count, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var solutions string
	if err := row.Scan(
		&run.ID,
		&solutions,
		&run.OutputRoot,
		&run.Status,
		&run.ErrorCount,
		&run.StartedAt,
		&run.CompletedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(solutions), &run.Solutions); err != nil {
		return nil, fmt.Errorf("run %s: malformed solutions: %w", run.ID, err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListArtifacts lists a run's artifacts by path.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error) {
	query := `
		SELECT id, run_id, path, entity, kind, target, emitter, sha256, status, recorded_at
		FROM artifacts
		WHERE run_id = ?
		ORDER BY path, id
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*Artifact{}
	for rows.Next() {
		a := &Artifact{}
		if err := rows.Scan(
			&a.ID,
			&a.RunID,
			&a.Path,
			&a.Entity,
			&a.Kind,
			&a.Target,
			&a.Emitter,
			&a.SHA256,
			&a.Status,
			&a.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return artifacts, nil
}

// PruneRuns deletes all but the newest keep runs. Artifacts cascade.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	query := `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		)
	`
	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
