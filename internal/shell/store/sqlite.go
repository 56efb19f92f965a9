package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+sep+"_foreign_keys=on")
	if err != nil {
		return nil, newStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, newStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, newStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID         string  `db:"id"`
	Workspace  string  `db:"workspace"`
	Method     string  `db:"method"`
	Image      string  `db:"image"`
	Container  string  `db:"container"`
	State      string  `db:"state"`
	Dispatched int     `db:"dispatched"`
	ExitCode   int     `db:"exit_code"`
	Error      string  `db:"error"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *deployment.RunRecord) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *deployment.RunRecord) error {
	return updateRun(ctx, s.db, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*deployment.RunRecord, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]deployment.RunRecord, error) {
	return listRuns(ctx, s.db, opts)
}

// =============================================================================
// Component Result Operations
// =============================================================================

// componentRow represents a component_results row in the database.
type componentRow struct {
	RunID        string `db:"run_id"`
	Position     int    `db:"position"`
	Path         string `db:"path"`
	ScriptFolder string `db:"script_folder"`
	ExitCode     int    `db:"exit_code"`
	Succeeded    bool   `db:"succeeded"`
	Error        string `db:"error"`
	StartedAt    string `db:"started_at"`
	FinishedAt   string `db:"finished_at"`
}

func (s *SQLiteStore) CreateComponentResult(ctx context.Context, result *deployment.ComponentRecord) error {
	return createComponentResult(ctx, s.db, result)
}

func (s *SQLiteStore) ListComponentResults(ctx context.Context, runID string) ([]deployment.ComponentRecord, error) {
	return listComponentResults(ctx, s.db, runID)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return newStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return newStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return newStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateRun(ctx context.Context, run *deployment.RunRecord) error {
	return createRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) UpdateRun(ctx context.Context, run *deployment.RunRecord) error {
	return updateRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) GetRun(ctx context.Context, id string) (*deployment.RunRecord, error) {
	return getRun(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]deployment.RunRecord, error) {
	return listRuns(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CreateComponentResult(ctx context.Context, result *deployment.ComponentRecord) error {
	return createComponentResult(ctx, s.tx, result)
}

func (s *txSQLiteStore) ListComponentResults(ctx context.Context, runID string) ([]deployment.ComponentRecord, error) {
	return listComponentResults(ctx, s.tx, runID)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createRun(ctx context.Context, exec executor, run *deployment.RunRecord) error {
	query := `
		INSERT INTO runs (
			id, workspace, method, image, container, state,
			dispatched, exit_code, error, started_at, finished_at
		) VALUES (
			:id, :workspace, :method, :image, :container, :state,
			:dispatched, :exit_code, :error, :started_at, :finished_at
		)`

	_, err := exec.NamedExecContext(ctx, query, runToRow(run))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return newStoreError("CreateRun", "run", run.ID, "run already exists", ErrDuplicateID)
		}
		return newStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

func updateRun(ctx context.Context, exec executor, run *deployment.RunRecord) error {
	query := `
		UPDATE runs SET
			state = :state,
			dispatched = :dispatched,
			exit_code = :exit_code,
			error = :error,
			finished_at = :finished_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, runToRow(run))
	if err != nil {
		return newStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return newStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}
	if rows == 0 {
		return newStoreError("UpdateRun", "run", run.ID, "run not found", ErrNotFound)
	}
	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*deployment.RunRecord, error) {
	query := `SELECT * FROM runs WHERE id = ?`

	var row runRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, newStoreError("GetRun", "run", id, err.Error(), err)
	}

	run, err := rowToRun(&row)
	if err != nil {
		return nil, err
	}

	run.Components, err = listComponentResults(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func listRuns(ctx context.Context, exec executor, opts ListOptions) ([]deployment.RunRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`

	var rows []runRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, newStoreError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]deployment.RunRecord, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(&row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, nil
}

func createComponentResult(ctx context.Context, exec executor, result *deployment.ComponentRecord) error {
	query := `
		INSERT INTO component_results (
			run_id, position, path, script_folder, exit_code,
			succeeded, error, started_at, finished_at
		) VALUES (
			:run_id, :position, :path, :script_folder, :exit_code,
			:succeeded, :error, :started_at, :finished_at
		)`

	row := componentRow{
		RunID:        result.RunID,
		Position:     result.Position,
		Path:         result.Path,
		ScriptFolder: result.ScriptFolder,
		ExitCode:     result.ExitCode,
		Succeeded:    result.Succeeded,
		Error:        result.Error,
		StartedAt:    formatTime(result.StartedAt),
		FinishedAt:   formatTime(result.FinishedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		id := fmt.Sprintf("%s/%d", result.RunID, result.Position)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return newStoreError("CreateComponentResult", "component_result", id, "component result already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return newStoreError("CreateComponentResult", "component_result", id, "run does not exist", ErrForeignKey)
		}
		return newStoreError("CreateComponentResult", "component_result", id, err.Error(), err)
	}
	return nil
}

func listComponentResults(ctx context.Context, exec executor, runID string) ([]deployment.ComponentRecord, error) {
	query := `SELECT * FROM component_results WHERE run_id = ? ORDER BY position`

	var rows []componentRow
	err := exec.SelectContext(ctx, &rows, query, runID)
	if err != nil {
		return nil, newStoreError("ListComponentResults", "component_result", runID, err.Error(), err)
	}

	results := make([]deployment.ComponentRecord, 0, len(rows))
	for _, row := range rows {
		startedAt, err := parseTime(row.StartedAt)
		if err != nil {
			return nil, newStoreError("ListComponentResults", "component_result", runID, "invalid started_at", ErrInvalidData)
		}
		finishedAt, err := parseTime(row.FinishedAt)
		if err != nil {
			return nil, newStoreError("ListComponentResults", "component_result", runID, "invalid finished_at", ErrInvalidData)
		}
		results = append(results, deployment.ComponentRecord{
			RunID:        row.RunID,
			Position:     row.Position,
			Path:         row.Path,
			ScriptFolder: row.ScriptFolder,
			ExitCode:     row.ExitCode,
			Succeeded:    row.Succeeded,
			Error:        row.Error,
			StartedAt:    startedAt,
			FinishedAt:   finishedAt,
		})
	}
	return results, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func runToRow(run *deployment.RunRecord) runRow {
	row := runRow{
		ID:         run.ID,
		Workspace:  run.Workspace,
		Method:     string(run.Method),
		Image:      run.Image,
		Container:  run.Container,
		State:      string(run.State),
		Dispatched: run.Dispatched,
		ExitCode:   run.ExitCode,
		Error:      run.Error,
		StartedAt:  formatTime(run.StartedAt),
	}
	if run.FinishedAt != nil {
		s := formatTime(*run.FinishedAt)
		row.FinishedAt = &s
	}
	return row
}

func rowToRun(row *runRow) (*deployment.RunRecord, error) {
	startedAt, err := parseTime(row.StartedAt)
	if err != nil {
		return nil, newStoreError("rowToRun", "run", row.ID, "invalid started_at", ErrInvalidData)
	}

	run := &deployment.RunRecord{
		ID:         row.ID,
		Workspace:  row.Workspace,
		Method:     deployment.Method(row.Method),
		Image:      row.Image,
		Container:  row.Container,
		State:      deployment.RunState(row.State),
		Dispatched: row.Dispatched,
		ExitCode:   row.ExitCode,
		Error:      row.Error,
		StartedAt:  startedAt,
	}

	if row.FinishedAt != nil {
		finishedAt, err := parseTime(*row.FinishedAt)
		if err != nil {
			return nil, newStoreError("rowToRun", "run", row.ID, "invalid finished_at", ErrInvalidData)
		}
		run.FinishedAt = &finishedAt
	}
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}
