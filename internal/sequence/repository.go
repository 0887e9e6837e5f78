package sequence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for run persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	Create(ctx context.Context, record *RunRecord) error
	Update(ctx context.Context, record *RunRecord) error
	GetByID(ctx context.Context, id string) (*RunRecord, error)
	List(ctx context.Context, limit int) ([]RunRecord, error)
	ListBySequence(ctx context.Context, sequence string, limit int) ([]RunRecord, error)
}

// runColumns is the SELECT column list for run queries.
const runColumns = `id, sequence, trigger_source, status, triggered_at, started_at, completed_at,
			actions_total, actions_completed, actions_failed, failures, duration_ms`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new run record.
func (r *SQLiteRepository) Create(ctx context.Context, record *RunRecord) error {
	failuresJSON, err := marshalFailures(record.Failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, sequence, trigger_source, status, triggered_at, started_at, completed_at,
			actions_total, actions_completed, actions_failed, failures, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.Sequence,
		record.TriggerSource,
		string(record.Status),
		record.TriggeredAt.Format(time.RFC3339),
		nullableTime(record.StartedAt),
		nullableTime(record.CompletedAt),
		record.ActionsTotal,
		record.ActionsCompleted,
		record.ActionsFailed,
		failuresJSON,
		nullableInt(record.DurationMS),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Update modifies an existing run record.
func (r *SQLiteRepository) Update(ctx context.Context, record *RunRecord) error {
	failuresJSON, err := marshalFailures(record.Failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	query := `
		UPDATE runs SET
			status = ?, started_at = ?, completed_at = ?,
			actions_total = ?, actions_completed = ?, actions_failed = ?,
			failures = ?, duration_ms = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(record.Status),
		nullableTime(record.StartedAt),
		nullableTime(record.CompletedAt),
		record.ActionsTotal,
		record.ActionsCompleted,
		record.ActionsFailed,
		failuresJSON,
		nullableInt(record.DurationMS),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetByID retrieves a run record by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	record, err := scanRunRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return record, nil
}

// List retrieves recent runs, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY triggered_at DESC LIMIT ?`
	return r.queryRuns(ctx, query, clampLimit(limit))
}

// ListBySequence retrieves recent runs of one sequence, newest first.
func (r *SQLiteRepository) ListBySequence(ctx context.Context, sequence string, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE sequence = ? ORDER BY triggered_at DESC LIMIT ?`
	return r.queryRuns(ctx, query, sequence, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// queryRuns executes a query and returns a slice of run records.
func (r *SQLiteRepository) queryRuns(ctx context.Context, query string, args ...any) ([]RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, scanErr := scanRunRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return records, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunRow(scanner rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var status, triggeredAt string
	var startedAt, completedAt, failuresJSON sql.NullString
	var durationMS sql.NullInt64

	err := scanner.Scan(
		&rec.ID,
		&rec.Sequence,
		&rec.TriggerSource,
		&status,
		&triggeredAt,
		&startedAt,
		&completedAt,
		&rec.ActionsTotal,
		&rec.ActionsCompleted,
		&rec.ActionsFailed,
		&failuresJSON,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = RunStatus(status)
	if t, parseErr := time.Parse(time.RFC3339, triggeredAt); parseErr == nil {
		rec.TriggeredAt = t
	}
	if startedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, startedAt.String); parseErr == nil {
			rec.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, completedAt.String); parseErr == nil {
			rec.CompletedAt = &t
		}
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		rec.DurationMS = &d
	}

	if failuresJSON.Valid && failuresJSON.String != "" && failuresJSON.String != "null" {
		if jsonErr := json.Unmarshal([]byte(failuresJSON.String), &rec.Failures); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling failures: %w", jsonErr)
		}
	}

	return &rec, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func marshalFailures(failures []NodeFailure) (sql.NullString, error) {
	if len(failures) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
