package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/username/tradejournal/src/models"
)

type ImportRunRepository struct {
	db     *sql.DB
	driver string
}

func NewImportRunRepository(db *sql.DB, driver string) *ImportRunRepository {
	return &ImportRunRepository{db: db, driver: driver}
}

// Create inserts run and sets its ID.
func (r *ImportRunRepository) Create(ctx context.Context, run *models.ImportRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunProcessing
	}
	query := `INSERT INTO import_runs (
		user_id, job_id, broker, filename, file_type, status, dry_run, total_rows, started_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{run.UserID, run.JobID, run.Broker, run.Filename, run.FileType, run.Status, run.DryRun, run.TotalRows, run.StartedAt.UTC()}

	if r.driver == DriverPostgres {
		if err := r.db.QueryRowContext(ctx, rebind(r.driver, query)+" RETURNING id", args...).Scan(&run.ID); err != nil {
			return fmt.Errorf("failed to create import run: %w", err)
		}
		return nil
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create import run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	return err
}

// AddProgress adds one chunk's counters to the run.
func (r *ImportRunRepository) AddProgress(ctx context.Context, id int64, processed, added, duplicates, errs int) error {
	_, err := r.db.ExecContext(ctx, rebind(r.driver, `UPDATE import_runs
		SET processed_rows = processed_rows + ?, added = added + ?, duplicates = duplicates + ?, errors = errors + ?
		WHERE id = ?`), processed, added, duplicates, errs, id)
	if err != nil {
		return fmt.Errorf("failed to update import run %d: %w", id, err)
	}
	return nil
}

// Finish moves the run to a terminal status.
func (r *ImportRunRepository) Finish(ctx context.Context, id int64, status string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, rebind(r.driver, `UPDATE import_runs SET status = ?, finished_at = ? WHERE id = ?`), status, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish import run %d: %w", id, err)
	}
	return nil
}

// ExpireStale marks processing runs started before cutoff as expired.
func (r *ImportRunRepository) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, rebind(r.driver, `UPDATE import_runs SET status = ?, finished_at = ?
		WHERE status = ? AND started_at < ?`), models.RunExpired, time.Now().UTC(), models.RunProcessing, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire import runs: %w", err)
	}
	return res.RowsAffected()
}

func (r *ImportRunRepository) Get(ctx context.Context, userID string, id int64) (*models.ImportRun, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, runSelect+` WHERE user_id = ? AND id = ?`), userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load import run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

// ListByUser returns the newest runs first.
func (r *ImportRunRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, runSelect+` WHERE user_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	return scanRuns(rows)
}

const runSelect = `SELECT id, user_id, job_id, broker, filename, file_type, status, dry_run,
	total_rows, processed_rows, added, duplicates, errors, started_at, finished_at FROM import_runs`

func scanRuns(rows *sql.Rows) ([]models.ImportRun, error) {
	defer rows.Close()
	runs := []models.ImportRun{}
	for rows.Next() {
		var run models.ImportRun
		var broker, filename, fileType sql.NullString
		var startedAt, finishedAt any
		if err := rows.Scan(&run.ID, &run.UserID, &run.JobID, &broker, &filename, &fileType, &run.Status, &run.DryRun,
			&run.TotalRows, &run.ProcessedRows, &run.Added, &run.Duplicates, &run.Errors, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		run.Broker, run.Filename, run.FileType = broker.String, filename.String, fileType.String

		var err error
		if run.StartedAt, err = scanTime(startedAt); err != nil {
			return nil, err
		}
		if finishedAt != nil {
			t, err := scanTime(finishedAt)
			if err != nil {
				return nil, err
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
