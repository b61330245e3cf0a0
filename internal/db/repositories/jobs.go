package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"drydock/internal/db"
	"drydock/pkg/models"
)

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

// Create inserts a job row; the host application normally owns these, so this
// exists for bootstrap and tests.
func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `
		INSERT INTO jobs (id, project_id, status, progress)
		VALUES (?, ?, ?, ?)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, j.ID, j.ProjectID, j.Status, j.Progress).
		Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT id, project_id, status, progress, created_at, updated_at FROM jobs WHERE id = ?`

	var j models.Job
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.ProjectID, &j.Status, &j.Progress, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// UpdateStatus sets job status and progress outside a transaction.
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, status models.JobStatus, progress int64) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE jobs SET status = ?, progress = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, status, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check job update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// UpdateStatusTx is the transactional variant used by the completion
// pipeline's finalize step.
func (r *JobRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status models.JobStatus, progress int64) error {
	query := `UPDATE jobs SET status = ?, progress = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := tx.ExecContext(ctx, query, status, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update job in transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check job update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}
