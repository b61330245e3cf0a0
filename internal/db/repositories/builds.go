package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"drydock/internal/db"
	"drydock/pkg/models"
)

type BuildRepo struct {
	db *sql.DB
}

func NewBuildRepo(db *sql.DB) *BuildRepo {
	return &BuildRepo{db: db}
}

const buildColumns = `
	id, project_id, workspace_id, status, command, output, error,
	duration_ms, started_at, completed_at, created_at`

func scanBuild(row scannable) (*models.Build, error) {
	var b models.Build
	err := row.Scan(
		&b.ID,
		&b.ProjectID,
		&b.WorkspaceID,
		&b.Status,
		&b.Command,
		&b.Output,
		&b.Error,
		&b.DurationMS,
		&b.StartedAt,
		&b.CompletedAt,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a pending build record.
func (r *BuildRepo) Create(ctx context.Context, b *models.Build) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `
		INSERT INTO builds (id, project_id, workspace_id, status, command)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		b.ID, b.ProjectID, b.WorkspaceID, b.Status, b.Command,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

// GetByID returns a build record.
func (r *BuildRepo) GetByID(ctx context.Context, id string) (*models.Build, error) {
	query := `SELECT` + buildColumns + ` FROM builds WHERE id = ?`

	b, err := scanBuild(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("build %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return b, nil
}

// ListByProject returns a project's builds, newest first.
func (r *BuildRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Build, error) {
	query := `SELECT` + buildColumns + ` FROM builds WHERE project_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var builds []*models.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}
	return builds, nil
}

// MarkBuilding transitions a pending build to building and stamps started_at.
func (r *BuildRepo) MarkBuilding(ctx context.Context, id string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE builds
		SET status = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, models.BuildStatusBuilding, id, models.BuildStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark build building: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check build update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("build %s is not pending", id)
	}
	return nil
}

// AppendOutput accumulates runner output onto the build log.
func (r *BuildRepo) AppendOutput(ctx context.Context, id, chunk string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE builds SET output = output || ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, chunk, id); err != nil {
		return fmt.Errorf("failed to append build output: %w", err)
	}
	return nil
}

// Complete finalizes a build. Terminal rows are never updated again.
func (r *BuildRepo) Complete(ctx context.Context, id string, status models.BuildStatus, errMsg *string, durationMS int64) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE builds
		SET status = ?, error = ?, duration_ms = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status NOT IN (?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		status, errMsg, durationMS, id, models.BuildStatusSuccess, models.BuildStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to complete build: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check build completion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("build %s already finalized", id)
	}
	return nil
}
