package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"drydock/internal/db"
	"drydock/pkg/models"
)

type WorkspaceRepo struct {
	db *sql.DB
}

func NewWorkspaceRepo(db *sql.DB) *WorkspaceRepo {
	return &WorkspaceRepo{db: db}
}

const workspaceColumns = `
	id, project_id, name, sandbox_id, status, language, image,
	cpu, memory_mb, disk_gb, env_vars, ports, last_error,
	auto_stop_minutes, auto_archive_minutes, ephemeral,
	created_at, updated_at, started_at, stopped_at, deleted_at`

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanWorkspace(row scannable) (*models.Workspace, error) {
	var w models.Workspace
	err := row.Scan(
		&w.ID,
		&w.ProjectID,
		&w.Name,
		&w.SandboxID,
		&w.Status,
		&w.Language,
		&w.Image,
		&w.CPU,
		&w.MemoryMB,
		&w.DiskGB,
		&w.EnvVars,
		&w.Ports,
		&w.LastError,
		&w.AutoStopMinutes,
		&w.AutoArchiveMinutes,
		&w.Ephemeral,
		&w.CreatedAt,
		&w.UpdatedAt,
		&w.StartedAt,
		&w.StoppedAt,
		&w.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a new workspace row and fills in the DB-assigned timestamps.
func (r *WorkspaceRepo) Create(ctx context.Context, w *models.Workspace) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `
		INSERT INTO workspaces (
			id, project_id, name, sandbox_id, status, language, image,
			cpu, memory_mb, disk_gb, env_vars, ports, last_error,
			auto_stop_minutes, auto_archive_minutes, ephemeral
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		w.ID, w.ProjectID, w.Name, w.SandboxID, w.Status, w.Language, w.Image,
		w.CPU, w.MemoryMB, w.DiskGB, w.EnvVars, w.Ports, w.LastError,
		w.AutoStopMinutes, w.AutoArchiveMinutes, w.Ephemeral,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetByID returns a workspace by its identifier, including soft-deleted rows.
func (r *WorkspaceRepo) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	query := `SELECT` + workspaceColumns + ` FROM workspaces WHERE id = ?`

	w, err := scanWorkspace(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workspace %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return w, nil
}

// GetLiveByProject returns the single non-deleted workspace for a project.
// Callers detect absence with errors.Is(err, sql.ErrNoRows).
func (r *WorkspaceRepo) GetLiveByProject(ctx context.Context, projectID string) (*models.Workspace, error) {
	query := `SELECT` + workspaceColumns + ` FROM workspaces WHERE project_id = ? AND deleted_at IS NULL`

	w, err := scanWorkspace(r.db.QueryRowContext(ctx, query, projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to get live workspace for project %s: %w", projectID, err)
	}
	return w, nil
}

// ListLive returns all non-deleted workspaces, newest first.
func (r *WorkspaceRepo) ListLive(ctx context.Context) ([]*models.Workspace, error) {
	query := `SELECT` + workspaceColumns + ` FROM workspaces WHERE deleted_at IS NULL ORDER BY created_at DESC`
	return r.queryWorkspaces(ctx, query)
}

// ListByProject returns every workspace a project has had, newest first.
func (r *WorkspaceRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Workspace, error) {
	query := `SELECT` + workspaceColumns + ` FROM workspaces WHERE project_id = ? ORDER BY created_at DESC`
	return r.queryWorkspaces(ctx, query, projectID)
}

// ListByStatus returns non-deleted workspaces in any of the given states.
func (r *WorkspaceRepo) ListByStatus(ctx context.Context, statuses ...models.WorkspaceStatus) ([]*models.Workspace, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	query := `SELECT` + workspaceColumns + ` FROM workspaces
		WHERE deleted_at IS NULL AND status IN (` + placeholders + `) ORDER BY created_at DESC`
	return r.queryWorkspaces(ctx, query, args...)
}

func (r *WorkspaceRepo) queryWorkspaces(ctx context.Context, query string, args ...interface{}) ([]*models.Workspace, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workspaces: %w", err)
	}
	return workspaces, nil
}

// UpdateStatus sets the lifecycle status.
func (r *WorkspaceRepo) UpdateStatus(ctx context.Context, id string, status models.WorkspaceStatus) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE workspaces SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return r.exec(ctx, query, status, id)
}

// MarkRunning records the provider sandbox id alongside the running status.
func (r *WorkspaceRepo) MarkRunning(ctx context.Context, id, sandboxID string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE workspaces
		SET status = ?, sandbox_id = ?, last_error = NULL,
		    started_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	return r.exec(ctx, query, models.WorkspaceStatusRunning, sandboxID, id)
}

// MarkStopped records the stopped status and timestamp.
func (r *WorkspaceRepo) MarkStopped(ctx context.Context, id string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE workspaces
		SET status = ?, stopped_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	return r.exec(ctx, query, models.WorkspaceStatusStopped, id)
}

// MarkError records an error status with the causing message.
func (r *WorkspaceRepo) MarkError(ctx context.Context, id, message string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE workspaces
		SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	return r.exec(ctx, query, models.WorkspaceStatusError, message, id)
}

// SoftDelete marks the row deleted; it is never removed.
func (r *WorkspaceRepo) SoftDelete(ctx context.Context, id string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE workspaces
		SET status = ?, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	return r.exec(ctx, query, models.WorkspaceStatusDeleted, id)
}

// UpdatePorts replaces the recorded port map.
func (r *WorkspaceRepo) UpdatePorts(ctx context.Context, id string, ports models.PortMap) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `UPDATE workspaces SET ports = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return r.exec(ctx, query, ports, id)
}

func (r *WorkspaceRepo) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("workspace not found")
	}
	return nil
}

// Touch bumps updated_at, used by the reconciler to record a sweep even when
// the status did not change.
func (r *WorkspaceRepo) Touch(ctx context.Context, id string) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.db.ExecContext(ctx,
		`UPDATE workspaces SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to touch workspace: %w", err)
	}
	return nil
}
