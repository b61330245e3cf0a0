package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"drydock/internal/db"
	"drydock/pkg/models"
)

// WorkspaceLogRepo is append-only: rows are never updated or deleted.
type WorkspaceLogRepo struct {
	db *sql.DB
}

func NewWorkspaceLogRepo(db *sql.DB) *WorkspaceLogRepo {
	return &WorkspaceLogRepo{db: db}
}

const logColumns = `id, workspace_id, job_id, level, message, tool_name, metadata, created_at`

func scanLogEntry(row scannable) (*models.LogEntry, error) {
	var e models.LogEntry
	err := row.Scan(
		&e.ID,
		&e.WorkspaceID,
		&e.JobID,
		&e.Level,
		&e.Message,
		&e.ToolName,
		&e.Metadata,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append writes one log row and fills the assigned id and timestamp.
func (r *WorkspaceLogRepo) Append(ctx context.Context, e *models.LogEntry) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `
		INSERT INTO workspace_logs (workspace_id, job_id, level, message, tool_name, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		e.WorkspaceID, e.JobID, e.Level, e.Message, e.ToolName, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// ListByWorkspace returns a workspace's log entries, newest first.
func (r *WorkspaceLogRepo) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*models.LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM workspace_logs
		WHERE workspace_id = ? ORDER BY id DESC LIMIT ?`
	return r.queryLogs(ctx, query, workspaceID, normalizeLimit(limit))
}

// ListByJob returns a job's log entries, newest first.
func (r *WorkspaceLogRepo) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM workspace_logs
		WHERE job_id = ? ORDER BY id DESC LIMIT ?`
	return r.queryLogs(ctx, query, jobID, normalizeLimit(limit))
}

// CountByTool reports how many rows a tool has produced for a job, used to
// verify the invocation/completion audit pair.
func (r *WorkspaceLogRepo) CountByTool(ctx context.Context, jobID, toolName string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workspace_logs WHERE job_id = ? AND tool_name = ?`,
		jobID, toolName,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	return count, nil
}

func (r *WorkspaceLogRepo) queryLogs(ctx context.Context, query string, args ...interface{}) ([]*models.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}
	return entries, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
