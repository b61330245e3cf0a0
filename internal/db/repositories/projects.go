package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"drydock/internal/db"
	"drydock/pkg/models"
)

type ProjectRepo struct {
	db *sql.DB
}

func NewProjectRepo(db *sql.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

const projectColumns = `id, name, language, deployment_status, preview_url, last_commit_hash, repo_url, created_at, updated_at`

func scanProject(row scannable) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Language,
		&p.DeploymentStatus,
		&p.PreviewURL,
		&p.LastCommitHash,
		&p.RepoURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a project row; the host application normally owns these, so
// this exists for bootstrap and tests.
func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	query := `
		INSERT INTO projects (id, name, language, repo_url)
		VALUES (?, ?, ?, ?)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, p.ID, p.Name, p.Language, p.RepoURL).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	p, err := scanProject(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// UpdateDeploymentTx writes the completion pipeline's final project state
// inside the caller's transaction.
func (r *ProjectRepo) UpdateDeploymentTx(ctx context.Context, tx *sql.Tx, id string, status models.DeploymentStatus, previewURL, commitHash *string) error {
	query := `UPDATE projects
		SET deployment_status = ?, preview_url = ?, last_commit_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	result, err := tx.ExecContext(ctx, query, status, previewURL, commitHash, id)
	if err != nil {
		return fmt.Errorf("failed to update project deployment in transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check project update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}
