package repositories

import (
	"context"
	"testing"

	"drydock/pkg/models"
)

func TestJobAndProjectFinalizeTx(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	project := &models.Project{ID: "proj_fin", Name: "demo", Language: "typescript"}
	if err := repos.Projects.Create(ctx, project); err != nil {
		t.Fatalf("create project failed: %v", err)
	}
	job := &models.Job{ID: "job_fin", ProjectID: project.ID, Status: models.JobStatusRunning, Progress: 80}
	if err := repos.Jobs.Create(ctx, job); err != nil {
		t.Fatalf("create job failed: %v", err)
	}

	t.Run("commit applies both updates", func(t *testing.T) {
		tx, err := repos.BeginTx()
		if err != nil {
			t.Fatalf("begin failed: %v", err)
		}

		if err := repos.Jobs.UpdateStatusTx(ctx, tx, job.ID, models.JobStatusCompleted, 100); err != nil {
			tx.Rollback()
			t.Fatalf("job update failed: %v", err)
		}
		url := "https://3000-sb.preview.example.dev"
		hash := "abc1234"
		if err := repos.Projects.UpdateDeploymentTx(ctx, tx, project.ID, models.DeploymentStatusDeployed, &url, &hash); err != nil {
			tx.Rollback()
			t.Fatalf("project update failed: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit failed: %v", err)
		}

		gotJob, _ := repos.Jobs.GetByID(ctx, job.ID)
		if gotJob.Status != models.JobStatusCompleted || gotJob.Progress != 100 {
			t.Errorf("job not finalized: %s %d", gotJob.Status, gotJob.Progress)
		}
		gotProject, _ := repos.Projects.GetByID(ctx, project.ID)
		if gotProject.DeploymentStatus == nil || *gotProject.DeploymentStatus != models.DeploymentStatusDeployed {
			t.Errorf("project deployment status not set: %v", gotProject.DeploymentStatus)
		}
		if gotProject.LastCommitHash == nil || *gotProject.LastCommitHash != "abc1234" {
			t.Errorf("commit hash not recorded: %v", gotProject.LastCommitHash)
		}
	})

	t.Run("rollback leaves both untouched", func(t *testing.T) {
		tx, err := repos.BeginTx()
		if err != nil {
			t.Fatalf("begin failed: %v", err)
		}
		if err := repos.Jobs.UpdateStatusTx(ctx, tx, job.ID, models.JobStatusFailed, 0); err != nil {
			tx.Rollback()
			t.Fatalf("job update failed: %v", err)
		}
		if err := repos.Projects.UpdateDeploymentTx(ctx, tx, project.ID, models.DeploymentStatusFailed, nil, nil); err != nil {
			tx.Rollback()
			t.Fatalf("project update failed: %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}

		gotJob, _ := repos.Jobs.GetByID(ctx, job.ID)
		if gotJob.Status != models.JobStatusCompleted {
			t.Errorf("rollback did not preserve job status, got %s", gotJob.Status)
		}
		gotProject, _ := repos.Projects.GetByID(ctx, project.ID)
		if *gotProject.DeploymentStatus != models.DeploymentStatusDeployed {
			t.Errorf("rollback did not preserve project status, got %s", *gotProject.DeploymentStatus)
		}
	})

	t.Run("missing job inside tx errors", func(t *testing.T) {
		tx, err := repos.BeginTx()
		if err != nil {
			t.Fatalf("begin failed: %v", err)
		}
		defer tx.Rollback()

		if err := repos.Jobs.UpdateStatusTx(ctx, tx, "job_missing", models.JobStatusCompleted, 100); err == nil {
			t.Error("expected error for missing job")
		}
	})
}
