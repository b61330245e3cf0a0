package services

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/storage"
	"drydock/pkg/models"
)

// CompletionPipeline is the multi-step finalize workflow run when the agent
// declares a task done: backup, stack detection, dev-server start, health
// verification, commit/push, and one atomic job/project update. Every step
// except the final transaction is independently fault-tolerant — failure is
// logged and downgrades the final status, but later steps still run.
type CompletionPipeline struct {
	repos  *repositories.Repositories
	bridge *FileBridge
	engine *ExecutionEngine
	store  storage.FileStore

	settleDelay    time.Duration
	healthAttempts uint64
	gitTimeout     time.Duration
}

type PipelineOption func(*CompletionPipeline)

// WithSettleDelay overrides the fixed wait between dev-server start and the
// preview health check.
func WithSettleDelay(d time.Duration) PipelineOption {
	return func(p *CompletionPipeline) { p.settleDelay = d }
}

// WithExtendedHealthBudget overrides the health-check attempt budget, which
// is deliberately larger here than for ad hoc preview requests.
func WithExtendedHealthBudget(attempts uint64) PipelineOption {
	return func(p *CompletionPipeline) { p.healthAttempts = attempts }
}

func NewCompletionPipeline(repos *repositories.Repositories, bridge *FileBridge, engine *ExecutionEngine, store storage.FileStore, opts ...PipelineOption) *CompletionPipeline {
	p := &CompletionPipeline{
		repos:          repos,
		bridge:         bridge,
		engine:         engine,
		store:          store,
		settleDelay:    5 * time.Second,
		healthAttempts: 10,
		gitTimeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CompletionInput identifies the task being finalized.
type CompletionInput struct {
	WorkspaceID string
	ProjectID   string
	JobID       string
	// Command is the agent-supplied dev-server command; empty means infer
	// from the detected stack.
	Command string
}

// StepResult records one pipeline step's outcome for the audit trail.
type StepResult struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// CompletionResult is the pipeline's persisted outcome.
type CompletionResult struct {
	Success          bool                    `json:"success"`
	DeploymentStatus models.DeploymentStatus `json:"deployment_status"`
	PreviewURL       string                  `json:"preview_url,omitempty"`
	CommitHash       string                  `json:"commit_hash,omitempty"`
	FilesBackedUp    int                     `json:"files_backed_up"`
	Stack            *Stack                  `json:"stack,omitempty"`
	Steps            []StepResult            `json:"steps"`
}

func (r *CompletionResult) record(name string, ok bool, detail string, started time.Time) {
	r.Steps = append(r.Steps, StepResult{
		Name:       name,
		OK:         ok,
		Detail:     detail,
		DurationMS: time.Since(started).Milliseconds(),
	})
}

// Run executes the finalize sequence. Only the concluding job/project
// transaction can fail the call; everything before it degrades the
// deployment status instead of aborting.
func (p *CompletionPipeline) Run(ctx context.Context, in CompletionInput) (*CompletionResult, error) {
	result := &CompletionResult{DeploymentStatus: models.DeploymentStatusNoPreview}

	// Step 1: backup. Failure here is fatal to the deployment status, not
	// to the pipeline.
	backupFailed := false
	started := time.Now()
	count, err := p.bridge.Backup(ctx, in.WorkspaceID, in.ProjectID)
	result.FilesBackedUp = count
	if err != nil {
		backupFailed = true
		result.DeploymentStatus = models.DeploymentStatusFailed
		result.record("backup", false, err.Error(), started)
		logging.Error("Completion backup failed for project %s: %v", in.ProjectID, err)
	} else {
		result.record("backup", true, fmt.Sprintf("%d files", count), started)
	}

	// Step 2: stack detection.
	started = time.Now()
	stack, err := DetectStack(ctx, p.store, in.ProjectID)
	if err != nil {
		result.record("detect_stack", false, err.Error(), started)
		logging.Warn("Stack detection failed for project %s: %v", in.ProjectID, err)
	} else {
		result.Stack = stack
		result.record("detect_stack", true, stack.Language, started)
	}

	// Steps 3 and 4: resolve and start the dev server, then verify it.
	command := ResolveDevCommand(stack, in.Command)
	if command == "" {
		if !backupFailed {
			result.DeploymentStatus = models.DeploymentStatusNoPreview
		}
		result.record("dev_server", true, "no dev command; skipping preview", time.Now())
	} else {
		status, previewURL := p.startAndVerify(ctx, in.WorkspaceID, command, stack, result)
		result.PreviewURL = previewURL
		if !backupFailed {
			result.DeploymentStatus = status
		}
	}

	// Step 5: best-effort version control.
	started = time.Now()
	commitHash, err := p.commitAndPush(ctx, in.ProjectID)
	if err != nil {
		result.record("vcs", false, err.Error(), started)
		logging.Warn("Completion commit/push skipped for project %s: %v", in.ProjectID, err)
	} else {
		result.CommitHash = commitHash
		result.record("vcs", true, commitHash, started)
	}

	// Step 6: the one transactional step. Job and project settle together
	// or not at all; failure here is re-thrown, since an inconsistent
	// job/project pair is worse than a visible failure.
	started = time.Now()
	if err := p.finalize(ctx, in, result); err != nil {
		result.record("finalize", false, err.Error(), started)
		return result, fmt.Errorf("finalize completion: %w", err)
	}
	result.record("finalize", true, string(result.DeploymentStatus), started)

	result.Success = true
	logging.Info("Task %s completed: project %s -> %s", in.JobID, in.ProjectID, result.DeploymentStatus)
	return result, nil
}

// startAndVerify runs steps 3–4: start the dev server, wait the settle
// period, resolve and health-check the preview URL.
func (p *CompletionPipeline) startAndVerify(ctx context.Context, workspaceID, command string, stack *Stack, result *CompletionResult) (models.DeploymentStatus, string) {
	started := time.Now()
	expectedPort := 0
	if stack != nil {
		expectedPort = stack.DefaultPort
	}

	devResult, err := p.engine.StartDevServer(ctx, workspaceID, command, expectedPort)
	if err != nil {
		result.record("dev_server", false, err.Error(), started)
		return models.DeploymentStatusFailed, ""
	}
	result.record("dev_server", true, fmt.Sprintf("strategy=%s port=%d", devResult.Strategy, devResult.DetectedPort), started)

	select {
	case <-time.After(p.settleDelay):
	case <-ctx.Done():
		return models.DeploymentStatusFailed, ""
	}

	started = time.Now()
	url, err := p.engine.PreviewLink(ctx, workspaceID, devResult.DetectedPort)
	if err != nil {
		result.record("preview", false, err.Error(), started)
		return models.DeploymentStatusFailed, ""
	}

	if err := p.engine.CheckURLHealth(ctx, url, p.healthAttempts); err != nil {
		result.record("preview", false, fmt.Sprintf("%s obtained but unhealthy: %v", url, err), started)
		return models.DeploymentStatusDeployedUnhealthy, url
	}

	result.record("preview", true, url, started)
	return models.DeploymentStatusDeployed, url
}

// commitAndPush commits the durable-store project tree and pushes when a
// remote is configured. Requires a disk-backed store; in-memory stores have
// no tree for git to operate on. Push failure never fails the pipeline.
func (p *CompletionPipeline) commitAndPush(ctx context.Context, projectID string) (string, error) {
	dir, ok := p.store.ProjectDir(projectID)
	if !ok {
		return "", fmt.Errorf("store has no OS path for project %s", projectID)
	}

	gitCtx, cancel := context.WithTimeout(ctx, p.gitTimeout)
	defer cancel()

	if _, err := p.git(gitCtx, dir, "rev-parse", "--git-dir"); err != nil {
		if _, initErr := p.git(gitCtx, dir, "init"); initErr != nil {
			return "", fmt.Errorf("git init: %w", initErr)
		}
	}

	if _, err := p.git(gitCtx, dir, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}

	// Empty-tree commits fail; an unchanged tree is not an error.
	if out, err := p.git(gitCtx, dir, "status", "--porcelain"); err == nil && strings.TrimSpace(out) != "" {
		if _, err := p.git(gitCtx, dir, "commit", "-m", "Task completion snapshot"); err != nil {
			return "", fmt.Errorf("git commit: %w", err)
		}
	}

	hash, err := p.git(gitCtx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	hash = strings.TrimSpace(hash)

	if remotes, err := p.git(gitCtx, dir, "remote"); err == nil && strings.TrimSpace(remotes) != "" {
		if _, err := p.git(gitCtx, dir, "push", "origin", "HEAD"); err != nil {
			logging.Warn("Push failed for project %s: %v", projectID, err)
		}
	}

	return hash, nil
}

func (p *CompletionPipeline) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// finalize atomically records the job as completed and the project's final
// deployment state in a single transaction.
func (p *CompletionPipeline) finalize(ctx context.Context, in CompletionInput, result *CompletionResult) error {
	tx, err := p.repos.BeginTx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := p.repos.Jobs.UpdateStatusTx(ctx, tx, in.JobID, models.JobStatusCompleted, 100); err != nil {
		return err
	}

	var previewURL, commitHash *string
	if result.PreviewURL != "" {
		previewURL = &result.PreviewURL
	}
	if result.CommitHash != "" {
		commitHash = &result.CommitHash
	}
	if err := p.repos.Projects.UpdateDeploymentTx(ctx, tx, in.ProjectID, result.DeploymentStatus, previewURL, commitHash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
