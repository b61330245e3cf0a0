package services

import (
	"context"
	"fmt"
	"time"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/storage"
	"drydock/pkg/models"
)

// BuildService creates build records and runs them in the background against
// a workspace's sandbox. Build rows are mutated only by the runner and are
// immutable once terminal.
type BuildService struct {
	repos  *repositories.Repositories
	engine *ExecutionEngine
	store  storage.FileStore

	timeoutSeconds int
}

func NewBuildService(repos *repositories.Repositories, engine *ExecutionEngine, store storage.FileStore) *BuildService {
	return &BuildService{
		repos:          repos,
		engine:         engine,
		store:          store,
		timeoutSeconds: 600,
	}
}

// StartBuild creates a pending build record and spawns the runner. The
// record is returned immediately; callers poll GetBuild for the outcome.
// Command resolution: explicit command, else the manifest's build script,
// else the detected stack's default. No resolvable command fails the build
// up front.
func (s *BuildService) StartBuild(ctx context.Context, projectID, workspaceID, command string) (*models.Build, error) {
	if command == "" {
		stack, err := DetectStack(ctx, s.store, projectID)
		if err != nil {
			return nil, fmt.Errorf("detect stack: %w", err)
		}
		command = ResolveBuildCommand(stack, "")
	}
	if command == "" {
		return nil, fmt.Errorf("no build command supplied and none could be inferred for project %s", projectID)
	}

	build := &models.Build{
		ID:        models.NewBuildID(),
		ProjectID: projectID,
		Status:    models.BuildStatusPending,
		Command:   command,
	}
	if workspaceID != "" {
		build.WorkspaceID = &workspaceID
	}

	if err := s.repos.Builds.Create(ctx, build); err != nil {
		return nil, err
	}

	// The runner outlives the tool call that started it.
	go s.run(context.Background(), build.ID, workspaceID, command)

	return build, nil
}

// run drives one build to a terminal state. Every exit path finalizes the
// record; a build must never be left in building.
func (s *BuildService) run(ctx context.Context, buildID, workspaceID, command string) {
	if err := s.repos.Builds.MarkBuilding(ctx, buildID); err != nil {
		logging.Error("Build %s could not start: %v", buildID, err)
		return
	}

	started := time.Now()
	result, err := s.engine.ExecuteCommand(ctx, workspaceID, command, ExecOptions{TimeoutSeconds: s.timeoutSeconds})
	duration := time.Since(started).Milliseconds()

	if err != nil {
		message := err.Error()
		s.finalize(ctx, buildID, models.BuildStatusFailed, &message, duration)
		return
	}

	if result.Output != "" {
		if appendErr := s.repos.Builds.AppendOutput(ctx, buildID, result.Output); appendErr != nil {
			logging.Warn("Build %s output not recorded: %v", buildID, appendErr)
		}
	}

	if result.ExitCode != 0 {
		message := fmt.Sprintf("build command exited with code %d", result.ExitCode)
		s.finalize(ctx, buildID, models.BuildStatusFailed, &message, duration)
		return
	}

	s.finalize(ctx, buildID, models.BuildStatusSuccess, nil, duration)
}

func (s *BuildService) finalize(ctx context.Context, buildID string, status models.BuildStatus, errMsg *string, durationMS int64) {
	if err := s.repos.Builds.Complete(ctx, buildID, status, errMsg, durationMS); err != nil {
		logging.Error("Build %s could not be finalized as %s: %v", buildID, status, err)
		return
	}
	logging.Info("Build %s finished: %s (%dms)", buildID, status, durationMS)
}

// GetBuild reads a build record.
func (s *BuildService) GetBuild(ctx context.Context, buildID string) (*models.Build, error) {
	return s.repos.Builds.GetByID(ctx, buildID)
}

// ListBuilds returns a project's builds, newest first.
func (s *BuildService) ListBuilds(ctx context.Context, projectID string) ([]*models.Build, error) {
	return s.repos.Builds.ListByProject(ctx, projectID)
}
