package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/sandbox"
	"drydock/pkg/models"
)

// Labels applied to provider sandboxes so remote resources can be correlated
// back to local records.
const (
	LabelProject   = "drydock.project"
	LabelWorkspace = "drydock.workspace"
)

// LifecycleService owns the workspace state machine. It creates provider
// sandboxes, drives start/stop/restart/delete, and reconciles local status
// against provider-reported state. All dependencies are injected; there is
// no package-level state.
type LifecycleService struct {
	repos    *repositories.Repositories
	provider Provider
	catalog  *sandbox.Catalog

	createTimeout time.Duration
	pollInterval  time.Duration

	defaultAutoStopMinutes    int64
	defaultAutoArchiveMinutes int64
	defaultEphemeral          bool
}

type LifecycleOption func(*LifecycleService)

// WithCreateBudget overrides the sandbox creation timeout and poll interval.
func WithCreateBudget(budget, interval time.Duration) LifecycleOption {
	return func(s *LifecycleService) {
		s.createTimeout = budget
		s.pollInterval = interval
	}
}

// WithWorkspaceDefaults sets the auto-stop/auto-archive intervals and
// ephemeral flag applied when create options leave them unset.
func WithWorkspaceDefaults(autoStopMinutes, autoArchiveMinutes int64, ephemeral bool) LifecycleOption {
	return func(s *LifecycleService) {
		s.defaultAutoStopMinutes = autoStopMinutes
		s.defaultAutoArchiveMinutes = autoArchiveMinutes
		s.defaultEphemeral = ephemeral
	}
}

func NewLifecycleService(repos *repositories.Repositories, provider Provider, catalog *sandbox.Catalog, opts ...LifecycleOption) *LifecycleService {
	s := &LifecycleService{
		repos:                     repos,
		provider:                  provider,
		catalog:                   catalog,
		createTimeout:             2 * time.Minute,
		pollInterval:              2 * time.Second,
		defaultAutoStopMinutes:    30,
		defaultAutoArchiveMinutes: 60,
		defaultEphemeral:          true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOptions configures a new workspace. Zero values fall back to the
// service defaults.
type CreateOptions struct {
	Name     string
	Language string
	// Image overrides the catalog-resolved image when set.
	Image    string
	CPU      *int64
	MemoryMB *int64
	DiskGB   *int64
	EnvVars  map[string]string

	AutoStopMinutes    int64
	AutoArchiveMinutes int64
	Ephemeral          *bool
}

// Create inserts a pending workspace record and synchronously drives it to
// running (or error) before returning. Callers always observe a settled
// state, never a dangling background provision.
func (s *LifecycleService) Create(ctx context.Context, projectID string, opts CreateOptions) (*models.Workspace, error) {
	runtime, spec := s.catalog.ImageFor(opts.Language)
	image := opts.Image
	if image == "" {
		image = spec.Ref
	}

	autoStop := opts.AutoStopMinutes
	if autoStop == 0 {
		autoStop = s.defaultAutoStopMinutes
	}
	autoArchive := opts.AutoArchiveMinutes
	if autoArchive == 0 {
		autoArchive = s.defaultAutoArchiveMinutes
	}
	ephemeral := s.defaultEphemeral
	if opts.Ephemeral != nil {
		ephemeral = *opts.Ephemeral
	}

	name := opts.Name
	if name == "" {
		name = projectID
	}

	ws := &models.Workspace{
		ID:                 models.NewWorkspaceID(),
		ProjectID:          projectID,
		Name:               name,
		Status:             models.WorkspaceStatusPending,
		Language:           runtime,
		Image:              image,
		CPU:                opts.CPU,
		MemoryMB:           opts.MemoryMB,
		DiskGB:             opts.DiskGB,
		EnvVars:            models.JSONMap(opts.EnvVars),
		AutoStopMinutes:    autoStop,
		AutoArchiveMinutes: autoArchive,
		Ephemeral:          ephemeral,
	}

	if err := s.repos.Workspaces.Create(ctx, ws); err != nil {
		return nil, err
	}

	logging.Info("Created workspace %s for project %s (runtime=%s image=%s)", ws.ID, projectID, runtime, image)

	if err := s.Start(ctx, ws.ID); err != nil {
		// The record is settled in error state; return it alongside the
		// cause so the caller can inspect last_error.
		settled, getErr := s.repos.Workspaces.GetByID(ctx, ws.ID)
		if getErr != nil {
			return nil, err
		}
		return settled, err
	}

	return s.repos.Workspaces.GetByID(ctx, ws.ID)
}

// Start provisions a provider sandbox for the workspace (or restarts an
// existing one) and waits for it to report running within the creation
// budget. Failure settles the record in error state with the causing
// message; there is no automatic retry — escalation is the caller's call.
func (s *LifecycleService) Start(ctx context.Context, workspaceID string) error {
	ws, err := s.repos.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !ws.Live() {
		return fmt.Errorf("workspace %s is deleted", workspaceID)
	}
	if ws.Status == models.WorkspaceStatusRunning {
		return nil
	}

	if err := s.repos.Workspaces.UpdateStatus(ctx, ws.ID, models.WorkspaceStatusStarting); err != nil {
		return err
	}

	sandboxID, err := s.provision(ctx, ws)
	if err != nil {
		message := err.Error()
		if markErr := s.repos.Workspaces.MarkError(ctx, ws.ID, message); markErr != nil {
			logging.Error("Failed to record error on workspace %s: %v", ws.ID, markErr)
		}
		return fmt.Errorf("start workspace %s: %w", ws.ID, err)
	}

	if err := s.repos.Workspaces.MarkRunning(ctx, ws.ID, sandboxID); err != nil {
		return err
	}

	logging.Info("Workspace %s running (sandbox %s)", ws.ID, sandboxID)
	return nil
}

// provision asks the provider for a live sandbox and returns its id. An
// existing sandbox is restarted in place; otherwise a new one is created
// with correlation labels and the workspace's resource and env parameters.
func (s *LifecycleService) provision(ctx context.Context, ws *models.Workspace) (string, error) {
	if ws.SandboxID != nil {
		id := *ws.SandboxID
		if err := s.provider.StartSandbox(ctx, id); err != nil {
			return "", err
		}
		if _, err := s.waitRunning(ctx, id); err != nil {
			return "", err
		}
		return id, nil
	}

	req := sandbox.CreateSandboxRequest{
		Name:               ws.Name,
		Image:              ws.Image,
		Language:           ws.Language,
		Labels:             map[string]string{LabelProject: ws.ProjectID, LabelWorkspace: ws.ID},
		EnvVars:            ws.EnvVars,
		AutoStopMinutes:    ws.AutoStopMinutes,
		AutoArchiveMinutes: ws.AutoArchiveMinutes,
		Public:             true,
	}
	if ws.CPU != nil || ws.MemoryMB != nil || ws.DiskGB != nil {
		res := &sandbox.Resources{}
		if ws.CPU != nil {
			res.CPU = *ws.CPU
		}
		if ws.MemoryMB != nil {
			res.MemoryMB = *ws.MemoryMB
		}
		if ws.DiskGB != nil {
			res.DiskGB = *ws.DiskGB
		}
		req.Resources = res
	}

	sb, err := s.provider.CreateSandbox(ctx, req)
	if err != nil {
		return "", err
	}

	if _, err := s.waitRunning(ctx, sb.ID); err != nil {
		return "", err
	}
	return sb.ID, nil
}

func (s *LifecycleService) waitRunning(ctx context.Context, sandboxID string) (*sandbox.Sandbox, error) {
	return s.provider.WaitForState(ctx, sandboxID, s.pollInterval, s.createTimeout,
		sandbox.StateRunning, sandbox.StateActive, sandbox.StateStarted)
}

// Stop halts the provider sandbox. Stopping an already-stopped workspace is
// a no-op.
func (s *LifecycleService) Stop(ctx context.Context, workspaceID string) error {
	ws, err := s.repos.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.Status == models.WorkspaceStatusStopped {
		return nil
	}
	if !ws.Live() {
		return fmt.Errorf("workspace %s is deleted", workspaceID)
	}

	if ws.SandboxID != nil {
		if err := s.provider.StopSandbox(ctx, *ws.SandboxID); err != nil {
			if markErr := s.repos.Workspaces.MarkError(ctx, ws.ID, err.Error()); markErr != nil {
				logging.Error("Failed to record error on workspace %s: %v", ws.ID, markErr)
			}
			return fmt.Errorf("stop workspace %s: %w", ws.ID, err)
		}
	}

	return s.repos.Workspaces.MarkStopped(ctx, ws.ID)
}

// Restart syncs against the provider first and returns immediately when the
// workspace is already running; otherwise it starts it.
func (s *LifecycleService) Restart(ctx context.Context, workspaceID string) error {
	ws, err := s.SyncStatus(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.Status == models.WorkspaceStatusRunning {
		return nil
	}
	return s.Start(ctx, workspaceID)
}

// Delete stops the sandbox if running, instructs the provider to delete it,
// then soft-deletes the local record. Provider-side failure is logged but
// never blocks the local soft delete: bookkeeping must not get stuck because
// the remote side errored.
func (s *LifecycleService) Delete(ctx context.Context, workspaceID string) error {
	ws, err := s.repos.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !ws.Live() {
		return nil
	}

	if ws.SandboxID != nil {
		if ws.Status == models.WorkspaceStatusRunning {
			if err := s.provider.StopSandbox(ctx, *ws.SandboxID); err != nil {
				logging.Warn("Stop before delete failed for workspace %s: %v", ws.ID, err)
			}
		}
		if err := s.provider.DeleteSandbox(ctx, *ws.SandboxID); err != nil {
			logging.Warn("Provider delete failed for workspace %s (sandbox %s): %v", ws.ID, *ws.SandboxID, err)
		}
	}

	return s.repos.Workspaces.SoftDelete(ctx, ws.ID)
}

// SyncStatus fetches the provider's view of the sandbox and remaps it onto
// the local status enum. The remote sandbox changes state out-of-band
// (provider auto-stop and auto-archive), so cached status must not be
// trusted without a sync.
func (s *LifecycleService) SyncStatus(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	ws, err := s.repos.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.SandboxID == nil || !ws.Live() {
		return ws, nil
	}

	sb, err := s.provider.GetSandbox(ctx, *ws.SandboxID)
	if err != nil {
		if sandbox.IsNotFound(err) {
			message := fmt.Sprintf("provider reports sandbox %s not found; it may have been archived or removed", *ws.SandboxID)
			if markErr := s.repos.Workspaces.MarkError(ctx, ws.ID, message); markErr != nil {
				return nil, markErr
			}
			return s.repos.Workspaces.GetByID(ctx, ws.ID)
		}
		return nil, fmt.Errorf("sync workspace %s: %w", ws.ID, err)
	}

	mapped := MapProviderState(sb.State)
	if mapped == ws.Status {
		return ws, nil
	}

	logging.Info("Workspace %s drifted: local %s, provider %s (%s)", ws.ID, ws.Status, mapped, sb.State)

	switch mapped {
	case models.WorkspaceStatusStopped:
		err = s.repos.Workspaces.MarkStopped(ctx, ws.ID)
	case models.WorkspaceStatusError:
		message := sb.Error
		if message == "" {
			message = fmt.Sprintf("provider reports sandbox state %s", sb.State)
		}
		err = s.repos.Workspaces.MarkError(ctx, ws.ID, message)
	case models.WorkspaceStatusDeleted:
		err = s.repos.Workspaces.SoftDelete(ctx, ws.ID)
	default:
		err = s.repos.Workspaces.UpdateStatus(ctx, ws.ID, mapped)
	}
	if err != nil {
		return nil, err
	}

	return s.repos.Workspaces.GetByID(ctx, ws.ID)
}

// MapProviderState remaps a provider-reported sandbox state onto the local
// workspace status enum. Unknown states map to error rather than being
// silently ignored.
func MapProviderState(state string) models.WorkspaceStatus {
	switch strings.ToLower(state) {
	case sandbox.StateStarting, sandbox.StatePending, sandbox.StateCreating:
		return models.WorkspaceStatusStarting
	case sandbox.StateRunning, sandbox.StateActive, sandbox.StateStarted:
		return models.WorkspaceStatusRunning
	case sandbox.StateStopped, sandbox.StatePaused, sandbox.StateStopping:
		return models.WorkspaceStatusStopped
	case sandbox.StateError, sandbox.StateFailed:
		return models.WorkspaceStatusError
	case sandbox.StateArchived, sandbox.StateDeleted, sandbox.StateDestroyed:
		return models.WorkspaceStatusDeleted
	default:
		return models.WorkspaceStatusError
	}
}

// GetOrCreate returns the project's live workspace, creating one when none
// exists. The one-live-workspace-per-project invariant is backed by a
// partial unique index; losing the creation race surfaces as a constraint
// violation, answered by re-reading the winner's row.
func (s *LifecycleService) GetOrCreate(ctx context.Context, projectID string, opts CreateOptions) (*models.Workspace, error) {
	ws, err := s.repos.Workspaces.GetLiveByProject(ctx, projectID)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	created, err := s.Create(ctx, projectID, opts)
	if err != nil && isUniqueViolation(err) {
		return s.repos.Workspaces.GetLiveByProject(ctx, projectID)
	}
	return created, err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ForceRebuild tears the workspace down and provisions a fresh one for the
// same project with the same declared parameters. Only reachable through the
// confirm-gated tool; the reason lands in the workspace log for audit.
func (s *LifecycleService) ForceRebuild(ctx context.Context, workspaceID, reason string) (*models.Workspace, error) {
	ws, err := s.repos.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	logging.Warn("Force rebuild of workspace %s (project %s): %s", ws.ID, ws.ProjectID, reason)

	if err := s.Delete(ctx, ws.ID); err != nil {
		return nil, fmt.Errorf("force rebuild: delete old workspace: %w", err)
	}

	var ephemeral *bool
	e := ws.Ephemeral
	ephemeral = &e

	return s.Create(ctx, ws.ProjectID, CreateOptions{
		Name:               ws.Name,
		Language:           ws.Language,
		Image:              ws.Image,
		CPU:                ws.CPU,
		MemoryMB:           ws.MemoryMB,
		DiskGB:             ws.DiskGB,
		EnvVars:            ws.EnvVars,
		AutoStopMinutes:    ws.AutoStopMinutes,
		AutoArchiveMinutes: ws.AutoArchiveMinutes,
		Ephemeral:          ephemeral,
	})
}
