package services

import (
	"context"
	"fmt"
	"time"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/pkg/models"

	"github.com/robfig/cron/v3"
)

// ReconcilerService periodically sweeps non-deleted workspaces and syncs
// their status against the provider, catching provider-initiated auto-stop
// and auto-archive drift that out-of-band changes local state would
// otherwise hide.
type ReconcilerService struct {
	repos     *repositories.Repositories
	lifecycle *LifecycleService
	cron      *cron.Cron
	interval  time.Duration
}

func NewReconcilerService(repos *repositories.Repositories, lifecycle *LifecycleService, interval time.Duration) *ReconcilerService {
	return &ReconcilerService{
		repos:     repos,
		lifecycle: lifecycle,
		cron:      cron.New(),
		interval:  interval,
	}
}

// Start schedules the sweep. A non-positive interval disables the
// reconciler.
func (s *ReconcilerService) Start() error {
	if s.interval <= 0 {
		logging.Info("Status reconciler disabled")
		return nil
	}

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			logging.Error("Status reconcile sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}

	s.cron.Start()
	logging.Info("Status reconciler running every %s", s.interval)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *ReconcilerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep syncs every workspace the provider could have moved out-of-band.
// Per-workspace failures are logged and skipped; one broken sandbox must not
// stall the rest of the sweep.
func (s *ReconcilerService) Sweep(ctx context.Context) error {
	workspaces, err := s.repos.Workspaces.ListByStatus(ctx,
		models.WorkspaceStatusRunning,
		models.WorkspaceStatusStarting,
		models.WorkspaceStatusStopped,
	)
	if err != nil {
		return fmt.Errorf("list workspaces for sweep: %w", err)
	}

	for _, ws := range workspaces {
		before := ws.Status
		synced, err := s.lifecycle.SyncStatus(ctx, ws.ID)
		if err != nil {
			logging.Warn("Reconcile of workspace %s failed: %v", ws.ID, err)
			continue
		}
		if synced.Status != before {
			logging.Info("Reconciled workspace %s: %s -> %s", ws.ID, before, synced.Status)
			continue
		}
		// Record the visit even when nothing changed.
		if err := s.repos.Workspaces.Touch(ctx, ws.ID); err != nil {
			logging.Warn("Touch of workspace %s failed: %v", ws.ID, err)
		}
	}
	return nil
}
