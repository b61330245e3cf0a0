package services

import (
	"context"
	"testing"
	"time"

	"drydock/internal/sandbox"
	"drydock/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRemapsProviderDrift(t *testing.T) {
	repos, provider, lifecycle := setupLifecycle(t)
	reconciler := NewReconcilerService(repos, lifecycle, 0)
	ctx := context.Background()

	ws, err := lifecycle.Create(ctx, "proj_1", CreateOptions{})
	require.NoError(t, err)

	// The provider auto-stopped the sandbox behind our back.
	provider.state = sandbox.StateStopped

	require.NoError(t, reconciler.Sweep(ctx))

	got, err := repos.Workspaces.GetByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkspaceStatusStopped, got.Status)
}

func TestSweepSkipsBrokenWorkspaces(t *testing.T) {
	repos, provider, lifecycle := setupLifecycle(t)
	reconciler := NewReconcilerService(repos, lifecycle, 0)
	ctx := context.Background()

	broken, err := lifecycle.Create(ctx, "proj_a", CreateOptions{})
	require.NoError(t, err)
	healthy, err := lifecycle.Create(ctx, "proj_b", CreateOptions{})
	require.NoError(t, err)

	// The broken workspace's sandbox vanished; the healthy one drifted to
	// stopped. The sweep must handle both.
	provider.mu.Lock()
	delete(provider.sandboxes, *broken.SandboxID)
	provider.mu.Unlock()
	provider.state = sandbox.StateStopped

	require.NoError(t, reconciler.Sweep(ctx), "a single broken sandbox must not fail the sweep")

	gotBroken, err := repos.Workspaces.GetByID(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkspaceStatusError, gotBroken.Status)

	gotHealthy, err := repos.Workspaces.GetByID(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkspaceStatusStopped, gotHealthy.Status)
}

func TestSweepRecordsVisitOnUnchangedWorkspace(t *testing.T) {
	repos, _, lifecycle := setupLifecycle(t)
	reconciler := NewReconcilerService(repos, lifecycle, 0)
	ctx := context.Background()

	ws, err := lifecycle.Create(ctx, "proj_1", CreateOptions{})
	require.NoError(t, err)

	// Backdate updated_at so the sweep's touch is observable.
	tx, err := repos.BeginTx()
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx,
		`UPDATE workspaces SET updated_at = datetime('now', '-1 hour') WHERE id = ?`, ws.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	stale, err := repos.Workspaces.GetByID(ctx, ws.ID)
	require.NoError(t, err)

	require.NoError(t, reconciler.Sweep(ctx))

	got, err := repos.Workspaces.GetByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkspaceStatusRunning, got.Status)
	assert.True(t, got.UpdatedAt.After(stale.UpdatedAt), "sweep must bump updated_at even without a status change")
}

func TestSweepIgnoresTerminalWorkspaces(t *testing.T) {
	repos, provider, lifecycle := setupLifecycle(t)
	reconciler := NewReconcilerService(repos, lifecycle, 0)
	ctx := context.Background()

	ws, err := lifecycle.Create(ctx, "proj_1", CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, lifecycle.Delete(ctx, ws.ID))

	// Provider state changing after deletion is irrelevant.
	provider.state = sandbox.StateRunning
	require.NoError(t, reconciler.Sweep(ctx))

	got, err := repos.Workspaces.GetByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkspaceStatusDeleted, got.Status)
}

func TestReconcilerDisabledWithoutInterval(t *testing.T) {
	repos, _, lifecycle := setupLifecycle(t)
	reconciler := NewReconcilerService(repos, lifecycle, 0)
	require.NoError(t, reconciler.Start())
}

func TestReconcilerStartStop(t *testing.T) {
	repos, _, lifecycle := setupLifecycle(t)
	reconciler := NewReconcilerService(repos, lifecycle, time.Hour)
	require.NoError(t, reconciler.Start())
	reconciler.Stop()
}
