package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStrategyChainOrder(t *testing.T) {
	provider := newFakeProvider()
	sessions := NewSessionManager(provider)

	strategies := DefaultStartStrategies(sessions, provider, "dev")
	require.Len(t, strategies, 2)
	assert.Equal(t, "session", strategies[0].Name())
	assert.Equal(t, "detached", strategies[1].Name())
}

func TestStartWithStrategiesPrefersFirst(t *testing.T) {
	provider := newFakeProvider()
	sessions := NewSessionManager(provider)
	ref := &workspaceRef{WorkspaceID: "ws_1", SandboxID: "sbx-1"}

	result, err := startWithStrategies(context.Background(),
		DefaultStartStrategies(sessions, provider, "dev"), ref, "npm run dev")
	require.NoError(t, err)
	assert.Equal(t, "session", result.Strategy)
	assert.True(t, result.Started)
}

func TestStartWithStrategiesFallsThrough(t *testing.T) {
	provider := newFakeProvider()
	provider.sessionErr = errors.New("session creation timed out")
	sessions := NewSessionManager(provider)
	ref := &workspaceRef{WorkspaceID: "ws_1", SandboxID: "sbx-1"}

	result, err := startWithStrategies(context.Background(),
		DefaultStartStrategies(sessions, provider, "dev"), ref, "npm run dev")
	require.NoError(t, err)
	assert.Equal(t, "detached", result.Strategy)
	assert.True(t, result.Started)
}

func TestStartWithStrategiesAllFail(t *testing.T) {
	failing := newFakeProvider()
	failing.sessionErr = errors.New("no sessions")
	sessions := NewSessionManager(failing)
	ref := &workspaceRef{WorkspaceID: "ws_1", SandboxID: "sbx-1"}

	chain := []StartStrategy{
		&sessionStrategy{sessions: sessions, sessionID: "dev"},
		&failingStrategy{},
	}

	_, err := startWithStrategies(context.Background(), chain, ref, "npm run dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all start strategies failed")
}

type failingStrategy struct{}

func (f *failingStrategy) Name() string { return "failing" }

func (f *failingStrategy) Start(ctx context.Context, ref *workspaceRef, command string) (*StartResult, error) {
	return nil, errors.New("always fails")
}
