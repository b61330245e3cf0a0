package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPortFromCommand(t *testing.T) {
	cases := []struct {
		command string
		want    int
	}{
		{"npm run dev -- --port 4321", 4321},
		{"next dev --port=8080", 8080},
		{"serve -p 5000", 5000},
		{"vite", 5173},
		{"npm run dev", 3000}, // unrecognized framework falls back
		{"vite dev --host", 5173},
		{"ng serve", 4200},
		{"uvicorn main:app", 8000},
		{"python manage.py runserver", 8000},
		{"./run.sh", 3000},
	}

	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectPortFromCommand(tc.command))
		})
	}
}

func TestDetectPortFromOutput(t *testing.T) {
	assert.Equal(t, 5173, DetectPortFromOutput("VITE ready in 300ms\n  Local: http://localhost:5173/"))
	assert.Equal(t, 8000, DetectPortFromOutput("Running on http://0.0.0.0:8000"))
	assert.Equal(t, 0, DetectPortFromOutput("compiling..."))
}

func TestValidateDevCommand(t *testing.T) {
	t.Run("accepts normal commands", func(t *testing.T) {
		assert.NoError(t, ValidateDevCommand("npm run dev"))
		assert.NoError(t, ValidateDevCommand(`node server.js --name "my app"`))
	})

	t.Run("rejects embedded cd", func(t *testing.T) {
		err := ValidateDevCommand("cd app && npm run dev")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidCommand))
	})

	t.Run("rejects unbalanced quotes", func(t *testing.T) {
		err := ValidateDevCommand(`npm run dev --name "broken`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidCommand))
	})

	t.Run("rejects backslash separators", func(t *testing.T) {
		err := ValidateDevCommand(`node src\server.js`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidCommand))
	})

	t.Run("rejects empty", func(t *testing.T) {
		assert.Error(t, ValidateDevCommand("  "))
	})
}

func TestStartDevServerValidatesBeforeRemoteCalls(t *testing.T) {
	repos := setupRepos(t)
	provider := newFakeProvider()
	engine := NewExecutionEngine(repos, provider, nil)

	_, err := engine.StartDevServer(context.Background(), "ws_missing", "cd app && npm run dev", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCommand), "validation must run before the workspace is even loaded")
}

func TestStartDevServerThroughSession(t *testing.T) {
	repos, provider, lifecycle := setupLifecycle(t)
	engine := NewExecutionEngine(repos, provider, nil)
	ctx := context.Background()

	ws, err := lifecycle.Create(ctx, "proj_1", CreateOptions{Language: "node"})
	require.NoError(t, err)

	result, err := engine.StartDevServer(ctx, ws.ID, "npm run dev", 0)
	require.NoError(t, err)

	assert.True(t, result.ProcessStarted)
	assert.Equal(t, "session", result.Strategy)
	assert.Equal(t, DevServerSessionID, result.SessionID)
	assert.Equal(t, 3000, result.DetectedPort)
}

func TestStartDevServerFallsBackToDetached(t *testing.T) {
	repos, provider, lifecycle := setupLifecycle(t)
	engine := NewExecutionEngine(repos, provider, nil)
	ctx := context.Background()

	ws, err := lifecycle.Create(ctx, "proj_1", CreateOptions{Language: "node"})
	require.NoError(t, err)

	// Session creation fails; the chain degrades to detached background
	// exec and still reports a started process.
	provider.sessionErr = errors.New("pty allocation failed")

	result, err := engine.StartDevServer(ctx, ws.ID, "vite", 0)
	require.NoError(t, err)

	assert.True(t, result.ProcessStarted)
	assert.Equal(t, "detached", result.Strategy)
	assert.Equal(t, 5173, result.DetectedPort)
}
