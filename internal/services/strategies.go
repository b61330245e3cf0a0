package services

import (
	"context"
	"fmt"

	"drydock/internal/logging"
	"drydock/internal/sandbox"
)

// StartResult is the common outcome type every start strategy returns, so
// callers and tests see which strategy carried the process.
type StartResult struct {
	Strategy  string `json:"strategy"`
	Started   bool   `json:"started"`
	SessionID string `json:"session_id,omitempty"`
	CommandID string `json:"command_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// StartStrategy is one way to get a long-running process going inside a
// sandbox. Strategies are tried in order; the fallback policy is the slice
// itself, inspectable and reorderable by tests, not inline control flow.
type StartStrategy interface {
	Name() string
	Start(ctx context.Context, ref *workspaceRef, command string) (*StartResult, error)
}

// sessionStrategy starts the command in a named interactive session. This is
// the preferred path: output streams back through the session's channel and
// the process can be observed and killed by name.
type sessionStrategy struct {
	sessions  *SessionManager
	sessionID string
}

func (s *sessionStrategy) Name() string { return "session" }

func (s *sessionStrategy) Start(ctx context.Context, ref *workspaceRef, command string) (*StartResult, error) {
	session, err := s.sessions.Create(ctx, ref, s.sessionID)
	if err != nil {
		return nil, err
	}

	result, err := s.sessions.Exec(ctx, ref, session.ID, command, true)
	if err != nil {
		// Half-created session; clean up best-effort before falling through.
		if delErr := s.sessions.Delete(ctx, ref, session.ID); delErr != nil {
			logging.Debug("Cleanup of session %s failed: %v", session.ID, delErr)
		}
		return nil, err
	}

	return &StartResult{
		Strategy:  s.Name(),
		Started:   true,
		SessionID: session.ID,
		CommandID: result.CommandID,
	}, nil
}

// detachedStrategy falls back to a nohup'd background command when
// interactive session creation fails or times out. The process cannot be
// observed afterwards, but many dev servers only need to be running, not
// watched, so a best-effort "started" beats a hard failure.
type detachedStrategy struct {
	provider Provider
}

func (d *detachedStrategy) Name() string { return "detached" }

func (d *detachedStrategy) Start(ctx context.Context, ref *workspaceRef, command string) (*StartResult, error) {
	wrapped := fmt.Sprintf("nohup sh -c %s > /tmp/drydock-dev.log 2>&1 & echo $!", shellSingleQuote(command))
	result, err := d.provider.ExecuteCommand(ctx, ref.SandboxID, sandbox.ExecRequest{
		Command:        wrapped,
		TimeoutSeconds: 15,
	})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("detached start exited %d: %s", result.ExitCode, result.Output)
	}

	return &StartResult{
		Strategy: d.Name(),
		Started:  true,
		Detail:   "started detached; output in /tmp/drydock-dev.log",
	}, nil
}

// DefaultStartStrategies is the production fallback chain: interactive
// session first, detached background exec second.
func DefaultStartStrategies(sessions *SessionManager, provider Provider, sessionID string) []StartStrategy {
	return []StartStrategy{
		&sessionStrategy{sessions: sessions, sessionID: sessionID},
		&detachedStrategy{provider: provider},
	}
}

// startWithStrategies walks the chain until one strategy succeeds. Each
// failure is logged and the next strategy tried; only when every strategy
// fails does the caller see an error.
func startWithStrategies(ctx context.Context, strategies []StartStrategy, ref *workspaceRef, command string) (*StartResult, error) {
	var lastErr error
	for _, strategy := range strategies {
		result, err := strategy.Start(ctx, ref, command)
		if err == nil {
			return result, nil
		}
		logging.Warn("Start strategy %q failed for workspace %s: %v", strategy.Name(), ref.WorkspaceID, err)
		lastErr = err
	}
	return nil, fmt.Errorf("all start strategies failed: %w", lastErr)
}
