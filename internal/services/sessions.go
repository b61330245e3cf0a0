package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"drydock/internal/logging"
	"drydock/internal/sandbox"

	"github.com/google/uuid"
)

// Session is an in-memory handle to one named interactive channel inside a
// workspace's sandbox. Handles live only as long as the process; on restart
// they are reconciled from the provider's live session list and come back
// flagged Recovered with no output history.
type Session struct {
	ID          string
	WorkspaceID string
	Command     string
	StartedAt   time.Time
	Recovered   bool

	output chan string

	mu       sync.Mutex
	exitCode *int
	closed   bool
	cancel   context.CancelFunc
}

// Output is the stream of command output chunks. The channel is closed when
// the command terminates or the session is deleted; that close plus an
// available ExitCode is the terminal signal. Sends block until the consumer
// reads, so a slow consumer backpressures the log poller rather than losing
// chunks.
func (s *Session) Output() <-chan string {
	return s.output
}

// ExitCode returns the command's exit code once it has terminated.
func (s *Session) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCode == nil {
		return 0, false
	}
	return *s.exitCode, true
}

func (s *Session) finish(exitCode *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.exitCode = exitCode
	s.closed = true
	close(s.output)
}

// push delivers one output chunk, honoring cancellation. Returns false when
// the pump should stop.
func (s *Session) push(ctx context.Context, chunk string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.output <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// SessionManager is the in-process session table: named, addressable
// interactive sessions multiplexed over one provider connection per
// workspace. Keys are workspaceID/sessionID. Concurrent exec calls on the
// same session id race at the provider; serialization is the caller's
// responsibility.
type SessionManager struct {
	provider Provider

	mu       sync.RWMutex
	sessions map[string]*Session

	pollInterval time.Duration
	outputBuffer int
}

func NewSessionManager(provider Provider) *SessionManager {
	return &SessionManager{
		provider:     provider,
		sessions:     make(map[string]*Session),
		pollInterval: time.Second,
		outputBuffer: 64,
	}
}

func sessionKey(workspaceID, sessionID string) string {
	return workspaceID + "/" + sessionID
}

// Create registers a named session on the provider and tracks a local
// handle. Session ids are caller-chosen; an empty id gets a generated one.
func (m *SessionManager) Create(ctx context.Context, ws *workspaceRef, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = "session-" + uuid.NewString()[:8]
	}

	if _, err := m.provider.CreateSession(ctx, ws.SandboxID, sessionID); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}

	session := &Session{
		ID:          sessionID,
		WorkspaceID: ws.WorkspaceID,
		StartedAt:   time.Now(),
		output:      make(chan string, m.outputBuffer),
	}

	m.mu.Lock()
	m.sessions[sessionKey(ws.WorkspaceID, sessionID)] = session
	m.mu.Unlock()

	return session, nil
}

// Exec runs a command in an existing session. Synchronous commands return
// output and exit code directly; async commands return immediately and the
// session's output channel streams chunks as the provider reports them.
func (m *SessionManager) Exec(ctx context.Context, ws *workspaceRef, sessionID, command string, async bool) (*sandbox.SessionExecResult, error) {
	session, err := m.Get(ws.WorkspaceID, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := m.provider.SessionExec(ctx, ws.SandboxID, sessionID, sandbox.SessionExecRequest{
		Command:  command,
		RunAsync: async,
	})
	if err != nil {
		return nil, fmt.Errorf("exec in session %s: %w", sessionID, err)
	}

	session.mu.Lock()
	session.Command = command
	session.mu.Unlock()

	if async && result.CommandID != "" {
		pumpCtx, cancel := context.WithCancel(context.Background())
		session.mu.Lock()
		session.cancel = cancel
		session.mu.Unlock()
		go m.pump(pumpCtx, ws.SandboxID, session, result.CommandID)
	} else if result.ExitCode != nil {
		session.mu.Lock()
		session.exitCode = result.ExitCode
		session.mu.Unlock()
	}

	return result, nil
}

// pump polls the provider's incremental command logs and feeds the session's
// output channel until the command reports an exit code.
func (m *SessionManager) pump(ctx context.Context, sandboxID string, session *Session, commandID string) {
	offset := 0
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			session.finish(nil)
			return
		case <-ticker.C:
		}

		logs, err := m.provider.GetCommandLogs(ctx, sandboxID, session.ID, commandID, offset)
		if err != nil {
			logging.Debug("Session %s log poll failed: %v", session.ID, err)
			continue
		}

		if logs.Output != "" {
			if !session.push(ctx, logs.Output) {
				return
			}
			offset = logs.Offset
		}

		if logs.ExitCode != nil {
			session.finish(logs.ExitCode)
			return
		}
	}
}

// Get returns the local handle for a session.
func (m *SessionManager) Get(workspaceID, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionKey(workspaceID, sessionID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// List returns the workspace's tracked sessions.
func (m *SessionManager) List(workspaceID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []*Session
	for _, s := range m.sessions {
		if s.WorkspaceID == workspaceID {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// Delete kills the provider session and drops the local handle. The output
// channel closes as the terminal signal to any consumer.
func (m *SessionManager) Delete(ctx context.Context, ws *workspaceRef, sessionID string) error {
	session, err := m.Get(ws.WorkspaceID, sessionID)
	if err != nil {
		return err
	}

	if err := m.provider.DeleteSession(ctx, ws.SandboxID, sessionID); err != nil {
		logging.Warn("Provider session delete failed for %s: %v", sessionID, err)
	}

	session.mu.Lock()
	if session.cancel != nil {
		session.cancel()
	}
	session.mu.Unlock()
	session.finish(nil)

	m.mu.Lock()
	delete(m.sessions, sessionKey(ws.WorkspaceID, sessionID))
	m.mu.Unlock()

	return nil
}

// Recover reconciles the local table against provider-reported live sessions
// for a workspace, re-registering handles lost to a process restart.
// Recovered handles carry no output history; their channels stream from the
// provider's current offset once a command is executed through them.
func (m *SessionManager) Recover(ctx context.Context, ws *workspaceRef) (int, error) {
	live, err := m.provider.ListSessions(ctx, ws.SandboxID)
	if err != nil {
		return 0, fmt.Errorf("list provider sessions: %w", err)
	}

	recovered := 0
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, remote := range live {
		key := sessionKey(ws.WorkspaceID, remote.ID)
		if _, ok := m.sessions[key]; ok {
			continue
		}
		m.sessions[key] = &Session{
			ID:          remote.ID,
			WorkspaceID: ws.WorkspaceID,
			StartedAt:   remote.CreatedAt,
			Recovered:   true,
			output:      make(chan string, m.outputBuffer),
		}
		recovered++
	}

	if recovered > 0 {
		logging.Info("Recovered %d provider sessions for workspace %s", recovered, ws.WorkspaceID)
	}
	return recovered, nil
}

// workspaceRef pairs the local workspace id with its provider sandbox id for
// session and execution calls.
type workspaceRef struct {
	WorkspaceID string
	SandboxID   string
}
