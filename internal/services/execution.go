package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/sandbox"
	"drydock/internal/storage"
	"drydock/pkg/models"

	"github.com/sethvargo/go-retry"
)

// ExecutionEngine runs one-shot commands, managed code snippets, and
// interactive sessions inside a workspace's sandbox, and verifies the
// endpoints they expose. The persisted workspace status is the single source
// of truth: every operation loads the record and rejects non-running
// workspaces before any remote call.
type ExecutionEngine struct {
	repos    *repositories.Repositories
	provider Provider
	sessions *SessionManager
	store    storage.FileStore

	httpClient     *http.Client
	healthAttempts uint64
	healthDelay    time.Duration
	portWaitBudget time.Duration
	pollInterval   time.Duration
}

type EngineOption func(*ExecutionEngine)

// WithHealthCheck overrides the preview health-check attempt budget and
// initial backoff delay.
func WithHealthCheck(attempts uint64, initialDelay time.Duration) EngineOption {
	return func(e *ExecutionEngine) {
		e.healthAttempts = attempts
		e.healthDelay = initialDelay
	}
}

// WithPortWait overrides the listen-probe budget and poll interval.
func WithPortWait(budget, interval time.Duration) EngineOption {
	return func(e *ExecutionEngine) {
		e.portWaitBudget = budget
		e.pollInterval = interval
	}
}

// WithHTTPClient substitutes the client used for preview health checks.
func WithHTTPClient(client *http.Client) EngineOption {
	return func(e *ExecutionEngine) { e.httpClient = client }
}

func NewExecutionEngine(repos *repositories.Repositories, provider Provider, store storage.FileStore, opts ...EngineOption) *ExecutionEngine {
	e := &ExecutionEngine{
		repos:          repos,
		provider:       provider,
		sessions:       NewSessionManager(provider),
		store:          store,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			// A redirect is already a healthy answer; following it would
			// turn redirect loops into transport errors.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		healthAttempts: 5,
		healthDelay:    500 * time.Millisecond,
		portWaitBudget: 30 * time.Second,
		pollInterval:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions exposes the in-memory session table.
func (e *ExecutionEngine) Sessions() *SessionManager {
	return e.sessions
}

// requireRunning loads the workspace record and rejects anything that is not
// running. Returning the ref keeps one record load per operation.
func (e *ExecutionEngine) requireRunning(ctx context.Context, workspaceID string) (*workspaceRef, error) {
	ws, err := e.repos.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.Status != models.WorkspaceStatusRunning || ws.SandboxID == nil {
		return nil, fmt.Errorf("%w: workspace %s is %s", ErrWorkspaceNotRunning, workspaceID, ws.Status)
	}
	return &workspaceRef{WorkspaceID: ws.ID, SandboxID: *ws.SandboxID}, nil
}

// ExecOptions tune a one-shot command.
type ExecOptions struct {
	Cwd            string
	Env            map[string]string
	TimeoutSeconds int
}

// ExecuteCommand runs a one-shot synchronous command. Stderr may be empty
// when the provider multiplexes both streams into Output; callers must treat
// Output as the primary stream.
func (e *ExecutionEngine) ExecuteCommand(ctx context.Context, workspaceID, command string, opts ExecOptions) (*sandbox.ExecResult, error) {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	return e.provider.ExecuteCommand(ctx, ref.SandboxID, sandbox.ExecRequest{
		Command:        command,
		Cwd:            opts.Cwd,
		Env:            opts.Env,
		TimeoutSeconds: opts.TimeoutSeconds,
	})
}

// CodeParams configure a managed code run.
type CodeParams struct {
	Language string
	Argv     []string
	Env      map[string]string
}

// CodeRunOutcome is a code run's result with any captured artifacts staged
// into the durable store.
type CodeRunOutcome struct {
	Output       string   `json:"output"`
	ExitCode     int      `json:"exit_code"`
	ArtifactKeys []string `json:"artifact_keys,omitempty"`
}

// RunCode executes a snippet through the provider's managed code runner.
// Unlike ExecuteCommand it supports argv/env injection without shell quoting
// concerns and captures rendered artifacts, which are persisted to the
// artifact store so they outlive the sandbox.
func (e *ExecutionEngine) RunCode(ctx context.Context, workspaceID, code string, params CodeParams, timeout time.Duration) (*CodeRunOutcome, error) {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	result, err := e.provider.RunCode(ctx, ref.SandboxID, sandbox.CodeRunRequest{
		Code:           code,
		Language:       params.Language,
		Argv:           params.Argv,
		Env:            params.Env,
		TimeoutSeconds: int(timeout.Seconds()),
	})
	if err != nil {
		return nil, err
	}

	outcome := &CodeRunOutcome{Output: result.Output, ExitCode: result.ExitCode}
	for i, artifact := range result.Artifacts {
		key, err := e.storeArtifact(ctx, ref.WorkspaceID, i, artifact)
		if err != nil {
			// A lost artifact never fails the run itself.
			logging.Warn("Failed to persist artifact %s from workspace %s: %v", artifact.Name, ref.WorkspaceID, err)
			continue
		}
		if key != "" {
			outcome.ArtifactKeys = append(outcome.ArtifactKeys, key)
		}
	}
	return outcome, nil
}

func (e *ExecutionEngine) storeArtifact(ctx context.Context, workspaceID string, index int, artifact sandbox.Artifact) (string, error) {
	if artifact.Base64 == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(artifact.Base64)
	if err != nil {
		return "", fmt.Errorf("decode artifact: %w", err)
	}

	name := artifact.Name
	if name == "" {
		name = fmt.Sprintf("artifact-%d", index)
	}
	key := storage.ArtifactKey(workspaceID, name)
	if _, err := e.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{}); err != nil {
		return "", err
	}
	return key, nil
}

// CreateSession opens a named interactive session in the workspace.
func (e *ExecutionEngine) CreateSession(ctx context.Context, workspaceID, sessionID string) (*Session, error) {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return e.sessions.Create(ctx, ref, sessionID)
}

// SessionExec runs a command in an existing session.
func (e *ExecutionEngine) SessionExec(ctx context.Context, workspaceID, sessionID, command string, async bool) (*sandbox.SessionExecResult, error) {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return e.sessions.Exec(ctx, ref, sessionID, command, async)
}

// GetSession returns the local handle for a tracked session.
func (e *ExecutionEngine) GetSession(workspaceID, sessionID string) (*Session, error) {
	return e.sessions.Get(workspaceID, sessionID)
}

// ListSessions returns the workspace's tracked sessions.
func (e *ExecutionEngine) ListSessions(workspaceID string) []*Session {
	return e.sessions.List(workspaceID)
}

// DeleteSession kills and forgets a session.
func (e *ExecutionEngine) DeleteSession(ctx context.Context, workspaceID, sessionID string) error {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return err
	}
	return e.sessions.Delete(ctx, ref, sessionID)
}

// RecoverSessions reconciles the in-memory session table against the
// provider's live session list for a running workspace.
func (e *ExecutionEngine) RecoverSessions(ctx context.Context, workspaceID string) (int, error) {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	return e.sessions.Recover(ctx, ref)
}

// CheckPort probes once whether anything is listening on the port inside the
// sandbox.
func (e *ExecutionEngine) CheckPort(ctx context.Context, workspaceID string, port int) (bool, error) {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	return e.probePort(ctx, ref, port)
}

func (e *ExecutionEngine) probePort(ctx context.Context, ref *workspaceRef, port int) (bool, error) {
	// /dev/tcp works in every base image; nc is not guaranteed to exist.
	probe := fmt.Sprintf(`bash -c "exec 3<>/dev/tcp/127.0.0.1/%d" 2>/dev/null`, port)
	result, err := e.provider.ExecuteCommand(ctx, ref.SandboxID, sandbox.ExecRequest{
		Command:        probe,
		TimeoutSeconds: 5,
	})
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}

// WaitForPort polls the listen probe until the port answers or the budget
// runs out.
func (e *ExecutionEngine) WaitForPort(ctx context.Context, workspaceID string, port int) error {
	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxDuration(e.portWaitBudget, retry.NewConstant(e.pollInterval))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		listening, err := e.probePort(ctx, ref, port)
		if err != nil {
			return retry.RetryableError(err)
		}
		if !listening {
			return retry.RetryableError(fmt.Errorf("port %d not listening yet", port))
		}
		return nil
	})
}

// PreviewLink verifies the port is accepting connections, then resolves the
// provider's preview URL for it. The URL is NOT health-checked here; use
// GetPreviewURL for the full contract.
func (e *ExecutionEngine) PreviewLink(ctx context.Context, workspaceID string, port int) (string, error) {
	if err := e.WaitForPort(ctx, workspaceID, port); err != nil {
		return "", fmt.Errorf("port %d never started listening: %w", port, err)
	}

	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	link, err := e.provider.GetPreviewLink(ctx, ref.SandboxID, port)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// CheckURLHealth probes the URL with exponential backoff until it answers
// with any 2xx/3xx status or the attempt budget is exhausted.
func (e *ExecutionEngine) CheckURLHealth(ctx context.Context, url string, attempts uint64) error {
	if attempts == 0 {
		attempts = e.healthAttempts
	}

	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(e.healthDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := e.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return nil
		}
		return retry.RetryableError(fmt.Errorf("health check returned status %d", resp.StatusCode))
	})
}

// GetPreviewURL resolves a usable preview URL for a sandbox port: the port
// must be accepting connections, the provider must issue a link, and the
// link must pass the health check. A URL for a server that is not answering
// is an error, never a success.
func (e *ExecutionEngine) GetPreviewURL(ctx context.Context, workspaceID string, port int) (string, error) {
	url, err := e.PreviewLink(ctx, workspaceID, port)
	if err != nil {
		return "", err
	}

	if err := e.CheckURLHealth(ctx, url, e.healthAttempts); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPreviewUnhealthy, url, err)
	}
	return url, nil
}
