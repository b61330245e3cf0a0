package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"drydock/internal/db"
	"drydock/internal/db/repositories"
	"drydock/internal/sandbox"
	"drydock/internal/services"
	"drydock/internal/storage"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider answers every provider call with a healthy default. Tests that
// need failures flip the error fields.
type stubProvider struct {
	mu      sync.Mutex
	nextID  int
	deleted []string

	createErr error
	runCodeFn func(id string, req sandbox.CodeRunRequest) (*sandbox.CodeRunResult, error)
}

func (p *stubProvider) CreateSandbox(ctx context.Context, req sandbox.CreateSandboxRequest) (*sandbox.Sandbox, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.nextID++
	return &sandbox.Sandbox{ID: fmt.Sprintf("sbx-%d", p.nextID), State: sandbox.StateRunning}, nil
}

func (p *stubProvider) GetSandbox(ctx context.Context, id string) (*sandbox.Sandbox, error) {
	return &sandbox.Sandbox{ID: id, State: sandbox.StateRunning}, nil
}

func (p *stubProvider) StartSandbox(ctx context.Context, id string) error { return nil }

func (p *stubProvider) StopSandbox(ctx context.Context, id string) error { return nil }

func (p *stubProvider) DeleteSandbox(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

func (p *stubProvider) WaitForState(ctx context.Context, id string, interval, budget time.Duration, states ...string) (*sandbox.Sandbox, error) {
	return p.GetSandbox(ctx, id)
}

func (p *stubProvider) ExecuteCommand(ctx context.Context, id string, req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
	return &sandbox.ExecResult{Output: "ok", ExitCode: 0}, nil
}

func (p *stubProvider) RunCode(ctx context.Context, id string, req sandbox.CodeRunRequest) (*sandbox.CodeRunResult, error) {
	if p.runCodeFn != nil {
		return p.runCodeFn(id, req)
	}
	return &sandbox.CodeRunResult{Output: "ok"}, nil
}

func (p *stubProvider) CreateSession(ctx context.Context, id, sessionID string) (*sandbox.Session, error) {
	return &sandbox.Session{ID: sessionID, CreatedAt: time.Now()}, nil
}

func (p *stubProvider) GetSession(ctx context.Context, id, sessionID string) (*sandbox.Session, error) {
	return &sandbox.Session{ID: sessionID}, nil
}

func (p *stubProvider) ListSessions(ctx context.Context, id string) ([]sandbox.Session, error) {
	return nil, nil
}

func (p *stubProvider) SessionExec(ctx context.Context, id, sessionID string, req sandbox.SessionExecRequest) (*sandbox.SessionExecResult, error) {
	zero := 0
	return &sandbox.SessionExecResult{CommandID: "cmd-1", ExitCode: &zero}, nil
}

func (p *stubProvider) GetCommandLogs(ctx context.Context, id, sessionID, commandID string, from int) (*sandbox.CommandLogs, error) {
	zero := 0
	return &sandbox.CommandLogs{ExitCode: &zero}, nil
}

func (p *stubProvider) DeleteSession(ctx context.Context, id, sessionID string) error { return nil }

func (p *stubProvider) UploadFile(ctx context.Context, id, path string, content []byte) error {
	return nil
}

func (p *stubProvider) DownloadFile(ctx context.Context, id, path string) ([]byte, error) {
	return []byte("content"), nil
}

func (p *stubProvider) CreateFolder(ctx context.Context, id, path, mode string) error { return nil }

func (p *stubProvider) DeleteFile(ctx context.Context, id, path string) error { return nil }

func (p *stubProvider) MoveFile(ctx context.Context, id, source, destination string) error {
	return nil
}

func (p *stubProvider) SetPermissions(ctx context.Context, id, path, mode string) error { return nil }

func (p *stubProvider) GetFileInfo(ctx context.Context, id, path string) (*sandbox.FileInfo, error) {
	return &sandbox.FileInfo{Name: path, Path: path}, nil
}

func (p *stubProvider) ListDirectory(ctx context.Context, id, path string) ([]sandbox.FileInfo, error) {
	return nil, nil
}

func (p *stubProvider) FindInFiles(ctx context.Context, id, path, pattern string) ([]sandbox.Match, error) {
	return nil, nil
}

func (p *stubProvider) SearchFiles(ctx context.Context, id, path, pattern string) ([]string, error) {
	return nil, nil
}

func (p *stubProvider) ReplaceInFiles(ctx context.Context, id string, req sandbox.ReplaceRequest) ([]sandbox.ReplaceResult, error) {
	return nil, nil
}

func (p *stubProvider) GetPreviewLink(ctx context.Context, id string, port int) (*sandbox.PreviewLink, error) {
	return &sandbox.PreviewLink{URL: fmt.Sprintf("https://%d.preview.local", port)}, nil
}

var _ services.Provider = (*stubProvider)(nil)

func setupServer(t *testing.T) (*Server, *repositories.Repositories, *stubProvider) {
	t.Helper()

	database, err := db.NewTest(t)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	repos := repositories.New(database)

	provider := &stubProvider{}
	catalog, err := sandbox.DefaultCatalog()
	require.NoError(t, err)

	store := storage.NewMemFileStore(storage.Config{})
	lifecycle := services.NewLifecycleService(repos, provider, catalog)
	engine := services.NewExecutionEngine(repos, provider, store)
	bridge := services.NewFileBridge(repos, provider, store)
	builds := services.NewBuildService(repos, engine, store)
	pipeline := services.NewCompletionPipeline(repos, bridge, engine, store)

	server := NewServer(repos, Services{
		Lifecycle: lifecycle,
		Engine:    engine,
		Bridge:    bridge,
		Builds:    builds,
		Pipeline:  pipeline,
		Store:     store,
	})
	return server, repos, provider
}

func callRequest(tool string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	text := resultText(result)
	require.NotEmpty(t, text)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	return payload
}

func TestToolTableIsClosedAndComplete(t *testing.T) {
	server, _, _ := setupServer(t)

	defs := server.toolDefs()
	assert.Len(t, defs, 40)

	seen := map[string]bool{}
	for _, def := range defs {
		assert.False(t, seen[def.tool.Name], "duplicate tool %s", def.tool.Name)
		seen[def.tool.Name] = true
		assert.NotNil(t, def.handler, "tool %s has no handler", def.tool.Name)
		assert.NotEmpty(t, def.tool.Description, "tool %s has no description", def.tool.Name)
	}

	for _, name := range []string{
		ToolCreateWorkspace, ToolForceRebuildWorkspace, ToolExecuteCommand,
		ToolStartDevServer, ToolDeployFiles, ToolCompleteTask,
	} {
		assert.True(t, seen[name], "tool %s missing from the table", name)
	}
}

func TestDispatchWritesAuditPair(t *testing.T) {
	server, repos, _ := setupServer(t)
	ctx := context.Background()

	wrapped := server.dispatch(ToolDetectPort, server.handleDetectPort)
	result, err := wrapped(ctx, callRequest(ToolDetectPort, map[string]interface{}{
		"command": "vite",
		"job_id":  "job_1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	count, err := repos.WorkspaceLogs.CountByTool(ctx, "job_1", ToolDetectPort)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	entries, err := repos.WorkspaceLogs.ListByJob(ctx, "job_1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "completion", entries[0].Metadata["phase"])
	assert.Equal(t, "invocation", entries[1].Metadata["phase"])
}

func TestDispatchRecoversPanicIntoStructuredFailure(t *testing.T) {
	server, repos, _ := setupServer(t)
	ctx := context.Background()

	panicking := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("nil map write")
	}

	wrapped := server.dispatch("exploding_tool", panicking)
	result, err := wrapped(ctx, callRequest("exploding_tool", map[string]interface{}{"job_id": "job_1"}))
	require.NoError(t, err, "a panic must surface as a structured result, not a protocol error")
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	payload := decodeResult(t, result)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "panicked")

	// The completion row is still written.
	count, err := repos.WorkspaceLogs.CountByTool(ctx, "job_1", "exploding_tool")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestDispatchLogsFailedResultsAtErrorLevel(t *testing.T) {
	server, repos, _ := setupServer(t)
	ctx := context.Background()

	wrapped := server.dispatch(ToolGetWorkspace, server.handleGetWorkspace)
	result, err := wrapped(ctx, callRequest(ToolGetWorkspace, map[string]interface{}{
		"workspace_id": "ws_missing",
		"job_id":       "job_1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	entries, err := repos.WorkspaceLogs.ListByJob(ctx, "job_1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tool failed", entries[0].Message)
}

func TestForceRebuildRequiresConfirmAndReason(t *testing.T) {
	server, _, provider := setupServer(t)
	ctx := context.Background()

	cases := []map[string]interface{}{
		{"workspace_id": "ws_1"},
		{"workspace_id": "ws_1", "confirm": true},
		{"workspace_id": "ws_1", "confirm": true, "reason": "   "},
		{"workspace_id": "ws_1", "confirm": false, "reason": "corrupted cache"},
	}

	for _, args := range cases {
		result, err := server.handleForceRebuildWorkspace(ctx, callRequest(ToolForceRebuildWorkspace, args))
		require.NoError(t, err)
		assert.True(t, result.IsError)

		payload := decodeResult(t, result)
		assert.Contains(t, payload["error"], "Confirmation required")
		assert.NotEmpty(t, payload["recommendation"])
	}

	assert.Empty(t, provider.deleted, "the gate must trip before the provider is touched")
}

func TestForceRebuildWithConfirmation(t *testing.T) {
	server, repos, provider := setupServer(t)
	ctx := context.Background()

	created, err := server.handleCreateWorkspace(ctx, callRequest(ToolCreateWorkspace, map[string]interface{}{
		"project_id": "proj_1",
		"language":   "node",
	}))
	require.NoError(t, err)
	require.False(t, created.IsError)

	payload := decodeResult(t, created)
	ws := payload["workspace"].(map[string]interface{})
	workspaceID := ws["id"].(string)

	result, err := server.handleForceRebuildWorkspace(ctx, callRequest(ToolForceRebuildWorkspace, map[string]interface{}{
		"workspace_id": workspaceID,
		"confirm":      true,
		"reason":       "dependency cache corrupted",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(result))

	rebuilt := decodeResult(t, result)
	fresh := rebuilt["workspace"].(map[string]interface{})
	assert.NotEqual(t, workspaceID, fresh["id"])
	assert.Len(t, provider.deleted, 1)

	old, err := repos.Workspaces.GetByID(ctx, workspaceID)
	require.NoError(t, err)
	assert.NotNil(t, old.DeletedAt)
}

func TestHandlerFailuresCarryRecommendations(t *testing.T) {
	server, repos, _ := setupServer(t)
	ctx := context.Background()

	// Create then stop a workspace, then try to execute in it.
	created, err := server.handleCreateWorkspace(ctx, callRequest(ToolCreateWorkspace, map[string]interface{}{
		"project_id": "proj_1",
	}))
	require.NoError(t, err)
	ws := decodeResult(t, created)["workspace"].(map[string]interface{})
	workspaceID := ws["id"].(string)

	require.NoError(t, repos.Workspaces.MarkStopped(ctx, workspaceID))

	result, err := server.handleExecuteCommand(ctx, callRequest(ToolExecuteCommand, map[string]interface{}{
		"workspace_id": workspaceID,
		"command":      "ls",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	payload := decodeResult(t, result)
	assert.Contains(t, payload["recommendation"], "start_workspace")
}

func TestRunCodeForwardsEnvAndArgv(t *testing.T) {
	server, _, provider := setupServer(t)
	ctx := context.Background()

	var got sandbox.CodeRunRequest
	provider.runCodeFn = func(id string, req sandbox.CodeRunRequest) (*sandbox.CodeRunResult, error) {
		got = req
		return &sandbox.CodeRunResult{Output: "ok"}, nil
	}

	created, err := server.handleCreateWorkspace(ctx, callRequest(ToolCreateWorkspace, map[string]interface{}{
		"project_id": "proj_1",
	}))
	require.NoError(t, err)
	ws := decodeResult(t, created)["workspace"].(map[string]interface{})

	result, err := server.handleRunCode(ctx, callRequest(ToolRunCode, map[string]interface{}{
		"workspace_id": ws["id"],
		"code":         "print(os.environ['API_BASE'])",
		"language":     "python",
		"argv":         []interface{}{"--verbose"},
		"env":          map[string]interface{}{"API_BASE": "https://api.local"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(result))

	assert.Equal(t, map[string]string{"API_BASE": "https://api.local"}, got.Env)
	assert.Equal(t, []string{"--verbose"}, got.Argv)
	assert.Equal(t, "python", got.Language)
}

func TestExecuteCommandHappyPath(t *testing.T) {
	server, _, _ := setupServer(t)
	ctx := context.Background()

	created, err := server.handleCreateWorkspace(ctx, callRequest(ToolCreateWorkspace, map[string]interface{}{
		"project_id": "proj_1",
	}))
	require.NoError(t, err)
	ws := decodeResult(t, created)["workspace"].(map[string]interface{})

	result, err := server.handleExecuteCommand(ctx, callRequest(ToolExecuteCommand, map[string]interface{}{
		"workspace_id": ws["id"],
		"command":      "echo ok",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	payload := decodeResult(t, result)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "ok", payload["output"])
	assert.EqualValues(t, 0, payload["exit_code"])
}
