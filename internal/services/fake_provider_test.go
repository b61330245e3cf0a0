package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"drydock/internal/sandbox"
)

// fakeProvider is an in-memory stand-in for the remote sandbox provider.
// Behavior is programmable per call site through the hook fields; anything
// left nil behaves like a healthy provider.
type fakeProvider struct {
	mu sync.Mutex

	nextID    int
	sandboxes map[string]*sandbox.Sandbox
	sessions  map[string]map[string]sandbox.Session
	uploads   map[string][]byte
	folders   []string
	deleted   []string

	stopCalls   int
	startCalls  int
	createCalls int

	createErr  error
	stopErr    error
	deleteErr  error
	sessionErr error
	previewErr error

	execFn     func(id string, req sandbox.ExecRequest) (*sandbox.ExecResult, error)
	runCodeFn  func(id string, req sandbox.CodeRunRequest) (*sandbox.CodeRunResult, error)
	downloadFn func(id, path string) ([]byte, error)
	listDirFn  func(id, path string) ([]sandbox.FileInfo, error)
	logsFn     func(from int) (*sandbox.CommandLogs, error)
	previewFn  func(id string, port int) (*sandbox.PreviewLink, error)
	uploadErr  map[string]error

	state string // state reported by GetSandbox; defaults to running
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sandboxes: make(map[string]*sandbox.Sandbox),
		sessions:  make(map[string]map[string]sandbox.Session),
		uploads:   make(map[string][]byte),
		state:     sandbox.StateRunning,
	}
}

func (f *fakeProvider) CreateSandbox(ctx context.Context, req sandbox.CreateSandboxRequest) (*sandbox.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	sb := &sandbox.Sandbox{
		ID:     fmt.Sprintf("sbx-%d", f.nextID),
		Name:   req.Name,
		State:  sandbox.StateRunning,
		Image:  req.Image,
		Labels: req.Labels,
	}
	f.sandboxes[sb.ID] = sb
	return sb, nil
}

func (f *fakeProvider) GetSandbox(ctx context.Context, id string) (*sandbox.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, ok := f.sandboxes[id]
	if !ok {
		return nil, &sandbox.APIError{StatusCode: http.StatusNotFound, Message: "sandbox not found"}
	}
	copied := *sb
	copied.State = f.state
	return &copied, nil
}

func (f *fakeProvider) StartSandbox(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return nil
}

func (f *fakeProvider) StopSandbox(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeProvider) DeleteSandbox(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeProvider) WaitForState(ctx context.Context, id string, interval, budget time.Duration, states ...string) (*sandbox.Sandbox, error) {
	return f.GetSandbox(ctx, id)
}

func (f *fakeProvider) ExecuteCommand(ctx context.Context, id string, req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
	if f.execFn != nil {
		return f.execFn(id, req)
	}
	return &sandbox.ExecResult{Output: "", ExitCode: 0}, nil
}

func (f *fakeProvider) RunCode(ctx context.Context, id string, req sandbox.CodeRunRequest) (*sandbox.CodeRunResult, error) {
	if f.runCodeFn != nil {
		return f.runCodeFn(id, req)
	}
	return &sandbox.CodeRunResult{Output: "ok", ExitCode: 0}, nil
}

func (f *fakeProvider) CreateSession(ctx context.Context, id, sessionID string) (*sandbox.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if f.sessions[id] == nil {
		f.sessions[id] = make(map[string]sandbox.Session)
	}
	s := sandbox.Session{ID: sessionID, CreatedAt: time.Now()}
	f.sessions[id][sessionID] = s
	return &s, nil
}

func (f *fakeProvider) GetSession(ctx context.Context, id, sessionID string) (*sandbox.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id][sessionID]
	if !ok {
		return nil, &sandbox.APIError{StatusCode: http.StatusNotFound, Message: "session not found"}
	}
	return &s, nil
}

func (f *fakeProvider) ListSessions(ctx context.Context, id string) ([]sandbox.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sandbox.Session
	for _, s := range f.sessions[id] {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeProvider) SessionExec(ctx context.Context, id, sessionID string, req sandbox.SessionExecRequest) (*sandbox.SessionExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id][sessionID]; !ok {
		return nil, &sandbox.APIError{StatusCode: http.StatusNotFound, Message: "session not found"}
	}
	if req.RunAsync {
		return &sandbox.SessionExecResult{CommandID: "cmd-1"}, nil
	}
	zero := 0
	return &sandbox.SessionExecResult{CommandID: "cmd-1", Output: "done", ExitCode: &zero}, nil
}

func (f *fakeProvider) GetCommandLogs(ctx context.Context, id, sessionID, commandID string, from int) (*sandbox.CommandLogs, error) {
	if f.logsFn != nil {
		return f.logsFn(from)
	}
	zero := 0
	return &sandbox.CommandLogs{Output: "", Offset: from, ExitCode: &zero}, nil
}

func (f *fakeProvider) DeleteSession(ctx context.Context, id, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions[id], sessionID)
	return nil
}

func (f *fakeProvider) UploadFile(ctx context.Context, id, path string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.uploadErr[path]; ok {
		return err
	}
	f.uploads[path] = content
	return nil
}

func (f *fakeProvider) DownloadFile(ctx context.Context, id, path string) ([]byte, error) {
	if f.downloadFn != nil {
		return f.downloadFn(id, path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.uploads[path]; ok {
		return data, nil
	}
	return nil, &sandbox.APIError{StatusCode: http.StatusNotFound, Message: "file not found"}
}

func (f *fakeProvider) CreateFolder(ctx context.Context, id, path, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders = append(f.folders, path)
	return nil
}

func (f *fakeProvider) DeleteFile(ctx context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, path)
	return nil
}

func (f *fakeProvider) MoveFile(ctx context.Context, id, source, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.uploads[source]; ok {
		f.uploads[destination] = data
		delete(f.uploads, source)
	}
	return nil
}

func (f *fakeProvider) SetPermissions(ctx context.Context, id, path, mode string) error {
	return nil
}

func (f *fakeProvider) GetFileInfo(ctx context.Context, id, path string) (*sandbox.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.uploads[path]; ok {
		return &sandbox.FileInfo{Name: path, Path: path, Size: int64(len(data))}, nil
	}
	return nil, &sandbox.APIError{StatusCode: http.StatusNotFound, Message: "file not found"}
}

func (f *fakeProvider) ListDirectory(ctx context.Context, id, path string) ([]sandbox.FileInfo, error) {
	if f.listDirFn != nil {
		return f.listDirFn(id, path)
	}
	return nil, nil
}

func (f *fakeProvider) FindInFiles(ctx context.Context, id, path, pattern string) ([]sandbox.Match, error) {
	return nil, nil
}

func (f *fakeProvider) SearchFiles(ctx context.Context, id, path, pattern string) ([]string, error) {
	return nil, nil
}

func (f *fakeProvider) ReplaceInFiles(ctx context.Context, id string, req sandbox.ReplaceRequest) ([]sandbox.ReplaceResult, error) {
	out := make([]sandbox.ReplaceResult, 0, len(req.Files))
	for _, file := range req.Files {
		out = append(out, sandbox.ReplaceResult{File: file, Success: true})
	}
	return out, nil
}

func (f *fakeProvider) GetPreviewLink(ctx context.Context, id string, port int) (*sandbox.PreviewLink, error) {
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	if f.previewFn != nil {
		return f.previewFn(id, port)
	}
	return &sandbox.PreviewLink{URL: fmt.Sprintf("https://%d-%s.preview.local", port, id), Token: "tok"}, nil
}

var _ Provider = (*fakeProvider)(nil)
