package services

import (
	"context"
	"time"

	"drydock/internal/sandbox"
)

// Provider is the slice of the sandbox provider API the services consume.
// *sandbox.Client is the production implementation; tests substitute fakes.
type Provider interface {
	CreateSandbox(ctx context.Context, req sandbox.CreateSandboxRequest) (*sandbox.Sandbox, error)
	GetSandbox(ctx context.Context, id string) (*sandbox.Sandbox, error)
	StartSandbox(ctx context.Context, id string) error
	StopSandbox(ctx context.Context, id string) error
	DeleteSandbox(ctx context.Context, id string) error
	WaitForState(ctx context.Context, id string, interval, budget time.Duration, states ...string) (*sandbox.Sandbox, error)

	ExecuteCommand(ctx context.Context, id string, req sandbox.ExecRequest) (*sandbox.ExecResult, error)
	RunCode(ctx context.Context, id string, req sandbox.CodeRunRequest) (*sandbox.CodeRunResult, error)

	CreateSession(ctx context.Context, id, sessionID string) (*sandbox.Session, error)
	GetSession(ctx context.Context, id, sessionID string) (*sandbox.Session, error)
	ListSessions(ctx context.Context, id string) ([]sandbox.Session, error)
	SessionExec(ctx context.Context, id, sessionID string, req sandbox.SessionExecRequest) (*sandbox.SessionExecResult, error)
	GetCommandLogs(ctx context.Context, id, sessionID, commandID string, from int) (*sandbox.CommandLogs, error)
	DeleteSession(ctx context.Context, id, sessionID string) error

	UploadFile(ctx context.Context, id, path string, content []byte) error
	DownloadFile(ctx context.Context, id, path string) ([]byte, error)
	CreateFolder(ctx context.Context, id, path, mode string) error
	DeleteFile(ctx context.Context, id, path string) error
	MoveFile(ctx context.Context, id, source, destination string) error
	SetPermissions(ctx context.Context, id, path, mode string) error
	GetFileInfo(ctx context.Context, id, path string) (*sandbox.FileInfo, error)
	ListDirectory(ctx context.Context, id, path string) ([]sandbox.FileInfo, error)
	FindInFiles(ctx context.Context, id, path, pattern string) ([]sandbox.Match, error)
	SearchFiles(ctx context.Context, id, path, pattern string) ([]string, error)
	ReplaceInFiles(ctx context.Context, id string, req sandbox.ReplaceRequest) ([]sandbox.ReplaceResult, error)

	GetPreviewLink(ctx context.Context, id string, port int) (*sandbox.PreviewLink, error)
}

var _ Provider = (*sandbox.Client)(nil)
