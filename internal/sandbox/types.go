package sandbox

import "time"

// Provider-reported sandbox states. The lifecycle controller remaps these
// onto the local workspace status enum.
const (
	StateCreating  = "creating"
	StatePending   = "pending"
	StateStarting  = "starting"
	StateStarted   = "started"
	StateRunning   = "running"
	StateActive    = "active"
	StateStopping  = "stopping"
	StateStopped   = "stopped"
	StatePaused    = "paused"
	StateError     = "error"
	StateFailed    = "failed"
	StateArchived  = "archived"
	StateDeleted   = "deleted"
	StateDestroyed = "destroyed"
)

// Sandbox is the provider's view of one execution environment.
type Sandbox struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	State     string            `json:"state"`
	Image     string            `json:"image,omitempty"`
	Error     string            `json:"error,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// Resources are optional sizing hints passed at creation.
type Resources struct {
	CPU      int64 `json:"cpu,omitempty"`
	MemoryMB int64 `json:"memory_mb,omitempty"`
	DiskGB   int64 `json:"disk_gb,omitempty"`
}

// CreateSandboxRequest provisions a sandbox by explicit image or by
// language snapshot (the provider resolves the snapshot server-side).
type CreateSandboxRequest struct {
	Name               string            `json:"name,omitempty"`
	Image              string            `json:"image,omitempty"`
	Language           string            `json:"language,omitempty"`
	Labels             map[string]string `json:"labels,omitempty"`
	EnvVars            map[string]string `json:"env_vars,omitempty"`
	Resources          *Resources        `json:"resources,omitempty"`
	AutoStopMinutes    int64             `json:"auto_stop_minutes,omitempty"`
	AutoArchiveMinutes int64             `json:"auto_archive_minutes,omitempty"`
	Public             bool              `json:"public,omitempty"`
}

// ExecRequest runs a one-shot command inside a sandbox.
type ExecRequest struct {
	Command        string            `json:"command"`
	Cwd            string            `json:"cwd,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// ExecResult is the outcome of a one-shot command. Stderr may be empty when
// the provider multiplexes both streams into Output.
type ExecResult struct {
	Output     string `json:"output"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// CodeRunRequest runs a code snippet through the provider's managed runner,
// with argv/env injection and artifact capture.
type CodeRunRequest struct {
	Code           string            `json:"code"`
	Language       string            `json:"language,omitempty"`
	Argv           []string          `json:"argv,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// Artifact is a captured output of a code run, e.g. a rendered chart.
type Artifact struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

type CodeRunResult struct {
	Output    string     `json:"output"`
	ExitCode  int        `json:"exit_code"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Session is a named interactive command channel inside a sandbox.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SessionExecRequest runs a command in a session. Async commands return
// immediately with a command id for log polling.
type SessionExecRequest struct {
	Command  string `json:"command"`
	RunAsync bool   `json:"run_async,omitempty"`
}

// SessionExecResult carries the provider command handle. ExitCode is nil
// while an async command is still running.
type SessionExecResult struct {
	CommandID string `json:"cmd_id"`
	Output    string `json:"output,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
}

// CommandLogs is a chunk of session command output starting at Offset.
type CommandLogs struct {
	Output   string `json:"output"`
	Offset   int    `json:"offset"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// FileInfo describes one sandbox filesystem entry.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	Mode    string    `json:"mode,omitempty"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// Match is one content-search hit.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// ReplaceRequest applies a literal pattern replacement across files.
type ReplaceRequest struct {
	Files    []string `json:"files"`
	Pattern  string   `json:"pattern"`
	NewValue string   `json:"new_value"`
}

// ReplaceResult reports one file's replacement outcome.
type ReplaceResult struct {
	File    string `json:"file"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PreviewLink exposes a sandbox port through the provider's proxy.
type PreviewLink struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}
