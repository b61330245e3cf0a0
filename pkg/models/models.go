package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// WorkspaceStatus is the lifecycle state of a sandbox workspace.
type WorkspaceStatus string

const (
	WorkspaceStatusPending  WorkspaceStatus = "pending"
	WorkspaceStatusStarting WorkspaceStatus = "starting"
	WorkspaceStatusRunning  WorkspaceStatus = "running"
	WorkspaceStatusStopped  WorkspaceStatus = "stopped"
	WorkspaceStatusError    WorkspaceStatus = "error"
	WorkspaceStatusDeleted  WorkspaceStatus = "deleted"
)

type BuildStatus string

const (
	BuildStatusPending  BuildStatus = "pending"
	BuildStatusBuilding BuildStatus = "building"
	BuildStatusSuccess  BuildStatus = "success"
	BuildStatusFailed   BuildStatus = "failed"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DeploymentStatus is the outcome the completion pipeline persists on a project.
type DeploymentStatus string

const (
	DeploymentStatusDeployed          DeploymentStatus = "deployed"
	DeploymentStatusDeployedUnhealthy DeploymentStatus = "deployed_unhealthy"
	DeploymentStatusFailed            DeploymentStatus = "failed"
	DeploymentStatusNoPreview         DeploymentStatus = "no_preview"
)

type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// Workspace is one ephemeral provider sandbox tied to a project. At most one
// non-deleted workspace exists per project; rows are soft-deleted only.
type Workspace struct {
	ID                 string          `json:"id" db:"id"`
	ProjectID          string          `json:"project_id" db:"project_id"`
	Name               string          `json:"name" db:"name"`
	SandboxID          *string         `json:"sandbox_id,omitempty" db:"sandbox_id"`
	Status             WorkspaceStatus `json:"status" db:"status"`
	Language           string          `json:"language" db:"language"`
	Image              string          `json:"image" db:"image"`
	CPU                *int64          `json:"cpu,omitempty" db:"cpu"`
	MemoryMB           *int64          `json:"memory_mb,omitempty" db:"memory_mb"`
	DiskGB             *int64          `json:"disk_gb,omitempty" db:"disk_gb"`
	EnvVars            JSONMap         `json:"env_vars" db:"env_vars"`
	Ports              PortMap         `json:"ports" db:"ports"`
	LastError          *string         `json:"last_error,omitempty" db:"last_error"`
	AutoStopMinutes    int64           `json:"auto_stop_minutes" db:"auto_stop_minutes"`
	AutoArchiveMinutes int64           `json:"auto_archive_minutes" db:"auto_archive_minutes"`
	Ephemeral          bool            `json:"ephemeral" db:"ephemeral"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
	StartedAt          *time.Time      `json:"started_at,omitempty" db:"started_at"`
	StoppedAt          *time.Time      `json:"stopped_at,omitempty" db:"stopped_at"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Live reports whether the workspace still counts against the one-per-project
// invariant.
func (w *Workspace) Live() bool {
	return w.DeletedAt == nil && w.Status != WorkspaceStatusDeleted
}

// Build is one build/test invocation. Mutated only by the build runner and
// immutable once status reaches success or failed.
type Build struct {
	ID          string      `json:"id" db:"id"`
	ProjectID   string      `json:"project_id" db:"project_id"`
	WorkspaceID *string     `json:"workspace_id,omitempty" db:"workspace_id"`
	Status      BuildStatus `json:"status" db:"status"`
	Command     string      `json:"command" db:"command"`
	Output      string      `json:"output" db:"output"`
	Error       *string     `json:"error,omitempty" db:"error"`
	DurationMS  *int64      `json:"duration_ms,omitempty" db:"duration_ms"`
	StartedAt   *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// Terminal reports whether the build record can no longer change.
func (b *Build) Terminal() bool {
	return b.Status == BuildStatusSuccess || b.Status == BuildStatusFailed
}

// LogEntry is an append-only audit row tied to a job or a workspace.
type LogEntry struct {
	ID          int64     `json:"id" db:"id"`
	WorkspaceID *string   `json:"workspace_id,omitempty" db:"workspace_id"`
	JobID       *string   `json:"job_id,omitempty" db:"job_id"`
	Level       LogLevel  `json:"level" db:"level"`
	Message     string    `json:"message" db:"message"`
	ToolName    *string   `json:"tool_name,omitempty" db:"tool_name"`
	Metadata    JSONMeta  `json:"metadata" db:"metadata"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Job is the agent task the completion pipeline finalizes.
type Job struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	Status    JobStatus `json:"status" db:"status"`
	Progress  int64     `json:"progress" db:"progress"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Project carries the deployment-facing state the completion pipeline writes.
type Project struct {
	ID               string            `json:"id" db:"id"`
	Name             string            `json:"name" db:"name"`
	Language         string            `json:"language" db:"language"`
	DeploymentStatus *DeploymentStatus `json:"deployment_status,omitempty" db:"deployment_status"`
	PreviewURL       *string           `json:"preview_url,omitempty" db:"preview_url"`
	LastCommitHash   *string           `json:"last_commit_hash,omitempty" db:"last_commit_hash"`
	RepoURL          *string           `json:"repo_url,omitempty" db:"repo_url"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// JSONMap is a custom type for handling JSON string maps in SQLite
type JSONMap map[string]string

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// PortMap maps a service name to a port number, stored as JSON.
type PortMap map[string]int

func (p PortMap) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *PortMap) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// JSONMeta holds structured log metadata (phase, duration, truncated
// input/output snapshots), stored as JSON.
type JSONMeta map[string]interface{}

func (m JSONMeta) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMeta) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, m)
}
