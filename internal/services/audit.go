package services

import (
	"context"
	"encoding/json"
	"time"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/pkg/models"
)

// ToolContext is the ephemeral value threaded through tool dispatch:
// workspace, project, and job identity plus an optional iteration counter.
// It is persisted only through the log rows it yields.
type ToolContext struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	Iteration   int    `json:"iteration,omitempty"`
}

// maxSnapshotLen bounds the input/output snapshots embedded in log metadata.
const maxSnapshotLen = 2000

// AuditLogger writes the invocation/completion log pair that forms the
// system's only execution audit trail. Both rows are written for every
// dispatch, including panic and failure paths; audit writes themselves
// failing is logged but never propagated, since a broken audit trail must
// not fail the tool call it describes.
type AuditLogger struct {
	logs *repositories.WorkspaceLogRepo
}

func NewAuditLogger(logs *repositories.WorkspaceLogRepo) *AuditLogger {
	return &AuditLogger{logs: logs}
}

// TruncateSnapshot bounds a value's JSON form for log metadata.
func TruncateSnapshot(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "<unserializable>"
	}
	s := string(data)
	if len(s) > maxSnapshotLen {
		return s[:maxSnapshotLen] + "...(truncated)"
	}
	return s
}

// LogInvocation records the start of a tool call with its truncated input.
func (a *AuditLogger) LogInvocation(ctx context.Context, tc ToolContext, tool string, input interface{}) {
	a.append(ctx, tc, tool, models.LogLevelInfo, "tool invoked", models.JSONMeta{
		"phase": "invocation",
		"input": TruncateSnapshot(input),
	})
}

// LogCompletion records the end of a tool call with its duration and
// truncated output. Failures log at error level with the message attached.
func (a *AuditLogger) LogCompletion(ctx context.Context, tc ToolContext, tool string, output interface{}, duration time.Duration, callErr error) {
	meta := models.JSONMeta{
		"phase":       "completion",
		"duration_ms": duration.Milliseconds(),
		"output":      TruncateSnapshot(output),
	}

	level := models.LogLevelInfo
	message := "tool completed"
	if callErr != nil {
		level = models.LogLevelError
		message = "tool failed"
		meta["error"] = callErr.Error()
	}

	a.append(ctx, tc, tool, level, message, meta)
}

func (a *AuditLogger) append(ctx context.Context, tc ToolContext, tool string, level models.LogLevel, message string, meta models.JSONMeta) {
	if tc.Iteration > 0 {
		meta["iteration"] = tc.Iteration
	}

	entry := &models.LogEntry{
		Level:    level,
		Message:  message,
		ToolName: &tool,
		Metadata: meta,
	}
	if tc.WorkspaceID != "" {
		id := tc.WorkspaceID
		entry.WorkspaceID = &id
	}
	if tc.JobID != "" {
		id := tc.JobID
		entry.JobID = &id
	}

	if err := a.logs.Append(ctx, entry); err != nil {
		logging.Error("Audit log write failed for tool %s: %v", tool, err)
	}
}
