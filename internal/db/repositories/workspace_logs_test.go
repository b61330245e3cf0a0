package repositories

import (
	"context"
	"testing"

	"drydock/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestLogAppendAndList(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	entry := &models.LogEntry{
		WorkspaceID: strPtr("ws_1"),
		JobID:       strPtr("job_1"),
		Level:       models.LogLevelInfo,
		Message:     "Executing tool: execute_command",
		ToolName:    strPtr("execute_command"),
		Metadata: models.JSONMeta{
			"phase": "invocation",
			"input": `{"command":"ls"}`,
		},
	}
	if err := repos.WorkspaceLogs.Append(ctx, entry); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if entry.ID == 0 {
		t.Error("expected assigned log id")
	}

	completion := &models.LogEntry{
		WorkspaceID: strPtr("ws_1"),
		JobID:       strPtr("job_1"),
		Level:       models.LogLevelInfo,
		Message:     "Tool completed: execute_command",
		ToolName:    strPtr("execute_command"),
		Metadata: models.JSONMeta{
			"phase":       "completion",
			"duration_ms": 42,
		},
	}
	if err := repos.WorkspaceLogs.Append(ctx, completion); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	byWorkspace, err := repos.WorkspaceLogs.ListByWorkspace(ctx, "ws_1", 10)
	if err != nil {
		t.Fatalf("list by workspace failed: %v", err)
	}
	if len(byWorkspace) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(byWorkspace))
	}
	// Newest first.
	if byWorkspace[0].ID <= byWorkspace[1].ID {
		t.Error("expected newest-first ordering")
	}

	byJob, err := repos.WorkspaceLogs.ListByJob(ctx, "job_1", 10)
	if err != nil {
		t.Fatalf("list by job failed: %v", err)
	}
	if len(byJob) != 2 {
		t.Errorf("expected 2 entries, got %d", len(byJob))
	}

	meta := byJob[1].Metadata
	if meta["phase"] != "invocation" {
		t.Errorf("metadata did not round-trip: %v", meta)
	}

	count, err := repos.WorkspaceLogs.CountByTool(ctx, "job_1", "execute_command")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected the invocation/completion pair, got %d rows", count)
	}
}

func TestLogListLimit(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &models.LogEntry{
			WorkspaceID: strPtr("ws_limit"),
			Level:       models.LogLevelInfo,
			Message:     "entry",
		}
		if err := repos.WorkspaceLogs.Append(ctx, e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := repos.WorkspaceLogs.ListByWorkspace(ctx, "ws_limit", 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected limit of 3, got %d", len(got))
	}
}
