package mcp

import (
	"context"
	"fmt"
	"strings"

	"drydock/internal/services"
	"drydock/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) handleCreateWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		ProjectID       string            `json:"project_id"`
		Name            string            `json:"name"`
		Language        string            `json:"language"`
		Image           string            `json:"image"`
		EnvVars         map[string]string `json:"env_vars"`
		AutoStopMinutes int64             `json:"auto_stop_minutes"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.ProjectID == "" {
		return failure("project_id is required", ""), nil
	}

	ws, err := s.lifecycle.Create(ctx, in.ProjectID, services.CreateOptions{
		Name:            in.Name,
		Language:        in.Language,
		Image:           in.Image,
		EnvVars:         in.EnvVars,
		AutoStopMinutes: in.AutoStopMinutes,
	})
	if err != nil {
		// A settled error record still carries diagnostics worth surfacing.
		if ws != nil && ws.LastError != nil {
			return failure(fmt.Sprintf("workspace creation failed: %s", *ws.LastError),
				"Inspect last_error, then retry create_workspace or force_rebuild_workspace."), nil
		}
		return failureErr(err), nil
	}

	return success(map[string]interface{}{
		"success":   true,
		"workspace": ws,
	}), nil
}

func (s *Server) handleGetWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	ws, err := s.repos.Workspaces.GetByID(ctx, id)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "workspace": ws}), nil
}

func (s *Server) handleGetOrCreateWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	ws, err := s.lifecycle.GetOrCreate(ctx, projectID, services.CreateOptions{
		Language: req.GetString("language", ""),
	})
	if err != nil {
		return failureErr(err), nil
	}

	// A reused running workspace may carry sessions from a previous process;
	// re-register them so the agent sees its dev server again.
	recovered := 0
	if ws.Status == models.WorkspaceStatusRunning {
		if n, err := s.engine.RecoverSessions(ctx, ws.ID); err == nil {
			recovered = n
		}
	}

	return success(map[string]interface{}{
		"success":            true,
		"workspace":          ws,
		"sessions_recovered": recovered,
	}), nil
}

func (s *Server) handleListWorkspaces(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")

	var err error
	var workspaces interface{}
	if projectID != "" {
		workspaces, err = s.repos.Workspaces.ListByProject(ctx, projectID)
	} else {
		workspaces, err = s.repos.Workspaces.ListLive(ctx)
	}
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "workspaces": workspaces}), nil
}

func (s *Server) handleStartWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.lifecycle.Start(ctx, id); err != nil {
		return failureErr(err), nil
	}
	ws, err := s.repos.Workspaces.GetByID(ctx, id)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "workspace": ws}), nil
}

func (s *Server) handleStopWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.lifecycle.Stop(ctx, id); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "workspace_id": id, "status": "stopped"}), nil
}

func (s *Server) handleRestartWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.lifecycle.Restart(ctx, id); err != nil {
		return failureErr(err), nil
	}
	ws, err := s.repos.Workspaces.GetByID(ctx, id)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "workspace": ws}), nil
}

func (s *Server) handleDeleteWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.lifecycle.Delete(ctx, id); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "workspace_id": id, "status": "deleted"}), nil
}

func (s *Server) handleSyncWorkspaceStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	ws, err := s.lifecycle.SyncStatus(ctx, id)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "workspace": ws}), nil
}

func (s *Server) handleForceRebuildWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
		Confirm     bool   `json:"confirm"`
		Reason      string `json:"reason"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" {
		return failure("workspace_id is required", ""), nil
	}

	// The gate sits in the dispatcher, before anything touches the provider.
	if !in.Confirm || strings.TrimSpace(in.Reason) == "" {
		return failure(
			"Confirmation required: force_rebuild_workspace destroys all un-backed-up sandbox state",
			recommendationFor(services.ErrConfirmationRequired),
		), nil
	}

	fresh, err := s.lifecycle.ForceRebuild(ctx, in.WorkspaceID, in.Reason)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{
		"success":       true,
		"workspace":     fresh,
		"old_workspace": in.WorkspaceID,
	}), nil
}

func (s *Server) handleGetWorkspaceLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	entries, err := s.repos.WorkspaceLogs.ListByWorkspace(ctx, id, req.GetInt("limit", 100))
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{
		"success": true,
		"entries": entries,
		"count":   len(entries),
	}), nil
}
