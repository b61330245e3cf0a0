package mcp

import (
	"context"
	"fmt"

	"drydock/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) handleBuildProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		ProjectID   string `json:"project_id"`
		WorkspaceID string `json:"workspace_id"`
		Command     string `json:"command"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.ProjectID == "" || in.WorkspaceID == "" {
		return failure("project_id and workspace_id are required", ""), nil
	}

	build, err := s.builds.StartBuild(ctx, in.ProjectID, in.WorkspaceID, in.Command)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{
		"success": true,
		"build":   build,
		"note":    "build runs in the background; poll get_build_status",
	}), nil
}

func (s *Server) handleGetBuildStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	buildID, err := req.RequireString("build_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	build, err := s.builds.GetBuild(ctx, buildID)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "build": build}), nil
}

func (s *Server) handleDetectStack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	stack, err := services.DetectStack(ctx, s.store, projectID)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "stack": stack}), nil
}

func (s *Server) handleCompleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
		ProjectID   string `json:"project_id"`
		JobID       string `json:"job_id"`
		Command     string `json:"command"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.ProjectID == "" || in.JobID == "" {
		return failure("workspace_id, project_id, and job_id are required", ""), nil
	}

	result, err := s.pipeline.Run(ctx, services.CompletionInput{
		WorkspaceID: in.WorkspaceID,
		ProjectID:   in.ProjectID,
		JobID:       in.JobID,
		Command:     in.Command,
	})
	if err != nil {
		// The step trail still tells the agent how far things got.
		return failure(err.Error(), "The job/project records were not finalized; inspect the steps and retry complete_task."), nil
	}
	return success(result), nil
}

func (s *Server) handleGetDeploymentStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	project, err := s.repos.Projects.GetByID(ctx, projectID)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{
		"success":           true,
		"project_id":        project.ID,
		"deployment_status": project.DeploymentStatus,
		"preview_url":       project.PreviewURL,
		"last_commit_hash":  project.LastCommitHash,
	}), nil
}
