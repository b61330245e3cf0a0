package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) handleDeployFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string   `json:"workspace_id"`
		ProjectID   string   `json:"project_id"`
		Paths       []string `json:"paths"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.ProjectID == "" {
		return failure("workspace_id and project_id are required", ""), nil
	}

	count, err := s.bridge.Deploy(ctx, in.WorkspaceID, in.ProjectID, in.Paths)
	if err != nil {
		return failure(err.Error(),
			fmt.Sprintf("%d files were written before the failure; fix the cause and re-run deploy_files to redeploy everything.", count)), nil
	}
	return success(map[string]interface{}{"success": true, "files_deployed": count}), nil
}

func (s *Server) handleBackupFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	count, err := s.bridge.Backup(ctx, workspaceID, projectID)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "files_backed_up": count}), nil
}

func (s *Server) handleReadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	data, err := s.bridge.ReadFile(ctx, workspaceID, path)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{
		"success": true,
		"path":    path,
		"content": string(data),
		"size":    len(data),
	}), nil
}

func (s *Server) handleWriteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
		Path        string `json:"path"`
		Content     string `json:"content"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.Path == "" {
		return failure("workspace_id and path are required", ""), nil
	}

	if err := s.bridge.WriteFile(ctx, in.WorkspaceID, in.Path, []byte(in.Content)); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "path": in.Path, "bytes_written": len(in.Content)}), nil
}

func (s *Server) handleListDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	entries, err := s.bridge.ListDirectory(ctx, workspaceID, req.GetString("path", ""))
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "entries": entries, "count": len(entries)}), nil
}

func (s *Server) handleCreateFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.bridge.CreateFolder(ctx, workspaceID, path, req.GetString("mode", "")); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "path": path}), nil
}

func (s *Server) handleDeleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.bridge.DeleteFile(ctx, workspaceID, path); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "path": path, "status": "deleted"}), nil
}

func (s *Server) handleMoveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
		Source      string `json:"source"`
		Destination string `json:"destination"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.Source == "" || in.Destination == "" {
		return failure("workspace_id, source, and destination are required", ""), nil
	}

	if err := s.bridge.MoveFile(ctx, in.WorkspaceID, in.Source, in.Destination); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "source": in.Source, "destination": in.Destination}), nil
}

func (s *Server) handleSetPermissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	mode, err := req.RequireString("mode")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.bridge.SetPermissions(ctx, workspaceID, path, mode); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "path": path, "mode": mode}), nil
}

func (s *Server) handleGetFileInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	info, err := s.bridge.GetFileInfo(ctx, workspaceID, path)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "info": info}), nil
}

func (s *Server) handleFindFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	pattern, err := req.RequireString("pattern")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	matches, err := s.bridge.FindFiles(ctx, workspaceID, req.GetString("path", ""), pattern)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "matches": matches, "count": len(matches)}), nil
}

func (s *Server) handleSearchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	pattern, err := req.RequireString("pattern")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	files, err := s.bridge.SearchFiles(ctx, workspaceID, req.GetString("path", ""), pattern)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "files": files, "count": len(files)}), nil
}

func (s *Server) handleReplaceInFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string   `json:"workspace_id"`
		Files       []string `json:"files"`
		Pattern     string   `json:"pattern"`
		NewValue    string   `json:"new_value"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || len(in.Files) == 0 || in.Pattern == "" {
		return failure("workspace_id, files, and pattern are required", ""), nil
	}

	results, err := s.bridge.ReplaceInFiles(ctx, in.WorkspaceID, in.Files, in.Pattern, in.NewValue)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "results": results}), nil
}
