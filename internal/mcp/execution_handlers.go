package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"drydock/internal/services"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) handleExecuteCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID    string            `json:"workspace_id"`
		Command        string            `json:"command"`
		Cwd            string            `json:"cwd"`
		Env            map[string]string `json:"env"`
		TimeoutSeconds int               `json:"timeout_seconds"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.Command == "" {
		return failure("workspace_id and command are required", ""), nil
	}

	result, err := s.engine.ExecuteCommand(ctx, in.WorkspaceID, in.Command, services.ExecOptions{
		Cwd:            in.Cwd,
		Env:            in.Env,
		TimeoutSeconds: in.TimeoutSeconds,
	})
	if err != nil {
		return failureErr(err), nil
	}

	return success(map[string]interface{}{
		"success":   true,
		"output":    result.Output,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
	}), nil
}

func (s *Server) handleRunCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID    string            `json:"workspace_id"`
		Code           string            `json:"code"`
		Language       string            `json:"language"`
		Argv           []string          `json:"argv"`
		Env            map[string]string `json:"env"`
		TimeoutSeconds int               `json:"timeout_seconds"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.Code == "" {
		return failure("workspace_id and code are required", ""), nil
	}

	timeout := 60 * time.Second
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}

	outcome, err := s.engine.RunCode(ctx, in.WorkspaceID, in.Code, services.CodeParams{
		Language: in.Language,
		Argv:     in.Argv,
		Env:      in.Env,
	}, timeout)
	if err != nil {
		return failureErr(err), nil
	}

	return success(map[string]interface{}{
		"success":       true,
		"output":        outcome.Output,
		"exit_code":     outcome.ExitCode,
		"artifact_keys": outcome.ArtifactKeys,
	}), nil
}

// sessionView is the serializable shape of an in-memory session handle.
type sessionView struct {
	SessionID   string `json:"session_id"`
	WorkspaceID string `json:"workspace_id"`
	Command     string `json:"command,omitempty"`
	StartedAt   string `json:"started_at"`
	Recovered   bool   `json:"recovered,omitempty"`
	Finished    bool   `json:"finished"`
	ExitCode    *int   `json:"exit_code,omitempty"`
}

func viewOf(session *services.Session) sessionView {
	v := sessionView{
		SessionID:   session.ID,
		WorkspaceID: session.WorkspaceID,
		Command:     session.Command,
		StartedAt:   session.StartedAt.Format(time.RFC3339),
		Recovered:   session.Recovered,
	}
	if code, done := session.ExitCode(); done {
		v.Finished = true
		v.ExitCode = &code
	}
	return v
}

func (s *Server) handleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	session, err := s.engine.CreateSession(ctx, workspaceID, req.GetString("session_id", ""))
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "session": viewOf(session)}), nil
}

func (s *Server) handleSessionExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
		SessionID   string `json:"session_id"`
		Command     string `json:"command"`
		Async       bool   `json:"async"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.SessionID == "" || in.Command == "" {
		return failure("workspace_id, session_id, and command are required", ""), nil
	}

	result, err := s.engine.SessionExec(ctx, in.WorkspaceID, in.SessionID, in.Command, in.Async)
	if err != nil {
		return failureErr(err), nil
	}

	payload := map[string]interface{}{
		"success":    true,
		"command_id": result.CommandID,
		"async":      in.Async,
		"output":     result.Output,
	}
	if result.ExitCode != nil {
		payload["exit_code"] = *result.ExitCode
	}
	return success(payload), nil
}

func (s *Server) handleGetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	session, err := s.engine.GetSession(workspaceID, sessionID)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "session": viewOf(session)}), nil
}

func (s *Server) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	// Pick up provider sessions that predate this process, so restarts do
	// not hide running commands. A stopped workspace has nothing to recover.
	if _, err := s.engine.RecoverSessions(ctx, workspaceID); err != nil && !errors.Is(err, services.ErrWorkspaceNotRunning) {
		return failureErr(err), nil
	}

	sessions := s.engine.ListSessions(workspaceID)
	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, viewOf(session))
	}
	return success(map[string]interface{}{"success": true, "sessions": views, "count": len(views)}), nil
}

func (s *Server) handleDeleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	if err := s.engine.DeleteSession(ctx, workspaceID, sessionID); err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "session_id": sessionID, "status": "deleted"}), nil
}

func (s *Server) handleStartDevServer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in struct {
		WorkspaceID string `json:"workspace_id"`
		Command     string `json:"command"`
		Port        int    `json:"port"`
	}
	if err := req.BindArguments(&in); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err), ""), nil
	}
	if in.WorkspaceID == "" || in.Command == "" {
		return failure("workspace_id and command are required", ""), nil
	}

	result, err := s.engine.StartDevServer(ctx, in.WorkspaceID, in.Command, in.Port)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{
		"success":         true,
		"process_started": result.ProcessStarted,
		"strategy":        result.Strategy,
		"session_id":      result.SessionID,
		"detected_port":   result.DetectedPort,
		"warnings":        result.Warnings,
	}), nil
}

func (s *Server) handleGetPreviewURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	port, err := req.RequireInt("port")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	url, err := s.engine.GetPreviewURL(ctx, workspaceID, port)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "url": url, "port": port}), nil
}

func (s *Server) handleDetectPort(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	return success(map[string]interface{}{
		"success": true,
		"command": command,
		"port":    services.DetectPortFromCommand(command),
	}), nil
}

func (s *Server) handleCheckPort(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return failure(err.Error(), ""), nil
	}
	port, err := req.RequireInt("port")
	if err != nil {
		return failure(err.Error(), ""), nil
	}

	listening, err := s.engine.CheckPort(ctx, workspaceID, port)
	if err != nil {
		return failureErr(err), nil
	}
	return success(map[string]interface{}{"success": true, "port": port, "listening": listening}), nil
}
