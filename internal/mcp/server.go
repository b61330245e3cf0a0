package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/services"
	"drydock/internal/storage"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the agent-facing tool surface: an MCP server over streamable
// HTTP exposing the closed tool table in tools.go. Every dispatch writes an
// invocation/completion audit log pair, including panic paths.
type Server struct {
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer

	repos     *repositories.Repositories
	lifecycle *services.LifecycleService
	engine    *services.ExecutionEngine
	bridge    *services.FileBridge
	builds    *services.BuildService
	pipeline  *services.CompletionPipeline
	store     storage.FileStore
	audit     *services.AuditLogger
}

// Services bundles the service layer the tool handlers delegate to.
type Services struct {
	Lifecycle *services.LifecycleService
	Engine    *services.ExecutionEngine
	Bridge    *services.FileBridge
	Builds    *services.BuildService
	Pipeline  *services.CompletionPipeline
	Store     storage.FileStore
}

func NewServer(repos *repositories.Repositories, svcs Services) *Server {
	mcpServer := server.NewMCPServer(
		"drydock",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		httpServer: server.NewStreamableHTTPServer(mcpServer),
		repos:      repos,
		lifecycle:  svcs.Lifecycle,
		engine:     svcs.Engine,
		bridge:     svcs.Bridge,
		builds:     svcs.Builds,
		pipeline:   svcs.Pipeline,
		store:      svcs.Store,
		audit:      services.NewAuditLogger(repos.WorkspaceLogs),
	}

	for _, def := range s.toolDefs() {
		s.mcpServer.AddTool(def.tool, s.dispatch(def.tool.Name, def.handler))
	}

	return s
}

// Start serves the streamable HTTP transport on the given port.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Info("MCP server listening on %s (endpoint http://localhost:%d/mcp)", addr, port)

	if err := s.httpServer.Start(addr); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// StartStdio serves the stdio transport instead, for direct agent embedding.
func (s *Server) StartStdio(ctx context.Context) error {
	logging.Info("MCP server serving on stdio")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("mcp server shutdown: %w", err)
		}
	}
	logging.Info("MCP server shutdown complete")
	return nil
}

type toolHandler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// toolDef is one row of the closed tool table: schema plus typed handler.
// Nothing outside the table can be dispatched.
type toolDef struct {
	tool    mcp.Tool
	handler toolHandler
}

// dispatch wraps a handler with the audit log pair and panic recovery. The
// pair is written for every call: invocation before the handler runs,
// completion after it returns, fails, or panics.
func (s *Server) dispatch(name string, handler toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		tc := toolContextFrom(req)
		started := time.Now()
		s.audit.LogInvocation(ctx, tc, name, req.GetArguments())

		defer func() {
			if r := recover(); r != nil {
				panicErr := fmt.Errorf("tool %s panicked: %v", name, r)
				logging.Error("%v", panicErr)
				s.audit.LogCompletion(ctx, tc, name, nil, time.Since(started), panicErr)
				result = failure(panicErr.Error(), "Report this; a tool handler must never panic.")
				err = nil
			}
		}()

		result, err = handler(ctx, req)

		var callErr error
		switch {
		case err != nil:
			callErr = err
		case result != nil && result.IsError:
			callErr = errors.New(resultText(result))
		}
		s.audit.LogCompletion(ctx, tc, name, resultText(result), time.Since(started), callErr)

		return result, err
	}
}

// toolContextFrom pulls the identity fields any tool may carry out of the
// raw arguments, for the audit trail.
func toolContextFrom(req mcp.CallToolRequest) services.ToolContext {
	return services.ToolContext{
		WorkspaceID: req.GetString("workspace_id", ""),
		ProjectID:   req.GetString("project_id", ""),
		JobID:       req.GetString("job_id", ""),
		Iteration:   req.GetInt("iteration", 0),
	}
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// success renders a payload as an indented JSON text result.
func success(payload interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf(`{"success": true, "detail": %q}`, fmt.Sprint(payload)))
	}
	return mcp.NewToolResultText(string(data))
}

// failure renders a structured {success:false, error, recommendation?} error
// result. Tool failures are results, not protocol errors: the agent is meant
// to read them and adjust.
func failure(message, recommendation string) *mcp.CallToolResult {
	payload := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if recommendation != "" {
		payload["recommendation"] = recommendation
	}
	data, _ := json.Marshal(payload)
	return mcp.NewToolResultError(string(data))
}

// failureErr maps known service errors to an actionable recommendation.
func failureErr(err error) *mcp.CallToolResult {
	return failure(err.Error(), recommendationFor(err))
}

func recommendationFor(err error) string {
	switch {
	case errors.Is(err, services.ErrWorkspaceNotRunning):
		return "Start the workspace with start_workspace (or sync_workspace_status to refresh its state) and retry."
	case errors.Is(err, services.ErrSessionNotFound):
		return "Create the session with create_session, or call list_sessions to see what is active."
	case errors.Is(err, services.ErrInvalidCommand):
		return "Supply a single foreground command without 'cd', backslash separators, or unbalanced quotes. Use the cwd parameter for directories."
	case errors.Is(err, services.ErrPreviewUnhealthy):
		return "The server is up but not answering yet. Check its logs via the dev-server session, then retry get_preview_url."
	case errors.Is(err, services.ErrConfirmationRequired):
		return "Pass confirm=true and a non-empty reason to proceed with this destructive operation."
	default:
		return ""
	}
}
