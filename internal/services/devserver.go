package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"drydock/internal/logging"
	"drydock/pkg/models"

	"github.com/kballard/go-shellquote"
)

// DevServerSessionID names the long-lived session a workspace's dev server
// runs in. One dev server per workspace.
const DevServerSessionID = "dev-server"

// DevServerResult reports a dev-server start attempt.
type DevServerResult struct {
	ProcessStarted bool     `json:"process_started"`
	DetectedPort   int      `json:"detected_port"`
	Strategy       string   `json:"strategy,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

var (
	portFlagRe   = regexp.MustCompile(`(?:--port[= ]|-p )(\d{2,5})`)
	outputPortRe = regexp.MustCompile(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0):(\d{2,5})`)
)

// ValidateDevCommand rejects command shapes that are known to wedge a dev
// server session before anything is started: embedded cd (the working
// directory is the sandbox root, always), unbalanced quotes, and backslash
// path separators.
func ValidateDevCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	if strings.Contains(command, `\`) {
		return fmt.Errorf("%w: backslash path separators are not supported, use forward slashes", ErrInvalidCommand)
	}

	tokens, err := shellquote.Split(command)
	if err != nil {
		return fmt.Errorf("%w: unbalanced quotes: %v", ErrInvalidCommand, err)
	}
	for _, token := range tokens {
		if token == "cd" {
			return fmt.Errorf("%w: embedded cd is not allowed, commands run from the project root", ErrInvalidCommand)
		}
	}
	return nil
}

// DetectPortFromCommand deterministically resolves the port a dev command
// will bind. An explicit --port/-p flag wins; otherwise known framework
// defaults; otherwise 3000.
func DetectPortFromCommand(command string) int {
	if m := portFlagRe.FindStringSubmatch(command); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil {
			return port
		}
	}

	lower := strings.ToLower(command)
	switch {
	case strings.Contains(lower, "vite"):
		return 5173
	case strings.Contains(lower, "ng serve") || strings.Contains(lower, "ng s "):
		return 4200
	case strings.Contains(lower, "flask") || strings.Contains(lower, "uvicorn") || strings.Contains(lower, "manage.py runserver"):
		return 8000
	case strings.Contains(lower, "rails s"):
		return 3000
	default:
		return 3000
	}
}

// DetectPortFromOutput scans early server output for a bound address.
// Returns 0 when nothing port-like appears.
func DetectPortFromOutput(output string) int {
	if m := outputPortRe.FindStringSubmatch(output); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil {
			return port
		}
	}
	return 0
}

// shellSingleQuote wraps s in single quotes, escaping embedded ones, so an
// arbitrary command line survives one layer of sh -c.
func shellSingleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// StartDevServer validates the command, starts it in a long-lived session
// (falling back to detached execution), and attempts to learn the listening
// port from early output. Port conflicts are advisory: a warning, never a
// block, since the conflicting process may be a previous instance about to
// die.
func (e *ExecutionEngine) StartDevServer(ctx context.Context, workspaceID, command string, expectedPort int) (*DevServerResult, error) {
	if err := ValidateDevCommand(command); err != nil {
		return nil, err
	}

	ref, err := e.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	port := expectedPort
	if port == 0 {
		port = DetectPortFromCommand(command)
	}

	result := &DevServerResult{DetectedPort: port}

	if listening, probeErr := e.probePort(ctx, ref, port); probeErr == nil && listening {
		warning := fmt.Sprintf("port %d already has a listener; the new server may fail to bind", port)
		logging.Warn("Workspace %s: %s", ref.WorkspaceID, warning)
		result.Warnings = append(result.Warnings, warning)
	}

	strategies := DefaultStartStrategies(e.sessions, e.provider, DevServerSessionID)
	start, err := startWithStrategies(ctx, strategies, ref, command)
	if err != nil {
		return nil, err
	}

	result.ProcessStarted = start.Started
	result.Strategy = start.Strategy
	result.SessionID = start.SessionID

	// Early output often names the actual bound port; prefer it over the
	// command heuristic when it shows up in time.
	if start.SessionID != "" {
		if detected := e.portFromEarlyOutput(ref, start.SessionID); detected != 0 {
			result.DetectedPort = detected
		}
	}

	if err := e.repos.Workspaces.UpdatePorts(ctx, ref.WorkspaceID, models.PortMap{"dev": result.DetectedPort}); err != nil {
		logging.Warn("Failed to record dev port for workspace %s: %v", ref.WorkspaceID, err)
	}

	return result, nil
}

// portFromEarlyOutput drains whatever the session has produced in its first
// moments and scans it for a bound address. Best-effort with a short
// deadline; a silent server just keeps its heuristic port.
func (e *ExecutionEngine) portFromEarlyOutput(ref *workspaceRef, sessionID string) int {
	session, err := e.sessions.Get(ref.WorkspaceID, sessionID)
	if err != nil {
		return 0
	}

	deadline := time.After(5 * time.Second)
	var buf strings.Builder
	for {
		select {
		case chunk, ok := <-session.Output():
			if !ok {
				return DetectPortFromOutput(buf.String())
			}
			buf.WriteString(chunk)
			if port := DetectPortFromOutput(buf.String()); port != 0 {
				return port
			}
		case <-deadline:
			return DetectPortFromOutput(buf.String())
		}
	}
}
