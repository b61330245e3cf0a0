package services

import "errors"

// Validation errors are rejected before any remote call is made.
var (
	// ErrWorkspaceNotRunning rejects execution and filesystem operations
	// against a workspace whose persisted status is not running. The
	// workspace record is the single source of truth; callers sync status
	// and start the workspace before retrying.
	ErrWorkspaceNotRunning = errors.New("workspace is not running")

	// ErrInvalidCommand rejects malformed dev-server commands (embedded cd,
	// unbalanced quotes, backslash path separators) before anything starts.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrConfirmationRequired gates destructive tools. The dispatcher
	// returns it as a structured failure without touching the provider.
	ErrConfirmationRequired = errors.New("confirmation required")

	// ErrSessionNotFound is returned for session operations on an unknown
	// session identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPreviewUnhealthy marks a preview URL that was issued by the
	// provider but never answered the health check. A URL for a server
	// that is not answering is treated as absent, not as success.
	ErrPreviewUnhealthy = errors.New("preview URL is not responding")
)
