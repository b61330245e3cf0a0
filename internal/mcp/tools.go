package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names. The dispatcher can only reach handlers registered in toolDefs;
// a name missing from the table does not exist.
const (
	ToolCreateWorkspace       = "create_workspace"
	ToolGetWorkspace          = "get_workspace"
	ToolGetOrCreateWorkspace  = "get_or_create_workspace"
	ToolListWorkspaces        = "list_workspaces"
	ToolStartWorkspace        = "start_workspace"
	ToolStopWorkspace         = "stop_workspace"
	ToolRestartWorkspace      = "restart_workspace"
	ToolDeleteWorkspace       = "delete_workspace"
	ToolSyncWorkspaceStatus   = "sync_workspace_status"
	ToolForceRebuildWorkspace = "force_rebuild_workspace"
	ToolGetWorkspaceLogs      = "get_workspace_logs"

	ToolExecuteCommand = "execute_command"
	ToolRunCode        = "run_code"
	ToolCreateSession  = "create_session"
	ToolSessionExec    = "session_exec"
	ToolGetSession     = "get_session"
	ToolListSessions   = "list_sessions"
	ToolDeleteSession  = "delete_session"
	ToolStartDevServer = "start_dev_server"
	ToolGetPreviewURL  = "get_preview_url"
	ToolDetectPort     = "detect_port"
	ToolCheckPort      = "check_port"

	ToolDeployFiles    = "deploy_files"
	ToolBackupFiles    = "backup_files"
	ToolReadFile       = "read_file"
	ToolWriteFile      = "write_file"
	ToolListDirectory  = "list_directory"
	ToolCreateFolder   = "create_folder"
	ToolDeleteFile     = "delete_file"
	ToolMoveFile       = "move_file"
	ToolSetPermissions = "set_permissions"
	ToolGetFileInfo    = "get_file_info"
	ToolFindFiles      = "find_files"
	ToolSearchFiles    = "search_files"
	ToolReplaceInFiles = "replace_in_files"

	ToolBuildProject        = "build_project"
	ToolGetBuildStatus      = "get_build_status"
	ToolDetectStack         = "detect_stack"
	ToolCompleteTask        = "complete_task"
	ToolGetDeploymentStatus = "get_deployment_status"
)

// toolDefs is the closed tool table. Order matches the tool listing the
// agent sees.
func (s *Server) toolDefs() []toolDef {
	return []toolDef{
		// Workspace lifecycle.
		{
			tool: mcp.NewTool(ToolCreateWorkspace,
				mcp.WithDescription("Create a sandbox workspace for a project and wait until it is running"),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project the workspace belongs to")),
				mcp.WithString("name", mcp.Description("Workspace name (defaults to the project id)")),
				mcp.WithString("language", mcp.Description("Runtime language, e.g. node, python, go")),
				mcp.WithString("image", mcp.Description("Explicit sandbox image overriding the language default")),
				mcp.WithObject("env_vars", mcp.Description("Environment variables injected into the sandbox")),
				mcp.WithNumber("auto_stop_minutes", mcp.Description("Idle minutes before the provider auto-stops the sandbox")),
			),
			handler: s.handleCreateWorkspace,
		},
		{
			tool: mcp.NewTool(ToolGetWorkspace,
				mcp.WithDescription("Get a workspace record by id"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			),
			handler: s.handleGetWorkspace,
		},
		{
			tool: mcp.NewTool(ToolGetOrCreateWorkspace,
				mcp.WithDescription("Return the project's live workspace, creating one if none exists. A project has at most one live workspace"),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
				mcp.WithString("language", mcp.Description("Runtime language used if a workspace must be created")),
			),
			handler: s.handleGetOrCreateWorkspace,
		},
		{
			tool: mcp.NewTool(ToolListWorkspaces,
				mcp.WithDescription("List live workspaces, optionally filtered to one project"),
				mcp.WithString("project_id", mcp.Description("Restrict to this project")),
			),
			handler: s.handleListWorkspaces,
		},
		{
			tool: mcp.NewTool(ToolStartWorkspace,
				mcp.WithDescription("Start a stopped workspace's sandbox and wait until it reports running"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			),
			handler: s.handleStartWorkspace,
		},
		{
			tool: mcp.NewTool(ToolStopWorkspace,
				mcp.WithDescription("Stop a workspace's sandbox. Stopping an already-stopped workspace is a no-op"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			),
			handler: s.handleStopWorkspace,
		},
		{
			tool: mcp.NewTool(ToolRestartWorkspace,
				mcp.WithDescription("Sync the workspace against the provider and start it if it is not running"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			),
			handler: s.handleRestartWorkspace,
		},
		{
			tool: mcp.NewTool(ToolDeleteWorkspace,
				mcp.WithDescription("Delete a workspace: stop and remove the provider sandbox, then soft-delete the record"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			),
			handler: s.handleDeleteWorkspace,
		},
		{
			tool: mcp.NewTool(ToolSyncWorkspaceStatus,
				mcp.WithDescription("Refresh the workspace status from the provider. Sandboxes auto-stop and auto-archive out-of-band, so cached status can be stale"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			),
			handler: s.handleSyncWorkspaceStatus,
		},
		{
			tool: mcp.NewTool(ToolForceRebuildWorkspace,
				mcp.WithDescription("DESTRUCTIVE: tear down the workspace and provision a fresh sandbox with the same parameters. All un-backed-up sandbox state is lost. Requires confirm=true and a reason"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithBoolean("confirm", mcp.Description("Must be true to proceed")),
				mcp.WithString("reason", mcp.Description("Why the rebuild is needed; recorded in the audit log")),
			),
			handler: s.handleForceRebuildWorkspace,
		},
		{
			tool: mcp.NewTool(ToolGetWorkspaceLogs,
				mcp.WithDescription("Read a workspace's audit log entries, newest first"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 100)")),
			),
			handler: s.handleGetWorkspaceLogs,
		},

		// Execution.
		{
			tool: mcp.NewTool(ToolExecuteCommand,
				mcp.WithDescription("Run a one-shot shell command in the workspace sandbox and return its output and exit code"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("command", mcp.Required(), mcp.Description("Shell command to run")),
				mcp.WithString("cwd", mcp.Description("Working directory inside the sandbox")),
				mcp.WithObject("env", mcp.Description("Extra environment variables for this command")),
				mcp.WithNumber("timeout_seconds", mcp.Description("Command timeout in seconds")),
			),
			handler: s.handleExecuteCommand,
		},
		{
			tool: mcp.NewTool(ToolRunCode,
				mcp.WithDescription("Run a code snippet through the managed runner. Supports argv/env without shell quoting; rendered artifacts are persisted and their store keys returned"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("code", mcp.Required(), mcp.Description("Source code to run")),
				mcp.WithString("language", mcp.Description("Snippet language (defaults to the workspace runtime)")),
				mcp.WithArray("argv", mcp.Description("Arguments passed to the program"), mcp.WithStringItems()),
				mcp.WithObject("env", mcp.Description("Extra environment variables for the run")),
				mcp.WithNumber("timeout_seconds", mcp.Description("Run timeout in seconds (default 60)")),
			),
			handler: s.handleRunCode,
		},
		{
			tool: mcp.NewTool(ToolCreateSession,
				mcp.WithDescription("Open a named interactive session in the workspace for stateful or long-running commands"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("session_id", mcp.Description("Caller-chosen session name; generated when omitted")),
			),
			handler: s.handleCreateSession,
		},
		{
			tool: mcp.NewTool(ToolSessionExec,
				mcp.WithDescription("Run a command in an existing session. Async commands return immediately and stream output through the session"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("session_id", mcp.Required(), mcp.Description("Session name")),
				mcp.WithString("command", mcp.Required(), mcp.Description("Command to run")),
				mcp.WithBoolean("async", mcp.Description("Run without waiting for completion (default false)")),
			),
			handler: s.handleSessionExec,
		},
		{
			tool: mcp.NewTool(ToolGetSession,
				mcp.WithDescription("Get a tracked session's state: last command, exit code if finished, recovery flag"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("session_id", mcp.Required(), mcp.Description("Session name")),
			),
			handler: s.handleGetSession,
		},
		{
			tool: mcp.NewTool(ToolListSessions,
				mcp.WithDescription("List the workspace's tracked sessions"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
			),
			handler: s.handleListSessions,
		},
		{
			tool: mcp.NewTool(ToolDeleteSession,
				mcp.WithDescription("Kill a session and its running command"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("session_id", mcp.Required(), mcp.Description("Session name")),
			),
			handler: s.handleDeleteSession,
		},
		{
			tool: mcp.NewTool(ToolStartDevServer,
				mcp.WithDescription("Start a development server in the background. The command is validated, the listening port inferred from the command and early output, and the port recorded on the workspace"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("command", mcp.Required(), mcp.Description("Dev server command, e.g. 'npm run dev'")),
				mcp.WithNumber("port", mcp.Description("Expected port, overriding detection")),
			),
			handler: s.handleStartDevServer,
		},
		{
			tool: mcp.NewTool(ToolGetPreviewURL,
				mcp.WithDescription("Resolve a verified preview URL for a sandbox port. The port must accept connections and the URL must answer the health check; a dead URL is an error, never a success"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithNumber("port", mcp.Required(), mcp.Description("Sandbox port to expose")),
			),
			handler: s.handleGetPreviewURL,
		},
		{
			tool: mcp.NewTool(ToolDetectPort,
				mcp.WithDescription("Infer the port a dev command will listen on from its flags and framework defaults"),
				mcp.WithString("command", mcp.Required(), mcp.Description("Dev server command to inspect")),
			),
			handler: s.handleDetectPort,
		},
		{
			tool: mcp.NewTool(ToolCheckPort,
				mcp.WithDescription("Probe once whether anything is listening on a port inside the sandbox"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithNumber("port", mcp.Required(), mcp.Description("Port to probe")),
			),
			handler: s.handleCheckPort,
		},

		// Files.
		{
			tool: mcp.NewTool(ToolDeployFiles,
				mcp.WithDescription("Copy a project's files from the durable store into the sandbox. Directories are created first; any single failure aborts the deploy with the failing path named"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project whose files to deploy")),
				mcp.WithArray("paths", mcp.Description("Project-relative paths to deploy; all files when omitted"), mcp.WithStringItems()),
			),
			handler: s.handleDeployFiles,
		},
		{
			tool: mcp.NewTool(ToolBackupFiles,
				mcp.WithDescription("Copy the sandbox working tree into the durable store, skipping dependency and build directories. Per-file failures are skipped, not fatal"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project to back up into")),
			),
			handler: s.handleBackupFiles,
		},
		{
			tool: mcp.NewTool(ToolReadFile,
				mcp.WithDescription("Read one file from the sandbox"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("path", mcp.Required(), mcp.Description("File path inside the sandbox")),
			),
			handler: s.handleReadFile,
		},
		{
			tool: mcp.NewTool(ToolWriteFile,
				mcp.WithDescription("Write one file into the sandbox, creating parent directories"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("path", mcp.Required(), mcp.Description("File path inside the sandbox")),
				mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
			),
			handler: s.handleWriteFile,
		},
		{
			tool: mcp.NewTool(ToolListDirectory,
				mcp.WithDescription("List a sandbox directory"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("path", mcp.Description("Directory path (defaults to the sandbox root)")),
			),
			handler: s.handleListDirectory,
		},
		{
			tool: mcp.NewTool(ToolCreateFolder,
				mcp.WithDescription("Create a directory in the sandbox"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("path", mcp.Required(), mcp.Description("Directory path")),
				mcp.WithString("mode", mcp.Description("Octal permissions (default 755)")),
			),
			handler: s.handleCreateFolder,
		},
		{
			tool: mcp.NewTool(ToolDeleteFile,
				mcp.WithDescription("Delete a file or directory in the sandbox"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("path", mcp.Required(), mcp.Description("Path to delete")),
			),
			handler: s.handleDeleteFile,
		},
		{
			tool: mcp.NewTool(ToolMoveFile,
				mcp.WithDescription("Move or rename a file in the sandbox"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("source", mcp.Required(), mcp.Description("Source path")),
				mcp.WithString("destination", mcp.Required(), mcp.Description("Destination path")),
			),
			handler: s.handleMoveFile,
		},
		{
			tool: mcp.NewTool(ToolSetPermissions,
				mcp.WithDescription("Change a sandbox file's permissions"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
				mcp.WithString("mode", mcp.Required(), mcp.Description("Octal permissions, e.g. 755")),
			),
			handler: s.handleSetPermissions,
		},
		{
			tool: mcp.NewTool(ToolGetFileInfo,
				mcp.WithDescription("Stat a sandbox file"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
			),
			handler: s.handleGetFileInfo,
		},
		{
			tool: mcp.NewTool(ToolFindFiles,
				mcp.WithDescription("Search file contents in the sandbox (grep-style), returning matches with line numbers"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("pattern", mcp.Required(), mcp.Description("Content pattern")),
				mcp.WithString("path", mcp.Description("Directory to search under (defaults to the root)")),
			),
			handler: s.handleFindFiles,
		},
		{
			tool: mcp.NewTool(ToolSearchFiles,
				mcp.WithDescription("Match sandbox file names against a glob pattern"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("pattern", mcp.Required(), mcp.Description("Name pattern, e.g. *.ts")),
				mcp.WithString("path", mcp.Description("Directory to search under (defaults to the root)")),
			),
			handler: s.handleSearchFiles,
		},
		{
			tool: mcp.NewTool(ToolReplaceInFiles,
				mcp.WithDescription("Replace a pattern across multiple sandbox files, reporting per-file success"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithArray("files", mcp.Required(), mcp.Description("Files to edit"), mcp.WithStringItems()),
				mcp.WithString("pattern", mcp.Required(), mcp.Description("Pattern to replace")),
				mcp.WithString("new_value", mcp.Required(), mcp.Description("Replacement text")),
			),
			handler: s.handleReplaceInFiles,
		},

		// Builds, stack, completion.
		{
			tool: mcp.NewTool(ToolBuildProject,
				mcp.WithDescription("Start a background build in the workspace. Returns the pending build record; poll get_build_status for the outcome"),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace to build in")),
				mcp.WithString("command", mcp.Description("Build command; inferred from the project manifest when omitted")),
			),
			handler: s.handleBuildProject,
		},
		{
			tool: mcp.NewTool(ToolGetBuildStatus,
				mcp.WithDescription("Read a build record: status, output, duration"),
				mcp.WithString("build_id", mcp.Required(), mcp.Description("Build id")),
			),
			handler: s.handleGetBuildStatus,
		},
		{
			tool: mcp.NewTool(ToolDetectStack,
				mcp.WithDescription("Detect the project's technology stack from its durable-store manifests: language, framework, package manager, suggested commands, default port"),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
			),
			handler: s.handleDetectStack,
		},
		{
			tool: mcp.NewTool(ToolCompleteTask,
				mcp.WithDescription("Finalize a task: back up the sandbox, detect the stack, start and verify the dev server, commit, and atomically record the job and project outcome. Call once when the task is done"),
				mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace id")),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
				mcp.WithString("job_id", mcp.Required(), mcp.Description("Job being completed")),
				mcp.WithString("command", mcp.Description("Dev server command; inferred from the stack when omitted")),
			),
			handler: s.handleCompleteTask,
		},
		{
			tool: mcp.NewTool(ToolGetDeploymentStatus,
				mcp.WithDescription("Read a project's recorded deployment state: status, preview URL, last commit"),
				mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
			),
			handler: s.handleGetDeploymentStatus,
		},
	}
}
