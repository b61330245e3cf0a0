package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/sandbox"
	"drydock/internal/storage"
	"drydock/pkg/models"
)

// backupExcludedDirs are dependency, build-artifact, and version-control
// directories never copied back into the durable store.
var backupExcludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".next":        true,
	"vendor":       true,
	".venv":        true,
}

// FileBridge moves files between the durable store and the ephemeral sandbox
// filesystem. Durable-store paths are absolute; sandbox paths are relative
// to the sandbox root, so the leading separator is stripped on every
// crossing.
type FileBridge struct {
	repos    *repositories.Repositories
	provider Provider
	store    storage.FileStore
}

func NewFileBridge(repos *repositories.Repositories, provider Provider, store storage.FileStore) *FileBridge {
	return &FileBridge{repos: repos, provider: provider, store: store}
}

func (b *FileBridge) requireRunning(ctx context.Context, workspaceID string) (*workspaceRef, error) {
	ws, err := b.repos.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.Status != models.WorkspaceStatusRunning || ws.SandboxID == nil {
		return nil, fmt.Errorf("%w: workspace %s is %s", ErrWorkspaceNotRunning, workspaceID, ws.Status)
	}
	return &workspaceRef{WorkspaceID: ws.ID, SandboxID: *ws.SandboxID}, nil
}

// sandboxPath translates a durable-store project path to a sandbox-relative
// one.
func sandboxPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Deploy copies a project's files from the durable store into the sandbox.
// All unique parent directories are created in one batch before any file is
// written — uploads into a missing directory fail — and any single file
// failure aborts the whole deploy with the failing path identified, since a
// half-written project cannot run. Returns the number of files written
// before any failure; re-invoking re-deploys everything.
func (b *FileBridge) Deploy(ctx context.Context, workspaceID, projectID string, paths []string) (int, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return 0, err
	}

	keys, err := b.resolveDeployKeys(ctx, projectID, paths)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	prefix := storage.ProjectPrefix(projectID)
	relPaths := make([]string, 0, len(keys))
	for _, key := range keys {
		relPaths = append(relPaths, sandboxPath(strings.TrimPrefix(key, prefix)))
	}

	for _, dir := range uniqueParentDirs(relPaths) {
		if err := b.provider.CreateFolder(ctx, ref.SandboxID, dir, "755"); err != nil {
			return 0, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	deployed := 0
	for i, key := range keys {
		reader, _, err := b.store.Get(ctx, key)
		if err != nil {
			return deployed, fmt.Errorf("deploy failed at %s: %w", relPaths[i], err)
		}
		data, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return deployed, fmt.Errorf("deploy failed at %s: %w", relPaths[i], err)
		}

		if err := b.provider.UploadFile(ctx, ref.SandboxID, relPaths[i], data); err != nil {
			return deployed, fmt.Errorf("deploy failed at %s: %w", relPaths[i], err)
		}
		deployed++
	}

	logging.Info("Deployed %d files to workspace %s", deployed, ref.WorkspaceID)
	return deployed, nil
}

// resolveDeployKeys lists the project's store keys, optionally restricted to
// a caller-specified subset of project-relative paths.
func (b *FileBridge) resolveDeployKeys(ctx context.Context, projectID string, paths []string) ([]string, error) {
	if len(paths) > 0 {
		keys := make([]string, 0, len(paths))
		for _, p := range paths {
			keys = append(keys, storage.ProjectFileKey(projectID, p))
		}
		return keys, nil
	}

	infos, err := b.store.List(ctx, storage.ProjectPrefix(projectID))
	if err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// uniqueParentDirs returns every ancestor directory of the given relative
// paths, shallowest first, so batch creation never races its own parents.
func uniqueParentDirs(relPaths []string) []string {
	seen := map[string]bool{}
	for _, p := range relPaths {
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			seen[dir] = true
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}

// Backup copies the sandbox working tree into the durable store, excluding
// build artifacts and dependency/version-control directories. Unlike deploy,
// a single file's failure is logged and skipped: losing one file must not
// block persisting the rest. Returns the number of files backed up.
func (b *FileBridge) Backup(ctx context.Context, workspaceID, projectID string) (int, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return 0, err
	}

	files, err := b.walkSandbox(ctx, ref, ".")
	if err != nil {
		return 0, fmt.Errorf("enumerate sandbox files: %w", err)
	}

	backedUp := 0
	for _, file := range files {
		data, err := b.provider.DownloadFile(ctx, ref.SandboxID, file.Path)
		if err != nil {
			logging.Warn("Backup skipped %s: %v", file.Path, err)
			continue
		}

		key := storage.ProjectFileKey(projectID, file.Path)
		if _, err := b.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{}); err != nil {
			logging.Warn("Backup skipped %s: %v", file.Path, err)
			continue
		}
		backedUp++
	}

	logging.Info("Backed up %d of %d files from workspace %s", backedUp, len(files), ref.WorkspaceID)
	return backedUp, nil
}

// walkSandbox recursively lists regular files under dir, pruning excluded
// directories.
func (b *FileBridge) walkSandbox(ctx context.Context, ref *workspaceRef, dir string) ([]sandbox.FileInfo, error) {
	entries, err := b.provider.ListDirectory(ctx, ref.SandboxID, dir)
	if err != nil {
		return nil, err
	}

	var files []sandbox.FileInfo
	for _, entry := range entries {
		if entry.IsDir {
			if backupExcludedDirs[entry.Name] {
				continue
			}
			sub, err := b.walkSandbox(ctx, ref, entry.Path)
			if err != nil {
				logging.Warn("Backup skipped directory %s: %v", entry.Path, err)
				continue
			}
			files = append(files, sub...)
			continue
		}
		files = append(files, entry)
	}
	return files, nil
}

// ReadFile reads one file out of the sandbox.
func (b *FileBridge) ReadFile(ctx context.Context, workspaceID, filePath string) ([]byte, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return b.provider.DownloadFile(ctx, ref.SandboxID, sandboxPath(filePath))
}

// WriteFile writes one file into the sandbox, creating its parent directory
// first.
func (b *FileBridge) WriteFile(ctx context.Context, workspaceID, filePath string, content []byte) error {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return err
	}

	rel := sandboxPath(filePath)
	if dir := path.Dir(rel); dir != "." {
		if err := b.provider.CreateFolder(ctx, ref.SandboxID, dir, "755"); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return b.provider.UploadFile(ctx, ref.SandboxID, rel, content)
}

// The structural operations below are thin, individually-failable calls
// against the sandbox file API. None is transactional with any other.

func (b *FileBridge) CreateFolder(ctx context.Context, workspaceID, dirPath, mode string) error {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return err
	}
	if mode == "" {
		mode = "755"
	}
	return b.provider.CreateFolder(ctx, ref.SandboxID, sandboxPath(dirPath), mode)
}

func (b *FileBridge) DeleteFile(ctx context.Context, workspaceID, filePath string) error {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return err
	}
	return b.provider.DeleteFile(ctx, ref.SandboxID, sandboxPath(filePath))
}

func (b *FileBridge) MoveFile(ctx context.Context, workspaceID, source, destination string) error {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return err
	}
	return b.provider.MoveFile(ctx, ref.SandboxID, sandboxPath(source), sandboxPath(destination))
}

func (b *FileBridge) SetPermissions(ctx context.Context, workspaceID, filePath, mode string) error {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return err
	}
	return b.provider.SetPermissions(ctx, ref.SandboxID, sandboxPath(filePath), mode)
}

func (b *FileBridge) GetFileInfo(ctx context.Context, workspaceID, filePath string) (*sandbox.FileInfo, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return b.provider.GetFileInfo(ctx, ref.SandboxID, sandboxPath(filePath))
}

func (b *FileBridge) ListDirectory(ctx context.Context, workspaceID, dirPath string) ([]sandbox.FileInfo, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	dir := sandboxPath(dirPath)
	if dir == "" {
		dir = "."
	}
	return b.provider.ListDirectory(ctx, ref.SandboxID, dir)
}

// FindFiles is a content search (grep-style).
func (b *FileBridge) FindFiles(ctx context.Context, workspaceID, dirPath, pattern string) ([]sandbox.Match, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	dir := sandboxPath(dirPath)
	if dir == "" {
		dir = "."
	}
	return b.provider.FindInFiles(ctx, ref.SandboxID, dir, pattern)
}

// SearchFiles matches file names (glob-style).
func (b *FileBridge) SearchFiles(ctx context.Context, workspaceID, dirPath, pattern string) ([]string, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	dir := sandboxPath(dirPath)
	if dir == "" {
		dir = "."
	}
	return b.provider.SearchFiles(ctx, ref.SandboxID, dir, pattern)
}

func (b *FileBridge) ReplaceInFiles(ctx context.Context, workspaceID string, files []string, pattern, newValue string) ([]sandbox.ReplaceResult, error) {
	ref, err := b.requireRunning(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	rel := make([]string, 0, len(files))
	for _, f := range files {
		rel = append(rel, sandboxPath(f))
	}
	return b.provider.ReplaceInFiles(ctx, ref.SandboxID, sandbox.ReplaceRequest{
		Files:    rel,
		Pattern:  pattern,
		NewValue: newValue,
	})
}
