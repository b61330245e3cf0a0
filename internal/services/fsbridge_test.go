package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"drydock/internal/sandbox"
	"drydock/internal/storage"
	"drydock/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBridge(t *testing.T) (*fakeProvider, storage.FileStore, *FileBridge, *models.Workspace) {
	t.Helper()

	repos, provider, lifecycle := setupLifecycle(t)
	store := storage.NewMemFileStore(storage.Config{})
	bridge := NewFileBridge(repos, provider, store)

	ws, err := lifecycle.Create(context.Background(), "proj_1", CreateOptions{Language: "node"})
	require.NoError(t, err)

	return provider, store, bridge, ws
}

func seedProjectFiles(t *testing.T, store storage.FileStore, projectID string, files map[string]string) {
	t.Helper()
	ctx := context.Background()
	for rel, content := range files {
		_, err := store.Put(ctx, storage.ProjectFileKey(projectID, rel), strings.NewReader(content), storage.PutOptions{})
		require.NoError(t, err)
	}
}

func TestDeployCreatesDirectoriesBeforeFiles(t *testing.T) {
	provider, store, bridge, ws := setupBridge(t)
	seedProjectFiles(t, store, "proj_1", map[string]string{
		"package.json":      `{"name":"app"}`,
		"src/index.js":      "main()",
		"src/lib/helper.js": "helper()",
	})

	count, err := bridge.Deploy(context.Background(), ws.ID, "proj_1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Every ancestor directory exists, shallowest first, and all of them
	// precede the first upload.
	require.Equal(t, []string{"src", "src/lib"}, provider.folders)
	assert.Equal(t, "main()", string(provider.uploads["src/index.js"]))
	assert.Equal(t, "helper()", string(provider.uploads["src/lib/helper.js"]))
	assert.Equal(t, `{"name":"app"}`, string(provider.uploads["package.json"]))
}

func TestDeployAbortsOnFirstFailure(t *testing.T) {
	provider, store, bridge, ws := setupBridge(t)
	seedProjectFiles(t, store, "proj_1", map[string]string{
		"a.txt":     "a",
		"b.txt":     "b",
		"c/nested":  "c",
		"d/last.js": "d",
	})

	// Keys deploy in sorted order; failing the second one leaves exactly
	// one file written.
	provider.uploadErr = map[string]error{"b.txt": errors.New("disk full")}

	count, err := bridge.Deploy(context.Background(), ws.ID, "proj_1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy failed at b.txt")
	assert.Equal(t, 1, count, "count reflects files written before the failure")
	_, uploaded := provider.uploads["c/nested"]
	assert.False(t, uploaded, "nothing after the failing file is written")
}

func TestDeploySubsetOfPaths(t *testing.T) {
	provider, store, bridge, ws := setupBridge(t)
	seedProjectFiles(t, store, "proj_1", map[string]string{
		"keep.txt": "keep",
		"skip.txt": "skip",
	})

	count, err := bridge.Deploy(context.Background(), ws.ID, "proj_1", []string{"keep.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_, uploaded := provider.uploads["skip.txt"]
	assert.False(t, uploaded)
}

func TestDeployRequiresRunning(t *testing.T) {
	repos := setupRepos(t)
	provider := newFakeProvider()
	bridge := NewFileBridge(repos, provider, storage.NewMemFileStore(storage.Config{}))

	_, err := bridge.Deploy(context.Background(), "ws_missing", "proj_1", nil)
	require.Error(t, err)
}

func TestBackupSkipsExcludedDirsAndBrokenFiles(t *testing.T) {
	provider, store, bridge, ws := setupBridge(t)
	ctx := context.Background()

	tree := map[string][]sandbox.FileInfo{
		".": {
			{Name: "package.json", Path: "package.json"},
			{Name: "node_modules", Path: "node_modules", IsDir: true},
			{Name: "src", Path: "src", IsDir: true},
		},
		"src": {
			{Name: "index.js", Path: "src/index.js"},
			{Name: "broken.js", Path: "src/broken.js"},
		},
	}
	provider.listDirFn = func(id, path string) ([]sandbox.FileInfo, error) {
		if path == "node_modules" {
			t.Fatal("excluded directory must never be listed")
		}
		return tree[path], nil
	}
	provider.downloadFn = func(id, path string) ([]byte, error) {
		if path == "src/broken.js" {
			return nil, errors.New("read error")
		}
		return []byte("content of " + path), nil
	}

	count, err := bridge.Backup(ctx, ws.ID, "proj_1")
	require.NoError(t, err, "one broken file must not fail the backup")
	assert.Equal(t, 2, count)

	infos, err := store.List(ctx, storage.ProjectPrefix("proj_1"))
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"projects/proj_1/package.json",
		"projects/proj_1/src/index.js",
	}, keys)
}

func TestWriteFileCreatesParent(t *testing.T) {
	provider, _, bridge, ws := setupBridge(t)
	ctx := context.Background()

	require.NoError(t, bridge.WriteFile(ctx, ws.ID, "/app/config/settings.yaml", []byte("a: 1")))
	assert.Contains(t, provider.folders, "app/config")
	assert.Equal(t, "a: 1", string(provider.uploads["app/config/settings.yaml"]))
}

func TestSandboxPathNormalization(t *testing.T) {
	assert.Equal(t, "src/index.js", sandboxPath("/src/index.js"))
	assert.Equal(t, "src/index.js", sandboxPath("src/index.js"))
	assert.Equal(t, "index.js", sandboxPath("//index.js"))
	assert.Equal(t, "", sandboxPath("/"))
}

func TestReadWriteRoundTrip(t *testing.T) {
	_, _, bridge, ws := setupBridge(t)
	ctx := context.Background()

	require.NoError(t, bridge.WriteFile(ctx, ws.ID, "notes.md", []byte("hello")))
	data, err := bridge.ReadFile(ctx, ws.ID, "/notes.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestReplaceInFilesNormalizesPaths(t *testing.T) {
	_, _, bridge, ws := setupBridge(t)

	results, err := bridge.ReplaceInFiles(context.Background(), ws.ID, []string{"/src/a.js", "src/b.js"}, "foo", "bar")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "src/a.js", results[0].File)
	assert.True(t, results[0].Success)
}
