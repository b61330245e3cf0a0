package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrWaitBudgetExceeded marks a poll that ran out of budget while the sandbox
// was still transitioning. Callers treat it as "still starting", distinct
// from a remote failure.
var ErrWaitBudgetExceeded = errors.New("wait budget exceeded")

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the provider said the resource does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the remote sandbox provider's REST API.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
	maxDelay    time.Duration
	multiplier  float64
}

type ClientOption func(*Client)

func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) { c.maxAttempts = n }
}

func WithRetryDelay(initial, max time.Duration, multiplier float64) ClientOption {
	return func(c *Client) {
		c.retryDelay = initial
		c.maxDelay = max
		c.multiplier = multiplier
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
		maxAttempts: 3,
		retryDelay:  time.Second,
		maxDelay:    30 * time.Second,
		multiplier:  2.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call performs one JSON round trip. GET requests are retried on transport
// errors and 5xx responses; mutating requests get a single attempt, since
// retry of side-effecting calls is the agent's decision, not the client's.
func (c *Client) call(ctx context.Context, method, path string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = c.maxAttempts
	}

	resp, err := c.doWithRetry(ctx, req, attempts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request, maxAttempts int) (*http.Response, error) {
	var lastErr error
	delay := c.retryDelay

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.multiplier)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// CreateSandbox provisions a sandbox and returns the provider's record. The
// sandbox may still be transitioning; use WaitForState to settle it.
func (c *Client) CreateSandbox(ctx context.Context, req CreateSandboxRequest) (*Sandbox, error) {
	var sb Sandbox
	if err := c.call(ctx, http.MethodPost, "/sandboxes", req, &sb); err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	return &sb, nil
}

func (c *Client) GetSandbox(ctx context.Context, id string) (*Sandbox, error) {
	var sb Sandbox
	if err := c.call(ctx, http.MethodGet, "/sandboxes/"+url.PathEscape(id), nil, &sb); err != nil {
		return nil, fmt.Errorf("get sandbox: %w", err)
	}
	return &sb, nil
}

func (c *Client) StartSandbox(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/start", nil, nil); err != nil {
		return fmt.Errorf("start sandbox: %w", err)
	}
	return nil
}

func (c *Client) StopSandbox(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/stop", nil, nil); err != nil {
		return fmt.Errorf("stop sandbox: %w", err)
	}
	return nil
}

func (c *Client) DeleteSandbox(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, "/sandboxes/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete sandbox: %w", err)
	}
	return nil
}

// ExecuteCommand runs a one-shot command and waits for its result.
func (c *Client) ExecuteCommand(ctx context.Context, id string, req ExecRequest) (*ExecResult, error) {
	var result ExecResult
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/exec", req, &result); err != nil {
		return nil, fmt.Errorf("execute command: %w", err)
	}
	return &result, nil
}

// RunCode executes a snippet through the managed code runner.
func (c *Client) RunCode(ctx context.Context, id string, req CodeRunRequest) (*CodeRunResult, error) {
	var result CodeRunResult
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/code-run", req, &result); err != nil {
		return nil, fmt.Errorf("run code: %w", err)
	}
	return &result, nil
}

func (c *Client) CreateSession(ctx context.Context, id, sessionID string) (*Session, error) {
	var session Session
	body := map[string]string{"session_id": sessionID}
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/sessions", body, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

func (c *Client) GetSession(ctx context.Context, id, sessionID string) (*Session, error) {
	var session Session
	path := "/sandboxes/" + url.PathEscape(id) + "/sessions/" + url.PathEscape(sessionID)
	if err := c.call(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

func (c *Client) ListSessions(ctx context.Context, id string) ([]Session, error) {
	var sessions []Session
	if err := c.call(ctx, http.MethodGet, "/sandboxes/"+url.PathEscape(id)+"/sessions", nil, &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (c *Client) SessionExec(ctx context.Context, id, sessionID string, req SessionExecRequest) (*SessionExecResult, error) {
	var result SessionExecResult
	path := "/sandboxes/" + url.PathEscape(id) + "/sessions/" + url.PathEscape(sessionID) + "/exec"
	if err := c.call(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, fmt.Errorf("session exec: %w", err)
	}
	return &result, nil
}

// GetCommandLogs fetches session command output from the given offset.
func (c *Client) GetCommandLogs(ctx context.Context, id, sessionID, commandID string, from int) (*CommandLogs, error) {
	var logs CommandLogs
	path := "/sandboxes/" + url.PathEscape(id) + "/sessions/" + url.PathEscape(sessionID) +
		"/commands/" + url.PathEscape(commandID) + "/logs?from=" + strconv.Itoa(from)
	if err := c.call(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, fmt.Errorf("get command logs: %w", err)
	}
	return &logs, nil
}

func (c *Client) DeleteSession(ctx context.Context, id, sessionID string) error {
	path := "/sandboxes/" + url.PathEscape(id) + "/sessions/" + url.PathEscape(sessionID)
	if err := c.call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UploadFile writes file content into the sandbox. The parent directory must
// already exist; uploads into a missing directory fail.
func (c *Client) UploadFile(ctx context.Context, id, path string, content []byte) error {
	body := map[string]string{
		"path":    path,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/files/upload", body, nil); err != nil {
		return fmt.Errorf("upload file %s: %w", path, err)
	}
	return nil
}

// DownloadFile reads file content out of the sandbox.
func (c *Client) DownloadFile(ctx context.Context, id, path string) ([]byte, error) {
	reqURL := c.baseURL + "/sandboxes/" + url.PathEscape(id) + "/files/download?path=" + url.QueryEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.doWithRetry(ctx, req, c.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download file %s: %w", path, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return data, nil
}

func (c *Client) CreateFolder(ctx context.Context, id, path, mode string) error {
	body := map[string]string{"path": path, "mode": mode}
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/files/folder", body, nil); err != nil {
		return fmt.Errorf("create folder %s: %w", path, err)
	}
	return nil
}

func (c *Client) DeleteFile(ctx context.Context, id, path string) error {
	reqPath := "/sandboxes/" + url.PathEscape(id) + "/files?path=" + url.QueryEscape(path)
	if err := c.call(ctx, http.MethodDelete, reqPath, nil, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

func (c *Client) MoveFile(ctx context.Context, id, source, destination string) error {
	body := map[string]string{"source": source, "destination": destination}
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/files/move", body, nil); err != nil {
		return fmt.Errorf("move file %s: %w", source, err)
	}
	return nil
}

func (c *Client) SetPermissions(ctx context.Context, id, path, mode string) error {
	body := map[string]string{"path": path, "mode": mode}
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/files/permissions", body, nil); err != nil {
		return fmt.Errorf("set permissions %s: %w", path, err)
	}
	return nil
}

func (c *Client) GetFileInfo(ctx context.Context, id, path string) (*FileInfo, error) {
	var info FileInfo
	reqPath := "/sandboxes/" + url.PathEscape(id) + "/files/info?path=" + url.QueryEscape(path)
	if err := c.call(ctx, http.MethodGet, reqPath, nil, &info); err != nil {
		return nil, fmt.Errorf("file info %s: %w", path, err)
	}
	return &info, nil
}

func (c *Client) ListDirectory(ctx context.Context, id, path string) ([]FileInfo, error) {
	var entries []FileInfo
	reqPath := "/sandboxes/" + url.PathEscape(id) + "/files/list?path=" + url.QueryEscape(path)
	if err := c.call(ctx, http.MethodGet, reqPath, nil, &entries); err != nil {
		return nil, fmt.Errorf("list directory %s: %w", path, err)
	}
	return entries, nil
}

// FindInFiles is a content search (grep-style) under the given path.
func (c *Client) FindInFiles(ctx context.Context, id, path, pattern string) ([]Match, error) {
	var matches []Match
	reqPath := "/sandboxes/" + url.PathEscape(id) + "/files/find?path=" + url.QueryEscape(path) +
		"&pattern=" + url.QueryEscape(pattern)
	if err := c.call(ctx, http.MethodGet, reqPath, nil, &matches); err != nil {
		return nil, fmt.Errorf("find in files: %w", err)
	}
	return matches, nil
}

// SearchFiles matches file names (glob-style) under the given path.
func (c *Client) SearchFiles(ctx context.Context, id, path, pattern string) ([]string, error) {
	var files []string
	reqPath := "/sandboxes/" + url.PathEscape(id) + "/files/search?path=" + url.QueryEscape(path) +
		"&pattern=" + url.QueryEscape(pattern)
	if err := c.call(ctx, http.MethodGet, reqPath, nil, &files); err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	return files, nil
}

func (c *Client) ReplaceInFiles(ctx context.Context, id string, req ReplaceRequest) ([]ReplaceResult, error) {
	var results []ReplaceResult
	if err := c.call(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(id)+"/files/replace", req, &results); err != nil {
		return nil, fmt.Errorf("replace in files: %w", err)
	}
	return results, nil
}

// GetPreviewLink resolves the proxy URL for a sandbox port. The link being
// issued says nothing about whether anything is listening on the port.
func (c *Client) GetPreviewLink(ctx context.Context, id string, port int) (*PreviewLink, error) {
	var link PreviewLink
	path := "/sandboxes/" + url.PathEscape(id) + "/preview/" + strconv.Itoa(port)
	if err := c.call(ctx, http.MethodGet, path, nil, &link); err != nil {
		return nil, fmt.Errorf("get preview link: %w", err)
	}
	return &link, nil
}

// WaitForState polls the sandbox until it reaches one of the target states.
// Budget exhaustion surfaces as ErrWaitBudgetExceeded so callers can tell
// "still transitioning" apart from a hard failure; a terminal error state or
// a not-found response fails immediately.
func (c *Client) WaitForState(ctx context.Context, id string, interval, budget time.Duration, states ...string) (*Sandbox, error) {
	var sb *Sandbox

	backoff := retry.WithMaxDuration(budget, retry.NewConstant(interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		current, err := c.GetSandbox(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				return err
			}
			return retry.RetryableError(err)
		}

		for _, s := range states {
			if current.State == s {
				sb = current
				return nil
			}
		}

		if current.State == StateError || current.State == StateFailed {
			if current.Error != "" {
				return fmt.Errorf("sandbox entered %s state: %s", current.State, current.Error)
			}
			return fmt.Errorf("sandbox entered %s state", current.State)
		}

		return retry.RetryableError(fmt.Errorf("%w: sandbox still %s", ErrWaitBudgetExceeded, current.State))
	})
	if err != nil {
		return nil, err
	}
	return sb, nil
}
