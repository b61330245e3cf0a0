package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, "test-key",
		WithMaxAttempts(3),
		WithRetryDelay(time.Millisecond, 5*time.Millisecond, 2.0),
	)
	return client, server.Close
}

func TestGetSandboxSendsBearerAuth(t *testing.T) {
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		if r.URL.Path != "/sandboxes/sb_123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Sandbox{ID: "sb_123", State: StateRunning})
	}))
	defer cleanup()

	sb, err := client.GetSandbox(context.Background(), "sb_123")
	if err != nil {
		t.Fatalf("GetSandbox failed: %v", err)
	}
	if sb.State != StateRunning {
		t.Errorf("expected running state, got %s", sb.State)
	}
}

func TestGetRetriesOnServerError(t *testing.T) {
	var calls int32
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(Sandbox{ID: "sb_123", State: StateStopped})
	}))
	defer cleanup()

	sb, err := client.GetSandbox(context.Background(), "sb_123")
	if err != nil {
		t.Fatalf("expected retry to recover, got: %v", err)
	}
	if sb.State != StateStopped {
		t.Errorf("expected stopped state, got %s", sb.State)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestMutatingCallsGetSingleAttempt(t *testing.T) {
	var calls int32
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer cleanup()

	err := client.StopSandbox(context.Background(), "sb_123")
	if err == nil {
		t.Fatal("expected error from 500 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("mutating call should not retry, got %d attempts", got)
	}
}

func TestIsNotFound(t *testing.T) {
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such sandbox"}`))
	}))
	defer cleanup()

	_, err := client.GetSandbox(context.Background(), "sb_gone")
	if err == nil {
		t.Fatal("expected error for missing sandbox")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound to match, got: %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError in chain, got: %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.StatusCode)
	}
}

func TestExecuteCommandRoundTrip(t *testing.T) {
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req ExecRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Command != "npm test" {
			t.Errorf("unexpected command %q", req.Command)
		}
		json.NewEncoder(w).Encode(ExecResult{Output: "ok\n", ExitCode: 0})
	}))
	defer cleanup()

	result, err := client.ExecuteCommand(context.Background(), "sb_123", ExecRequest{Command: "npm test"})
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}
	if result.Output != "ok\n" || result.ExitCode != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestGetPreviewLink(t *testing.T) {
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sandboxes/sb_123/preview/3000" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(PreviewLink{URL: "https://3000-sb_123.preview.example.dev"})
	}))
	defer cleanup()

	link, err := client.GetPreviewLink(context.Background(), "sb_123", 3000)
	if err != nil {
		t.Fatalf("GetPreviewLink failed: %v", err)
	}
	if link.URL == "" {
		t.Error("expected non-empty preview URL")
	}
}

func TestWaitForStateSettles(t *testing.T) {
	var calls int32
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := StateStarting
		if atomic.AddInt32(&calls, 1) >= 3 {
			state = StateRunning
		}
		json.NewEncoder(w).Encode(Sandbox{ID: "sb_123", State: state})
	}))
	defer cleanup()

	sb, err := client.WaitForState(context.Background(), "sb_123", time.Millisecond, time.Second, StateRunning)
	if err != nil {
		t.Fatalf("WaitForState failed: %v", err)
	}
	if sb.State != StateRunning {
		t.Errorf("expected running, got %s", sb.State)
	}
}

func TestWaitForStateBudgetExceeded(t *testing.T) {
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Sandbox{ID: "sb_123", State: StateStarting})
	}))
	defer cleanup()

	_, err := client.WaitForState(context.Background(), "sb_123", time.Millisecond, 20*time.Millisecond, StateRunning)
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if !errors.Is(err, ErrWaitBudgetExceeded) {
		t.Errorf("expected ErrWaitBudgetExceeded, got: %v", err)
	}
}

func TestWaitForStateFailsFastOnErrorState(t *testing.T) {
	var calls int32
	client, cleanup := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(Sandbox{ID: "sb_123", State: StateError, Error: "image pull failed"})
	}))
	defer cleanup()

	_, err := client.WaitForState(context.Background(), "sb_123", time.Millisecond, time.Second, StateRunning)
	if err == nil {
		t.Fatal("expected error for sandbox in error state")
	}
	if errors.Is(err, ErrWaitBudgetExceeded) {
		t.Errorf("error state should not read as budget exhaustion: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected immediate failure, got %d polls", got)
	}
}
