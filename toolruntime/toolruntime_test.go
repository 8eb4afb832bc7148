package toolruntime

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/contextstore"
	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open("sqlite", filepath.Join(dir, "runtime.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type echoHandler struct {
	name       string
	approval   bool
	result     any
	err        error
	delay      time.Duration
}

func (h echoHandler) Name() string          { return h.name }
func (h echoHandler) Description() string   { return "test handler: " + h.name }
func (h echoHandler) RequiresApproval() bool { return h.approval }
func (h echoHandler) Schema() map[string]any { return nil }
func (h echoHandler) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if h.err != nil {
		return nil, h.err
	}
	return h.result, nil
}

type fakeShellResult struct {
	stdout, stderr string
}

func (f fakeShellResult) ShellOutput() (string, string) { return f.stdout, f.stderr }

func baseRequest(tool string) Request {
	return Request{
		RequestID:   "req-1",
		SessionID:   "sess-1",
		ExecutionID: "exec-1",
		ToolName:    tool,
		Input:       json.RawMessage(`{"path":"a.txt"}`),
	}
}

func TestExecuteUnknownToolReturnsError(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, nil)
	rt := New(evaluator, s, contextstore.New(nil, 0), s)

	resp := rt.Execute(context.Background(), baseRequest("does-not-exist"))

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown tool")
}

func TestExecuteAllowedToolRecordsSuccessAudit(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"echo": false})
	rt := New(evaluator, s, contextstore.New(nil, 0), s)
	rt.Register(echoHandler{name: "echo", result: "hello"})

	resp := rt.Execute(context.Background(), baseRequest("echo"))

	require.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Result)

	calls, err := s.ListToolCallsByExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, store.ToolCallSuccess, calls[0].Status)
}

func TestExecuteHandlerErrorMarksAuditError(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"echo": false})
	rt := New(evaluator, s, contextstore.New(nil, 0), s)
	rt.Register(echoHandler{name: "echo", err: errors.New("boom")})

	resp := rt.Execute(context.Background(), baseRequest("echo"))

	require.False(t, resp.Success)
	assert.Equal(t, "boom", resp.Error)

	calls, err := s.ListToolCallsByExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, store.ToolCallError, calls[0].Status)
}

func TestExecuteRequiresApprovalWithoutConfirmerIsDenied(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"file-write": true})
	rt := New(evaluator, s, contextstore.New(nil, 0), s)
	rt.Register(echoHandler{name: "file-write", approval: true, result: "ok"})

	resp := rt.Execute(context.Background(), baseRequest("file-write"))

	require.False(t, resp.Success)
	assert.True(t, resp.PermissionDenied)
}

func TestExecuteRequiresApprovalConfirmerGrantsAndPersists(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"file-write": true})
	confirmCalls := 0
	rt := New(evaluator, s, contextstore.New(nil, 0), s, WithConfirmer(
		func(ctx context.Context, req Request, reviews []store.CriticReview) (permission.ConfirmationResponse, error) {
			confirmCalls++
			return permission.ConfirmationResponse{Granted: true, Scope: store.ScopeSession}, nil
		},
	))
	rt.Register(echoHandler{name: "file-write", approval: true, result: "written"})

	resp := rt.Execute(context.Background(), baseRequest("file-write"))

	require.True(t, resp.Success)
	assert.Equal(t, 1, confirmCalls)

	perms, err := s.ListPermissionsForTool(context.Background(), "file-write")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, store.ScopeSession, perms[0].Scope)
}

func TestExecuteRequiresApprovalConfirmerDenies(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"file-write": true})
	rt := New(evaluator, s, contextstore.New(nil, 0), s, WithConfirmer(
		func(ctx context.Context, req Request, reviews []store.CriticReview) (permission.ConfirmationResponse, error) {
			return permission.ConfirmationResponse{Granted: false, Feedback: "looks risky"}, nil
		},
	))
	rt.Register(echoHandler{name: "file-write", approval: true, result: "written"})

	resp := rt.Execute(context.Background(), baseRequest("file-write"))

	require.False(t, resp.Success)
	assert.True(t, resp.PermissionDenied)
	assert.Contains(t, resp.Error, "looks risky")
}

func TestExecuteCriticReviewsReachConfirmer(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"file-write": true})
	var seen []store.CriticReview
	rt := New(evaluator, s, contextstore.New(nil, 0), s, WithConfirmer(
		func(ctx context.Context, req Request, reviews []store.CriticReview) (permission.ConfirmationResponse, error) {
			seen = reviews
			return permission.ConfirmationResponse{Granted: true, Scope: store.ScopeOnce}, nil
		},
	))
	rt.Register(echoHandler{name: "file-write", approval: true, result: "ok"})

	req := baseRequest("file-write")
	req.CriticReviews = []store.CriticReview{{CriticName: "security", Verdict: store.VerdictConcerns}}

	resp := rt.Execute(context.Background(), req)

	require.True(t, resp.Success)
	require.Len(t, seen, 1)
	assert.Equal(t, "security", seen[0].CriticName)
}

func TestExecuteTimeoutCancelsHandler(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"slow": false})
	rt := New(evaluator, s, contextstore.New(nil, 0), s, WithTimeout(10*time.Millisecond))
	rt.Register(echoHandler{name: "slow", delay: 200 * time.Millisecond})

	resp := rt.Execute(context.Background(), baseRequest("slow"))

	require.False(t, resp.Success)
	assert.Contains(t, resp.Error, context.DeadlineExceeded.Error())
}

func TestExecuteTruncatesLargeTextResult(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"file-read": false})
	caps := map[string]contextstore.Cap{
		"file-read":   {Field: "chars", Value: 10},
		"__default__": {Field: "chars", Value: 10},
	}
	rt := New(evaluator, s, contextstore.New(caps, 0), s)
	rt.Register(echoHandler{name: "file-read", result: "this is a very long file body exceeding the cap"})

	resp := rt.Execute(context.Background(), baseRequest("file-read"))

	require.True(t, resp.Success)
	assert.True(t, resp.Truncated)
	assert.NotEmpty(t, resp.FullResultID)
}

func TestExecuteRoutesShellShapedResultThroughShellStrategy(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"shell-exec": false})
	caps := map[string]contextstore.Cap{"shell-exec": {Field: "chars", Value: 5}}
	rt := New(evaluator, s, contextstore.New(caps, 0), s)
	rt.Register(echoHandler{name: "shell-exec", result: fakeShellResult{stdout: "0123456789", stderr: ""}})

	resp := rt.Execute(context.Background(), baseRequest("shell-exec"))

	require.True(t, resp.Success)
	assert.True(t, resp.Truncated)
}

func TestAbortCancelsInFlightCall(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{"slow": false})
	rt := New(evaluator, s, contextstore.New(nil, 0), s, WithTimeout(time.Minute))
	rt.Register(echoHandler{name: "slow", delay: 500 * time.Millisecond})

	req := baseRequest("slow")
	done := make(chan Response, 1)
	go func() { done <- rt.Execute(context.Background(), req) }()

	time.Sleep(20 * time.Millisecond)
	rt.Abort(req.RequestID)

	resp := <-done
	require.False(t, resp.Success)
}

func TestRequiresPermissionReflectsRegisteredHandlers(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, nil)
	rt := New(evaluator, s, contextstore.New(nil, 0), s)
	rt.Register(echoHandler{name: "file-write", approval: true})
	rt.Register(echoHandler{name: "file-read", approval: false})

	got := rt.RequiresPermission()

	assert.Equal(t, map[string]bool{"file-write": true, "file-read": false}, got)
}

type recordingToolNotifier struct {
	calls []Response
}

func (n *recordingToolNotifier) Executed(ctx context.Context, req Request, resp Response) {
	n.calls = append(n.calls, resp)
}

func TestExecuteNotifiesOnSuccessAndFailure(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, nil)
	rt := New(evaluator, s, contextstore.New(nil, 0), s)
	rt.Register(echoHandler{name: "ok-tool", result: "fine"})
	notifier := &recordingToolNotifier{}
	rt.Notifier = notifier

	rt.Execute(context.Background(), Request{ToolName: "ok-tool"})
	rt.Execute(context.Background(), Request{ToolName: "missing-tool"})

	require.Len(t, notifier.calls, 2)
	assert.True(t, notifier.calls[0].Success)
	assert.False(t, notifier.calls[1].Success)
}

func TestExecuteWithoutNotifierDoesNotPanic(t *testing.T) {
	s := newTestStore(t)
	evaluator := permission.New(s, nil)
	rt := New(evaluator, s, contextstore.New(nil, 0), s)
	rt.Register(echoHandler{name: "ok-tool", result: "fine"})

	resp := rt.Execute(context.Background(), Request{ToolName: "ok-tool"})
	assert.True(t, resp.Success)
}
