// Package toolruntime is the Tool Runtime: it resolves a tool by name,
// gates execution through the Permission Evaluator, enforces a per-call
// timeout with cooperative cancellation, routes raw results through the
// Context Store's Result Processor, and records an auditable ToolCall for
// every call that resolves to a registered handler (an unknown tool name
// returns an error without recording one).
//
// Follows the Tool interface hierarchy of pkg/tool/tool.go — Handler here
// plays the role of CallableTool, and RequiresApproval mirrors its HITL
// tool flag exactly — plus the confirm-then-execute shape of
// v2/tool/approvaltool/approval.go's HITL pattern.
package toolruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arbiterloop/engine/contextstore"
	"github.com/arbiterloop/engine/observability"
	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
)

// Handler is one built-in or registered tool implementation.
type Handler interface {
	Name() string
	Description() string
	RequiresApproval() bool
	// Schema returns a JSON Schema object describing the tool's input, or
	// nil if the tool takes no parameters.
	Schema() map[string]any
	// Execute runs the tool against raw, unmarshaled input. ctx is
	// cancelled on timeout or on an explicit Abort call.
	Execute(ctx context.Context, input json.RawMessage) (any, error)
}

// Request is one invocation request handed to the runtime.
type Request struct {
	RequestID     string
	SessionID     string
	ExecutionID   string
	CallingAgent  string
	ToolName      string
	Input         json.RawMessage
	TargetPath    string
	CriticReviews []store.CriticReview // surfaced at the confirmation step
}

// Response is the runtime's outcome for one Request.
type Response struct {
	Success          bool
	Result           any
	Truncated        bool
	FullResultID     string
	Duration         time.Duration
	PermissionDenied bool
	Error            string
}

// Notifier receives one event per tool call the runtime finishes
// attempting, win or lose — the per-call analogue of the Workflow
// Executor's step-completion notifications.
type Notifier interface {
	Executed(ctx context.Context, req Request, resp Response)
}

type noopToolNotifier struct{}

func (noopToolNotifier) Executed(context.Context, Request, Response) {}

// Confirmer resolves a requires-confirmation decision by asking whatever
// is upstream (a human, a policy) and returns their response. Implementations
// may block; the runtime does not itself impose a timeout on confirmation
// (the caller's context governs that).
type Confirmer func(ctx context.Context, req Request, reviews []store.CriticReview) (permission.ConfirmationResponse, error)

// AuditStore is the subset of *store.Store the runtime needs to record
// ToolCall audit records.
type AuditStore interface {
	CreateToolCall(ctx context.Context, tc *store.ToolCall) error
	UpdateToolCallStatus(ctx context.Context, id string, status store.ToolCallStatus, output string) error
}

// Runtime is the Tool Runtime.
type Runtime struct {
	handlers  map[string]Handler
	evaluator *permission.Evaluator
	persister permission.Persister
	results   *contextstore.Store
	audit     AuditStore
	confirm   Confirmer
	timeout   time.Duration
	metrics   *observability.Metrics

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc // requestID -> cancel, for Abort/AbortAll

	// Notifier is exported so a deployment can attach an event sink (e.g.
	// one backed by an adapter.Adapter) after construction, mirroring
	// workflowexec.Executor's exported Metrics field. A nil value leaves
	// every call a no-op.
	Notifier Notifier
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithTimeout overrides the default per-request timeout (the default 120s).
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.timeout = d }
}

// WithMetrics attaches a Prometheus metrics sink. A nil m (or never
// calling WithMetrics) leaves every recording call a no-op.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithConfirmer sets the callback used to resolve requires-confirmation
// decisions. Without one, such requests are denied outright.
func WithConfirmer(c Confirmer) Option {
	return func(r *Runtime) { r.confirm = c }
}

// New constructs a Runtime. evaluator and persister may be the same
// underlying permission.Evaluator/*store.Store instance.
func New(evaluator *permission.Evaluator, persister permission.Persister, results *contextstore.Store, audit AuditStore, opts ...Option) *Runtime {
	r := &Runtime{
		handlers:  make(map[string]Handler),
		evaluator: evaluator,
		persister: persister,
		results:   results,
		audit:     audit,
		timeout:   120 * time.Second,
		cancels:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool handler, replacing any existing handler of the same name.
func (r *Runtime) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// RequiresPermission reports which registered tools are flagged RequiresApproval,
// in the shape permission.New expects.
func (r *Runtime) RequiresPermission() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.handlers))
	for name, h := range r.handlers {
		out[name] = h.RequiresApproval()
	}
	return out
}

// Execute runs req end to end per six-step contract.
// Execute runs req through the six-step contract (resolve handler, audit,
// permission gate, timeout-bounded call, result processing, audit close),
// wrapped with a trace span and the runtime's Prometheus metrics.
func (r *Runtime) Execute(ctx context.Context, req Request) Response {
	ctx, span := observability.StartSpan(ctx, "toolruntime", "Execute "+req.ToolName)
	defer span.End()

	r.metrics.IncToolCallsInFlight()
	defer r.metrics.DecToolCallsInFlight()

	start := time.Now()
	resp := r.execute(ctx, req)

	r.metrics.RecordToolCall(req.ToolName, time.Since(start))
	if !resp.Success {
		r.metrics.RecordToolError(req.ToolName)
	}

	notifier := r.Notifier
	if notifier == nil {
		notifier = noopToolNotifier{}
	}
	notifier.Executed(ctx, req, resp)

	return resp
}

func (r *Runtime) execute(ctx context.Context, req Request) Response {
	start := time.Now()

	r.mu.Lock()
	h, ok := r.handlers[req.ToolName]
	r.mu.Unlock()
	if !ok {
		return Response{Success: false, Error: fmt.Sprintf("unknown tool: %s", req.ToolName), Duration: time.Since(start)}
	}

	tc := &store.ToolCall{
		ExecutionID: req.ExecutionID,
		ToolName:    req.ToolName,
		Input:       string(req.Input),
		Status:      store.ToolCallPending,
	}
	if r.audit != nil {
		if err := r.audit.CreateToolCall(ctx, tc); err != nil {
			return Response{Success: false, Error: fmt.Sprintf("audit create failed: %v", err), Duration: time.Since(start)}
		}
	}

	if h.RequiresApproval() {
		decision, err := r.evaluator.Evaluate(ctx, permission.Request{
			ToolName:    req.ToolName,
			Input:       string(req.Input),
			TargetPath:  req.TargetPath,
			SessionID:   req.SessionID,
			ExecutionID: req.ExecutionID,
		}, time.Now())
		if err != nil {
			r.markAudit(ctx, tc.ID, store.ToolCallError, "")
			return Response{Success: false, Error: err.Error(), Duration: time.Since(start)}
		}

		switch decision {
		case permission.Denied:
			r.markAudit(ctx, tc.ID, store.ToolCallDenied, "")
			return Response{Success: false, PermissionDenied: true, Error: "permission denied", Duration: time.Since(start)}
		case permission.RequiresConfirmation:
			r.markAudit(ctx, tc.ID, store.ToolCallAwaitingPermission, "")
			if r.confirm == nil {
				r.markAudit(ctx, tc.ID, store.ToolCallDenied, "")
				return Response{Success: false, PermissionDenied: true, Error: "no confirmation channel configured", Duration: time.Since(start)}
			}
			resp, err := r.confirm(ctx, req, req.CriticReviews)
			if err != nil {
				r.markAudit(ctx, tc.ID, store.ToolCallError, "")
				return Response{Success: false, Error: err.Error(), Duration: time.Since(start)}
			}
			if r.persister != nil {
				if _, err := permission.ApplyConfirmation(ctx, r.persister, permission.Request{
					ToolName: req.ToolName, Workspace: req.TargetPath, SessionID: req.SessionID, ExecutionID: req.ExecutionID,
				}, resp, nil); err != nil {
					return Response{Success: false, Error: fmt.Sprintf("persist confirmation: %v", err), Duration: time.Since(start)}
				}
			}
			if !resp.Granted {
				r.markAudit(ctx, tc.ID, store.ToolCallDenied, "")
				errMsg := "permission denied"
				if resp.Feedback != "" {
					errMsg = fmt.Sprintf("permission denied: %s", resp.Feedback)
				}
				return Response{Success: false, PermissionDenied: true, Error: errMsg, Duration: time.Since(start)}
			}
		}
		// Allowed falls straight through.
	}

	r.markAudit(ctx, tc.ID, store.ToolCallApproved, "")

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	r.mu.Lock()
	r.cancels[req.RequestID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, req.RequestID)
		r.mu.Unlock()
		cancel()
	}()

	r.markAudit(callCtx, tc.ID, store.ToolCallRunning, "")
	raw, err := h.Execute(callCtx, req.Input)
	duration := time.Since(start)

	if err != nil {
		r.markAudit(ctx, tc.ID, store.ToolCallError, err.Error())
		return Response{Success: false, Error: err.Error(), Duration: duration}
	}

	processed := r.process(ctx, req.ToolName, string(req.Input), raw)

	outputJSON, _ := json.Marshal(processed.Result)
	r.markAudit(ctx, tc.ID, store.ToolCallSuccess, string(outputJSON))

	return Response{
		Success:      true,
		Result:       processed.Result,
		Truncated:    processed.Truncated,
		FullResultID: processed.FullResultID,
		Duration:     duration,
	}
}

type processedOutcome struct {
	Result       any
	Truncated    bool
	FullResultID string
}

// shellShaped is satisfied by commandtool.Result without toolruntime
// importing that package directly.
type shellShaped interface {
	ShellOutput() (stdout, stderr string)
}

// process routes raw through the context store's truncation strategy that
// matches the tool's natural result shape: plain text for file-read and
// "other", list-shaped for file-glob/file-grep, and the dedicated
// prefix/tail strategy for shell-exec's stdout/stderr pair.
func (r *Runtime) process(ctx context.Context, toolName, input string, raw any) processedOutcome {
	if r.results == nil {
		return processedOutcome{Result: raw}
	}

	switch v := raw.(type) {
	case shellShaped:
		stdout, stderr := v.ShellOutput()
		pr, err := r.results.ProcessShellOutput(ctx, input, stdout, stderr)
		if err != nil {
			return processedOutcome{Result: raw}
		}
		return processedOutcome{Result: pr.Summary, Truncated: pr.Truncated, FullResultID: pr.StoreID}
	case string:
		pr, err := r.results.ProcessText(ctx, toolName, input, v)
		if err != nil {
			return processedOutcome{Result: raw}
		}
		return processedOutcome{Result: pr.Summary, Truncated: pr.Truncated, FullResultID: pr.StoreID}
	case []string:
		summary, pr, err := r.results.ProcessList(ctx, toolName, input, v, nil)
		if err != nil {
			return processedOutcome{Result: raw}
		}
		if pr == nil {
			return processedOutcome{Result: summary}
		}
		return processedOutcome{Result: summary, Truncated: pr.Truncated, FullResultID: pr.StoreID}
	default:
		return processedOutcome{Result: raw}
	}
}

func (r *Runtime) markAudit(ctx context.Context, toolCallID string, status store.ToolCallStatus, output string) {
	if r.audit == nil || toolCallID == "" {
		return
	}
	_ = r.audit.UpdateToolCallStatus(ctx, toolCallID, status, output)
}

// Abort cancels the in-flight call identified by requestID, if any.
func (r *Runtime) Abort(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[requestID]; ok {
		cancel()
		delete(r.cancels, requestID)
	}
}

// AbortAll cancels every in-flight call.
func (r *Runtime) AbortAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.cancels {
		cancel()
		delete(r.cancels, id)
	}
}
