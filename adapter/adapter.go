// Package adapter is the Adapter / Notification Layer: it translates
// inbound RPC method calls into calls against the store, the workflow
// executor, and the CCA workflow, and buffers/fans out the outbound
// notifications those calls produce.
//
// The line-delimited JSON-RPC 2.0 framing itself is out of scope (the
// collaborator owns the socket/stdio transport); this package owns the
// method dispatch table, parameter decoding, standard/domain error codes,
// and notification buffering described for the core's RPC surface.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/arbiterloop/engine/cca"
	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/workflowexec"
)

// MethodHandler handles one RPC method call, returning a JSON-able result
// or an *Error.
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Notification is one server->client event: a method name (from the
// `workflow/...` notification namespace) plus its JSON-able params.
type Notification struct {
	Method string
	Params any
}

// NotificationHandler receives outbound notifications once attached.
type NotificationHandler func(n Notification)

// Adapter dispatches RPC methods and fans out notifications. It is the
// single point where the core's components (store, executor, CCA
// workflow, feed, permission evaluator) are wired to an external caller.
type Adapter struct {
	Store     *store.Store
	Executor  *workflowexec.Executor
	Context   *workflowexec.ContextManager
	Evaluator *permission.Evaluator
	Feed      *feed.Feed

	// Sessions resolves a session id to the CCAWorkflow driving it. A
	// deployment with a single workspace may return the same *CCAWorkflow
	// for every id.
	Sessions func(sessionID string) (*cca.CCAWorkflow, error)

	methods map[string]MethodHandler

	notifyMu sync.Mutex
	handler  NotificationHandler
	pending  []Notification // unbounded buffer until a handler is attached
}

// New constructs an Adapter and registers its method dispatch table.
func New(s *store.Store, ex *workflowexec.Executor, cm *workflowexec.ContextManager, ev *permission.Evaluator, f *feed.Feed, sessions func(string) (*cca.CCAWorkflow, error)) *Adapter {
	a := &Adapter{
		Store:     s,
		Executor:  ex,
		Context:   cm,
		Evaluator: ev,
		Feed:      f,
		Sessions:  sessions,
		methods:   make(map[string]MethodHandler),
	}
	a.registerWorkflowMethods()
	a.registerExecutionMethods()
	a.registerContextMethods()
	a.registerPermissionMethods()
	a.registerSessionMethods()
	a.registerMiscMethods()
	return a
}

// Register adds or replaces a method handler. Exposed so a deployment can
// extend the dispatch table beyond the built-in namespaces.
func (a *Adapter) Register(method string, h MethodHandler) {
	a.methods[method] = h
}

// Dispatch looks up method and invokes it with raw params, normalizing any
// returned error into an *Error so callers never see a bare error value.
func (a *Adapter) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	h, ok := a.methods[method]
	if !ok {
		return nil, MethodNotFound(method)
	}
	result, err := h(ctx, params)
	if err == nil {
		return result, nil
	}
	if adapterErr, ok := err.(*Error); ok {
		return nil, adapterErr
	}
	return nil, Internal(err)
}

// Notify attaches h as the notification sink, flushing any notifications
// buffered before a handler was installed, in order. Once flushed, it also
// replays the executor's currently pending (paused/awaiting-input)
// executions through h, so a client attaching mid-run sees their state
// instead of only events emitted from this point forward.
func (a *Adapter) Notify(h NotificationHandler) {
	a.notifyMu.Lock()
	a.handler = h
	backlog := a.pending
	a.pending = nil
	a.notifyMu.Unlock()

	for _, n := range backlog {
		h(n)
	}

	if a.Executor != nil {
		a.Executor.RecoverPending()
	}
}

// emit sends a notification to the attached handler, or buffers it if none
// is attached yet (the adapter produces events during bootstrap before a
// client connects).
func (a *Adapter) emit(method string, params any) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	n := Notification{Method: method, Params: params}
	if a.handler == nil {
		a.pending = append(a.pending, n)
		return
	}
	a.handler(n)
}

// decodeParams unmarshals raw into a map[string]any, then mapstructure-
// decodes that map into dst (a pointer to a typed params struct), so each
// method handler writes a plain Go struct instead of hand-rolling field
// extraction from a generic JSON object.
func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("adapter: decode params: %w", err)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("adapter: build decoder: %w", err)
	}
	return decoder.Decode(generic)
}
