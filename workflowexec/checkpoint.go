package workflowexec

import "time"

// Checkpoint is a point where an execution suspends pending external input
// (a user message, an arbiter decision, a review-panel vote). Modeled on
// pkg/checkpoint/state.go's State, which persists LLM/runner phase state
// for process-restart recovery; this one is the lighter in-memory analogue
// scoped to the executor's own awaiting-input transition — process-restart
// recovery for CCA sessions is owned by the cca package's restore-pending-
// arbiter path instead.
type Checkpoint struct {
	ID          string
	ExecutionID string
	StepID      string
	Kind        string // e.g. "awaiting-input", "arbiter-decision", "review-panel"
	Payload     any
	CreatedAt   time.Time
	RespondedAt *time.Time
	Response    any
}

// Respond resolves exec's pending checkpoint, clears it, and transitions the
// execution back to running; "checkpoint/respond" is one of the triggers
// from awaiting-input back to running.
func (ex *Executor) Respond(executionID string, response any) error {
	exec, ok := ex.Execution(executionID)
	if !ok {
		return ErrExecutionNotFound
	}

	exec.mu.Lock()
	if exec.Status != StatusAwaitingInput || exec.PendingCheckpoint == nil {
		exec.mu.Unlock()
		return ErrNotAwaitingInput
	}
	cp := exec.PendingCheckpoint
	now := time.Now()
	cp.RespondedAt = &now
	cp.Response = response
	exec.PendingCheckpoint = nil
	exec.Status = StatusRunning
	exec.UpdatedAt = now
	exec.mu.Unlock()

	ex.notifier.CheckpointResponded(exec, cp)
	return nil
}

// RecoverPending re-emits a lifecycle notification for every execution
// currently sitting in a non-terminal, input-waiting state (paused or
// awaiting-input with a pending checkpoint). Call it whenever a new
// notification sink attaches — a client reconnecting to a long-running
// engine process — so it observes the current state of in-flight
// executions instead of only events emitted from that point forward.
//
// ex.executions lives in process memory only (see the package doc and
// Checkpoint's comment above), so across a process restart there is
// nothing here to scan: the map starts empty. Recovery of durable state
// across restarts is scoped to the cca package's own
// Session/Iteration/ArbiterDecision rows instead (see DESIGN.md). This
// scan is for same-process notification-channel reconnects, not
// process-restart recovery.
func (ex *Executor) RecoverPending() int {
	ex.mu.Lock()
	execs := make([]*Execution, 0, len(ex.executions))
	for _, e := range ex.executions {
		execs = append(execs, e)
	}
	ex.mu.Unlock()

	n := 0
	for _, exec := range execs {
		exec.mu.Lock()
		status := exec.Status
		cp := exec.PendingCheckpoint
		exec.mu.Unlock()

		switch {
		case status == StatusAwaitingInput && cp != nil:
			ex.notifier.CheckpointReached(exec, cp)
			n++
		case status == StatusPaused || status == StatusAwaitingInput:
			ex.notifier.ExecutionPaused(exec)
			n++
		}
	}
	return n
}
