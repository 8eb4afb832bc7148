package workflowexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arbiterloop/engine/observability"
)

// Status enumerates an Execution's lifecycle (state machine).
type Status string

const (
	StatusRunning       Status = "running"
	StatusPaused        Status = "paused"
	StatusAwaitingInput Status = "awaiting-input"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether s admits no further transitions other than a
// re-trigger (completed only, and only for on-message/manual workflows).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// NodeExecution records one step's execution within an Execution.
type NodeExecution struct {
	ID          string
	ExecutionID string
	StepID      string
	Result      any
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Execution is one run of a WorkflowDefinition.
type Execution struct {
	ID              string
	WorkflowID      string
	Status          Status
	CurrentStepID   string
	IterationCount  int
	StartedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	Error           string

	PendingCheckpoint *Checkpoint
	NodeExecutions    []*NodeExecution

	// cancelRequested is set by CancelExecution. An in-flight step runs to
	// completion; ExecuteStep then records its NodeExecution and returns
	// without advancing. In-flight tool calls are not aborted.
	cancelRequested bool
	mu              sync.Mutex
}

func (e *Execution) requestCancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelRequested = true
}

func (e *Execution) cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelRequested
}

// StepOutcome is what a StepHandler returns after running one step.
type StepOutcome struct {
	NextStepID string // empty means "use the step's single/first edge"
	Completed  bool   // reached an end step
	Paused     bool   // needs a user message (awaiting-input)
	Checkpoint *Checkpoint
	Result     any
}

// StepHandler runs one step of a given StepType.
type StepHandler interface {
	Run(ctx context.Context, exec *Execution, step Step) (StepOutcome, error)
}

// StepHandlerFunc adapts a function to StepHandler.
type StepHandlerFunc func(ctx context.Context, exec *Execution, step Step) (StepOutcome, error)

func (f StepHandlerFunc) Run(ctx context.Context, exec *Execution, step Step) (StepOutcome, error) {
	return f(ctx, exec, step)
}

// Executor is the Workflow Executor: it owns WorkflowDefinitions, running
// Executions, and the per-execution loop mutex invariant.
type Executor struct {
	mu          sync.Mutex
	definitions map[string]*WorkflowDefinition
	executions  map[string]*Execution
	handlers    map[StepType]StepHandler
	notifier    Notifier

	runningLoops map[string]bool // execution-id -> loop active

	idGen func(prefix string) string

	// Metrics is exported so a deployment can attach a Prometheus sink
	// after construction; a nil value leaves every recording a no-op.
	Metrics *observability.Metrics
}

// New constructs an Executor. idGen generates unique ids (tests may supply a
// deterministic generator); nil uses a monotonic counter.
func New(notifier Notifier, idGen func(prefix string) string) *Executor {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if idGen == nil {
		idGen = counterIDGen()
	}
	return &Executor{
		definitions:  make(map[string]*WorkflowDefinition),
		executions:   make(map[string]*Execution),
		handlers:     make(map[StepType]StepHandler),
		notifier:     notifier,
		runningLoops: make(map[string]bool),
		idGen:        idGen,
	}
}

func counterIDGen() func(prefix string) string {
	var mu sync.Mutex
	var n int
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// RegisterWorkflow adds or replaces a WorkflowDefinition after validating it.
func (ex *Executor) RegisterWorkflow(def *WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def.SetDefaults()
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.definitions[def.ID] = def
	return nil
}

// RegisterHandler binds a StepHandler to a StepType.
func (ex *Executor) RegisterHandler(t StepType, h StepHandler) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.handlers[t] = h
}

// SetNotifier replaces the executor's notification sink. Exported so a
// deployment can wire a callback that closes over the executor's own
// constructed value (e.g. an adapter.Adapter built from this very
// *Executor) after construction, the same post-construction-attach pattern
// as the Metrics field. A nil n restores the no-op notifier.
func (ex *Executor) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.notifier = n
}

// Workflow returns a registered definition.
func (ex *Executor) Workflow(id string) (*WorkflowDefinition, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	d, ok := ex.definitions[id]
	return d, ok
}

// ListWorkflows returns every registered definition.
func (ex *Executor) ListWorkflows() []*WorkflowDefinition {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	out := make([]*WorkflowDefinition, 0, len(ex.definitions))
	for _, d := range ex.definitions {
		out = append(out, d)
	}
	return out
}

// DeleteWorkflow removes a registered definition, reporting whether one
// existed.
func (ex *Executor) DeleteWorkflow(id string) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if _, ok := ex.definitions[id]; !ok {
		return false
	}
	delete(ex.definitions, id)
	return true
}

// SetDefaultWorkflow marks id as the default definition, clearing the
// Default flag on every other registered definition.
func (ex *Executor) SetDefaultWorkflow(id string) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if _, ok := ex.definitions[id]; !ok {
		return ErrWorkflowNotFound
	}
	for _, d := range ex.definitions {
		d.Default = d.ID == id
	}
	return nil
}

// Execution returns a running or completed execution by id.
func (ex *Executor) Execution(id string) (*Execution, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	e, ok := ex.executions[id]
	return e, ok
}

// StartExecution creates a new Execution for workflowID in status running,
// positioned at the workflow's first step.
func (ex *Executor) StartExecution(workflowID string) (*Execution, error) {
	ex.mu.Lock()
	def, ok := ex.definitions[workflowID]
	ex.mu.Unlock()
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	first := def.firstStep()
	if first == nil {
		return nil, ErrEmptyWorkflow
	}

	now := time.Now()
	exec := &Execution{
		ID:            ex.idGen("exec"),
		WorkflowID:    workflowID,
		Status:        StatusRunning,
		CurrentStepID: first.ID,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	ex.mu.Lock()
	ex.executions[exec.ID] = exec
	ex.mu.Unlock()

	ex.Metrics.IncWorkflowExecutionsActive()
	ex.notifier.ExecutionStarted(exec)
	return exec, nil
}

// PauseExecution transitions a running execution to paused.
func (ex *Executor) PauseExecution(id string) error {
	exec, ok := ex.Execution(id)
	if !ok {
		return ErrExecutionNotFound
	}
	exec.mu.Lock()
	if exec.Status != StatusRunning {
		exec.mu.Unlock()
		return fmt.Errorf("workflowexec: cannot pause execution in status %s", exec.Status)
	}
	exec.Status = StatusPaused
	exec.UpdatedAt = time.Now()
	exec.mu.Unlock()
	ex.notifier.ExecutionPaused(exec)
	return nil
}

// ResumeExecution transitions a paused execution back to running.
func (ex *Executor) ResumeExecution(id string) error {
	exec, ok := ex.Execution(id)
	if !ok {
		return ErrExecutionNotFound
	}
	exec.mu.Lock()
	if exec.Status != StatusPaused {
		exec.mu.Unlock()
		return ErrNotPaused
	}
	exec.Status = StatusRunning
	exec.UpdatedAt = time.Now()
	exec.mu.Unlock()
	ex.notifier.ExecutionResumed(exec)
	return nil
}

// CancelExecution marks a non-terminal execution cancelled at the next safe
// point. If a step is in flight, its cancellation flag is set;
// the step loop observes it between steps.
func (ex *Executor) CancelExecution(id string) error {
	exec, ok := ex.Execution(id)
	if !ok {
		return ErrExecutionNotFound
	}
	exec.mu.Lock()
	if exec.Status.Terminal() {
		exec.mu.Unlock()
		return ErrTerminalState
	}
	exec.requestCancelLocked()
	exec.Status = StatusCancelled
	now := time.Now()
	exec.CompletedAt = &now
	exec.UpdatedAt = now
	exec.mu.Unlock()
	ex.Metrics.DecWorkflowExecutionsActive()
	ex.notifier.ExecutionCancelled(exec)
	return nil
}

// requestCancelLocked sets cancelRequested while exec.mu is already held.
func (e *Execution) requestCancelLocked() { e.cancelRequested = true }

// SendMessage resumes an awaiting-input execution so the loop can continue:
// awaiting-input -> running via send_message.
func (ex *Executor) SendMessage(id string) error {
	exec, ok := ex.Execution(id)
	if !ok {
		return ErrExecutionNotFound
	}
	exec.mu.Lock()
	if exec.Status != StatusAwaitingInput {
		exec.mu.Unlock()
		return ErrNotAwaitingInput
	}
	exec.Status = StatusRunning
	exec.UpdatedAt = time.Now()
	exec.mu.Unlock()
	ex.notifier.ExecutionResumed(exec)
	return nil
}

// StepResult is execute_step's return shape.
type StepResult struct {
	Execution     *Execution
	NodeExecution *NodeExecution
	Checkpoint    *Checkpoint
	Completed     bool
	Paused        bool
	Err           error
}

// ExecuteStep advances exec by exactly one step.
func (ex *Executor) ExecuteStep(ctx context.Context, executionID string) StepResult {
	ctx, span := observability.StartSpan(ctx, "workflowexec", "ExecuteStep")
	defer span.End()

	exec, ok := ex.Execution(executionID)
	if !ok {
		return StepResult{Err: ErrExecutionNotFound}
	}

	exec.mu.Lock()
	status := exec.Status
	stepID := exec.CurrentStepID
	exec.mu.Unlock()

	if status != StatusRunning {
		return StepResult{Execution: exec, Err: fmt.Errorf("workflowexec: execution %s is not running (status=%s)", executionID, status)}
	}

	def, ok := ex.Workflow(exec.WorkflowID)
	if !ok {
		ex.failExecution(exec, "workflow definition no longer registered")
		return StepResult{Execution: exec, Err: ErrWorkflowNotFound}
	}

	step := def.stepByID(stepID)
	if step == nil {
		ex.failExecution(exec, fmt.Sprintf("step %q not found in workflow graph", stepID))
		return StepResult{Execution: exec, Err: fmt.Errorf("workflowexec: %w: step %s", ErrInvalidStep, stepID)}
	}

	ex.mu.Lock()
	handler, hasHandler := ex.handlers[step.Type]
	ex.mu.Unlock()
	if !hasHandler {
		ex.failExecution(exec, fmt.Sprintf("no handler registered for step type %q", step.Type))
		return StepResult{Execution: exec, Err: fmt.Errorf("workflowexec: no handler for step type %s", step.Type)}
	}

	node := &NodeExecution{ID: ex.idGen("node"), ExecutionID: executionID, StepID: step.ID, StartedAt: time.Now()}

	outcome, err := handler.Run(ctx, exec, *step)

	completedAt := time.Now()
	node.CompletedAt = &completedAt
	node.Result = outcome.Result
	stepOutcome := "completed"
	if err != nil {
		node.Error = err.Error()
		stepOutcome = "error"
	} else if outcome.Checkpoint != nil || outcome.Paused {
		stepOutcome = "paused"
	}
	ex.Metrics.RecordWorkflowStep(string(step.Type), stepOutcome)

	exec.mu.Lock()
	exec.NodeExecutions = append(exec.NodeExecutions, node)
	exec.UpdatedAt = completedAt
	cancelled := exec.cancelRequested
	exec.mu.Unlock()

	ex.notifier.NodeCompleted(exec, node)

	if cancelled {
		return StepResult{Execution: exec, NodeExecution: node}
	}

	if err != nil {
		ex.failExecution(exec, err.Error())
		return StepResult{Execution: exec, NodeExecution: node, Err: err}
	}

	if outcome.Checkpoint != nil {
		exec.mu.Lock()
		exec.PendingCheckpoint = outcome.Checkpoint
		exec.Status = StatusAwaitingInput
		exec.UpdatedAt = time.Now()
		exec.mu.Unlock()
		ex.notifier.CheckpointReached(exec, outcome.Checkpoint)
		return StepResult{Execution: exec, NodeExecution: node, Checkpoint: outcome.Checkpoint}
	}

	if outcome.Paused {
		exec.mu.Lock()
		exec.Status = StatusAwaitingInput
		exec.UpdatedAt = time.Now()
		exec.mu.Unlock()
		return StepResult{Execution: exec, NodeExecution: node, Paused: true}
	}

	if outcome.Completed {
		ex.completeExecution(exec)
		return StepResult{Execution: exec, NodeExecution: node, Completed: true}
	}

	// Advance to the next step. A stall (no next step and not flagged
	// completed/paused) is itself a failure.
	next := outcome.NextStepID
	if next == "" {
		if len(step.Edges) == 0 {
			ex.failExecution(exec, "workflow stalled: no outgoing edge and step did not terminate")
			return StepResult{Execution: exec, NodeExecution: node, Err: fmt.Errorf("workflowexec: stall at step %s", step.ID)}
		}
		next = step.Edges[0]
	}

	exec.mu.Lock()
	exec.CurrentStepID = next
	exec.IterationCount++
	iterCount := exec.IterationCount
	exec.UpdatedAt = time.Now()
	exec.mu.Unlock()

	if iterCount >= def.MaxIterations {
		ex.failExecution(exec, fmt.Sprintf("max-iterations cap (%d) reached without completion", def.MaxIterations))
		return StepResult{Execution: exec, NodeExecution: node, Err: fmt.Errorf("workflowexec: iteration cap reached for execution %s", executionID)}
	}

	return StepResult{Execution: exec, NodeExecution: node}
}

func (ex *Executor) failExecution(exec *Execution, reason string) {
	exec.mu.Lock()
	if exec.Status.Terminal() {
		exec.mu.Unlock()
		return
	}
	exec.Status = StatusFailed
	exec.Error = reason
	now := time.Now()
	exec.CompletedAt = &now
	exec.UpdatedAt = now
	exec.mu.Unlock()
	ex.Metrics.DecWorkflowExecutionsActive()
	ex.notifier.ExecutionFailed(exec, reason)
}

func (ex *Executor) completeExecution(exec *Execution) {
	exec.mu.Lock()
	exec.Status = StatusCompleted
	now := time.Now()
	exec.CompletedAt = &now
	exec.UpdatedAt = now
	exec.mu.Unlock()
	ex.Metrics.DecWorkflowExecutionsActive()
	ex.notifier.ExecutionCompleted(exec)
}

// RunExecutionLoop calls ExecuteStep repeatedly until a terminal state,
// checkpoint, pause, or the workflow's iteration cap. Mutex invariant: at
// most one loop per execution-id; a second concurrent call returns false
// immediately.
func (ex *Executor) RunExecutionLoop(ctx context.Context, executionID string) (ran bool) {
	ex.mu.Lock()
	if ex.runningLoops[executionID] {
		ex.mu.Unlock()
		return false
	}
	ex.runningLoops[executionID] = true
	ex.mu.Unlock()

	defer func() {
		ex.mu.Lock()
		delete(ex.runningLoops, executionID)
		ex.mu.Unlock()
	}()

	for {
		exec, ok := ex.Execution(executionID)
		if !ok {
			return true
		}
		exec.mu.Lock()
		status := exec.Status
		exec.mu.Unlock()
		if status != StatusRunning {
			return true
		}

		result := ex.ExecuteStep(ctx, executionID)
		if result.Err != nil || result.Completed || result.Paused || result.Checkpoint != nil {
			return true
		}

		select {
		case <-ctx.Done():
			return true
		default:
		}
	}
}

// LoopRunning reports whether a RunExecutionLoop is currently active for id,
// exposed for the debug/introspection surface.
func (ex *Executor) LoopRunning(executionID string) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.runningLoops[executionID]
}

// Retrigger re-enters a completed execution on a new inbound message, per
// re-trigger semantics: only on-message/manual workflows
// allow this; other trigger types leave completed terminal.
func (ex *Executor) Retrigger(executionID string) error {
	exec, ok := ex.Execution(executionID)
	if !ok {
		return ErrExecutionNotFound
	}
	def, ok := ex.Workflow(exec.WorkflowID)
	if !ok {
		return ErrWorkflowNotFound
	}
	if def.Trigger != TriggerOnMessage && def.Trigger != TriggerManual {
		return ErrRetriggerNotAllowed
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.Status != StatusCompleted {
		return fmt.Errorf("workflowexec: retrigger requires status completed, got %s", exec.Status)
	}
	first := def.firstStep()
	if first == nil {
		return ErrEmptyWorkflow
	}
	exec.IterationCount++
	exec.CurrentStepID = first.ID
	exec.Status = StatusRunning
	exec.CompletedAt = nil
	exec.cancelRequested = false
	exec.UpdatedAt = time.Now()
	return nil
}
