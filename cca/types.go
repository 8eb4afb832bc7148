// Package cca implements the Coder → Critic → Arbiter loop: the primary
// iterative workflow that turns a task description into reviewed,
// human-approved file changes.
//
// Follows pkg/agent/llmagent's agentic-tool-loop shape (send prompt,
// receive tool_use blocks, run tools, append results, repeat until a
// non-tool stop) and pkg/llms/types.go's Message/ToolDefinition/ToolCall
// wire shapes, simplified to the fields this loop actually needs (no
// streaming, no thinking blocks, no a2a protocol types).
package cca

import (
	"context"

	"github.com/arbiterloop/engine/store"
)

// WorkflowState enumerates a CCASessionState's coarse phase.
type WorkflowState string

const (
	StateIdle            WorkflowState = "idle"
	StateCoding          WorkflowState = "coding"
	StateReviewing       WorkflowState = "reviewing"
	StateAwaitingArbiter WorkflowState = "awaiting-arbiter"
	StateApplying        WorkflowState = "applying"
	StateIterating       WorkflowState = "iterating"
	StateCompleted       WorkflowState = "completed"
	StateError           WorkflowState = "error"
)

// IterationRecord bundles one iteration's persisted row with the changes
// and reviews produced during it, for CCASessionState.Iterations.
type IterationRecord struct {
	Iteration *store.Iteration
	Changes   []*store.ProposedChange
	Reviews   []*store.CriticReview
	Decision  *store.ArbiterDecision
}

// ValidationSummary is a lightweight snapshot of the validator pipeline's
// last Summary, kept on CCASessionState for quick inspection without
// re-running validators.
type ValidationSummary struct {
	Status                string
	ApproveCount           int
	RejectCount            int
	ConcernsCount          int
	RequiresHumanDecision bool
}

// CCASessionState is the full state of one run(task, session-id) call,
// returned at the end and reconstructable from the store on resume.
type CCASessionState struct {
	WorkflowState    WorkflowState
	Task             string
	SessionID        string
	Iterations       []*IterationRecord
	CurrentIteration int
	MaxIterations    int
	ConsensusReached bool
	Aborted          bool
	LastValidation   *ValidationSummary
}

// Message is one entry in the coder's conversation, mirroring
// pkg/llms.Message's shape.
type Message struct {
	Role       string // "user", "assistant", "system", "tool"
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition describes one callable tool to the coder's API provider,
// mirroring pkg/llms.ToolDefinition.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one tool invocation requested by the coder, mirroring
// pkg/llms.ToolCall.
type ToolCall struct {
	ID      string
	Name    string
	RawArgs string
}

// StopReason enumerates why the coder's API provider stopped generating.
type StopReason string

const (
	StopToolUse StopReason = "tool_use"
	StopEnd     StopReason = "end"
)

// CoderResponse is one turn of the coder's API provider.
type CoderResponse struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
}

// CoderProvider is the coder's API provider. Follows pkg/llms/registry.go's
// LLMProvider.Generate, trimmed to the fields this loop consumes: no
// streaming, no token/thinking accounting (owned instead by the workflow
// executor's context budget reporting).
type CoderProvider interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (CoderResponse, error)
}
