// Package validator defines the Validator Plugin Contract: the engine
// depends only on this interface, never on a concrete validation
// implementation. staticvalidator.go provides one reference, stateless
// implementation (a lint-shaped checker) used by tests and the CLI demo.
//
// Follows the Tool interface split of pkg/tool/tool.go — a narrow contract
// the engine calls through, concrete implementations registered separately
// — applied here to validation pipelines instead of tools.
package validator

import (
	"context"
	"time"
)

// Status is a validator's (or a summary's) overall verdict.
type Status string

const (
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusNeedsRevision Status = "needs-revision"
	StatusError         Status = "error"
)

// Severity classifies one structured issue a validator raised.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// Issue is one structured finding from a single validator run.
type Issue struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
}

// Result is one validator's verdict within a ValidationSummary.
type Result struct {
	ValidatorID string        `json:"validator_id"`
	Status      Status        `json:"status"`
	Severity    Severity      `json:"severity,omitempty"`
	Message     string        `json:"message"`
	Issues      []Issue       `json:"issues,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Summary is the aggregate outcome of running a trigger through every
// validator in a pipeline.
type Summary struct {
	Status               Status   `json:"status"`
	Results              []Result `json:"results"`
	RequiresHumanDecision bool    `json:"requires_human_decision"`
	ConsensusReached      bool    `json:"consensus_reached"`
	Warnings              []string `json:"warnings"`
	Errors                []string `json:"errors"`
}

// Trigger describes what prompted validation: a change set, a manual
// request, or a scheduled check. Content is deliberately opaque to the
// engine — only the Pipeline implementation interprets it.
type Trigger struct {
	Kind    string
	Payload any
}

// Context carries whatever state a Pipeline implementation needs to
// evaluate a Trigger (session id, workspace, proposed changes, ...). Like
// Trigger.Payload, its shape is owned by the Pipeline implementation.
type Context struct {
	SessionID string
	Workspace string
	Payload   any
}

// Pipeline is the entire surface the engine depends on. Implementations
// must be stateless across calls — any caching is the implementation's
// concern, not the contract's.
type Pipeline interface {
	Validate(ctx context.Context, trigger Trigger, vctx Context) (*Summary, error)
	ListValidators() []string
}
