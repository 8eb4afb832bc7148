// Package workflowexec is the Workflow Executor: a generic graph/step state
// machine, context compaction and budget reporting, and a feedback queue,
// shared by any workflow (the CCA loop is one client of it, built in the
// sibling cca package).
//
// Follows the step-graph shape of the workflowagent family
// (pkg/agent/workflowagent: sequential.go/parallel.go/loop.go) and the
// checkpoint/recovery hooks pattern of pkg/checkpoint/manager.go and
// state.go, generalized from fixed sequential/parallel/loop compositions
// into a declarative step graph with typed edges so workflows can be
// user-authored rather than hand-assembled as Go structs.
package workflowexec

import "time"

// TriggerType enumerates how an execution of a WorkflowDefinition may start.
type TriggerType string

const (
	TriggerOnMessage TriggerType = "on-message"
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// StepType enumerates the kinds of node a workflow graph may contain.
type StepType string

const (
	StepAgent        StepType = "agent"
	StepCondition     StepType = "condition"
	StepTool         StepType = "tool"
	StepHandoff      StepType = "handoff"
	StepReviewPanel  StepType = "review-panel"
	StepEnd          StepType = "end"
)

// Step is one node in a WorkflowDefinition's graph.
type Step struct {
	ID       string
	Type     StepType
	Edges    []string // successor step ids; condition steps branch via Config["true"]/Config["false"]
	Config   map[string]any
}

// WorkflowDefinition is a named, versioned graph of Steps.
type WorkflowDefinition struct {
	ID          string
	Name        string
	Description string
	Version     int
	Trigger     TriggerType
	Default     bool
	AgentPool   []string
	Steps       []Step
	MaxIterations int // default 100, hard cap 1000
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

const (
	defaultMaxIterations = 100
	hardMaxIterations    = 1000
)

// SetDefaults fills MaxIterations with the default and clamps it to the
// global hard cap.
func (d *WorkflowDefinition) SetDefaults() {
	if d.MaxIterations <= 0 {
		d.MaxIterations = defaultMaxIterations
	}
	if d.MaxIterations > hardMaxIterations {
		d.MaxIterations = hardMaxIterations
	}
}

// stepByID returns the step with the given id, or nil.
func (d *WorkflowDefinition) stepByID(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// firstStep returns the entry step (the first element of Steps).
func (d *WorkflowDefinition) firstStep() *Step {
	if len(d.Steps) == 0 {
		return nil
	}
	return &d.Steps[0]
}

// Validate checks structural well-formedness: every edge must reference a
// known step id, and at least one step must exist.
func (d *WorkflowDefinition) Validate() error {
	if len(d.Steps) == 0 {
		return ErrEmptyWorkflow
	}
	ids := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return ErrInvalidStep
		}
		ids[s.ID] = true
	}
	for _, s := range d.Steps {
		for _, e := range s.Edges {
			if !ids[e] {
				return ErrDanglingEdge
			}
		}
	}
	return nil
}
