package adapter

import (
	"context"
	"encoding/json"

	"github.com/arbiterloop/engine/workflowexec"
)

type workflowIDParams struct {
	ID string `json:"id"`
}

type createWorkflowParams struct {
	ID            string                   `json:"id"`
	Name          string                   `json:"name"`
	Description   string                   `json:"description"`
	Trigger       string                   `json:"trigger"`
	Steps         []workflowStepParams     `json:"steps"`
	MaxIterations int                      `json:"max_iterations"`
}

type workflowStepParams struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Edges  []string       `json:"edges"`
	Config map[string]any `json:"config"`
}

func (p createWorkflowParams) toDefinition() *workflowexec.WorkflowDefinition {
	steps := make([]workflowexec.Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = workflowexec.Step{
			ID:     s.ID,
			Type:   workflowexec.StepType(s.Type),
			Edges:  s.Edges,
			Config: s.Config,
		}
	}
	return &workflowexec.WorkflowDefinition{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Trigger:       workflowexec.TriggerType(p.Trigger),
		Steps:         steps,
		MaxIterations: p.MaxIterations,
	}
}

func (a *Adapter) registerWorkflowMethods() {
	a.Register("workflow/list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return a.Executor.ListWorkflows(), nil
	})

	a.Register("workflow/get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p workflowIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("id", err)
		}
		def, ok := a.Executor.Workflow(p.ID)
		if !ok {
			return nil, newError(CodeExecutionNotFound, "workflow not found: "+p.ID)
		}
		return def, nil
	})

	a.Register("workflow/create", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p createWorkflowParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("workflow", err)
		}
		def := p.toDefinition()
		if err := a.Executor.RegisterWorkflow(def); err != nil {
			return nil, wrapError(CodeValidationFailed, "workflow validation failed", err)
		}
		a.emit("workflow/created", def)
		return def, nil
	})

	a.Register("workflow/update", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p createWorkflowParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("workflow", err)
		}
		def := p.toDefinition()
		if err := a.Executor.RegisterWorkflow(def); err != nil {
			return nil, wrapError(CodeValidationFailed, "workflow validation failed", err)
		}
		a.emit("workflow/updated", def)
		return def, nil
	})

	a.Register("workflow/delete", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p workflowIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("id", err)
		}
		if !a.Executor.DeleteWorkflow(p.ID) {
			return nil, newError(CodeExecutionNotFound, "workflow not found: "+p.ID)
		}
		a.emit("workflow/deleted", p)
		return map[string]bool{"deleted": true}, nil
	})

	a.Register("workflow/setDefault", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p workflowIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("id", err)
		}
		if err := a.Executor.SetDefaultWorkflow(p.ID); err != nil {
			return nil, newError(CodeExecutionNotFound, "workflow not found: "+p.ID)
		}
		a.emit("workflow/defaultChanged", p)
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/validate", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p createWorkflowParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("workflow", err)
		}
		def := p.toDefinition()
		if err := def.Validate(); err != nil {
			return map[string]any{"valid": false, "issues": []string{err.Error()}}, nil
		}
		return map[string]any{"valid": true}, nil
	})
}
