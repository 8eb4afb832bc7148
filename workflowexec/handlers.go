package workflowexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arbiterloop/engine/toolruntime"
)

// ToolExecutor is the subset of toolruntime.Runtime a tool step needs,
// accepted as an interface so this package doesn't depend on how the
// runtime is constructed.
type ToolExecutor interface {
	Execute(ctx context.Context, req toolruntime.Request) toolruntime.Response
}

// NewToolStepHandler returns the production StepHandler for StepTool:
// step.Config["tool"] names the registered toolruntime.Handler to invoke,
// step.Config["input"] (a map, may be nil/absent) is its input payload. A
// failed or denied call fails the step rather than silently advancing.
func NewToolStepHandler(rt ToolExecutor) StepHandler {
	return StepHandlerFunc(func(ctx context.Context, exec *Execution, step Step) (StepOutcome, error) {
		toolName, _ := step.Config["tool"].(string)
		if toolName == "" {
			return StepOutcome{}, fmt.Errorf("workflowexec: tool step %s: config.tool is required", step.ID)
		}

		input, _ := step.Config["input"].(map[string]any)
		raw, err := json.Marshal(input)
		if err != nil {
			return StepOutcome{}, fmt.Errorf("workflowexec: tool step %s: marshal input: %w", step.ID, err)
		}

		resp := rt.Execute(ctx, toolruntime.Request{
			RequestID:   exec.ID + "/" + step.ID,
			ExecutionID: exec.ID,
			ToolName:    toolName,
			Input:       raw,
		})
		if !resp.Success {
			return StepOutcome{}, fmt.Errorf("workflowexec: tool step %s: %s", step.ID, resp.Error)
		}
		return StepOutcome{Result: resp.Result}, nil
	})
}

// NewEndStepHandler returns the production StepHandler for StepEnd: it
// always completes the execution. End steps carry no Config.
func NewEndStepHandler() StepHandler {
	return StepHandlerFunc(func(ctx context.Context, exec *Execution, step Step) (StepOutcome, error) {
		return StepOutcome{Completed: true}, nil
	})
}

// NewConditionStepHandler returns the production StepHandler for
// StepCondition. It evaluates step.Config against the most recently
// completed step's Result and branches via Config["true"]/Config["false"],
// per Step.Edges' doc comment:
//
//   - Config["field"] (optional): a key to look up in the previous
//     Result, when that Result is a map[string]any. Empty means use the
//     whole Result.
//   - Config["equals"] (optional): the value the looked-up value must
//     equal (compared via fmt.Sprint, so numbers/strings/bools all compare
//     sensibly). Omitted means a truthiness check instead.
func NewConditionStepHandler() StepHandler {
	return StepHandlerFunc(func(ctx context.Context, exec *Execution, step Step) (StepOutcome, error) {
		exec.mu.Lock()
		var prior any
		if n := len(exec.NodeExecutions); n > 0 {
			prior = exec.NodeExecutions[n-1].Result
		}
		exec.mu.Unlock()

		branch := "false"
		if evaluateCondition(step.Config, prior) {
			branch = "true"
		}
		next, _ := step.Config[branch].(string)
		if next == "" {
			return StepOutcome{}, fmt.Errorf("workflowexec: condition step %s: no %q branch configured", step.ID, branch)
		}
		return StepOutcome{NextStepID: next}, nil
	})
}

func evaluateCondition(cfg map[string]any, value any) bool {
	if field, _ := cfg["field"].(string); field != "" {
		m, _ := value.(map[string]any)
		value = m[field]
	}
	if want, has := cfg["equals"]; has {
		return fmt.Sprint(value) == fmt.Sprint(want)
	}
	return truthy(value)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}
