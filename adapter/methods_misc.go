package adapter

import (
	"context"
	"encoding/json"

	"github.com/arbiterloop/engine/store"
)

type reviewPanelDecideParams struct {
	IterationID   string   `json:"iteration_id"`
	Decision      string   `json:"decision"`
	Feedback      string   `json:"feedback"`
	AddressIssues []string `json:"address_issues"`
	FocusFiles    []string `json:"focus_files"`
	DecidedBy     string   `json:"decided_by"`
}

// registerMiscMethods wires the RPC methods that don't belong to the
// workflow/execute, workflow/context, workflow/permission, or
// workflow/session families: a human arbiter override for a split critic
// panel. The workflow/debug/info introspection method is registered with
// the execution methods.
func (a *Adapter) registerMiscMethods() {
	a.Register("workflow/review_panel/decide", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p reviewPanelDecideParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("iteration_id", err)
		}
		decision := &store.ArbiterDecision{
			IterationID:   p.IterationID,
			Decision:      store.ArbiterDecisionType(p.Decision),
			Feedback:      p.Feedback,
			AddressIssues: p.AddressIssues,
			FocusFiles:    p.FocusFiles,
			DecidedBy:     p.DecidedBy,
			Forced:        true,
		}
		if err := a.Store.CreateDecision(ctx, decision); err != nil {
			return nil, wrapError(CodeValidationFailed, "review panel decision failed", err)
		}
		a.emit("workflow/review_panel/decided", decision)
		return decision, nil
	})
}
