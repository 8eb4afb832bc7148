package cca

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/toolruntime"
	"github.com/arbiterloop/engine/validator"
)

const defaultMaxToolLoops = 50

// codingResult is what runCodingPhase hands back to the iteration loop.
type codingResult struct {
	Changes     []*store.ProposedChange
	AuditReviews []*store.CriticReview // inline critic reviews observed during this phase
	CapHit      bool
}

// toolSchemas builds the tool-definition list the coder's API provider is
// given alongside the prompt, from every handler the runtime knows about.
func toolSchemas(tools map[string]toolruntime.Handler) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, h := range tools {
		defs = append(defs, ToolDefinition{Name: h.Name(), Description: h.Description(), Parameters: h.Schema()})
	}
	return defs
}

// runCodingPhase sends the prompt, then runs the agentic tool loop
// (bounded by maxToolLoops) until the assistant returns a non-tool stop
// reason or the cap is hit.
func runCodingPhase(
	ctx context.Context,
	coder CoderProvider,
	runtime *toolruntime.Runtime,
	pipeline validator.Pipeline,
	f *feed.Feed,
	sessionID, executionID, workspace string,
	iter *store.Iteration,
	prompt string,
	tools []ToolDefinition,
	maxToolLoops int,
) (codingResult, error) {
	if maxToolLoops <= 0 {
		maxToolLoops = defaultMaxToolLoops
	}

	messages := []Message{{Role: "user", Content: prompt}}
	var result codingResult

	for loopCount := 0; loopCount < maxToolLoops; loopCount++ {
		resp, err := coder.Generate(ctx, messages, tools)
		if err != nil {
			return result, fmt.Errorf("cca: coder generate: %w", err)
		}

		messages = append(messages, Message{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls})

		if resp.StopReason != StopToolUse || len(resp.ToolCalls) == 0 {
			return result, nil
		}

		for _, tc := range resp.ToolCalls {
			reviews := inlineCriticReview(ctx, pipeline, sessionID, workspace, tc)

			toolResp := runtime.Execute(ctx, toolruntime.Request{
				RequestID:     tc.ID,
				SessionID:     sessionID,
				ExecutionID:   executionID,
				CallingAgent:  "coder",
				ToolName:      tc.Name,
				Input:         json.RawMessage(tc.RawArgs),
				TargetPath:    targetPathFromArgs(tc.RawArgs),
				CriticReviews: reviews,
			})

			if toolResp.Success && (tc.Name == "file-write" || tc.Name == "file-edit") {
				change := proposedChangeFromToolCall(iter.ID, tc)
				change.Status = store.ChangeApplied
				result.Changes = append(result.Changes, change)
				result.AuditReviews = append(result.AuditReviews, reviews...)
			}

			messages = append(messages, Message{
				Role:       "tool",
				Content:    toolResultContent(toolResp),
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	result.CapHit = true
	f.Post(feed.Entry{
		Source:  feed.SourceSystem,
		Type:    feed.TypeAction,
		Content: fmt.Sprintf("tool loop cap (%d) reached for iteration %s; returning control to the user", maxToolLoops, iter.ID),
	})
	return result, nil
}

// inlineCriticReview runs the validator pipeline with trigger "on-change"
// before a file-write/file-edit tool call executes: the resulting reviews
// must surface at the permission UI.
func inlineCriticReview(ctx context.Context, pipeline validator.Pipeline, sessionID, workspace string, tc ToolCall) []store.CriticReview {
	if pipeline == nil || (tc.Name != "file-write" && tc.Name != "file-edit") {
		return nil
	}
	file := targetPathFromArgs(tc.RawArgs)
	summary, err := pipeline.Validate(ctx, validator.Trigger{Kind: "on-change", Payload: []string{file}}, validator.Context{SessionID: sessionID, Workspace: workspace})
	if err != nil || summary == nil {
		return nil
	}
	reviews := make([]store.CriticReview, 0, len(summary.Results))
	for _, res := range summary.Results {
		review := *validationResultToCriticReview("", res)
		reviews = append(reviews, review)
	}
	return reviews
}

func targetPathFromArgs(rawArgs string) string {
	var args struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal([]byte(rawArgs), &args)
	return args.Path
}

func proposedChangeFromToolCall(iterationID string, tc ToolCall) *store.ProposedChange {
	var args struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
		OldString *string `json:"old_string"`
	}
	_ = json.Unmarshal([]byte(tc.RawArgs), &args)

	op := store.OpCreate
	var original *string
	if tc.Name == "file-edit" {
		op = store.OpModify
		original = args.OldString
	}

	return &store.ProposedChange{
		IterationID:     iterationID,
		FilePath:        args.Path,
		Operation:       op,
		OriginalContent: original,
		NewContent:      args.Content,
	}
}

func toolResultContent(resp toolruntime.Response) string {
	if !resp.Success {
		return fmt.Sprintf(`{"permission_denied":%t,"error":%q}`, resp.PermissionDenied, resp.Error)
	}
	out, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Sprintf("%v", resp.Result)
	}
	return string(out)
}
