package toolruntime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arbiterloop/engine/contextstore"
)

// GetStoredResult implements the get-stored-result built-in: pagination
// over the context store. It never requires permission.
type GetStoredResult struct {
	Store *contextstore.Store
}

func (GetStoredResult) Name() string          { return "get-stored-result" }
func (GetStoredResult) Description() string   { return "Returns a page of a previously spilled tool result." }
func (GetStoredResult) RequiresApproval() bool { return false }
func (GetStoredResult) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":     map[string]any{"type": "string"},
			"offset": map[string]any{"type": "integer"},
			"limit":  map[string]any{"type": "integer"},
		},
		"required": []string{"id"},
	}
}

type getStoredResultInput struct {
	ID     string `json:"id"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (g GetStoredResult) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in getStoredResultInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("get-stored-result: invalid input: %w", err)
	}
	return g.Store.Fetch(ctx, in.ID, in.Offset, in.Limit)
}
