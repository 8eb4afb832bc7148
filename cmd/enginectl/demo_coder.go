package main

import (
	"context"

	"github.com/arbiterloop/engine/cca"
)

// noopCoder is a placeholder cca.CoderProvider for the demonstration
// binary: the API provider that actually drives an LLM is explicitly out
// of scope for this module, so `serve` wires this stub in its place. It
// always stops immediately without proposing any tool calls, which is
// enough to exercise the loop's iteration/arbiter bookkeeping end to end
// without a real model behind it.
type noopCoder struct{}

func (noopCoder) Generate(ctx context.Context, messages []cca.Message, tools []cca.ToolDefinition) (cca.CoderResponse, error) {
	return cca.CoderResponse{
		Text:       "no API provider configured; nothing to propose",
		StopReason: cca.StopEnd,
	}, nil
}
