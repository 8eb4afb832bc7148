package cca

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/contextstore"
	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/toolruntime"
)

type fakeFileWriteHandler struct{}

func (fakeFileWriteHandler) Name() string             { return "file-write" }
func (fakeFileWriteHandler) Description() string      { return "writes a file" }
func (fakeFileWriteHandler) RequiresApproval() bool    { return false }
func (fakeFileWriteHandler) Schema() map[string]any    { return map[string]any{"type": "object"} }
func (fakeFileWriteHandler) Execute(_ context.Context, input json.RawMessage) (any, error) {
	return map[string]any{"ok": true}, nil
}

func newTestRuntime(t *testing.T) *toolruntime.Runtime {
	s := newTestStore(t)
	evaluator := permission.New(s, map[string]bool{})
	rt := toolruntime.New(evaluator, s, contextstore.New(nil, 0), s)
	rt.Register(fakeFileWriteHandler{})
	return rt
}

// scriptedCoder replays a fixed sequence of CoderResponse values, one per
// Generate call, to drive the tool loop deterministically.
type scriptedCoder struct {
	responses []CoderResponse
	calls     int
}

func (c *scriptedCoder) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (CoderResponse, error) {
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func TestRunCodingPhaseRecordsAppliedChangeOnFileWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := &store.Session{ID: "sess-1", Task: "t"}
	require.NoError(t, s.CreateSession(ctx, sess))
	iter := &store.Iteration{SessionID: sess.ID, Number: 1, Status: store.IterationCoding}
	require.NoError(t, s.CreateIteration(ctx, iter))

	rt := newTestRuntime(t)
	f := feed.New(100, nil)
	coder := &scriptedCoder{responses: []CoderResponse{
		{
			StopReason: StopToolUse,
			ToolCalls: []ToolCall{
				{ID: "call-1", Name: "file-write", RawArgs: `{"path":"main.go","content":"package main"}`},
			},
		},
		{StopReason: StopEnd, Text: "done"},
	}}

	result, err := runCodingPhase(ctx, coder, rt, nil, f, sess.ID, sess.ID, "/ws", iter, "write a main.go", nil, 10)
	require.NoError(t, err)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "main.go", result.Changes[0].FilePath)
	assert.Equal(t, store.ChangeApplied, result.Changes[0].Status)
	assert.False(t, result.CapHit)
	assert.Equal(t, 2, coder.calls)
}

func TestRunCodingPhaseStopsAtNonToolResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := &store.Session{ID: "sess-1", Task: "t"}
	require.NoError(t, s.CreateSession(ctx, sess))
	iter := &store.Iteration{SessionID: sess.ID, Number: 1, Status: store.IterationCoding}
	require.NoError(t, s.CreateIteration(ctx, iter))

	rt := newTestRuntime(t)
	f := feed.New(100, nil)
	coder := &scriptedCoder{responses: []CoderResponse{
		{StopReason: StopEnd, Text: "no changes needed"},
	}}

	result, err := runCodingPhase(ctx, coder, rt, nil, f, sess.ID, sess.ID, "/ws", iter, "investigate only", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, result.Changes)
	assert.False(t, result.CapHit)
	assert.Equal(t, 1, coder.calls)
}

func TestRunCodingPhaseHitsCapAndPostsFeedEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := &store.Session{ID: "sess-1", Task: "t"}
	require.NoError(t, s.CreateSession(ctx, sess))
	iter := &store.Iteration{SessionID: sess.ID, Number: 1, Status: store.IterationCoding}
	require.NoError(t, s.CreateIteration(ctx, iter))

	rt := newTestRuntime(t)
	f := feed.New(100, nil)

	loopingResponse := CoderResponse{
		StopReason: StopToolUse,
		ToolCalls: []ToolCall{
			{ID: "call-x", Name: "file-write", RawArgs: `{"path":"loop.go","content":"x"}`},
		},
	}
	responses := make([]CoderResponse, 3)
	for i := range responses {
		responses[i] = loopingResponse
	}
	coder := &scriptedCoder{responses: responses}

	result, err := runCodingPhase(ctx, coder, rt, nil, f, sess.ID, sess.ID, "/ws", iter, "loop forever", nil, 3)
	require.NoError(t, err)
	assert.True(t, result.CapHit)

	entries := f.Get(feed.Filter{})
	require.NotEmpty(t, entries)
	found := false
	for _, e := range entries {
		if e.Type == feed.TypeAction {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTargetPathFromArgsExtractsPath(t *testing.T) {
	assert.Equal(t, "a/b.go", targetPathFromArgs(`{"path":"a/b.go","content":"x"}`))
	assert.Equal(t, "", targetPathFromArgs(`not json`))
}
