package workflowexec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open("sqlite", filepath.Join(dir, "chat.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedContextItems(t *testing.T, s *store.Store, executionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		item := &store.ContextItem{
			ExecutionID: executionID,
			ItemType:    store.ItemUserInput,
			Role:        store.RoleUser,
			Content:     "message content",
			Tokens:      10,
		}
		require.NoError(t, s.CreateContextItem(context.Background(), item))
	}
}

func TestCompactFoldsOldestItemsKeepingRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedContextItems(t, s, "exec-1", 15)

	cm := NewContextManager(s, nil, nil)
	compaction, err := cm.Compact(ctx, "exec-1", StrategyTruncate, 10)
	require.NoError(t, err)
	require.NotNil(t, compaction)

	active, err := s.ListActiveContextItems(ctx, "exec-1")
	require.NoError(t, err)
	// 10 kept verbatim + 1 new compaction item.
	assert.Len(t, active, 11)
}

func TestCompactIsNoOpWhenUnderKeepRecentCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedContextItems(t, s, "exec-1", 5)

	cm := NewContextManager(s, nil, nil)
	compaction, err := cm.Compact(ctx, "exec-1", StrategyTruncate, 10)
	require.NoError(t, err)
	assert.Nil(t, compaction)
}

func TestCompactionExpansionRoundTripRestoresAllMembersNoDuplication(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedContextItems(t, s, "exec-1", 15)

	all, err := s.ListAllContextItems(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, all, 15)

	cm := NewContextManager(s, nil, nil)
	compaction, err := cm.Compact(ctx, "exec-1", StrategyTruncate, 10)
	require.NoError(t, err)
	require.NotNil(t, compaction)

	require.NoError(t, cm.Expand(ctx, "exec-1", compaction.ID))

	active, err := s.ListActiveContextItems(ctx, "exec-1")
	require.NoError(t, err)
	assert.Len(t, active, 15) // every original member restored, compaction item gone, no duplicates

	allAfter, err := s.ListAllContextItems(ctx, "exec-1")
	require.NoError(t, err)
	assert.Len(t, allAfter, 15)
}

func TestSummarizeStrategyUsesProvidedSummarizer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedContextItems(t, s, "exec-1", 12)

	called := false
	cm := NewContextManager(s, func(ctx context.Context, items []*store.ContextItem) (string, error) {
		called = true
		return "a synopsis", nil
	}, nil)

	compaction, err := cm.Compact(ctx, "exec-1", StrategySummarize, 10)
	require.NoError(t, err)
	require.NotNil(t, compaction)
	assert.True(t, called)
	assert.Equal(t, "a synopsis", compaction.Content)
}

func TestComputeBudgetCategorizesTokensAndReportsHealth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []*store.ContextItem{
		{ExecutionID: "exec-1", ItemType: store.ItemSystem, Role: store.RoleSystem, Content: "sys", Tokens: 100},
		{ExecutionID: "exec-1", ItemType: store.ItemToolCall, Role: store.RoleAssistant, Content: "tool", Tokens: 200},
		{ExecutionID: "exec-1", ItemType: store.ItemUserInput, Role: store.RoleUser, Content: "msg", Tokens: 300},
	}
	for _, it := range items {
		require.NoError(t, s.CreateContextItem(ctx, it))
	}

	cm := NewContextManager(s, nil, nil)
	budget, err := cm.ComputeBudget(ctx, "exec-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, 600, budget.TotalTokens)
	assert.Equal(t, 100, budget.SystemTokens)
	assert.Equal(t, 200, budget.ContextTokens)
	assert.Equal(t, 300, budget.MessageTokens)
	assert.Equal(t, 400, budget.RemainingTokens)
	assert.Equal(t, 3, budget.ActiveItemCount)
	assert.Equal(t, HealthHealthy, budget.Health) // 600/1000 = 0.6, below the 0.7 warning threshold
}

func TestComputeBudgetHealthThresholds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cm := NewContextManager(s, nil, nil)

	seedContextItems(t, s, "healthy", 1) // 10 tokens
	budget, err := cm.ComputeBudget(ctx, "healthy", 100)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, budget.Health)

	seedContextItems(t, s, "warning", 8) // 80 tokens
	budget, err = cm.ComputeBudget(ctx, "warning", 100)
	require.NoError(t, err)
	assert.Equal(t, HealthWarning, budget.Health)

	seedContextItems(t, s, "critical", 10) // 100 tokens
	budget, err = cm.ComputeBudget(ctx, "critical", 100)
	require.NoError(t, err)
	assert.Equal(t, HealthCritical, budget.Health)
}
