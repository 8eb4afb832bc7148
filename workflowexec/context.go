package workflowexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arbiterloop/engine/store"
)

// ContextStore is the subset of *store.Store the context manager needs.
// *store.Store satisfies it directly.
type ContextStore interface {
	CreateContextItem(ctx context.Context, item *store.ContextItem) error
	ListActiveContextItems(ctx context.Context, executionID string) ([]*store.ContextItem, error)
	ListAllContextItems(ctx context.Context, executionID string) ([]*store.ContextItem, error)
	CompactContextItems(ctx context.Context, executionID string, supersededIDs []string, compaction *store.ContextItem) error
	ExpandCompaction(ctx context.Context, executionID, compactionID string) error
	SumActiveTokens(ctx context.Context, executionID string) (int, error)
}

// CompactionStrategy enumerates the three compaction modes available for
// trimming an execution's context items.
type CompactionStrategy string

const (
	StrategySummarize     CompactionStrategy = "summarize"
	StrategyTruncate      CompactionStrategy = "truncate"
	StrategySlidingWindow CompactionStrategy = "sliding-window"
)

const defaultKeepRecentCount = 10

// Summarizer produces the textual synopsis for the "summarize" strategy.
// Implementations typically call out to an LLM; a nil Summarizer falls back
// to a mechanical listing of item roles and byte counts.
type Summarizer func(ctx context.Context, items []*store.ContextItem) (string, error)

// ContextManager implements context compaction/expansion and budget
// reporting over a ContextStore.
type ContextManager struct {
	store      ContextStore
	summarizer Summarizer
	idGen      func(prefix string) string
}

// NewContextManager constructs a ContextManager. summarizer may be nil.
func NewContextManager(cs ContextStore, summarizer Summarizer, idGen func(prefix string) string) *ContextManager {
	if idGen == nil {
		idGen = counterIDGen()
	}
	return &ContextManager{store: cs, summarizer: summarizer, idGen: idGen}
}

// Compact folds every active item of executionID older than the
// keepRecentCount most recent ones into a single new compaction item, using
// strategy to build its content. keepRecentCount <= 0 uses the default
// of 10.
func (cm *ContextManager) Compact(ctx context.Context, executionID string, strategy CompactionStrategy, keepRecentCount int) (*store.ContextItem, error) {
	if keepRecentCount <= 0 {
		keepRecentCount = defaultKeepRecentCount
	}

	active, err := cm.store.ListActiveContextItems(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("workflowexec: compact: %w", err)
	}
	if len(active) <= keepRecentCount {
		return nil, nil // nothing old enough to fold away
	}

	cutoff := len(active) - keepRecentCount
	toSupersede := active[:cutoff]

	content, err := cm.buildCompactionContent(ctx, strategy, toSupersede)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(toSupersede))
	var supersededTokens int
	for i, it := range toSupersede {
		ids[i] = it.ID
		supersededTokens += it.Tokens
	}

	compaction := &store.ContextItem{
		ID:          cm.idGen("ctx"),
		ExecutionID: executionID,
		ItemType:    store.ItemCompaction,
		Role:        store.RoleSystem,
		Content:     content,
		Tokens:      EstimateTokens(content),
	}

	if err := cm.store.CompactContextItems(ctx, executionID, ids, compaction); err != nil {
		return nil, fmt.Errorf("workflowexec: compact: %w", err)
	}
	return compaction, nil
}

func (cm *ContextManager) buildCompactionContent(ctx context.Context, strategy CompactionStrategy, items []*store.ContextItem) (string, error) {
	switch strategy {
	case StrategySummarize:
		if cm.summarizer != nil {
			text, err := cm.summarizer(ctx, items)
			if err != nil {
				return "", fmt.Errorf("workflowexec: summarize: %w", err)
			}
			return text, nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[compaction: summarize %d items]\n", len(items))
		for _, it := range items {
			fmt.Fprintf(&b, "- %s/%s (%d chars)\n", it.Role, it.ItemType, len(it.Content))
		}
		return b.String(), nil
	case StrategyTruncate:
		return fmt.Sprintf("[compaction: truncate, %d items omitted]", len(items)), nil
	case StrategySlidingWindow:
		return fmt.Sprintf("[compaction: sliding-window, %d items rolled off]", len(items)), nil
	default:
		return "", fmt.Errorf("workflowexec: unknown compaction strategy %q", strategy)
	}
}

// Expand reverses a compaction: every item folded into compactionID is
// restored to active and the compaction item is deleted.
func (cm *ContextManager) Expand(ctx context.Context, executionID, compactionID string) error {
	if err := cm.store.ExpandCompaction(ctx, executionID, compactionID); err != nil {
		return fmt.Errorf("workflowexec: expand: %w", err)
	}
	return nil
}

// Health classifies a Budget's utilization.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Budget is the context budget report for one execution.
type Budget struct {
	ExecutionID      string
	TotalTokens      int
	SystemTokens     int
	ContextTokens     int // tool-call/tool-result items
	MessageTokens    int // user-input/agent-output items
	CapTokens        int
	RemainingTokens  int
	ActiveItemCount   int
	CompactedItemCount int
	Health           Health
	ComputedAt       time.Time
}

const defaultBudgetCapTokens = 128000 / 4 // 128,000 chars / 4 as a rough token cap

// ComputeBudget reports token usage and health for an execution. capTokens
// <= 0 uses the default.
func (cm *ContextManager) ComputeBudget(ctx context.Context, executionID string, capTokens int) (*Budget, error) {
	if capTokens <= 0 {
		capTokens = defaultBudgetCapTokens
	}

	all, err := cm.store.ListAllContextItems(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("workflowexec: budget: %w", err)
	}

	b := &Budget{ExecutionID: executionID, CapTokens: capTokens, ComputedAt: time.Now()}
	for _, it := range all {
		if !it.Active() {
			b.CompactedItemCount++
			continue
		}
		b.ActiveItemCount++
		b.TotalTokens += it.Tokens
		switch it.ItemType {
		case store.ItemSystem, store.ItemCompaction:
			b.SystemTokens += it.Tokens
		case store.ItemToolCall, store.ItemToolResult:
			b.ContextTokens += it.Tokens
		case store.ItemUserInput, store.ItemAgentOutput:
			b.MessageTokens += it.Tokens
		}
	}

	b.RemainingTokens = capTokens - b.TotalTokens
	if b.RemainingTokens < 0 {
		b.RemainingTokens = 0
	}

	ratio := float64(b.TotalTokens) / float64(capTokens)
	switch {
	case ratio >= 0.9:
		b.Health = HealthCritical
	case ratio >= 0.7:
		b.Health = HealthWarning
	default:
		b.Health = HealthHealthy
	}

	return b, nil
}
