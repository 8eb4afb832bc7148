package cca

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/store"
)

// ArbiterResolver blocks the CCA loop at an awaiting-arbiter checkpoint
// until a decision is submitted for the given iteration. One resolver
// instance is shared by every session; it multiplexes on iteration id.
type ArbiterResolver struct {
	mu      sync.Mutex
	pending map[string]chan store.ArbiterDecision // iterationID -> channel
}

// NewArbiterResolver constructs an empty resolver.
func NewArbiterResolver() *ArbiterResolver {
	return &ArbiterResolver{pending: make(map[string]chan store.ArbiterDecision)}
}

// await registers a wait for iterationID and blocks until Submit is called
// for it, ctx is cancelled, or (if timeout > 0) the timeout elapses — in
// which case it auto-submits `iterate` with a timeout-notice feedback.
func (r *ArbiterResolver) await(ctx context.Context, iterationID string, timeout time.Duration) (store.ArbiterDecision, error) {
	ch := make(chan store.ArbiterDecision, 1)
	r.mu.Lock()
	r.pending[iterationID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, iterationID)
		r.mu.Unlock()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case d := <-ch:
		return d, nil
	case <-timeoutCh:
		return store.ArbiterDecision{
			Decision: store.DecisionIterate,
			Feedback: "arbiter decision timed out; auto-submitted iterate",
		}, nil
	case <-ctx.Done():
		return store.ArbiterDecision{}, ctx.Err()
	}
}

// Submit delivers a decision to whichever await call is blocked on
// iterationID. Returns false if nothing is currently waiting (the caller
// should treat this as "no pending arbiter checkpoint").
func (r *ArbiterResolver) Submit(iterationID string, decision store.ArbiterDecision) bool {
	r.mu.Lock()
	ch, ok := r.pending[iterationID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- decision:
		return true
	default:
		return false
	}
}

// Waiting reports whether a resolver is currently blocked on iterationID.
func (r *ArbiterResolver) Waiting(iterationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[iterationID]
	return ok
}

// requestArbiterDecision emits the awaiting-arbiter feed entry and blocks on
// the resolver, persisting the resulting decision.
func requestArbiterDecision(ctx context.Context, s *store.Store, f *feed.Feed, resolver *ArbiterResolver, iter *store.Iteration, summary string, suggestion store.ArbiterDecisionType, timeout time.Duration, forced bool) (*store.ArbiterDecision, error) {
	if err := s.UpdateIterationStatus(ctx, iter.ID, store.IterationDeciding); err != nil {
		return nil, fmt.Errorf("cca: mark iteration deciding: %w", err)
	}

	f.Post(feed.Entry{
		Source: feed.SourceSystem,
		Type:   feed.TypeDecision,
		Content: map[string]any{
			"iteration_id": iter.ID,
			"summary":      summary,
			"suggestion":   suggestion,
			"forced":       forced,
		},
	})

	decision, err := resolver.await(ctx, iter.ID, timeout)
	if err != nil {
		return nil, err
	}
	decision.IterationID = iter.ID
	decision.Forced = forced

	if err := s.CreateDecision(ctx, &decision); err != nil {
		return nil, fmt.Errorf("cca: persist arbiter decision: %w", err)
	}
	return &decision, nil
}
