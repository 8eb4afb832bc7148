package cca

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/observability"
	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/toolruntime"
	"github.com/arbiterloop/engine/validator"
)

const (
	defaultMaxIterations    = 5
	defaultAutoApplyRatio   = 1.0
	defaultArbiterTimeout   = 0 // no timeout unless configured
)

// Options configures a CCAWorkflow's behavior, independent of its
// collaborators.
type Options struct {
	MaxIterations    int
	AutoApply        bool
	AutoApplyRatio   float64
	ArbiterTimeout   time.Duration
	MaxToolLoops     int
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.AutoApplyRatio <= 0 {
		o.AutoApplyRatio = defaultAutoApplyRatio
	}
	if o.MaxToolLoops <= 0 {
		o.MaxToolLoops = defaultMaxToolLoops
	}
	return o
}

// CCAWorkflow wires together the durable store, the tool runtime, the
// validator pipeline, the shared feed, and the arbiter resolver into the
// Coder -> Critic -> Arbiter loop.
type CCAWorkflow struct {
	Store    *store.Store
	Runtime  *toolruntime.Runtime
	Tools    map[string]toolruntime.Handler
	Pipeline validator.Pipeline
	Feed     *feed.Feed
	Resolver *ArbiterResolver
	Coder    CoderProvider
	Opts     Options
	Metrics  *observability.Metrics

	// sessionLoop dedupes concurrent Run/ContinueWithFeedback calls for
	// the same session-id: a second call that arrives while the first is
	// still driving the loop joins it and shares its result rather than
	// racing it on the same store rows.
	sessionLoop singleflight.Group
}

// NewCCAWorkflow constructs a workflow ready for Run/Resume.
func NewCCAWorkflow(s *store.Store, rt *toolruntime.Runtime, tools map[string]toolruntime.Handler, pipeline validator.Pipeline, f *feed.Feed, resolver *ArbiterResolver, coder CoderProvider, opts Options) *CCAWorkflow {
	return &CCAWorkflow{
		Store: s, Runtime: rt, Tools: tools, Pipeline: pipeline,
		Feed: f, Resolver: resolver, Coder: coder, Opts: opts.withDefaults(),
	}
}

// Run starts or resumes a session for task, implementing a three-branch
// restart order:
//  1. Restore-pending-arbiter: an existing session has an iteration stuck
//     in "deciding" (process died mid-checkpoint) — reattach and await.
//  2. Continue-previous: an existing session (whatever its status) with no
//     pending decision — run the next iteration after its prior ones.
//  3. Fresh-start: no existing session — create one and run iteration 1.
func (w *CCAWorkflow) Run(ctx context.Context, sessionID, task, workspace string) (*CCASessionState, error) {
	ctx, span := observability.StartSpan(ctx, "cca", "Run")
	defer span.End()

	w.Metrics.IncCCASessionsActive()
	defer w.Metrics.DecCCASessionsActive()

	v, err, _ := w.sessionLoop.Do(sessionID, func() (any, error) {
		return w.run(ctx, sessionID, task, workspace)
	})
	if err != nil {
		return nil, err
	}
	state := v.(*CCASessionState)
	w.recordOutcome(state)
	return state, nil
}

// recordOutcome classifies a session's terminal state for the iterations
// counter and records the last round's consensus ratio.
func (w *CCAWorkflow) recordOutcome(state *CCASessionState) {
	if state == nil {
		return
	}
	outcome := "revision"
	switch {
	case state.Aborted:
		outcome = "error"
	case state.WorkflowState == StateCompleted:
		outcome = "approved"
	case state.ConsensusReached:
		outcome = "approved"
	}
	w.Metrics.RecordCCAIteration(outcome)
	if len(state.Iterations) > 0 {
		last := state.Iterations[len(state.Iterations)-1]
		if len(last.Reviews) > 0 {
			var approved int
			for _, r := range last.Reviews {
				if r.Verdict == store.VerdictApprove {
					approved++
				}
			}
			w.Metrics.SetConsensusRatio(float64(approved) / float64(len(last.Reviews)))
		}
	}
}

func (w *CCAWorkflow) run(ctx context.Context, sessionID, task, workspace string) (*CCASessionState, error) {
	sess, err := w.Store.GetSession(ctx, sessionID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("cca: load session: %w", err)
	}

	if sess == nil {
		sess = &store.Session{ID: sessionID, Task: task, Status: store.SessionRunning, Workspace: workspace}
		if err := w.Store.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("cca: create session: %w", err)
		}
		return w.runLoop(ctx, sess, nil, "")
	}

	prior, err := w.loadHistory(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	if deciding, err := w.Store.FindDecidingIteration(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("cca: find deciding iteration: %w", err)
	} else if deciding != nil {
		// Restore-pending-arbiter: re-request the decision for the same
		// iteration id; the resolver channel is fresh but keyed the same,
		// so a late Submit for the original checkpoint still lands.
		rec := recordFor(prior, deciding.ID)
		consensus := tallyReviews(rec.Reviews)
		summary := consensusSummary(deciding.Number, consensus)
		decision, err := requestArbiterDecision(ctx, w.Store, w.Feed, w.Resolver, deciding, summary, consensus.suggestedDecision(), w.Opts.ArbiterTimeout, false)
		if err != nil {
			return nil, err
		}
		rec.Decision = decision
		return w.afterDecision(ctx, sess, prior, decision)
	}

	return w.runLoop(ctx, sess, prior, "")
}

// ContinueWithFeedback resumes a completed or idling session with
// additional human feedback, clearing any prior abort/consensus state and
// running further iterations within the remaining cap.
func (w *CCAWorkflow) ContinueWithFeedback(ctx context.Context, sessionID, feedback string) (*CCASessionState, error) {
	ctx, span := observability.StartSpan(ctx, "cca", "ContinueWithFeedback")
	defer span.End()

	w.Metrics.IncCCASessionsActive()
	defer w.Metrics.DecCCASessionsActive()

	v, err, _ := w.sessionLoop.Do(sessionID, func() (any, error) {
		return w.continueWithFeedback(ctx, sessionID, feedback)
	})
	if err != nil {
		return nil, err
	}
	state := v.(*CCASessionState)
	w.recordOutcome(state)
	return state, nil
}

func (w *CCAWorkflow) continueWithFeedback(ctx context.Context, sessionID, feedback string) (*CCASessionState, error) {
	sess, err := w.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("cca: load session: %w", err)
	}
	prior, err := w.loadHistory(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionRunning); err != nil {
		return nil, fmt.Errorf("cca: resume session: %w", err)
	}
	return w.runLoop(ctx, sess, prior, feedback)
}

// loadHistory rehydrates every iteration's changes, reviews, and decision
// for a session, newest last.
func (w *CCAWorkflow) loadHistory(ctx context.Context, sessionID string) ([]*IterationRecord, error) {
	iters, err := w.Store.ListIterations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("cca: list iterations: %w", err)
	}
	records := make([]*IterationRecord, 0, len(iters))
	for _, iter := range iters {
		changes, err := w.Store.ListChangesByIteration(ctx, iter.ID)
		if err != nil {
			return nil, fmt.Errorf("cca: list changes: %w", err)
		}
		reviews, err := w.Store.ListReviewsByIteration(ctx, iter.ID)
		if err != nil {
			return nil, fmt.Errorf("cca: list reviews: %w", err)
		}
		decision, err := w.Store.GetDecisionByIteration(ctx, iter.ID)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("cca: get decision: %w", err)
		}
		if err == store.ErrNotFound {
			decision = nil
		}
		records = append(records, &IterationRecord{Iteration: iter, Changes: changes, Reviews: reviews, Decision: decision})
	}
	return records, nil
}

func recordFor(records []*IterationRecord, iterationID string) *IterationRecord {
	for _, r := range records {
		if r.Iteration.ID == iterationID {
			return r
		}
	}
	return &IterationRecord{}
}

// runLoop drives iterations forward until consensus, abort, or the
// iteration cap is reached.
func (w *CCAWorkflow) runLoop(ctx context.Context, sess *store.Session, prior []*IterationRecord, pendingFeedback string) (*CCASessionState, error) {
	state := &CCASessionState{
		WorkflowState: StateCoding,
		Task:          sess.Task,
		SessionID:     sess.ID,
		Iterations:    prior,
		MaxIterations: w.Opts.MaxIterations,
	}
	state.CurrentIteration = len(prior)

	for state.CurrentIteration < w.Opts.MaxIterations {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}

		number := state.CurrentIteration + 1
		capReached := number == w.Opts.MaxIterations
		state.CurrentIteration = number

		iter := &store.Iteration{SessionID: sess.ID, Number: number, Status: store.IterationCoding}
		if err := w.Store.CreateIteration(ctx, iter); err != nil {
			return state, fmt.Errorf("cca: create iteration %d: %w", number, err)
		}

		var lastDecision *store.ArbiterDecision
		if len(state.Iterations) > 0 {
			lastDecision = state.Iterations[len(state.Iterations)-1].Decision
		}
		isContinuation := len(prior) > 0 && number == len(prior)+1
		prompt := buildCoderPrompt(sess.Task, number, isContinuation, state.Iterations, pendingFeedback, lastDecision)
		pendingFeedback = "" // consumed on the first iteration it's applied to

		state.WorkflowState = StateCoding
		coding, err := runCodingPhase(ctx, w.Coder, w.Runtime, w.Pipeline, w.Feed, sess.ID, sess.ID, sess.Workspace, iter, prompt, toolSchemas(w.Tools), w.Opts.MaxToolLoops)
		if err != nil {
			return state, fmt.Errorf("cca: coding phase: %w", err)
		}

		rec := &IterationRecord{Iteration: iter}
		state.Iterations = append(state.Iterations, rec)

		for _, c := range coding.Changes {
			if err := w.Store.CreateChange(ctx, c); err != nil {
				return state, fmt.Errorf("cca: persist change: %w", err)
			}
		}
		rec.Changes = coding.Changes

		if len(coding.Changes) == 0 {
			state.WorkflowState = StateAwaitingArbiter
			decision, err := requestArbiterDecision(ctx, w.Store, w.Feed, w.Resolver, iter, noChangesSummary(number), store.DecisionIterate, w.Opts.ArbiterTimeout, false)
			if err != nil {
				return state, err
			}
			rec.Decision = decision
			return w.afterDecision(ctx, sess, state.Iterations, decision)
		}

		state.WorkflowState = StateReviewing
		if err := w.Store.UpdateIterationStatus(ctx, iter.ID, store.IterationReviewing); err != nil {
			return state, fmt.Errorf("cca: mark reviewing: %w", err)
		}
		reviews, err := runReviewPhase(ctx, w.Store, w.Pipeline, sess.ID, sess.Workspace, coding.Changes)
		if err != nil {
			return state, fmt.Errorf("cca: review phase: %w", err)
		}
		rec.Reviews = reviews

		consensus := tallyReviews(reviews)
		state.LastValidation = &ValidationSummary{
			ApproveCount:  consensus.Approvals,
			RejectCount:   consensus.Rejections,
			ConcernsCount: consensus.Concerns,
		}

		if number >= 2 {
			previous := state.Iterations[len(state.Iterations)-2]
			postAuditEntry(w.Feed, iter.ID, buildAuditTrail(previous, rec))
		}

		if !capReached && consensus.autoApplies(w.Opts.AutoApply, w.Opts.AutoApplyRatio) {
			if err := w.applyChanges(ctx, coding.Changes); err != nil {
				return state, err
			}
			if err := w.Store.UpdateIterationStatus(ctx, iter.ID, store.IterationCompleted); err != nil {
				return state, fmt.Errorf("cca: complete iteration: %w", err)
			}
			state.WorkflowState = StateCompleted
			state.ConsensusReached = true
			if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionCompleted); err != nil {
				return state, fmt.Errorf("cca: complete session: %w", err)
			}
			return state, nil
		}

		state.WorkflowState = StateAwaitingArbiter
		summary := consensusSummary(number, consensus)
		suggestion := consensus.suggestedDecision()
		if capReached {
			summary = forcedCapSummary(w.Opts.MaxIterations)
		}
		decision, err := requestArbiterDecision(ctx, w.Store, w.Feed, w.Resolver, iter, summary, suggestion, w.Opts.ArbiterTimeout, capReached)
		if err != nil {
			return state, err
		}
		rec.Decision = decision

		switch decision.Decision {
		case store.DecisionApprove:
			if err := w.applyChanges(ctx, coding.Changes); err != nil {
				return state, err
			}
			state.WorkflowState = StateCompleted
			state.ConsensusReached = true
			if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionCompleted); err != nil {
				return state, fmt.Errorf("cca: complete session: %w", err)
			}
			return state, nil
		case store.DecisionReject, store.DecisionAbort:
			state.WorkflowState = StateError
			state.Aborted = true
			if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionError); err != nil {
				return state, fmt.Errorf("cca: error session: %w", err)
			}
			return state, nil
		case store.DecisionIterate:
			if capReached {
				state.WorkflowState = StateError
				state.Aborted = true
				if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionError); err != nil {
					return state, fmt.Errorf("cca: error session: %w", err)
				}
				return state, nil
			}
			state.WorkflowState = StateIterating
			state.CurrentIteration = number
			continue
		}
	}

	state.WorkflowState = StateError
	state.Aborted = true
	_ = w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionError)
	return state, nil
}

// afterDecision resumes the loop's reaction to a just-resolved decision
// found via the Restore-pending-arbiter or zero-changes branches, without
// re-running the coding/review phases for that same iteration.
func (w *CCAWorkflow) afterDecision(ctx context.Context, sess *store.Session, records []*IterationRecord, decision *store.ArbiterDecision) (*CCASessionState, error) {
	state := &CCASessionState{
		WorkflowState: StateIterating,
		Task:          sess.Task,
		SessionID:     sess.ID,
		Iterations:    records,
		CurrentIteration: len(records),
		MaxIterations: w.Opts.MaxIterations,
	}

	switch decision.Decision {
	case store.DecisionApprove:
		last := records[len(records)-1]
		if err := w.applyChanges(ctx, last.Changes); err != nil {
			return state, err
		}
		state.WorkflowState = StateCompleted
		state.ConsensusReached = true
		if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionCompleted); err != nil {
			return state, fmt.Errorf("cca: complete session: %w", err)
		}
		return state, nil
	case store.DecisionReject, store.DecisionAbort:
		state.WorkflowState = StateError
		state.Aborted = true
		if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionError); err != nil {
			return state, fmt.Errorf("cca: error session: %w", err)
		}
		return state, nil
	default: // iterate
		if decision.Forced {
			state.WorkflowState = StateError
			state.Aborted = true
			if err := w.Store.UpdateSessionStatus(ctx, sess.ID, store.SessionError); err != nil {
				return state, fmt.Errorf("cca: error session: %w", err)
			}
			return state, nil
		}
		return w.runLoop(ctx, sess, records, "")
	}
}

func (w *CCAWorkflow) applyChanges(ctx context.Context, changes []*store.ProposedChange) error {
	for _, c := range changes {
		if err := w.Store.UpdateChangeStatus(ctx, c.ID, store.ChangeApplied); err != nil {
			return fmt.Errorf("cca: apply change %s: %w", c.ID, err)
		}
	}
	return nil
}

func consensusSummary(iterationNumber int, c consensusResult) string {
	return fmt.Sprintf("Iteration %d: %d/%d critics approved (ratio %.2f), %d rejected, %d concerns.",
		iterationNumber, c.Approvals, c.Total, c.Ratio, c.Rejections, c.Concerns)
}
