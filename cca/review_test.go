package cca

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/validator"
)

func TestValidationResultToCriticReviewMapsVerdict(t *testing.T) {
	res := validator.Result{
		ValidatorID: "golint",
		Status:      validator.StatusNeedsRevision,
		Message:     "unused variable",
		Issues: []validator.Issue{
			{Message: "unused var x", Severity: validator.SeverityError, File: "main.go", Line: 10},
		},
	}
	review := validationResultToCriticReview("change-1", res)
	assert.Equal(t, store.VerdictConcerns, review.Verdict)
	assert.Equal(t, "golint", review.CriticName)
	require.Len(t, review.Issues, 1)
	assert.True(t, review.Issues[0].IsBlocking())
	assert.Equal(t, "main.go", review.Issues[0].File)
}

func TestVerdictFromStatus(t *testing.T) {
	assert.Equal(t, store.VerdictApprove, verdictFromStatus(validator.StatusApproved))
	assert.Equal(t, store.VerdictReject, verdictFromStatus(validator.StatusRejected))
	assert.Equal(t, store.VerdictConcerns, verdictFromStatus(validator.StatusNeedsRevision))
	assert.Equal(t, store.VerdictError, verdictFromStatus(validator.StatusError))
}

type fakePipeline struct {
	summary *validator.Summary
	err     error
}

func (p *fakePipeline) Validate(ctx context.Context, trigger validator.Trigger, vctx validator.Context) (*validator.Summary, error) {
	return p.summary, p.err
}
func (p *fakePipeline) ListValidators() []string { return []string{"fake"} }

func TestRunReviewPhaseReturnsNilOnNoChanges(t *testing.T) {
	s := newTestStore(t)
	reviews, err := runReviewPhase(context.Background(), s, &fakePipeline{}, "sess", "/ws", nil)
	require.NoError(t, err)
	assert.Nil(t, reviews)
}

func TestRunReviewPhaseRecoversPipelineError(t *testing.T) {
	s := newTestStore(t)
	pipeline := &fakePipeline{err: errors.New("boom")}
	changes := []*store.ProposedChange{{ID: "c1", FilePath: "a.go"}}
	reviews, err := runReviewPhase(context.Background(), s, pipeline, "sess", "/ws", changes)
	require.NoError(t, err)
	assert.Nil(t, reviews)
}

func TestRunReviewPhasePersistsOneReviewPerChangeAndValidator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := &store.Session{ID: "sess-1", Task: "t"}
	require.NoError(t, s.CreateSession(ctx, sess))
	iter := &store.Iteration{SessionID: sess.ID, Number: 1, Status: store.IterationReviewing}
	require.NoError(t, s.CreateIteration(ctx, iter))
	change := &store.ProposedChange{IterationID: iter.ID, FilePath: "a.go", Operation: store.OpCreate, NewContent: strPtr("x"), Status: store.ChangeProposed}
	require.NoError(t, s.CreateChange(ctx, change))

	pipeline := &fakePipeline{summary: &validator.Summary{
		Status: validator.StatusApproved,
		Results: []validator.Result{
			{ValidatorID: "lint", Status: validator.StatusApproved},
		},
	}}

	reviews, err := runReviewPhase(ctx, s, pipeline, sess.ID, "/ws", []*store.ProposedChange{change})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, change.ID, reviews[0].ChangeID)

	persisted, err := s.ListReviewsByIteration(ctx, iter.ID)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestCompareReviewsComputesDeltasAndChangedVerdicts(t *testing.T) {
	previous := []*store.CriticReview{
		{CriticName: "lint", Verdict: store.VerdictConcerns},
		{CriticName: "sec", Verdict: store.VerdictApprove},
	}
	current := []*store.CriticReview{
		{CriticName: "lint", Verdict: store.VerdictApprove},
		{CriticName: "sec", Verdict: store.VerdictApprove},
	}
	approveDelta, rejectDelta, concernsDelta, deltas := compareReviews(previous, current)
	assert.Equal(t, 1, approveDelta)
	assert.Equal(t, 0, rejectDelta)
	assert.Equal(t, -1, concernsDelta)
	require.Len(t, deltas, 2)

	var lintDelta reviewDelta
	for _, d := range deltas {
		if d.CriticName == "lint" {
			lintDelta = d
		}
	}
	assert.True(t, lintDelta.Changed)
	assert.Equal(t, store.VerdictConcerns, lintDelta.PreviousVerdict)
	assert.Equal(t, store.VerdictApprove, lintDelta.CurrentVerdict)
}

func strPtr(s string) *string { return &s }
