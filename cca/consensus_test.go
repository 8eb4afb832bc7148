package cca

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterloop/engine/store"
)

func TestTallyReviewsCountsByVerdict(t *testing.T) {
	reviews := []*store.CriticReview{
		{Verdict: store.VerdictApprove},
		{Verdict: store.VerdictApprove},
		{Verdict: store.VerdictReject},
		{Verdict: store.VerdictConcerns},
	}
	result := tallyReviews(reviews)
	assert.Equal(t, 2, result.Approvals)
	assert.Equal(t, 1, result.Rejections)
	assert.Equal(t, 1, result.Concerns)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 0.5, result.Ratio)
}

func TestTallyReviewsFlagsBlockingIssue(t *testing.T) {
	reviews := []*store.CriticReview{
		{Verdict: store.VerdictConcerns, Issues: []store.CriticIssue{{Severity: store.SeverityError}}},
	}
	result := tallyReviews(reviews)
	assert.True(t, result.HasBlockingError)
}

func TestAutoAppliesRequiresNoRejectionsAndThresholdMet(t *testing.T) {
	result := consensusResult{Approvals: 4, Total: 4, Ratio: 1.0}
	assert.True(t, result.autoApplies(true, 0.8))
	assert.False(t, result.autoApplies(false, 0.8))

	withRejection := consensusResult{Approvals: 3, Rejections: 1, Total: 4, Ratio: 0.75}
	assert.False(t, withRejection.autoApplies(true, 0.5))

	blocked := consensusResult{Approvals: 4, Total: 4, Ratio: 1.0, HasBlockingError: true}
	assert.False(t, blocked.autoApplies(true, 0.5))
}

func TestSuggestedDecisionPolicy(t *testing.T) {
	assert.Equal(t, store.DecisionIterate, consensusResult{HasBlockingError: true, Ratio: 1.0}.suggestedDecision())
	assert.Equal(t, store.DecisionApprove, consensusResult{Ratio: 0.9}.suggestedDecision())
	assert.Equal(t, store.DecisionReject, consensusResult{Ratio: 0.1}.suggestedDecision())
	assert.Equal(t, store.DecisionIterate, consensusResult{Ratio: 0.5}.suggestedDecision())
}
