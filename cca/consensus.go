package cca

import "github.com/arbiterloop/engine/store"

// consensusResult is the outcome of tallying one iteration's CriticReviews.
type consensusResult struct {
	Approvals      int
	Rejections     int
	Concerns       int
	Total          int
	Ratio          float64 // approvals / total, 0 if total == 0
	HasBlockingError bool
}

func tallyReviews(reviews []*store.CriticReview) consensusResult {
	var r consensusResult
	r.Total = len(reviews)
	for _, rev := range reviews {
		switch rev.Verdict {
		case store.VerdictApprove:
			r.Approvals++
		case store.VerdictReject:
			r.Rejections++
		case store.VerdictConcerns:
			r.Concerns++
		}
		for _, issue := range rev.Issues {
			if issue.IsBlocking() {
				r.HasBlockingError = true
			}
		}
	}
	if r.Total > 0 {
		r.Ratio = float64(r.Approvals) / float64(r.Total)
	}
	return r
}

// autoApplies reports whether the auto-apply condition is met:
// auto-apply enabled, ratio at or above threshold, no rejections, no
// blocking errors.
func (r consensusResult) autoApplies(autoApplyEnabled bool, threshold float64) bool {
	if !autoApplyEnabled {
		return false
	}
	if r.Rejections > 0 || r.HasBlockingError {
		return false
	}
	return r.Ratio >= threshold
}

// suggestedDecision implements the arbiter-prompt suggestion policy:
// suggest iterate if any blocking error exists; else approve if the
// approval ratio is >= 0.8, reject if <= 0.2, iterate otherwise.
func (r consensusResult) suggestedDecision() store.ArbiterDecisionType {
	if r.HasBlockingError {
		return store.DecisionIterate
	}
	switch {
	case r.Ratio >= 0.8:
		return store.DecisionApprove
	case r.Ratio <= 0.2:
		return store.DecisionReject
	default:
		return store.DecisionIterate
	}
}
