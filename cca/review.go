package cca

import (
	"context"
	"fmt"

	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/validator"
)

// validationResultToCriticReview maps one validator.Result into a
// store.CriticReview for a given ProposedChange: approved -> approve,
// rejected -> reject, needs-revision -> concerns, else error.
func validationResultToCriticReview(changeID string, res validator.Result) *store.CriticReview {
	review := &store.CriticReview{
		ChangeID:   changeID,
		CriticID:   res.ValidatorID,
		CriticName: res.ValidatorID,
		Provider:   store.ProviderStatic,
		Verdict:    verdictFromStatus(res.Status),
		Message:    res.Message,
	}
	for _, issue := range res.Issues {
		review.Issues = append(review.Issues, store.CriticIssue{
			Severity: store.IssueSeverity(issue.Severity),
			Message:  issue.Message,
			File:     issue.File,
			Line:     issue.Line,
			Blocking: issue.Severity == validator.SeverityError,
		})
	}
	return review
}

func verdictFromStatus(s validator.Status) store.Verdict {
	switch s {
	case validator.StatusApproved:
		return store.VerdictApprove
	case validator.StatusRejected:
		return store.VerdictReject
	case validator.StatusNeedsRevision:
		return store.VerdictConcerns
	default:
		return store.VerdictError
	}
}

// runReviewPhase invokes pipeline once over every changed file in trigger
// "on-change" and converts the resulting Summary into one CriticReview per
// (validator, change) pair, persisting each.
func runReviewPhase(ctx context.Context, s *store.Store, pipeline validator.Pipeline, sessionID, workspace string, changes []*store.ProposedChange) ([]*store.CriticReview, error) {
	if pipeline == nil || len(changes) == 0 {
		return nil, nil
	}

	files := make([]string, len(changes))
	for i, c := range changes {
		files[i] = c.FilePath
	}

	summary, err := pipeline.Validate(ctx, validator.Trigger{Kind: "on-change", Payload: files}, validator.Context{SessionID: sessionID, Workspace: workspace})
	if err != nil {
		// critic-pipeline-error is locally recovered: empty reviews,
		// the operation is not blocked.
		return nil, nil
	}

	var reviews []*store.CriticReview
	for _, res := range summary.Results {
		for _, change := range changes {
			review := validationResultToCriticReview(change.ID, res)
			if err := s.CreateReview(ctx, review); err != nil {
				return nil, fmt.Errorf("cca: persist review: %w", err)
			}
			reviews = append(reviews, review)
		}
	}
	return reviews, nil
}

// reviewDelta is the per-critic comparison between two iterations' reviews,
// used to build the audit trail entry of final paragraph.
type reviewDelta struct {
	CriticName   string
	PreviousVerdict store.Verdict
	CurrentVerdict  store.Verdict
	Changed      bool
}

// compareReviews computes deltas in approve/reject/concerns counts and
// per-critic verdict changes between two iterations' review sets.
func compareReviews(previous, current []*store.CriticReview) (approveDelta, rejectDelta, concernsDelta int, deltas []reviewDelta) {
	prevByCritic := make(map[string]store.Verdict, len(previous))
	for _, r := range previous {
		prevByCritic[r.CriticName] = r.Verdict
	}
	prevTally := tallyReviews(previous)
	curTally := tallyReviews(current)

	approveDelta = curTally.Approvals - prevTally.Approvals
	rejectDelta = curTally.Rejections - prevTally.Rejections
	concernsDelta = curTally.Concerns - prevTally.Concerns

	for _, r := range current {
		prevVerdict, seen := prevByCritic[r.CriticName]
		d := reviewDelta{CriticName: r.CriticName, CurrentVerdict: r.Verdict}
		if seen {
			d.PreviousVerdict = prevVerdict
			d.Changed = prevVerdict != r.Verdict
		} else {
			d.Changed = true
		}
		deltas = append(deltas, d)
	}
	return
}
