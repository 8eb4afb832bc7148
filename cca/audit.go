package cca

import (
	"fmt"
	"strings"

	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/store"
)

// auditOutcome classifies how one prior concern fared in a later iteration.
type auditOutcome string

const (
	outcomeApproved     auditOutcome = "approved"
	outcomePartial      auditOutcome = "partial"
	outcomeStillConcern auditOutcome = "concerns"
	outcomeNotAddressed auditOutcome = "not-addressed"
)

// auditConcern is one prior-iteration issue (an arbiter AddressIssues entry
// or a critic issue) carried into the audit trail.
type auditConcern struct {
	Source string // "arbiter" or a critic name
	File   string
	Line   int
	Text   string
}

// auditEntry is one addressed-concern row in the audit trail posted for
// iterations >= 2, per final paragraph.
type auditEntry struct {
	Concern       auditConcern
	AddressedFile string
	ChangeType    store.ChangeOperation
	DiffSnippet   string
	LinesAdded    int
	LinesRemoved  int
	Outcome       auditOutcome
}

// buildAuditTrail maps each concern raised in previous into the change (if
// any) that plausibly addressed it in current, and the resulting verdict
// delta, for iteration numbers >= 2.
func buildAuditTrail(previous, current *IterationRecord) []auditEntry {
	if previous == nil {
		return nil
	}

	concerns := collectConcerns(previous)
	changesByFile := make(map[string]*store.ProposedChange, len(current.Changes))
	for _, c := range current.Changes {
		changesByFile[c.FilePath] = c
	}

	_, _, _, deltas := compareReviews(previous.Reviews, current.Reviews)
	deltaByCritic := make(map[string]reviewDelta, len(deltas))
	for _, d := range deltas {
		deltaByCritic[d.CriticName] = d
	}

	entries := make([]auditEntry, 0, len(concerns))
	for _, concern := range concerns {
		entry := auditEntry{Concern: concern, Outcome: outcomeNotAddressed}

		if change, ok := changesByFile[concern.File]; ok {
			entry.AddressedFile = change.FilePath
			entry.ChangeType = change.Operation
			entry.DiffSnippet = diffSnippet(change.UnifiedDiff)
			entry.LinesAdded, entry.LinesRemoved = diffLineDelta(change.UnifiedDiff)
			entry.Outcome = outcomePartial
		}

		if delta, ok := deltaByCritic[concern.Source]; ok && delta.Changed {
			switch delta.CurrentVerdict {
			case store.VerdictApprove:
				entry.Outcome = outcomeApproved
			case store.VerdictConcerns:
				entry.Outcome = outcomeStillConcern
			case store.VerdictReject:
				entry.Outcome = outcomeStillConcern
			}
		}

		entries = append(entries, entry)
	}
	return entries
}

// collectConcerns gathers every addressable concern out of an iteration
// record: the arbiter's explicit AddressIssues plus every issue of each
// critic review whose verdict is not approve.
func collectConcerns(rec *IterationRecord) []auditConcern {
	var concerns []auditConcern
	if rec.Decision != nil {
		for _, issue := range rec.Decision.AddressIssues {
			concerns = append(concerns, auditConcern{Source: "arbiter", Text: issue})
		}
	}
	for _, review := range rec.Reviews {
		if review.Verdict == store.VerdictApprove {
			continue
		}
		for _, issue := range review.Issues {
			concerns = append(concerns, auditConcern{
				Source: review.CriticName,
				File:   issue.File,
				Line:   issue.Line,
				Text:   issue.Message,
			})
		}
	}
	return concerns
}

// postAuditEntry posts one feed entry summarizing how the current
// iteration addressed the previous iteration's open concerns.
func postAuditEntry(f *feed.Feed, iterationID string, entries []auditEntry) {
	if len(entries) == 0 {
		return
	}
	f.Post(feed.Entry{
		Source:   feed.SourceSystem,
		SourceID: iterationID,
		Type:     feed.TypeAction,
		Content: map[string]any{
			"iteration_id": iterationID,
			"audit_trail":  entries,
		},
	})
}

// diffSnippet returns a short representative excerpt of a unified diff for
// the audit trail, rather than the full patch.
func diffSnippet(diff string) string {
	lines := strings.Split(diff, "\n")
	const maxLines = 6
	if len(lines) <= maxLines {
		return diff
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
}

// diffLineDelta counts added/removed lines in a unified diff by its
// leading +/- markers, ignoring the +++ /--- file headers.
func diffLineDelta(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
