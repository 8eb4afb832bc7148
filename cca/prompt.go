package cca

import (
	"fmt"
	"strings"

	"github.com/arbiterloop/engine/store"
)

// buildCoderPrompt constructs the coder's first user-role message for one
// iteration.
func buildCoderPrompt(task string, iterationNumber int, isContinuation bool, prior []*IterationRecord, pendingFeedback string, lastDecision *store.ArbiterDecision) string {
	var b strings.Builder

	if pendingFeedback != "" {
		fmt.Fprintf(&b, "## Human Feedback to Address\n\n%s\n\n", pendingFeedback)
	}

	switch {
	case isContinuation:
		b.WriteString(resumeContextPrompt(task, prior))
	case iterationNumber == 1:
		b.WriteString(task)
	default:
		b.WriteString(continuationPrompt(task, lastDecision, prior))
	}

	return b.String()
}

// resumeContextPrompt builds the "resume context" prompt for the first
// iteration a run adds to a session that already has history.
func resumeContextPrompt(task string, prior []*IterationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Resume Context\n\nThis session has prior history. Task: %s\n\n", task)
	b.WriteString("Past changes:\n")
	touched := map[string]bool{}
	for _, rec := range prior {
		for _, c := range rec.Changes {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", c.Operation, c.FilePath, c.Status)
			touched[c.FilePath] = true
		}
	}
	if len(touched) > 0 {
		b.WriteString("\nFiles touched so far:\n")
		for f := range touched {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if last := lastFeedback(prior); last != "" {
		fmt.Fprintf(&b, "\nLast feedback: %s\n", last)
	}
	return b.String()
}

// continuationPrompt builds the prompt for iterations > 1: the task plus
// the previous arbiter's feedback, address-issues, focus-files, and each
// prior critic's verdict and comments.
func continuationPrompt(task string, lastDecision *store.ArbiterDecision, prior []*IterationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Task\n\n%s\n\n", task)

	if lastDecision != nil {
		fmt.Fprintf(&b, "## Arbiter Feedback\n\n%s\n\n", lastDecision.Feedback)
		if len(lastDecision.AddressIssues) > 0 {
			b.WriteString("Address these issues:\n")
			for _, issue := range lastDecision.AddressIssues {
				fmt.Fprintf(&b, "- %s\n", issue)
			}
			b.WriteString("\n")
		}
		if len(lastDecision.FocusFiles) > 0 {
			b.WriteString("Focus files:\n")
			for _, f := range lastDecision.FocusFiles {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			b.WriteString("\n")
		}
	}

	if len(prior) > 0 {
		last := prior[len(prior)-1]
		if len(last.Reviews) > 0 {
			b.WriteString("## Prior Critic Verdicts\n\n")
			for _, r := range last.Reviews {
				fmt.Fprintf(&b, "- %s (%s): %s\n", r.CriticName, r.Verdict, r.Message)
			}
		}
	}

	return b.String()
}

func lastFeedback(prior []*IterationRecord) string {
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Decision != nil && prior[i].Decision.Feedback != "" {
			return prior[i].Decision.Feedback
		}
	}
	return ""
}

// noChangesSummary builds the arbiter-facing summary for the case where the
// coder produced zero changes this iteration.
func noChangesSummary(iterationNumber int) string {
	return fmt.Sprintf("Iteration %d: no files modified. Suggest `iterate` to retry with clearer instructions, or `reject` to abandon this task.", iterationNumber)
}

// forcedCapSummary builds the arbiter-facing summary once the iteration cap
// forces a decision.
func forcedCapSummary(maxIterations int) string {
	return fmt.Sprintf("Maximum iteration cap (%d) reached without consensus. This decision is forced: the loop cannot continue.", maxIterations)
}
