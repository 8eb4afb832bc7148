package validator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check is one stateless rule a StaticValidator runs against a trigger's
// payload lines. Real checks (gofmt, go vet, a linter) are out of scope for
// this reference implementation; Check exists so tests and the CLI demo can
// exercise the Pipeline contract without external tooling.
type Check struct {
	ID       string
	Severity Severity
	// Matches returns issues found in a single line of text; nil/empty for no finding.
	Matches func(line string) *Issue
}

// StaticValidator is a reference, stateless Pipeline implementation: a
// small set of text-based lint-shaped checks run over a trigger's payload,
// which must be a []string of content lines (e.g. a diff's added lines).
type StaticValidator struct {
	checks []Check
}

// NewStaticValidator constructs a StaticValidator from a set of checks. A
// sensible default set (trailing whitespace, TODO markers) is used if
// checks is empty.
func NewStaticValidator(checks []Check) *StaticValidator {
	if len(checks) == 0 {
		checks = defaultChecks()
	}
	return &StaticValidator{checks: checks}
}

func defaultChecks() []Check {
	return []Check{
		{
			ID:       "trailing-whitespace",
			Severity: SeverityWarning,
			Matches: func(line string) *Issue {
				if strings.TrimRight(line, " \t") != line {
					return &Issue{Message: "trailing whitespace", Severity: SeverityWarning}
				}
				return nil
			},
		},
		{
			ID:       "todo-marker",
			Severity: SeveritySuggestion,
			Matches: func(line string) *Issue {
				if strings.Contains(line, "TODO") {
					return &Issue{Message: "line contains a TODO marker", Severity: SeveritySuggestion}
				}
				return nil
			},
		},
	}
}

// Validate runs every check over trigger.Payload (expected []string lines)
// concurrently via errgroup, one goroutine per check, then aggregates the
// per-check Results (collected into a fixed-index slice so ordering matches
// v.checks regardless of goroutine completion order) into a Summary.
func (v *StaticValidator) Validate(ctx context.Context, trigger Trigger, vctx Context) (*Summary, error) {
	lines, ok := trigger.Payload.([]string)
	if !ok {
		return nil, fmt.Errorf("staticvalidator: trigger payload must be []string, got %T", trigger.Payload)
	}

	results := make([]Result, len(v.checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range v.checks {
		i, check := i, check
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = runCheck(check, lines)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("staticvalidator: %w", err)
	}

	summary := &Summary{ConsensusReached: true, Results: results}
	var blocking bool
	for _, result := range results {
		switch result.Status {
		case StatusRejected:
			blocking = true
			for _, issue := range result.Issues {
				summary.Errors = append(summary.Errors, issue.Message)
			}
		case StatusNeedsRevision:
			for _, issue := range result.Issues {
				summary.Warnings = append(summary.Warnings, issue.Message)
			}
		}
	}

	switch {
	case blocking:
		summary.Status = StatusRejected
		summary.RequiresHumanDecision = true
	case len(summary.Warnings) > 0:
		summary.Status = StatusNeedsRevision
	default:
		summary.Status = StatusApproved
	}

	return summary, nil
}

func runCheck(check Check, lines []string) Result {
	start := time.Now()
	var issues []Issue
	for _, line := range lines {
		if issue := check.Matches(line); issue != nil {
			issues = append(issues, *issue)
		}
	}

	result := Result{
		ValidatorID: check.ID,
		Severity:    check.Severity,
		Issues:      issues,
		Duration:    time.Since(start),
	}
	if len(issues) == 0 {
		result.Status = StatusApproved
		result.Message = "no issues found"
	} else {
		result.Message = fmt.Sprintf("%d issue(s) found", len(issues))
		if check.Severity == SeverityError {
			result.Status = StatusRejected
		} else {
			result.Status = StatusNeedsRevision
		}
	}
	return result
}

// ListValidators returns the ids of every configured check.
func (v *StaticValidator) ListValidators() []string {
	ids := make([]string, len(v.checks))
	for i, c := range v.checks {
		ids[i] = c.ID
	}
	return ids
}
