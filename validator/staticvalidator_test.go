package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticValidatorApprovesCleanInput(t *testing.T) {
	v := NewStaticValidator(nil)
	summary, err := v.Validate(context.Background(), Trigger{Payload: []string{"clean line", "another"}}, Context{})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, summary.Status)
	require.False(t, summary.RequiresHumanDecision)
}

func TestStaticValidatorFlagsTrailingWhitespaceAsNeedsRevision(t *testing.T) {
	v := NewStaticValidator(nil)
	summary, err := v.Validate(context.Background(), Trigger{Payload: []string{"line with trailing space  "}}, Context{})
	require.NoError(t, err)
	require.Equal(t, StatusNeedsRevision, summary.Status)
	require.NotEmpty(t, summary.Warnings)
}

func TestStaticValidatorRejectsOnErrorSeverityCheck(t *testing.T) {
	v := NewStaticValidator([]Check{
		{
			ID:       "no-panic",
			Severity: SeverityError,
			Matches: func(line string) *Issue {
				if line == "panic(\"x\")" {
					return &Issue{Message: "bare panic call", Severity: SeverityError}
				}
				return nil
			},
		},
	})

	summary, err := v.Validate(context.Background(), Trigger{Payload: []string{`panic("x")`}}, Context{})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, summary.Status)
	require.True(t, summary.RequiresHumanDecision)
	require.NotEmpty(t, summary.Errors)
}

func TestStaticValidatorRejectsNonStringSlicePayload(t *testing.T) {
	v := NewStaticValidator(nil)
	_, err := v.Validate(context.Background(), Trigger{Payload: 42}, Context{})
	require.Error(t, err)
}

func TestListValidatorsReturnsConfiguredIDs(t *testing.T) {
	v := NewStaticValidator(nil)
	ids := v.ListValidators()
	require.Contains(t, ids, "trailing-whitespace")
	require.Contains(t, ids, "todo-marker")
}
