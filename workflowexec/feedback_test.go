package workflowexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAndListFiltersByExecutionAndStatus(t *testing.T) {
	q := NewFeedbackQueue(nil)
	a := q.Enqueue("exec-1", "tc-1", "main.go", "missing error check")
	q.Enqueue("exec-2", "tc-2", "other.go", "unrelated")

	all := q.List("exec-1", "")
	require.Len(t, all, 1)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, FeedbackQueued, all[0].Status)

	queued := q.List("exec-1", FeedbackQueued)
	assert.Len(t, queued, 1)
	addressed := q.List("exec-1", FeedbackAddressed)
	assert.Len(t, addressed, 0)
}

func TestMarkAddressedTransitionsStatusAndStampsResolvedAt(t *testing.T) {
	q := NewFeedbackQueue(nil)
	item := q.Enqueue("exec-1", "tc-1", "main.go", "fix this")

	require.NoError(t, q.MarkAddressed(item.ID))
	require.Len(t, q.List("exec-1", FeedbackAddressed), 1)
	assert.NotNil(t, item.ResolvedAt)
}

func TestMarkDismissedTransitionsStatus(t *testing.T) {
	q := NewFeedbackQueue(nil)
	item := q.Enqueue("exec-1", "tc-1", "main.go", "not applicable")

	require.NoError(t, q.MarkDismissed(item.ID))
	assert.Equal(t, FeedbackDismissed, item.Status)
}

func TestMarkAddressedUnknownIDErrors(t *testing.T) {
	q := NewFeedbackQueue(nil)
	assert.ErrorIs(t, q.MarkAddressed("ghost"), ErrFeedbackNotFound)
}
