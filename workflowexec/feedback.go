package workflowexec

import (
	"sync"
	"time"
)

// FeedbackStatus enumerates a queued feedback item's lifecycle.
type FeedbackStatus string

const (
	FeedbackQueued    FeedbackStatus = "queued"
	FeedbackAddressed FeedbackStatus = "addressed"
	FeedbackDismissed FeedbackStatus = "dismissed"
)

// FeedbackItem is one piece of review feedback not immediately applied
//. It carries enough context to re-surface in a later coding
// prompt or for an operator to action directly.
type FeedbackItem struct {
	ID           string
	ExecutionID  string
	ToolCallID   string
	File         string
	Feedback     string
	Status       FeedbackStatus
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// FeedbackQueue holds pending review feedback per execution.
type FeedbackQueue struct {
	mu    sync.Mutex
	items map[string]*FeedbackItem
	idGen func(prefix string) string
}

// NewFeedbackQueue constructs an empty queue.
func NewFeedbackQueue(idGen func(prefix string) string) *FeedbackQueue {
	if idGen == nil {
		idGen = counterIDGen()
	}
	return &FeedbackQueue{items: make(map[string]*FeedbackItem), idGen: idGen}
}

// Enqueue adds a new queued feedback item and returns it.
func (q *FeedbackQueue) Enqueue(executionID, toolCallID, file, feedback string) *FeedbackItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := &FeedbackItem{
		ID:          q.idGen("fb"),
		ExecutionID: executionID,
		ToolCallID:  toolCallID,
		File:        file,
		Feedback:    feedback,
		Status:      FeedbackQueued,
		CreatedAt:   time.Now(),
	}
	q.items[item.ID] = item
	return item
}

// List returns every feedback item for an execution, optionally filtered to
// a single status (pass "" for all).
func (q *FeedbackQueue) List(executionID string, status FeedbackStatus) []*FeedbackItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*FeedbackItem
	for _, it := range q.items {
		if it.ExecutionID != executionID {
			continue
		}
		if status != "" && it.Status != status {
			continue
		}
		out = append(out, it)
	}
	return out
}

// MarkAddressed transitions a queued item to addressed.
func (q *FeedbackQueue) MarkAddressed(id string) error {
	return q.resolve(id, FeedbackAddressed)
}

// MarkDismissed transitions a queued item to dismissed.
func (q *FeedbackQueue) MarkDismissed(id string) error {
	return q.resolve(id, FeedbackDismissed)
}

func (q *FeedbackQueue) resolve(id string, status FeedbackStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return ErrFeedbackNotFound
	}
	now := time.Now()
	item.Status = status
	item.ResolvedAt = &now
	return nil
}
