// Package feed implements the Shared Feed: an append-only, fixed-capacity
// ring buffer of typed events fanned out to subscribers, used to surface
// agent messages, changes, tool actions, and decisions to anything watching
// a session (a CLI, a debug HTTP stream, a future UI).
//
// Follows an event-bus shape for step/agent progress notifications,
// ported here from a single-consumer callback into a general/type-scoped
// multi-subscriber fan-out.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source identifies who produced a FeedEntry.
type Source string

const (
	SourceHuman     Source = "human"
	SourceAgent     Source = "agent"
	SourceCritic    Source = "critic"
	SourceValidator Source = "validator"
	SourceSystem    Source = "system"
)

// EntryType classifies the shape of a FeedEntry's Content.
type EntryType string

const (
	TypeMessage    EntryType = "message"
	TypeChange     EntryType = "change"
	TypeAction     EntryType = "action"
	TypeSystem     EntryType = "system"
	TypeValidation EntryType = "validation"
	TypeDecision   EntryType = "decision"
	TypeCritic     EntryType = "critic"
	TypeError      EntryType = "error"
)

// Entry is one append-only event on the feed.
type Entry struct {
	ID        string
	Timestamp time.Time
	Source    Source
	SourceID  string
	Type      EntryType
	Content   any
	ReplyTo   string
}

// Filter narrows a Get call; zero-valued fields are wildcards.
type Filter struct {
	Source  Source
	Type    EntryType
	ReplyTo string
	Since   time.Time
	Limit   int
}

func (f Filter) matches(e *Entry) bool {
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.ReplyTo != "" && e.ReplyTo != f.ReplyTo {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Listener receives every posted entry (via Subscribe) or every entry of one
// type (via SubscribeType).
type Listener func(e *Entry)

// Feed is the append-only ring buffer. Safe for concurrent use.
type Feed struct {
	mu            sync.Mutex
	entries       []*Entry
	maxEntries    int
	subscribers   []Listener
	typeSubs      map[EntryType][]Listener
	log           *slog.Logger
}

// New constructs a Feed capped at maxEntries (the default 10 000).
func New(maxEntries int, log *slog.Logger) *Feed {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		maxEntries: maxEntries,
		typeSubs:   make(map[EntryType][]Listener),
		log:        log,
	}
}

// Post assigns an id and timestamp to e, appends it, trims to capacity,
// then fans out: general subscribers first, then subscribers of e's type.
// A listener panic is recovered and logged so it never prevents the
// remaining listeners from running.
func (f *Feed) Post(e Entry) *Entry {
	e.ID = "feed-" + uuid.NewString()
	e.Timestamp = time.Now().UTC()

	f.mu.Lock()
	f.entries = append(f.entries, &e)
	if len(f.entries) > f.maxEntries {
		overflow := len(f.entries) - f.maxEntries
		f.entries = f.entries[overflow:]
	}
	general := append([]Listener(nil), f.subscribers...)
	typed := append([]Listener(nil), f.typeSubs[e.Type]...)
	f.mu.Unlock()

	for _, l := range general {
		f.dispatch(l, &e)
	}
	for _, l := range typed {
		f.dispatch(l, &e)
	}
	return &e
}

func (f *Feed) dispatch(l Listener, e *Entry) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("feed listener panicked", "recovered", r, "entry_id", e.ID)
		}
	}()
	l(e)
}

// Get returns entries matching filter, oldest first.
func (f *Feed) Get(filter Filter) []*Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Entry
	for _, e := range f.entries {
		if filter.matches(e) {
			out = append(out, e)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
	}
	return out
}

// GetByID returns the entry with the given id, if still retained.
func (f *Feed) GetByID(id string) (*Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// RepliesTo returns every entry whose ReplyTo references id, oldest first.
func (f *Feed) RepliesTo(id string) []*Entry {
	return f.Get(Filter{ReplyTo: id})
}

// Subscribe registers a listener invoked for every posted entry.
func (f *Feed) Subscribe(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, l)
}

// SubscribeType registers a listener invoked only for entries of the given type.
func (f *Feed) SubscribeType(t EntryType, l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typeSubs[t] = append(f.typeSubs[t], l)
}

// Export serializes the buffer as an ordered list, oldest first.
func (f *Feed) Export() []*Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Import replaces the buffer's contents with entries, trimmed to capacity,
// used to rehydrate a feed from a persisted export.
func (f *Feed) Import(entries []*Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(entries) > f.maxEntries {
		entries = entries[len(entries)-f.maxEntries:]
	}
	f.entries = append([]*Entry(nil), entries...)
}

// Len reports the number of entries currently retained.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
