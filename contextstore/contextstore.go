// Package contextstore bounds tool output sizes before they reach an agent's
// context window, spilling the full result into a paginated side store keyed
// by a generated id.
//
// Follows pkg/utils/tokens.go's token-budget handling (size accounting
// before trimming for a model's context window) and pkg/tool/tool.go's
// result-shaping helpers; the spill/fetch split itself has no direct
// analogue in either and is built fresh here.
package contextstore

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cap bounds one tool's result size before truncation kicks in.
type Cap struct {
	Field string // documents the unit being capped: "chars", "entries", "matches"
	Value int
}

// DefaultCaps returns the built-in per-tool size caps used when no
// configuration overrides them.
func DefaultCaps() map[string]Cap {
	return map[string]Cap{
		"file-read":   {Field: "chars", Value: 50_000},
		"file-glob":   {Field: "entries", Value: 100},
		"file-grep":   {Field: "matches", Value: 50},
		"shell-exec":  {Field: "chars", Value: 20_000},
		"__default__": {Field: "chars", Value: 30_000},
	}
}

// StoredResult is the full, un-truncated output of one tool call, retained
// for paginated retrieval once its summary has been truncated.
type StoredResult struct {
	ID          string
	ToolName    string
	Input       string
	FullResult  string
	SizeChars   int
	CreatedAt   time.Time
}

// ProcessedResult is what the Result Processor hands back to the tool
// runtime: a bounded summary plus metadata about any spill.
type ProcessedResult struct {
	Summary       string
	Truncated     bool
	StoreID       string
	OriginalSize  int
	SummarySize   int
}

// Store is the context store / result processor: it truncates raw tool
// results down to a per-tool cap, retains the full result under a generated
// id when truncation occurred, and serves paginated reads of that id. It is
// safe for concurrent use across executions ("the Context
// Store ... [is] shared across executions; each is internally thread-safe").
type Store struct {
	mu       sync.Mutex
	caps     map[string]Cap
	maxItems int
	order    *list.List               // insertion order, front = oldest, for FIFO eviction
	items    map[string]*list.Element // id -> element (element.Value is *StoredResult)
}

// New constructs a Store with the given per-tool caps (falling back to
// DefaultCaps's "__default__" entry for unlisted tools) and a FIFO eviction
// cap on the number of retained spilled results (the default 1000).
func New(caps map[string]Cap, maxItems int) *Store {
	if caps == nil {
		caps = DefaultCaps()
	}
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &Store{
		caps:     caps,
		maxItems: maxItems,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (s *Store) capFor(toolName string) Cap {
	if c, ok := s.caps[toolName]; ok {
		return c
	}
	return s.caps["__default__"]
}

// ProcessText truncates a plain-text tool result (file-read's natural
// shape) using the head/tail strategy: keep ~70% of the cap from the start
// and ~25% from the end, with a marker naming the omitted line count and the
// spill id in between.
func (s *Store) ProcessText(ctx context.Context, toolName, input, raw string) (*ProcessedResult, error) {
	bound := s.capFor(toolName)
	if len(raw) <= bound.Value {
		return &ProcessedResult{Summary: raw, OriginalSize: len(raw), SummarySize: len(raw)}, nil
	}

	headLen := bound.Value * 70 / 100
	tailLen := bound.Value * 25 / 100
	if headLen+tailLen >= len(raw) {
		headLen, tailLen = len(raw)/2, len(raw)/2
	}
	head := raw[:headLen]
	tail := raw[len(raw)-tailLen:]
	omittedChars := len(raw) - headLen - tailLen
	omittedLines := countLines(raw[headLen : len(raw)-tailLen])

	storeID := s.spill(toolName, input, raw)
	marker := fmt.Sprintf("\n\n... [%d chars / %d lines omitted, full result at %s] ...\n\n", omittedChars, omittedLines, storeID)
	summary := head + marker + tail

	return &ProcessedResult{
		Summary:      summary,
		Truncated:    true,
		StoreID:      storeID,
		OriginalSize: len(raw),
		SummarySize:  len(summary),
	}, nil
}

// ProcessShellOutput truncates combined stdout/stderr using the shell-exec
// strategy: a small prefix (~30%) and a larger, most-recent-wins tail (~60%)
// of stdout, with stderr sharing the cap independently.
func (s *Store) ProcessShellOutput(ctx context.Context, input, stdout, stderr string) (*ProcessedResult, error) {
	bound := s.capFor("shell-exec")
	combined := stdout + stderr
	if len(combined) <= bound.Value {
		return &ProcessedResult{Summary: combined, OriginalSize: len(combined), SummarySize: len(combined)}, nil
	}

	stdoutCap := bound.Value
	prefixLen := stdoutCap * 30 / 100
	tailLen := stdoutCap * 60 / 100
	truncatedStdout := stdout
	if len(stdout) > stdoutCap {
		prefix := stdout[:prefixLen]
		tail := stdout[len(stdout)-tailLen:]
		truncatedStdout = prefix + "\n... [stdout truncated] ...\n" + tail
	}

	truncatedStderr := stderr
	if len(stderr) > bound.Value {
		truncatedStderr = stderr[:bound.Value] + "\n... [stderr truncated] ..."
	}

	storeID := s.spill("shell-exec", input, combined)
	summary := truncatedStdout
	if truncatedStderr != "" {
		summary += "\n--- stderr ---\n" + truncatedStderr
	}
	summary += fmt.Sprintf("\n\n[full output at %s]", storeID)

	return &ProcessedResult{
		Summary:      summary,
		Truncated:    true,
		StoreID:      storeID,
		OriginalSize: len(combined),
		SummarySize:  len(summary),
	}, nil
}

// ListSummary describes a bounded slice of a list-shaped result (file-glob,
// file-grep) plus the stats needed to reconstruct what was omitted.
type ListSummary struct {
	Entries        []string
	TotalCount     int
	OmittedCount   int
	OmittedByFile  map[string]int // populated for search-shaped results only
}

// ProcessList bounds a list-shaped result to the first N entries (N = the
// tool's cap in "entries"/"matches" units), attaching an omission summary.
// fileOf extracts the owning file from an entry, used to build the
// omitted-by-file histogram for search results; pass nil for file-glob.
func (s *Store) ProcessList(ctx context.Context, toolName, input string, entries []string, fileOf func(string) string) (*ListSummary, *ProcessedResult, error) {
	bound := s.capFor(toolName)
	if len(entries) <= bound.Value {
		return &ListSummary{Entries: entries, TotalCount: len(entries)}, nil, nil
	}

	kept := entries[:bound.Value]
	omitted := entries[bound.Value:]

	summary := &ListSummary{
		Entries:      kept,
		TotalCount:   len(entries),
		OmittedCount: len(omitted),
	}
	if fileOf != nil {
		histogram := make(map[string]int)
		for _, e := range omitted {
			histogram[fileOf(e)]++
		}
		summary.OmittedByFile = histogram
	}

	joined := joinLines(entries)
	storeID := s.spill(toolName, input, joined)

	return summary, &ProcessedResult{
		Truncated:    true,
		StoreID:      storeID,
		OriginalSize: len(joined),
	}, nil
}

func (s *Store) spill(toolName, input, full string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "ctx-" + uuid.NewString()
	result := &StoredResult{
		ID:         id,
		ToolName:   toolName,
		Input:      input,
		FullResult: full,
		SizeChars:  len(full),
		CreatedAt:  time.Now().UTC(),
	}

	elem := s.order.PushBack(result)
	s.items[id] = elem

	for s.order.Len() > s.maxItems {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*StoredResult).ID)
	}

	return id
}

// PageResult is the paginated response shape for get-stored-result.
type PageResult struct {
	Content    string
	Offset     int
	Limit      int
	TotalSize  int
	HasMore    bool
	NextOffset int
}

// Fetch implements the paginated get-stored-result tool. It never requires
// permission ("the fetch tool itself must never require
// permission").
func (s *Store) Fetch(ctx context.Context, id string, offset, limit int) (*PageResult, error) {
	s.mu.Lock()
	elem, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("contextstore: no stored result with id %q", id)
	}
	result := elem.Value.(*StoredResult)

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = len(result.FullResult)
	}

	total := len(result.FullResult)
	end := offset + limit
	if end > total {
		end = total
	}
	if offset > total {
		offset = total
	}

	content := result.FullResult[offset:end]
	hasMore := end < total

	page := &PageResult{
		Content:   content,
		Offset:    offset,
		Limit:     limit,
		TotalSize: total,
		HasMore:   hasMore,
	}
	if hasMore {
		page.NextOffset = end
	}
	return page, nil
}

// Get returns the raw StoredResult record, used by callers that need
// metadata (tool name, original input) rather than a page of content.
func (s *Store) Get(id string) (*StoredResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return elem.Value.(*StoredResult), true
}

// Len reports the number of currently retained spilled results.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func countLines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

func joinLines(entries []string) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += "\n"
		}
		out += e
	}
	return out
}
