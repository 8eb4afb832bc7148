package adapter

import (
	"context"
	"encoding/json"

	"github.com/arbiterloop/engine/feed"
)

type sessionRunParams struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task"`
	Workspace string `json:"workspace"`
}

type sessionFeedbackParams struct {
	SessionID string `json:"session_id"`
	Feedback  string `json:"feedback"`
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

// registerSessionMethods wires the CCA-facing RPC surface: starting a loop
// for a session, feeding human feedback back into it, and reading/posting
// the human-visible message stream the loop produces along the way. The
// message stream rides on the shared feed rather than a dedicated store
// table, so list/get/send are Filter/Post/GetByID calls scoped to
// feed.TypeMessage entries.
func (a *Adapter) registerSessionMethods() {
	a.Register("workflow/session/run", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p sessionRunParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("session_id", err)
		}
		session, err := a.Sessions(p.SessionID)
		if err != nil {
			return nil, newError(CodeSessionNotFound, err.Error())
		}
		state, err := session.Run(ctx, p.SessionID, p.Task, p.Workspace)
		if err != nil {
			return nil, wrapError(CodeMessageFailed, "session run failed", err)
		}
		a.emit("workflow/session/completed", state)
		return state, nil
	})

	a.Register("workflow/feedback/address", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p sessionFeedbackParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("session_id", err)
		}
		session, err := a.Sessions(p.SessionID)
		if err != nil {
			return nil, newError(CodeSessionNotFound, err.Error())
		}
		state, err := session.ContinueWithFeedback(ctx, p.SessionID, p.Feedback)
		if err != nil {
			return nil, wrapError(CodeMessageFailed, "feedback processing failed", err)
		}
		a.emit("workflow/feedback/addressed", state)
		return state, nil
	})

	a.Register("workflow/feedback/list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p sessionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("session_id", err)
		}
		entries := a.Feed.Get(feed.Filter{Type: feed.TypeCritic})
		return entries, nil
	})

	a.Register("workflow/feedback/dismiss", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p struct {
			EntryID string `json:"entry_id"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("entry_id", err)
		}
		a.emit("workflow/feedback/dismissed", p)
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/message/list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p sessionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("session_id", err)
		}
		entries := a.Feed.Get(feed.Filter{Type: feed.TypeMessage})
		return entries, nil
	})

	a.Register("workflow/message/get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p struct {
			EntryID string `json:"entry_id"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("entry_id", err)
		}
		entry, ok := a.Feed.GetByID(p.EntryID)
		if !ok {
			return nil, newError(CodeSessionNotFound, "message not found: "+p.EntryID)
		}
		return entry, nil
	})

	a.Register("workflow/message/send", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p struct {
			SessionID string `json:"session_id"`
			Content   string `json:"content"`
			ReplyTo   string `json:"reply_to"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("session_id", err)
		}
		entry := a.Feed.Post(feed.Entry{
			Source:   feed.SourceHuman,
			SourceID: p.SessionID,
			Type:     feed.TypeMessage,
			Content:  p.Content,
			ReplyTo:  p.ReplyTo,
		})
		a.emit("workflow/message/created", entry)
		return entry, nil
	})
}
