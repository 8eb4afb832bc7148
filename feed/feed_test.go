package feed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostAssignsIDAndTimestamp(t *testing.T) {
	f := New(10, nil)
	e := f.Post(Entry{Source: SourceAgent, Type: TypeMessage, Content: "hi"})
	require.NotEmpty(t, e.ID)
	require.False(t, e.Timestamp.IsZero())
}

func TestGetByIDAndRepliesTo(t *testing.T) {
	f := New(10, nil)
	root := f.Post(Entry{Source: SourceHuman, Type: TypeMessage, Content: "root"})
	reply := f.Post(Entry{Source: SourceAgent, Type: TypeMessage, Content: "reply", ReplyTo: root.ID})

	got, ok := f.GetByID(root.ID)
	require.True(t, ok)
	require.Equal(t, root.Content, got.Content)

	replies := f.RepliesTo(root.ID)
	require.Len(t, replies, 1)
	require.Equal(t, reply.ID, replies[0].ID)
}

func TestFIFOEvictionAtMaxEntries(t *testing.T) {
	f := New(2, nil)
	f.Post(Entry{Type: TypeMessage, Content: "1"})
	second := f.Post(Entry{Type: TypeMessage, Content: "2"})
	third := f.Post(Entry{Type: TypeMessage, Content: "3"})

	all := f.Get(Filter{})
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)
	require.Equal(t, third.ID, all[1].ID)
}

func TestSubscribersFanOutGeneralThenType(t *testing.T) {
	f := New(10, nil)
	var mu sync.Mutex
	var order []string

	f.Subscribe(func(e *Entry) {
		mu.Lock()
		order = append(order, "general")
		mu.Unlock()
	})
	f.SubscribeType(TypeMessage, func(e *Entry) {
		mu.Lock()
		order = append(order, "typed")
		mu.Unlock()
	})

	f.Post(Entry{Type: TypeMessage, Content: "x"})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"general", "typed"}, order)
}

func TestListenerPanicDoesNotBlockOtherListeners(t *testing.T) {
	f := New(10, nil)
	var secondCalled bool

	f.Subscribe(func(e *Entry) { panic("boom") })
	f.Subscribe(func(e *Entry) { secondCalled = true })

	require.NotPanics(t, func() {
		f.Post(Entry{Type: TypeMessage, Content: "x"})
	})
	require.True(t, secondCalled)
}

func TestExportImportRoundTrip(t *testing.T) {
	f := New(10, nil)
	f.Post(Entry{Type: TypeMessage, Content: "a"})
	f.Post(Entry{Type: TypeMessage, Content: "b"})

	exported := f.Export()
	require.Len(t, exported, 2)

	f2 := New(10, nil)
	f2.Import(exported)
	require.Equal(t, 2, f2.Len())
}

func TestFilterBySourceAndType(t *testing.T) {
	f := New(10, nil)
	f.Post(Entry{Source: SourceAgent, Type: TypeMessage, Content: "a"})
	f.Post(Entry{Source: SourceCritic, Type: TypeCritic, Content: "b"})

	got := f.Get(Filter{Source: SourceCritic})
	require.Len(t, got, 1)
	require.Equal(t, TypeCritic, got[0].Type)
}
