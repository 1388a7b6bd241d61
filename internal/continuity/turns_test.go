package continuity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/testutil"
)

func newTestTurns(t *testing.T, client chat.Client) (*Turns, *Store) {
	t.Helper()
	store := NewStore()
	turns := NewTurns(TurnsConfig{
		Store:          store,
		Client:         client,
		FrontendTools:  map[string]bool{"filter_flights": true},
		HandlePrefixes: []string{"resp_", "conv_"},
	})
	return turns, store
}

func collect(t *testing.T, seq func(yield func(agui.Event, error) bool)) ([]agui.Event, []error) {
	t.Helper()
	var events []agui.Event
	var errs []error
	for ev, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func TestRunFreshThreadStoresHandle(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueResponse(&chat.Response{
		ID:       "resp_first",
		Messages: []chat.Message{{Role: chat.RoleAssistant, Text: "hello"}},
	})
	turns, store := newTestTurns(t, client)

	resp, err := turns.Run(context.Background(), "thread-1", []chat.Message{userMsg("hi")}, chat.Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())

	h, ok := store.Get("thread-1")
	require.True(t, ok)
	assert.Equal(t, "resp_first", h)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Opts.ConversationID, "fresh thread sends no handle")
}

func TestRunContinuingThreadSendsHandleAndTrims(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueResponse(&chat.Response{ID: "resp_2"})
	turns, store := newTestTurns(t, client)
	store.Put("thread-1", "resp_1")

	history := []chat.Message{
		userMsg("hello"),
		assistantMsg("hi"),
		userMsg("show flights"),
	}
	_, err := turns.Run(context.Background(), "thread-1", history, chat.Options{})
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "resp_1", calls[0].Opts.ConversationID)
	require.Len(t, calls[0].Messages, 1, "continuing turn sends only the newest input")
	assert.Equal(t, "show flights", calls[0].Messages[0].Text)

	h, _ := store.Get("thread-1")
	assert.Equal(t, "resp_2", h, "handle advances each turn")
}

func TestRunDiscardsUnrecognizedHandle(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueResponse(&chat.Response{ID: "bogus_123"})
	turns, store := newTestTurns(t, client)

	_, err := turns.Run(context.Background(), "thread-1", []chat.Message{userMsg("hi")}, chat.Options{})
	require.NoError(t, err)

	_, ok := store.Get("thread-1")
	assert.False(t, ok, "handles without a trusted prefix are never stored")
}

func TestRunStreamCommitsHandleAtTerminal(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_s1"}},
		testutil.StreamStep{Event: agui.TextStart("msg-1")},
		testutil.StreamStep{Event: agui.TextContent("msg-1", "3 flights ")},
		testutil.StreamStep{Event: agui.TextContent("msg-1", "are critical")},
		testutil.StreamStep{Event: agui.TextEnd("msg-1")},
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunFinished, ResponseID: "resp_s1"}},
	)
	turns, store := newTestTurns(t, client)

	events, errs := collect(t, turns.RunStream(context.Background(), "thread-1", []chat.Message{userMsg("hi")}, chat.Options{}))
	require.Empty(t, errs)

	types := testutil.EventTypes(events)
	assert.Equal(t, []agui.EventType{
		agui.EventRunStarted,
		agui.EventTextMessageStart,
		agui.EventTextMessageContent,
		agui.EventTextMessageContent,
		agui.EventTextMessageEnd,
		agui.EventRunFinished,
	}, types)

	h, ok := store.Get("thread-1")
	require.True(t, ok)
	assert.Equal(t, "resp_s1", h)
}

func TestRunStreamStoresHandleOnFrontendToolEnd(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_ft"}},
		testutil.StreamStep{Event: agui.ToolStart("call_1", "filter_flights")},
		testutil.StreamStep{Event: agui.ToolArgs("call_1", `{"risk_level":"critical"}`)},
		testutil.StreamStep{Event: agui.ToolEnd("call_1")},
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunFinished, ResponseID: "resp_ft"}},
	)
	turns, store := newTestTurns(t, client)

	_, errs := collect(t, turns.RunStream(context.Background(), "thread-1", []chat.Message{userMsg("filter")}, chat.Options{}))
	require.Empty(t, errs)

	// The provider is paused on the frontend tool; the handle must be
	// stored so the tool result can resume the conversation later.
	h, ok := store.Get("thread-1")
	require.True(t, ok)
	assert.Equal(t, "resp_ft", h)
}

func TestRunStreamNoHandleIsRetryable(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.TextStart("msg-1")},
		testutil.StreamStep{Event: agui.TextContent("msg-1", "hello")},
		testutil.StreamStep{Event: agui.RunFinished("", "")},
	)
	turns, store := newTestTurns(t, client)

	_, errs := collect(t, turns.RunStream(context.Background(), "thread-1", []chat.Message{userMsg("hi")}, chat.Options{}))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoHandle)

	_, ok := store.Get("thread-1")
	assert.False(t, ok)
}

func TestRunStreamAbandonedStreamLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_ab"}},
		testutil.StreamStep{Event: agui.TextStart("msg-1")},
		testutil.StreamStep{Event: agui.TextContent("msg-1", "partial")},
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunFinished, ResponseID: "resp_ab"}},
	)
	turns, store := newTestTurns(t, client)

	// Consumer walks away after the first two events.
	n := 0
	for range turns.RunStream(context.Background(), "thread-1", []chat.Message{userMsg("hi")}, chat.Options{}) {
		n++
		if n == 2 {
			break
		}
	}

	_, ok := store.Get("thread-1")
	assert.False(t, ok, "no commit before the terminal event is consumed")
}

func TestRunStreamUpstreamErrorPropagates(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_e"}},
		testutil.StreamStep{Err: assert.AnError},
	)
	turns, store := newTestTurns(t, client)

	_, errs := collect(t, turns.RunStream(context.Background(), "thread-1", []chat.Message{userMsg("hi")}, chat.Options{}))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], assert.AnError)

	_, ok := store.Get("thread-1")
	assert.False(t, ok)
}

func TestRunStreamTruncatedStreamSynthesizesRunError(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_t"}},
		testutil.StreamStep{Event: agui.TextStart("msg-1")},
		testutil.StreamStep{Event: agui.TextContent("msg-1", "cut off")},
	)
	turns, store := newTestTurns(t, client)

	events, errs := collect(t, turns.RunStream(context.Background(), "thread-1", []chat.Message{userMsg("hi")}, chat.Options{}))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], agui.ErrProtocolViolation)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, agui.EventRunError, last.Type)
	assert.Equal(t, "PROTOCOL_VIOLATION", last.Code)

	_, ok := store.Get("thread-1")
	assert.False(t, ok)
}

func TestClearThread(t *testing.T) {
	t.Parallel()

	turns, store := newTestTurns(t, testutil.NewScriptedClient(t))
	store.Put("thread-1", "resp_x")

	assert.True(t, turns.ClearThread("thread-1"))
	assert.False(t, turns.ClearThread("thread-1"))
}
