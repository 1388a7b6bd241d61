package agui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestNormalizerBuffersStartUntilContent(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	assert.Empty(t, n.Process(TextStart("msg-1")), "start is buffered")

	out := n.Process(TextContent("msg-1", "hello"))
	require.Len(t, out, 2)
	assert.Equal(t, EventTextMessageStart, out[0].Type)
	assert.Equal(t, EventTextMessageContent, out[1].Type)

	out = n.Process(TextEnd("msg-1"))
	require.Len(t, out, 1)
	assert.Equal(t, EventTextMessageEnd, out[0].Type)
}

func TestNormalizerDropsContentlessMessage(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	assert.Empty(t, n.Process(TextStart("msg-1")))
	assert.Empty(t, n.Process(TextEnd("msg-1")), "end of a never-emitted start is dropped")

	out := n.Process(RunFinished("t", "r"))
	require.Len(t, out, 1, "no synthesized end for a contentless message")
	assert.Equal(t, EventRunFinished, out[0].Type)
}

func TestNormalizerToolCallDiscardsBufferedStart(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	assert.Empty(t, n.Process(TextStart("msg-1")))

	out := n.Process(ToolStart("call_1", "analyze_flights"))
	require.Len(t, out, 1)
	assert.Equal(t, EventToolCallStart, out[0].Type)

	// The interrupted start never surfaces, so its end is dropped too.
	assert.Empty(t, n.Process(TextEnd("msg-1")))
}

func TestNormalizerDeduplicatesToolCallByID(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	require.Len(t, n.Process(ToolStart("call_1", "analyze_flights")), 1)
	assert.Empty(t, n.Process(ToolStart("call_1", "analyze_flights")), "duplicate id suppressed")

	// The suppression window covers args/end/result for the id and closes
	// when a result is consumed.
	assert.Empty(t, n.Process(ToolArgs("call_1", "{}")))
	assert.Empty(t, n.Process(ToolEnd("call_1")))
	assert.Empty(t, n.Process(ToolResult("msg-t", "call_1", "first result closes the window")))

	out := n.Process(ToolResult("msg-t", "call_1", "passes through"))
	require.Len(t, out, 1)
	assert.Equal(t, EventToolCallResult, out[0].Type)
}

func TestNormalizerDeduplicatesToolCallByName(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	require.Len(t, n.Process(ToolStart("call_1", "filter_flights")), 1)
	assert.Empty(t, n.Process(ToolStart("call_2", "filter_flights")), "same tool name suppressed")

	// Events for the suppressed call id are dropped; the original call's
	// events still pass.
	assert.Empty(t, n.Process(ToolArgs("call_2", "{}")))
	require.Len(t, n.Process(ToolArgs("call_1", `{"risk`)), 1)
	require.Len(t, n.Process(ToolEnd("call_1")), 1)
	assert.Empty(t, n.Process(ToolEnd("call_2")))
}

func TestNormalizerSynthesizesEndsAtRunFinished(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	n.Process(TextStart("msg-1"))
	n.Process(TextContent("msg-1", "answer without a natural end"))

	out := n.Process(RunFinished("t", "r"))
	require.Len(t, out, 2)
	assert.Equal(t, EventTextMessageEnd, out[0].Type)
	assert.Equal(t, "msg-1", out[0].MessageID)
	assert.Equal(t, EventRunFinished, out[1].Type, "terminal event is last")

	assert.True(t, n.Done())
	assert.Empty(t, n.Process(TextContent("msg-1", "late")), "events after terminal are dropped")
}

func TestNormalizerRunErrorIsTerminal(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	n.Process(TextStart("msg-1"))
	n.Process(TextContent("msg-1", "partial"))

	out := n.Process(RunError("UPSTREAM_ERROR", "boom"))
	require.Len(t, out, 1, "an aborted run synthesizes nothing")
	assert.Equal(t, EventRunError, out[0].Type)
	assert.True(t, n.Done())
}

func TestNormalizerSuppressesMessagesSnapshot(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	assert.Empty(t, n.Process(Event{Type: EventMessagesSnapshot}))
}

func TestNormalizerPassesThroughUnknownEvents(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	out := n.Process(Event{Type: EventStateDelta})
	require.Len(t, out, 1)
	assert.Equal(t, EventStateDelta, out[0].Type)
}

func TestNormalizeRepairsFullToolCallStream(t *testing.T) {
	t.Parallel()

	// A provider retry duplicated the tool call and the final text message
	// never got its end event.
	src := func(yield func(Event, error) bool) {
		events := []Event{
			RunStarted("thread-1", "run-1"),
			ToolStart("call_1", "analyze_flights"),
			ToolArgs("call_1", `{"question":"overloaded?"}`),
			ToolEnd("call_1"),
			ToolStart("call_1", "analyze_flights"),
			ToolArgs("call_1", `{"question":"overloaded?"}`),
			ToolEnd("call_1"),
			ToolResult("msg-t", "call_1", `{"matchCount":3}`),
			ToolResult("msg-t", "call_1", `{"matchCount":3}`),
			TextStart("msg-1"),
			TextContent("msg-1", "3 flights are overloaded."),
			Event{Type: EventMessagesSnapshot},
			RunFinished("thread-1", "run-1"),
		}
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}

	var out []Event
	for ev, err := range NewNormalizer(nil).Normalize(src) {
		require.NoError(t, err)
		out = append(out, ev)
	}

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventToolCallStart,
		EventToolCallArgs,
		EventToolCallEnd,
		EventToolCallResult,
		EventTextMessageStart,
		EventTextMessageContent,
		EventTextMessageEnd,
		EventRunFinished,
	}, types(out))
}

func TestNormalizeTruncatedStream(t *testing.T) {
	t.Parallel()

	src := func(yield func(Event, error) bool) {
		yield(TextStart("msg-1"), nil)
	}

	var out []Event
	var gotErr error
	for ev, err := range NewNormalizer(nil).Normalize(src) {
		if err != nil {
			gotErr = err
			continue
		}
		out = append(out, ev)
	}

	require.ErrorIs(t, gotErr, ErrProtocolViolation)
	require.Len(t, out, 1)
	assert.Equal(t, EventRunError, out[0].Type)
	assert.Equal(t, "PROTOCOL_VIOLATION", out[0].Code)
}
