package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/log"
	"github.com/cargodeck/cargodeck/internal/testutil"
)

func postRun(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/logistics", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return doRequest(t, srv, req)
}

func TestRunStreamsSSE(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_1"}},
		testutil.StreamStep{Event: agui.TextStart("msg-1")},
		testutil.StreamStep{Event: agui.TextContent("msg-1", "hello")},
		testutil.StreamStep{Event: agui.TextEnd("msg-1")},
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunFinished, ResponseID: "resp_1"}},
	)
	srv := newTestServer(t, client)

	rec := postRun(t, srv, `{
		"threadId": "thread-1",
		"runId": "run-1",
		"messages": [{"id": "m1", "role": "user", "content": "hi"}]
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := testutil.ParseEvents(t, rec.Body.String())
	assert.Equal(t, []agui.EventType{
		agui.EventRunStarted,
		agui.EventTextMessageStart,
		agui.EventTextMessageContent,
		agui.EventTextMessageEnd,
		agui.EventRunFinished,
	}, testutil.EventTypes(events))
	assert.Equal(t, "thread-1", events[0].ThreadID)
	assert.Equal(t, "run-1", events[0].RunID)
}

func TestRunMalformedBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testutil.NewScriptedClient(t))

	rec := postRun(t, srv, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "invalid_request", body.Error)
}

func TestRunErrorStillStreamsEnvelope(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_1"}},
		testutil.StreamStep{Err: assert.AnError},
	)
	srv := newTestServer(t, client)

	rec := postRun(t, srv, `{
		"threadId": "thread-1",
		"messages": [{"id": "m1", "role": "user", "content": "hi"}]
	}`)

	// The failure surfaces as a RUN_ERROR frame inside the stream, not as
	// an HTTP error; headers were already sent.
	assert.Equal(t, http.StatusOK, rec.Code)

	events := testutil.ParseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, agui.EventRunError, last.Type)
	assert.Equal(t, "UPSTREAM_ERROR", last.Code)
}

func TestResolveTurnPriority(t *testing.T) {
	t.Parallel()

	logger := log.NewNop()

	tests := []struct {
		name string
		in   runAgentInput
		want string
	}{
		{
			name: "context entry wins over the threadId field",
			in: runAgentInput{
				ThreadID: "from-field",
				Context:  []contextItem{{Value: `{"threadId": "from-context"}`}},
			},
			want: "from-context",
		},
		{
			name: "threadId field when context carries none",
			in: runAgentInput{
				ThreadID: "from-field",
				Context:  []contextItem{{Value: `{"somethingElse": true}`}},
			},
			want: "from-field",
		},
		{
			name: "forwardedProps before state",
			in: runAgentInput{
				ForwardedProps: []byte(`{"threadId": "from-props"}`),
				State:          []byte(`{"threadId": "from-state"}`),
			},
			want: "from-props",
		},
		{
			name: "state as last resort",
			in:   runAgentInput{State: []byte(`{"threadId": "from-state"}`)},
			want: "from-state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			turn := resolveTurn(&tt.in, logger)
			assert.Equal(t, tt.want, turn.ThreadID)
		})
	}
}

func TestResolveTurnGeneratesIDs(t *testing.T) {
	t.Parallel()

	turn := resolveTurn(&runAgentInput{}, log.NewNop())
	assert.NotEmpty(t, turn.ThreadID)
	assert.NotEmpty(t, turn.RunID)
}

func TestResolveTurnReadsFilterFromState(t *testing.T) {
	t.Parallel()

	in := runAgentInput{
		ThreadID: "thread-1",
		State:    []byte(`{"activeFilter": {"riskLevel": "critical", "routeFrom": "LAX"}}`),
	}
	turn := resolveTurn(&in, log.NewNop())
	assert.Equal(t, "critical", turn.ActiveFilter.RiskLevel)
	assert.Equal(t, "LAX", turn.ActiveFilter.RouteFrom)
}

func TestResolveTurnContextFilterOverridesState(t *testing.T) {
	t.Parallel()

	in := runAgentInput{
		ThreadID: "thread-1",
		State:    []byte(`{"activeFilter": {"riskLevel": "low"}}`),
		Context:  []contextItem{{Value: `{"activeFilter": {"riskLevel": "critical"}}`}},
	}
	turn := resolveTurn(&in, log.NewNop())
	assert.Equal(t, "critical", turn.ActiveFilter.RiskLevel)
}

func TestConvertMessages(t *testing.T) {
	t.Parallel()

	wire := []wireMessage{
		{ID: "m1", Role: "user", Content: "show critical flights"},
		{ID: "m2", Role: "assistant", Content: "", ToolCalls: []wireToolCall{
			{ID: "call_1", Type: "function", Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: "filter_flights", Arguments: `{"risk_level":"critical"}`}},
		}},
		{ID: "m3", Role: "tool", Content: `{"applied": true}`, ToolCallID: "call_1"},
	}

	messages := convertMessages(wire)
	require.Len(t, messages, 3)

	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, "show critical flights", messages[0].Text)

	require.Len(t, messages[1].ToolCalls, 1)
	assert.Equal(t, "filter_flights", messages[1].ToolCalls[0].Name)
	assert.Equal(t, "call_1", messages[1].ToolCalls[0].ID)

	assert.True(t, messages[2].IsToolResult())
	assert.Equal(t, "call_1", messages[2].ToolCallID)
	assert.Equal(t, `{"applied": true}`, messages[2].ToolResult)
	assert.Empty(t, messages[2].Text, "tool results carry no text")
}
