package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/continuity"
	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/testutil"
)

func newTestAgent(t *testing.T, client chat.Client, maxRounds int) (*Agent, *continuity.Store) {
	t.Helper()

	data, err := dataset.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = data.Close() })

	store := continuity.NewStore()
	turns := continuity.NewTurns(continuity.TurnsConfig{
		Store:  store,
		Client: client,
		FrontendTools: map[string]bool{
			"filter_flights": true,
			"reset_filters":  true,
		},
		HandlePrefixes: []string{"resp_", "conv_"},
	})

	return New(Config{
		Turns:         turns,
		Data:          data,
		Model:         "gpt-4o",
		MaxToolRounds: maxRounds,
		Logger:        nil,
	}), store
}

func runAndCollect(t *testing.T, a *Agent, turn *TurnContext, messages []chat.Message) ([]agui.Event, []error) {
	t.Helper()
	var events []agui.Event
	var errs []error
	for ev, err := range a.RunStream(context.Background(), turn, messages) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func userTurn(text string) []chat.Message {
	return []chat.Message{{Role: chat.RoleUser, Text: text}}
}

func textStream(handle, messageID, text string) []testutil.StreamStep {
	return []testutil.StreamStep{
		{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: handle}},
		{Event: agui.TextStart(messageID)},
		{Event: agui.TextContent(messageID, text)},
		{Event: agui.TextEnd(messageID)},
		{Event: agui.Event{Type: agui.EventRunFinished, ResponseID: handle}},
	}
}

func toolStream(handle, callID, tool, args string) []testutil.StreamStep {
	return []testutil.StreamStep{
		{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: handle}},
		{Event: agui.ToolStart(callID, tool)},
		{Event: agui.ToolArgs(callID, args)},
		{Event: agui.ToolEnd(callID)},
		{Event: agui.Event{Type: agui.EventRunFinished, ResponseID: handle}},
	}
}

func TestRunStreamTextOnly(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(textStream("resp_1", "msg-1", "All clear today.")...)
	a, store := newTestAgent(t, client, 0)

	turn := &TurnContext{ThreadID: "thread-1", RunID: "run-1"}
	events, errs := runAndCollect(t, a, turn, userTurn("how do the flights look?"))
	require.Empty(t, errs)

	assert.Equal(t, []agui.EventType{
		agui.EventRunStarted,
		agui.EventTextMessageStart,
		agui.EventTextMessageContent,
		agui.EventTextMessageEnd,
		agui.EventRunFinished,
	}, testutil.EventTypes(events))

	// One run envelope, carrying the client's identifiers.
	assert.Equal(t, "thread-1", events[0].ThreadID)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, "thread-1", events[len(events)-1].ThreadID)

	h, ok := store.Get("thread-1")
	require.True(t, ok)
	assert.Equal(t, "resp_1", h)

	// The turn carried instructions and the full tool registry.
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Opts.Instructions, "CargoDeck")
	assert.Contains(t, calls[0].Opts.Instructions, "14 flights")
	assert.Len(t, calls[0].Opts.Tools, 9)
}

func TestRunStreamExecutesBackendTool(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(toolStream("resp_1", "call_1", "get_flight_details", `{"flight_id":"FL-1001"}`)...)
	client.QueueStream(textStream("resp_2", "msg-1", "CD-4411 is at 98.4% utilization.")...)
	a, store := newTestAgent(t, client, 0)

	turn := &TurnContext{ThreadID: "thread-1", RunID: "run-1"}
	events, errs := runAndCollect(t, a, turn, userTurn("tell me about FL-1001"))
	require.Empty(t, errs)

	assert.Equal(t, []agui.EventType{
		agui.EventRunStarted,
		agui.EventToolCallStart,
		agui.EventToolCallArgs,
		agui.EventToolCallEnd,
		agui.EventToolCallResult,
		agui.EventTextMessageStart,
		agui.EventTextMessageContent,
		agui.EventTextMessageEnd,
		agui.EventRunFinished,
	}, testutil.EventTypes(events))

	var result agui.Event
	for _, ev := range events {
		if ev.Type == agui.EventToolCallResult {
			result = ev
		}
	}
	assert.Equal(t, "call_1", result.ToolCallID)
	assert.Contains(t, result.Content, "CD-4411")

	// The tool result fed the continuation round.
	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "resp_1", calls[1].Opts.ConversationID)
	require.Len(t, calls[1].Messages, 1)
	assert.True(t, calls[1].Messages[0].IsToolResult())
	assert.Equal(t, "call_1", calls[1].Messages[0].ToolCallID)

	h, _ := store.Get("thread-1")
	assert.Equal(t, "resp_2", h, "handle advances with each round")
}

func TestRunStreamFrontendToolEndsRun(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(toolStream("resp_1", "call_1", "filter_flights", `{"risk_level":"critical"}`)...)
	a, store := newTestAgent(t, client, 0)

	turn := &TurnContext{ThreadID: "thread-1", RunID: "run-1"}
	events, errs := runAndCollect(t, a, turn, userTurn("show only critical flights"))
	require.Empty(t, errs)

	types := testutil.EventTypes(events)
	assert.Equal(t, agui.EventRunFinished, types[len(types)-1])
	assert.NotContains(t, types, agui.EventToolCallResult, "frontend tools resolve client-side")

	require.Len(t, client.Calls(), 1, "no continuation round")

	// The handle is stored so the frontend's tool result can resume.
	h, ok := store.Get("thread-1")
	require.True(t, ok)
	assert.Equal(t, "resp_1", h)
}

func TestRunStreamToolFailureFeedsErrorBack(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	// Arguments are not valid JSON; the tool fails and the failure goes
	// back to the model instead of aborting the run.
	client.QueueStream(toolStream("resp_1", "call_1", "analyze_flights", `{not json`)...)
	client.QueueStream(textStream("resp_2", "msg-1", "Sorry, I could not analyze that.")...)
	a, _ := newTestAgent(t, client, 0)

	turn := &TurnContext{ThreadID: "thread-1", RunID: "run-1"}
	events, errs := runAndCollect(t, a, turn, userTurn("analyze"))
	require.Empty(t, errs)

	var result agui.Event
	for _, ev := range events {
		if ev.Type == agui.EventToolCallResult {
			result = ev
		}
	}
	require.NotEmpty(t, result.Content)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Contains(t, payload, "error")

	assert.Equal(t, agui.EventRunFinished, events[len(events)-1].Type)
}

func TestRunStreamRoundLimit(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(toolStream("resp_1", "call_1", "get_flight_details", `{"flight_id":"FL-1001"}`)...)
	a, _ := newTestAgent(t, client, 1)

	turn := &TurnContext{ThreadID: "thread-1", RunID: "run-1"}
	events, errs := runAndCollect(t, a, turn, userTurn("loop forever"))
	require.Empty(t, errs)

	last := events[len(events)-1]
	assert.Equal(t, agui.EventRunError, last.Type)
	assert.Equal(t, "TOOL_ROUND_LIMIT", last.Code)
}

func TestRunStreamUpstreamError(t *testing.T) {
	t.Parallel()

	client := testutil.NewScriptedClient(t)
	client.QueueStream(
		testutil.StreamStep{Event: agui.Event{Type: agui.EventRunStarted, ResponseID: "resp_1"}},
		testutil.StreamStep{Err: assert.AnError},
	)
	a, _ := newTestAgent(t, client, 0)

	turn := &TurnContext{ThreadID: "thread-1", RunID: "run-1"}
	events, errs := runAndCollect(t, a, turn, userTurn("hi"))

	require.Len(t, errs, 1)
	last := events[len(events)-1]
	assert.Equal(t, agui.EventRunError, last.Type)
	assert.Equal(t, "UPSTREAM_ERROR", last.Code)
}

func TestToolSpecs(t *testing.T) {
	t.Parallel()

	a, _ := newTestAgent(t, testutil.NewScriptedClient(t), 0)

	specs := a.ToolSpecs()
	require.Len(t, specs, 9)

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"analyze_flights",
		"display_flight_detail",
		"display_flight_list",
		"display_historical_chart",
		"filter_flights",
		"get_flight_details",
		"get_historical_payload",
		"get_predicted_payload",
		"reset_filters",
	}, names, "specs are sorted by name")
}

func TestAnalyzeFlightsUsesActiveFilter(t *testing.T) {
	t.Parallel()

	data, err := dataset.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = data.Close() })

	active := FilterState{RouteFrom: "LAX", RouteTo: "ORD"}
	out, err := analyzeFlights(context.Background(), data, active, json.RawMessage(`{"question":"how many?"}`))
	require.NoError(t, err)

	var result struct {
		MatchCount    int    `json:"matchCount"`
		AppliedFilter string `json:"appliedFilter"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.MatchCount)
	assert.Contains(t, result.AppliedFilter, "LAX")
}

func TestAnalyzeFlightsParamsOverrideFilter(t *testing.T) {
	t.Parallel()

	data, err := dataset.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = data.Close() })

	active := FilterState{RiskLevel: "low"}
	out, err := analyzeFlights(context.Background(), data, active,
		json.RawMessage(`{"question":"critical?","analyze_risk":"critical"}`))
	require.NoError(t, err)

	var result struct {
		MatchCount    int            `json:"matchCount"`
		RiskBreakdown map[string]int `json:"riskBreakdown"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.MatchCount)
	assert.Equal(t, map[string]int{"critical": 3}, result.RiskBreakdown)
}
