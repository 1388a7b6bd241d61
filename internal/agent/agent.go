// Package agent runs the logistics assistant: it owns the tool registry,
// the system prompt, and the loop that executes backend tool calls and
// feeds their results back until the model produces a final answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/continuity"
	"github.com/cargodeck/cargodeck/internal/dataset"
	"github.com/cargodeck/cargodeck/internal/log"
)

const defaultMaxToolRounds = 5

// TurnContext carries the per-request state a run needs: the AG-UI thread
// and run identifiers plus the dashboard's active filter.
type TurnContext struct {
	ThreadID     string
	RunID        string
	ActiveFilter FilterState
}

// Agent composes continuity turns into complete AG-UI runs.
type Agent struct {
	turns     *continuity.Turns
	data      *dataset.Store
	tools     map[string]Tool
	model     string
	maxRounds int
	logger    log.Logger
}

// Config configures an Agent.
type Config struct {
	Turns *continuity.Turns
	Data  *dataset.Store
	Model string

	// MaxToolRounds bounds backend tool execution per run. Zero means the
	// default.
	MaxToolRounds int

	Logger log.Logger
}

// New creates the agent with the full logistics tool registry.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	return &Agent{
		turns:     cfg.Turns,
		data:      cfg.Data,
		tools:     buildTools(cfg.Data),
		model:     cfg.Model,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// ToolSpecs returns the registry's tool specs in name order.
func (a *Agent) ToolSpecs() []chat.ToolSpec {
	specs := make([]chat.ToolSpec, 0, len(a.tools))
	for _, t := range a.tools {
		specs = append(specs, t.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ClearThread resets the stored conversation for a thread.
func (a *Agent) ClearThread(threadID string) bool {
	return a.turns.ClearThread(threadID)
}

// pendingCall accumulates a streamed tool call until TOOL_CALL_END.
type pendingCall struct {
	id       string
	name     string
	args     strings.Builder
	complete bool
}

// RunStream executes one AG-UI run. The model may call backend tools; each
// round's calls are executed and their results fed back as a continuation
// turn until the model answers in text, ends on a frontend tool, or the
// round limit is hit. Intermediate turn terminals are suppressed so the
// client sees exactly one RUN_STARTED/RUN_FINISHED envelope.
func (a *Agent) RunStream(ctx context.Context, turn *TurnContext, messages []chat.Message) iter.Seq2[agui.Event, error] {
	return func(yield func(agui.Event, error) bool) {
		if !yield(agui.RunStarted(turn.ThreadID, turn.RunID), nil) {
			return
		}

		instructions, err := a.systemPrompt(ctx, turn.ActiveFilter)
		if err != nil {
			yield(agui.RunError("DATASET_ERROR", "failed to build run context"), nil)
			yield(agui.Event{}, err)
			return
		}

		opts := chat.Options{
			Model:        a.model,
			Instructions: instructions,
			Tools:        a.ToolSpecs(),
		}

		outbound := messages
		for round := 0; round < a.maxRounds; round++ {
			calls, failed := a.streamRound(ctx, turn, outbound, opts, yield)
			if failed {
				return
			}

			backend := backendCalls(calls, a.tools)
			if len(backend) == 0 {
				// Text answer or a frontend tool the dashboard resolves.
				yield(agui.RunFinished(turn.ThreadID, turn.RunID), nil)
				return
			}

			results := make([]chat.Message, 0, len(backend))
			for _, call := range backend {
				content := a.executeTool(ctx, turn, call)
				if !yield(agui.ToolResult(uuid.NewString(), call.id, content), nil) {
					return
				}
				results = append(results, chat.Message{
					Role:       chat.RoleTool,
					ToolCallID: call.id,
					ToolResult: content,
				})
			}
			outbound = results
		}

		a.logger.Warn("tool round limit reached", "threadId", turn.ThreadID, "runId", turn.RunID, "limit", a.maxRounds)
		yield(agui.RunError("TOOL_ROUND_LIMIT", fmt.Sprintf("run exceeded %d tool rounds", a.maxRounds)), nil)
	}
}

// streamRound runs one continuity turn, forwarding events to the caller
// while suppressing the turn's own run envelope. It returns the tool calls
// completed during the round, and failed=true if the run already ended
// (error or consumer gone) and the caller must stop.
func (a *Agent) streamRound(ctx context.Context, turn *TurnContext, outbound []chat.Message, opts chat.Options, yield func(agui.Event, error) bool) (map[string]*pendingCall, bool) {
	calls := make(map[string]*pendingCall)
	errored := false

	for ev, err := range a.turns.RunStream(ctx, turn.ThreadID, outbound, opts) {
		if err != nil {
			if !errored {
				// The normalizer emits its own RUN_ERROR before yielding a
				// protocol violation; anything else needs an envelope here.
				yield(agui.RunError("UPSTREAM_ERROR", "the assistant is temporarily unavailable"), nil)
			}
			a.logger.Error("run stream failed", "threadId", turn.ThreadID, "runId", turn.RunID, "error", err)
			yield(agui.Event{}, err)
			return nil, true
		}

		switch ev.Type {
		case agui.EventRunStarted, agui.EventRunFinished:
			continue
		case agui.EventRunError:
			errored = true
		case agui.EventToolCallStart:
			calls[ev.ToolCallID] = &pendingCall{id: ev.ToolCallID, name: ev.ToolCallName}
		case agui.EventToolCallArgs:
			if c, ok := calls[ev.ToolCallID]; ok {
				c.args.WriteString(ev.Delta)
			}
		case agui.EventToolCallEnd:
			if c, ok := calls[ev.ToolCallID]; ok {
				c.complete = true
			}
		}

		if !yield(ev, nil) {
			return nil, true
		}
		if ev.Type == agui.EventRunError {
			return nil, true
		}
	}

	return calls, false
}

// backendCalls selects the round's completed backend tool calls, in call-id
// order for deterministic execution.
func backendCalls(calls map[string]*pendingCall, tools map[string]Tool) []*pendingCall {
	var out []*pendingCall
	for _, c := range calls {
		tool, ok := tools[c.name]
		if !ok || tool.Frontend || !c.complete {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// executeTool runs one backend tool call. Failures are returned to the
// model as an error payload rather than aborting the run; the model can
// recover or apologize.
func (a *Agent) executeTool(ctx context.Context, turn *TurnContext, call *pendingCall) string {
	args := call.args.String()
	if args == "" {
		args = "{}"
	}

	a.logger.Info("executing tool", "threadId", turn.ThreadID, "tool", call.name, "callId", call.id)

	tool := a.tools[call.name]
	result, err := tool.Run(ctx, turn, json.RawMessage(args))
	if err != nil {
		a.logger.Error("tool execution failed", "tool", call.name, "callId", call.id, "error", err)
		fallback, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(fallback)
	}
	return result
}

// systemPrompt builds the run instructions: role, tool guidance, a dataset
// summary, and the dashboard's active filter.
func (a *Agent) systemPrompt(ctx context.Context, filter FilterState) (string, error) {
	summary, err := a.data.Summary(ctx)
	if err != nil {
		return "", fmt.Errorf("summarizing dataset: %w", err)
	}

	var b strings.Builder
	b.WriteString(`You are CargoDeck, a logistics assistant embedded in an air cargo operations dashboard.
You help load planners understand flight capacity utilization and payload risk.

Guidelines:
- Use analyze_flights to ANSWER QUESTIONS about the displayed flights without changing the dashboard.
- Use filter_flights only when the user asks to CHANGE what the dashboard shows. Filters are additive.
- Use reset_filters only when the user explicitly asks to clear or reset filters.
- Use get_flight_details for a specific flight, get_historical_payload for trends, get_predicted_payload for forecasts.
- Utilization buckets: over (>95%), near_capacity (85-95%), optimal (50-85%), under (<50%).
- Be concise. Report numbers from tool results; never invent data.

`)
	fmt.Fprintf(&b, "Dataset: %d flights across %d routes, average utilization %.1f%%, %d at risk (critical or high), %d under-utilized.\n",
		summary.TotalFlights, summary.UniqueRoutes, summary.AverageUtilization, summary.FlightsAtRisk, summary.UnderUtilizedFlights)

	if filter.IsZero() {
		b.WriteString("Dashboard filter: none (all flights shown).\n")
	} else {
		fmt.Fprintf(&b, "Dashboard filter: %s.\n", filter.Describe())
	}

	return b.String(), nil
}
