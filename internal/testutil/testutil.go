// Package testutil holds shared test helpers: an SSE frame parser for the
// AG-UI wire format and a scripted chat client.
package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
)

// ParseEvents decodes an AG-UI SSE response body into events. The wire
// format is data-only frames, one JSON event per frame.
func ParseEvents(t *testing.T, body string) []agui.Event {
	t.Helper()

	var events []agui.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			var ev agui.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("SSE parse error at line %d: %v (frame %q)", lineNum, err, line)
			}
			events = append(events, ev)
		case line == "" || strings.HasPrefix(line, ":"):
			// Frame separator or comment.
		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	return events
}

// EventTypes projects the event type sequence for order assertions.
func EventTypes(events []agui.Event) []agui.EventType {
	types := make([]agui.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// StreamStep is one yield of a scripted stream.
type StreamStep struct {
	Event agui.Event
	Err   error
}

// Call records one invocation of the scripted client.
type Call struct {
	Messages []chat.Message
	Opts     chat.Options
}

// ScriptedClient is a chat.Client that replays canned turns. Each Send
// consumes the next response, each Stream the next step script; both panic
// via the test when the script runs out.
type ScriptedClient struct {
	t *testing.T

	mu        sync.Mutex
	responses []*chat.Response
	scripts   [][]StreamStep
	calls     []Call
}

// NewScriptedClient creates an empty scripted client.
func NewScriptedClient(t *testing.T) *ScriptedClient {
	t.Helper()
	return &ScriptedClient{t: t}
}

// QueueResponse appends a canned non-streaming response.
func (c *ScriptedClient) QueueResponse(resp *chat.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, resp)
}

// QueueStream appends a canned stream script.
func (c *ScriptedClient) QueueStream(steps ...StreamStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = append(c.scripts, steps)
}

// Calls returns a copy of all recorded invocations.
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *ScriptedClient) record(messages []chat.Message, opts chat.Options) {
	c.calls = append(c.calls, Call{Messages: messages, Opts: opts})
}

// Send implements chat.Client.
func (c *ScriptedClient) Send(ctx context.Context, messages []chat.Message, opts chat.Options) (*chat.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(messages, opts)
	if len(c.responses) == 0 {
		c.t.Fatal("scripted client: Send called with no queued response")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

// Stream implements chat.Client.
func (c *ScriptedClient) Stream(ctx context.Context, messages []chat.Message, opts chat.Options) iter.Seq2[agui.Event, error] {
	c.mu.Lock()
	c.record(messages, opts)
	if len(c.scripts) == 0 {
		c.mu.Unlock()
		c.t.Fatal("scripted client: Stream called with no queued script")
	}
	steps := c.scripts[0]
	c.scripts = c.scripts[1:]
	c.mu.Unlock()

	return func(yield func(agui.Event, error) bool) {
		for _, step := range steps {
			if !yield(step.Event, step.Err) {
				return
			}
		}
	}
}

var _ chat.Client = (*ScriptedClient)(nil)
