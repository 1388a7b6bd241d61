package agui

import (
	"errors"
	"iter"

	"github.com/cargodeck/cargodeck/internal/log"
)

// ErrProtocolViolation indicates the upstream stream closed without a
// terminal event. The caller should abort the turn; a truncated stream
// would leave the client UI in an indeterminate state.
var ErrProtocolViolation = errors.New("event stream ended without terminal event")

// Normalizer repairs an upstream AG-UI event sequence so that it satisfies
// the frontend protocol invariants:
//
//   - every emitted TEXT_MESSAGE_START is paired with exactly one
//     TEXT_MESSAGE_END (natural or synthesized at run end),
//   - no two emitted TOOL_CALL_START events share a call id or tool name,
//   - the terminal event is always last,
//   - MESSAGES_SNAPSHOT is never forwarded (it resets client render state).
//
// A Normalizer carries per-stream state and must not be reused across
// streams. It is not safe for concurrent use; one instance serves one
// in-flight stream.
type Normalizer struct {
	logger log.Logger

	// pendingStart buffers at most one TEXT_MESSAGE_START until content
	// for the same message arrives. Starts interrupted by a tool call or
	// the end of the run are discarded, never emitted.
	pendingStart *Event

	// openMessages holds message ids with an emitted start and no end yet.
	openMessages map[string]bool

	// messagesWithContent holds message ids that received at least one
	// content delta. Only these get a synthesized end at run close.
	messagesWithContent map[string]bool

	seenCallIDs   map[string]bool
	seenToolNames map[string]bool

	// suppressedIDs holds call ids whose start was deduplicated; their
	// args/end/result events are dropped too. An id leaves the set once
	// its result event is consumed, bounding the set to in-flight dupes.
	suppressedIDs map[string]bool

	done bool
}

// NewNormalizer creates a normalizer for a single stream.
func NewNormalizer(logger log.Logger) *Normalizer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Normalizer{
		logger:              logger,
		openMessages:        make(map[string]bool),
		messagesWithContent: make(map[string]bool),
		seenCallIDs:         make(map[string]bool),
		seenToolNames:       make(map[string]bool),
		suppressedIDs:       make(map[string]bool),
	}
}

// Done reports whether a terminal event has been emitted. Events processed
// after that point are dropped.
func (n *Normalizer) Done() bool {
	return n.done
}

// Process consumes one upstream event and returns the events to emit in
// its place, in order. The returned slice is often empty (buffered or
// suppressed input) and occasionally longer than one (synthesized ends
// before the terminal event).
func (n *Normalizer) Process(ev Event) []Event {
	if n.done {
		n.logger.Warn("event after terminal, dropped", "type", ev.Type)
		return nil
	}

	switch ev.Type {
	case EventTextMessageStart:
		// A provider should not emit two starts without an intervening
		// end; drop the older one if it happens.
		if n.pendingStart != nil {
			n.logger.Warn("discarding orphaned text start", "messageId", n.pendingStart.MessageID)
		}
		buffered := ev
		n.pendingStart = &buffered
		return nil

	case EventTextMessageContent:
		var out []Event
		if n.pendingStart != nil && n.pendingStart.MessageID == ev.MessageID {
			out = append(out, *n.pendingStart)
			n.openMessages[ev.MessageID] = true
			n.pendingStart = nil
		}
		if ev.MessageID != "" {
			n.messagesWithContent[ev.MessageID] = true
		}
		return append(out, ev)

	case EventTextMessageEnd:
		// An end without an emitted start is a no-op, not an error.
		if !n.openMessages[ev.MessageID] {
			n.logger.Debug("suppressed end for non-emitted message", "messageId", ev.MessageID)
			return nil
		}
		delete(n.openMessages, ev.MessageID)
		return []Event{ev}

	case EventToolCallStart:
		// A tool call always interrupts a not-yet-started text message.
		if n.pendingStart != nil {
			n.logger.Warn("tool call interrupted buffered text start", "messageId", n.pendingStart.MessageID)
			n.pendingStart = nil
		}
		if ev.ToolCallID != "" && n.seenCallIDs[ev.ToolCallID] {
			n.logger.Warn("suppressed duplicate tool call by id", "toolCallId", ev.ToolCallID, "tool", ev.ToolCallName)
			n.suppressedIDs[ev.ToolCallID] = true
			return nil
		}
		if n.seenToolNames[ev.ToolCallName] {
			n.logger.Warn("suppressed duplicate tool call by name", "toolCallId", ev.ToolCallID, "tool", ev.ToolCallName)
			if ev.ToolCallID != "" {
				n.suppressedIDs[ev.ToolCallID] = true
			}
			return nil
		}
		if ev.ToolCallID != "" {
			n.seenCallIDs[ev.ToolCallID] = true
		}
		n.seenToolNames[ev.ToolCallName] = true
		return []Event{ev}

	case EventToolCallArgs, EventToolCallEnd:
		if n.suppressedIDs[ev.ToolCallID] {
			return nil
		}
		return []Event{ev}

	case EventToolCallResult:
		if n.suppressedIDs[ev.ToolCallID] {
			// The suppression window closes at the result event.
			delete(n.suppressedIDs, ev.ToolCallID)
			return nil
		}
		return []Event{ev}

	case EventRunFinished:
		var out []Event
		if n.pendingStart != nil {
			n.logger.Warn("discarding buffered text start at run end", "messageId", n.pendingStart.MessageID)
			n.pendingStart = nil
		}
		// Close messages that actually produced content; contentless
		// starts were never emitted and need no end.
		for id := range n.openMessages {
			if n.messagesWithContent[id] {
				out = append(out, TextEnd(id))
			}
		}
		n.reset()
		n.done = true
		return append(out, ev)

	case EventRunError:
		// An aborted run is terminal too; nothing is synthesized.
		if n.pendingStart != nil {
			n.pendingStart = nil
		}
		n.reset()
		n.done = true
		return []Event{ev}

	case EventMessagesSnapshot:
		n.logger.Debug("suppressed messages snapshot")
		return nil

	default:
		return []Event{ev}
	}
}

func (n *Normalizer) reset() {
	n.openMessages = make(map[string]bool)
	n.messagesWithContent = make(map[string]bool)
	n.seenCallIDs = make(map[string]bool)
	n.seenToolNames = make(map[string]bool)
	n.suppressedIDs = make(map[string]bool)
}

// Normalize wraps an upstream event sequence with the repair rules above.
//
// If src ends without a terminal event and without reporting its own
// error, a defensive RUN_ERROR event is emitted so the client stream is
// never left open, followed by ErrProtocolViolation.
func (n *Normalizer) Normalize(src iter.Seq2[Event, error]) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range src {
			if err != nil {
				yield(Event{}, err)
				return
			}
			for _, out := range n.Process(ev) {
				if !yield(out, nil) {
					return
				}
			}
			if n.done {
				return
			}
		}
		if !n.done {
			n.logger.Error("upstream stream closed without terminal event")
			if !yield(RunError("PROTOCOL_VIOLATION", "stream closed without terminal event"), nil) {
				return
			}
			yield(Event{}, ErrProtocolViolation)
		}
	}
}
