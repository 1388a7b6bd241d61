package continuity

import (
	"context"
	"errors"
	"iter"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/log"
)

// ErrNoHandle indicates a streaming turn completed without the provider
// ever emitting a conversation handle. The next turn for the thread would
// incorrectly start fresh, so the turn is surfaced as retryable.
var ErrNoHandle = errors.New("stream completed without a conversation handle")

// Turns orchestrates conversation continuity for one chat turn: it
// resolves the stored handle for the thread, trims the outbound message
// list, invokes the upstream capability, repairs the event stream, and
// writes the new handle back.
//
// All collaborators are injected; Turns holds no hidden globals and no
// ambient request state.
type Turns struct {
	store          *Store
	client         chat.Client
	frontendTools  map[string]bool
	handlePrefixes []string
	logger         log.Logger
}

// TurnsConfig configures a Turns middleware.
type TurnsConfig struct {
	Store  *Store
	Client chat.Client

	// FrontendTools are tool names resolved entirely client-side.
	FrontendTools map[string]bool

	// HandlePrefixes are the recognized conversation handle prefixes.
	HandlePrefixes []string

	Logger log.Logger
}

// NewTurns creates the continuity middleware.
func NewTurns(cfg TurnsConfig) *Turns {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Turns{
		store:          cfg.Store,
		client:         cfg.Client,
		frontendTools:  cfg.FrontendTools,
		handlePrefixes: cfg.HandlePrefixes,
		logger:         logger,
	}
}

// recognizedHandle reports whether the handle carries a trusted provider
// prefix. Handles without one are transient and never stored.
func (t *Turns) recognizedHandle(h string) bool {
	for _, p := range t.handlePrefixes {
		if strings.HasPrefix(h, p) {
			return true
		}
	}
	return false
}

// annotateSpan records the conversation id on the active span for trace
// correlation (GenAI semantic conventions).
func annotateSpan(ctx context.Context, threadID string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("gen_ai.conversation.id", threadID),
			attribute.String("conversation_id", threadID),
		)
	}
}

// Run executes a non-streaming chat turn for the thread.
//
// Upstream failures propagate verbatim; the store is never mutated on
// failure and no retry happens at this layer.
func (t *Turns) Run(ctx context.Context, threadID string, messages []chat.Message, opts chat.Options) (*chat.Response, error) {
	annotateSpan(ctx, threadID)

	handle, continuing := t.store.Get(threadID)
	opts.ConversationID = handle
	outbound := FilterMessages(messages, continuing)

	if continuing {
		t.logger.Info("continuing thread", "threadId", threadID, "handle", handle, "messages", len(outbound))
	} else {
		t.logger.Info("fresh thread", "threadId", threadID, "messages", len(outbound))
	}

	resp, err := t.client.Send(ctx, outbound, opts)
	if err != nil {
		return nil, err
	}

	t.storeHandle(threadID, resp.Handle())
	return resp, nil
}

// RunStream executes a streaming chat turn for the thread. The upstream
// event sequence is repaired by a per-stream normalizer; the handle is
// stored only when the stream reaches its terminal event, so an abandoned
// stream leaves the store untouched.
func (t *Turns) RunStream(ctx context.Context, threadID string, messages []chat.Message, opts chat.Options) iter.Seq2[agui.Event, error] {
	return func(yield func(agui.Event, error) bool) {
		annotateSpan(ctx, threadID)

		handle, continuing := t.store.Get(threadID)
		opts.ConversationID = handle
		outbound := FilterMessages(messages, continuing)

		if continuing {
			t.logger.Info("continuing thread (stream)", "threadId", threadID, "handle", handle, "messages", len(outbound))
		} else {
			t.logger.Info("fresh thread (stream)", "threadId", threadID, "messages", len(outbound))
		}

		norm := agui.NewNormalizer(t.logger.With("component", "normalizer"))

		var lastHandle, lastTool string
		finished := false

		for ev, err := range norm.Normalize(t.client.Stream(ctx, outbound, opts)) {
			if err != nil {
				yield(agui.Event{}, err)
				return
			}
			if ev.ResponseID != "" {
				lastHandle = ev.ResponseID
			}
			if ev.Type == agui.EventToolCallStart {
				lastTool = ev.ToolCallName
			}
			if ev.Type == agui.EventRunFinished {
				// Reaching the terminal event is the commit point for
				// the thread store write.
				finished = true
				t.finishStream(threadID, lastHandle, lastTool)
			}
			if !yield(ev, nil) {
				return
			}
		}

		if finished && lastHandle == "" {
			// The next turn would incorrectly start fresh; let the
			// caller retry rather than silently degrade.
			yield(agui.Event{}, ErrNoHandle)
		}
	}
}

// finishStream stores the observed handle at stream end. A turn ending on
// a frontend-only tool still stores: the provider is paused awaiting a
// result that will arrive on a later request from the client side.
func (t *Turns) finishStream(threadID, lastHandle, lastTool string) {
	if lastHandle == "" {
		t.logger.Warn("stream finished without conversation handle", "threadId", threadID)
		return
	}
	if !t.recognizedHandle(lastHandle) {
		t.logger.Warn("discarding unrecognized conversation handle", "threadId", threadID, "handle", lastHandle)
		return
	}
	if lastTool != "" && t.frontendTools[lastTool] {
		t.logger.Info("turn ended on frontend tool, storing handle for resume",
			"threadId", threadID, "tool", lastTool, "handle", lastHandle)
	}
	t.store.Put(threadID, lastHandle)
}

// storeHandle validates and stores a handle from a non-streaming response.
func (t *Turns) storeHandle(threadID, handle string) {
	if handle == "" {
		t.logger.Warn("response carried no conversation handle", "threadId", threadID)
		return
	}
	if !t.recognizedHandle(handle) {
		t.logger.Warn("discarding unrecognized conversation handle", "threadId", threadID, "handle", handle)
		return
	}
	t.store.Put(threadID, handle)
}

// ClearThread forcibly resets a conversation. It reports whether a stored
// handle existed.
func (t *Turns) ClearThread(threadID string) bool {
	t.logger.Info("clearing thread", "threadId", threadID)
	return t.store.Delete(threadID)
}
