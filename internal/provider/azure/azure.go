// Package azure adapts the Azure OpenAI Responses API to the chat.Client
// capability. Conversation continuity rides on previous_response_id: the
// response id of each turn is surfaced as the conversation handle and the
// stored handle of the thread is passed back on the next turn.
package azure

import (
	"context"
	"fmt"
	"iter"

	"github.com/openai/openai-go"
	oaiazure "github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/responses"

	"github.com/cargodeck/cargodeck/internal/agui"
	"github.com/cargodeck/cargodeck/internal/chat"
	"github.com/cargodeck/cargodeck/internal/log"
)

// DefaultAPIVersion is the Azure OpenAI API version the adapter speaks.
const DefaultAPIVersion = "2025-04-01-preview"

// Client calls an Azure OpenAI deployment through the Responses API.
type Client struct {
	api    openai.Client
	logger log.Logger
}

// Config configures the Azure adapter.
type Config struct {
	// Endpoint is the Azure OpenAI resource endpoint,
	// e.g. https://myresource.openai.azure.com.
	Endpoint string

	// APIKey authenticates against the resource.
	APIKey string

	// APIVersion overrides DefaultAPIVersion when set.
	APIVersion string

	Logger log.Logger
}

// New creates the adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure api key is required")
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		api: openai.NewClient(
			oaiazure.WithEndpoint(cfg.Endpoint, version),
			oaiazure.WithAPIKey(cfg.APIKey),
		),
		logger: logger,
	}, nil
}

var _ chat.Client = (*Client)(nil)

// buildParams translates the outbound turn into Responses API parameters.
func buildParams(messages []chat.Message, opts chat.Options) responses.ResponseNewParams {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.IsToolResult():
			items = append(items, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: m.ToolCallID,
					Output: m.ToolResult,
				},
			})
		default:
			items = append(items, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role:    easyRole(m.Role),
					Content: responses.EasyInputMessageContentUnionParam{OfString: openai.String(m.Text)},
				},
			})
		}
	}

	params := responses.ResponseNewParams{
		Model: opts.Model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if opts.Instructions != "" {
		params.Instructions = openai.String(opts.Instructions)
	}
	if opts.ConversationID != "" {
		params.PreviousResponseID = openai.String(opts.ConversationID)
	}

	for _, spec := range opts.Tools {
		params.Tools = append(params.Tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  spec.Parameters,
			},
		})
	}

	return params
}

func easyRole(r chat.Role) responses.EasyInputMessageRole {
	switch r {
	case chat.RoleAssistant:
		return responses.EasyInputMessageRoleAssistant
	case chat.RoleSystem:
		return responses.EasyInputMessageRoleSystem
	default:
		return responses.EasyInputMessageRoleUser
	}
}

// Send performs a non-streaming turn.
func (c *Client) Send(ctx context.Context, messages []chat.Message, opts chat.Options) (*chat.Response, error) {
	resp, err := c.api.Responses.New(ctx, buildParams(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("azure responses call: %w", err)
	}

	out := &chat.Response{ID: resp.ID}

	assistant := chat.Message{Role: chat.RoleAssistant, Text: resp.OutputText()}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		assistant.ToolCalls = append(assistant.ToolCalls, chat.ToolCall{
			ID:        call.CallID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	if assistant.Text != "" || len(assistant.ToolCalls) > 0 {
		out.Messages = append(out.Messages, assistant)
	}

	return out, nil
}

// Stream performs a streaming turn and yields the raw AG-UI translation of
// the upstream event sequence. The response id is attached to the run
// lifecycle events as the conversation handle fragment.
func (c *Client) Stream(ctx context.Context, messages []chat.Message, opts chat.Options) iter.Seq2[agui.Event, error] {
	return func(yield func(agui.Event, error) bool) {
		stream := c.api.Responses.NewStreaming(ctx, buildParams(messages, opts))
		defer stream.Close()

		// Argument deltas arrive keyed by output item id, AG-UI correlates
		// tool events by call id.
		callIDs := make(map[string]string)

		for stream.Next() {
			ev := stream.Current()

			switch ev.Type {
			case "response.created":
				if !yield(agui.Event{Type: agui.EventRunStarted, ResponseID: ev.Response.ID}, nil) {
					return
				}

			case "response.output_item.added":
				switch ev.Item.Type {
				case "message":
					if !yield(agui.TextStart(ev.Item.ID), nil) {
						return
					}
				case "function_call":
					callIDs[ev.Item.ID] = ev.Item.CallID
					if !yield(agui.ToolStart(ev.Item.CallID, ev.Item.Name), nil) {
						return
					}
				}

			case "response.output_text.delta":
				if !yield(agui.TextContent(ev.ItemID, ev.Delta.OfString), nil) {
					return
				}

			case "response.function_call_arguments.delta":
				if callID, ok := callIDs[ev.ItemID]; ok {
					if !yield(agui.ToolArgs(callID, ev.Delta.OfString), nil) {
						return
					}
				}

			case "response.output_item.done":
				switch ev.Item.Type {
				case "message":
					if !yield(agui.TextEnd(ev.Item.ID), nil) {
						return
					}
				case "function_call":
					if !yield(agui.ToolEnd(ev.Item.CallID), nil) {
						return
					}
				}

			case "response.completed":
				if !yield(agui.Event{Type: agui.EventRunFinished, ResponseID: ev.Response.ID}, nil) {
					return
				}

			case "response.failed", "response.incomplete":
				c.logger.Error("upstream response failed", "status", ev.Type, "responseId", ev.Response.ID)
				if !yield(agui.RunError("UPSTREAM_FAILED", upstreamErrorMessage(ev)), nil) {
					return
				}

			case "error":
				c.logger.Error("upstream stream error", "code", ev.Code, "message", ev.Message)
				if !yield(agui.RunError("UPSTREAM_ERROR", ev.Message), nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield(agui.Event{}, fmt.Errorf("azure responses stream: %w", err))
		}
	}
}

func upstreamErrorMessage(ev responses.ResponseStreamEventUnion) string {
	if msg := ev.Response.Error.Message; msg != "" {
		return msg
	}
	return "the model response did not complete"
}
