// Package anthropic provides an agent.Handle backed by the Anthropic Claude
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/parleyhq/parley/agent"
)

// Options configures the Anthropic handle.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Handle wraps the Anthropic Messages API behind the agent.Handle interface.
type Handle struct {
	client *anthropic.Client
	opts   Options
}

// NewHandle creates a new Anthropic handle using the official client.
func NewHandle(optFns ...func(o *Options)) *Handle {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Handle{client: &client, opts: opts}
}

// NewHandleFromClient creates a new Anthropic handle from an existing client.
func NewHandleFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Handle {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Handle{client: client, opts: opts}
}

// Name implements agent.Handle.
func (h *Handle) Name() string { return "anthropic:" + string(h.opts.Model) }

func (h *Handle) buildParams(in agent.Input, speak bool) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       h.opts.Model,
		MaxTokens:   h.opts.MaxTokens,
		Temperature: anthropic.Float(h.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(agent.BuildUserPrompt(in, speak))),
		},
	}
	if system := agent.BuildSystemPrompt(in); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// Speak implements agent.Handle using the streaming Messages API. Text deltas
// are forwarded as partial chunks and tool_use blocks as tool chunks; the
// accumulated message yields the final full text.
func (h *Handle) Speak(ctx context.Context, in agent.Input) (<-chan agent.Chunk, <-chan error) {
	out := make(chan agent.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := h.client.Messages.NewStreaming(ctx, h.buildParams(in, true))

		var message anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				errCh <- fmt.Errorf("anthropic stream accumulate: %w", err)
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !send(ctx, out, errCh, agent.Chunk{Partial: true, Text: delta.Text}) {
						return
					}
				}
			case anthropic.ContentBlockStartEvent:
				if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					input := ""
					if raw, err := json.Marshal(block.Input); err == nil {
						input = string(raw)
					}
					chunk := agent.Chunk{Partial: true, Tool: &agent.ToolUse{Name: block.Name, Input: input}}
					if !send(ctx, out, errCh, chunk) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var full string
		for _, block := range message.Content {
			if block.Type == "text" {
				full += block.AsText().Text
			}
		}
		send(ctx, out, errCh, agent.Chunk{FullText: full})
	}()

	return out, errCh
}

// Prepare implements agent.Handle with a single non-streaming call asking the
// model for concise notes.
func (h *Handle) Prepare(ctx context.Context, in agent.Input) (<-chan agent.Notice, <-chan error) {
	out := make(chan agent.Notice, 4)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case out <- agent.Notice{Kind: agent.NoticeActivity, Activity: "gathering notes from the conversation"}:
		}

		resp, err := h.client.Messages.New(ctx, h.buildParams(in, false))
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var notes string
		for _, block := range resp.Content {
			if block.Type == "text" {
				notes += block.AsText().Text
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- agent.Notice{Kind: agent.NoticeComplete, Notes: notes, Preview: agent.Preview(notes, 200)}:
		}
	}()

	return out, errCh
}

func send(ctx context.Context, out chan<- agent.Chunk, errCh chan<- error, chunk agent.Chunk) bool {
	select {
	case <-ctx.Done():
		errCh <- ctx.Err()
		return false
	case out <- chunk:
		return true
	}
}
