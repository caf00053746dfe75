// Package openai provides an agent.Handle backed by the OpenAI Chat
// Completions API, including streaming text deltas and tool call surfacing.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/parleyhq/parley/agent"
)

// Options configure the OpenAI handle. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Handle wraps the OpenAI Chat Completions API behind the agent.Handle interface.
type Handle struct {
	client *openai.Client
	opts   Options
}

// NewHandle creates a new OpenAI handle using the official client.
func NewHandle(optFns ...func(o *Options)) *Handle {
	client := openai.NewClient()
	return NewHandleFromClient(&client, optFns...)
}

// NewHandleFromClient creates a new OpenAI handle from an existing client.
func NewHandleFromClient(client *openai.Client, optFns ...func(o *Options)) *Handle {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Handle{client: client, opts: opts}
}

// Name implements agent.Handle.
func (h *Handle) Name() string { return "openai:" + h.opts.Model }

func (h *Handle) buildParams(in agent.Input, speak bool) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if system := agent.BuildSystemPrompt(in); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(agent.BuildUserPrompt(in, speak)))
	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               h.opts.Model,
		Temperature:         openai.Float(h.opts.Temperature),
		MaxCompletionTokens: openai.Int(h.opts.MaxCompletionTokens),
	}
}

// Speak implements agent.Handle over a streaming chat completion. Tool call
// deltas are aggregated per index and surfaced as a tool chunk once named.
func (h *Handle) Speak(ctx context.Context, in agent.Input) (<-chan agent.Chunk, <-chan error) {
	out := make(chan agent.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := h.client.Chat.Completions.NewStreaming(ctx, h.buildParams(in, true))

		var textBuilder strings.Builder
		type aggCall struct{ name, args string }
		toolAgg := map[int64]*aggCall{}
		announced := map[int64]bool{}

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					textBuilder.WriteString(choice.Delta.Content)
					if !send(ctx, out, errCh, agent.Chunk{Partial: true, Text: choice.Delta.Content}) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					if tc.Function.Arguments != "" {
						ac.args += tc.Function.Arguments
					}
				}
				if choice.FinishReason != "" {
					for idx, ac := range toolAgg {
						if announced[idx] || ac.name == "" {
							continue
						}
						announced[idx] = true
						chunk := agent.Chunk{Partial: true, Tool: &agent.ToolUse{Name: ac.name, Input: ac.args}}
						if !send(ctx, out, errCh, chunk) {
							return
						}
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}

		send(ctx, out, errCh, agent.Chunk{FullText: textBuilder.String()})
	}()

	return out, errCh
}

// Prepare implements agent.Handle with a single non-streaming completion.
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

		resp, err := h.client.Chat.Completions.New(ctx, h.buildParams(in, false))
		if err != nil {
			errCh <- fmt.Errorf("openai api error: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			errCh <- fmt.Errorf("no choices returned")
			return
		}
		notes := resp.Choices[0].Message.Content

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
