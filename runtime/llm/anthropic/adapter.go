// Package anthropic adapts github.com/anthropics/anthropic-sdk-go's
// streaming Messages API to the narrower llm.Client interface (spec.md
// §4.3), grounded on the teacher's features/model/anthropic/{client,stream}.go
// but stripped of the tool-use/thinking-budget plumbing those files carry —
// this spec keeps tool orchestration at the Workflow Engine level (SPEC_FULL
// §4.3).
package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeforge/assistant/runtime/llm"
)

// Client wraps the Anthropic Messages streaming API.
type Client struct {
	msg          *sdk.MessageService
	defaultModel string
	pool         *llm.EndpointPool
}

// New constructs a Client for a single API key and default model, optionally
// round-robining across multiple endpoints when endpoints has more than one
// entry (spec.md §4.3).
func New(apiKey, defaultModel string, endpoints []string) *Client {
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Client{msg: &ac.Messages, defaultModel: defaultModel, pool: llm.NewEndpointPool(endpoints)}
}

// ChatStream implements llm.Client.
func (c *Client) ChatStream(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.Chunk, error) {
	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system []sdk.TextBlockParam
	var conv []sdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case llm.RoleUser:
			conv = append(conv, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			conv = append(conv, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  conv,
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}

	endpoint := c.pool.Next()
	var reqOpts []option.RequestOption
	if endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(endpoint))
	}
	stream := c.msg.NewStreaming(ctx, params, reqOpts...)
	if err := stream.Err(); err != nil {
		if endpoint != "" {
			c.pool.MarkFailure(endpoint)
		}
		return nil, err
	}
	if endpoint != "" {
		c.pool.MarkSuccess(endpoint)
	}

	out := make(chan llm.Chunk, 32)
	splitter := &llm.ThinkSplitter{}
	go func() {
		defer close(out)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
					if opts.StripThinking {
						for _, chunk := range splitter.Feed(delta.Text) {
							select {
							case out <- chunk:
							case <-ctx.Done():
								return
							}
						}
					} else {
						select {
						case out <- llm.Chunk{Kind: llm.ChunkText, Delta: delta.Text}:
						case <-ctx.Done():
							return
						}
					}
				}
				if delta, ok := ev.Delta.AsAny().(sdk.ThinkingDelta); ok && delta.Thinking != "" {
					select {
					case out <- llm.Chunk{Kind: llm.ChunkThinking, Delta: delta.Thinking}:
					case <-ctx.Done():
						return
					}
				}
			case sdk.MessageDeltaEvent:
				u := llm.Usage{
					PromptTokens:     int(ev.Usage.InputTokens),
					CompletionTokens: int(ev.Usage.OutputTokens),
					TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
				}
				select {
				case out <- llm.Chunk{Kind: llm.ChunkUsage, Usage: u}:
				case <-ctx.Done():
					return
				}
			}
		}
		select {
		case out <- llm.Chunk{Kind: llm.ChunkDone}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
