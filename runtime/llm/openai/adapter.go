// Package openai adapts github.com/sashabaranov/go-openai's streaming chat
// completions API to the llm.Client interface, used for OpenAI-compatible
// local model servers (spec.md §4.3, SPEC_FULL.md §4.3) — grounded on the
// haasonsaas-nexus example's use of the same library.
package openai

import (
	"context"
	"errors"
	"io"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/codeforge/assistant/runtime/llm"
)

// Client wraps one or more OpenAI-compatible endpoints.
type Client struct {
	clients      map[string]*openaisdk.Client
	defaultModel string
	pool         *llm.EndpointPool
}

// New constructs a Client. Each entry in endpoints is used as a distinct
// BaseURL; apiKey is shared across all of them (local model servers
// typically accept any non-empty bearer token).
func New(apiKey, defaultModel string, endpoints []string) *Client {
	clients := make(map[string]*openaisdk.Client, len(endpoints))
	for _, ep := range endpoints {
		cfg := openaisdk.DefaultConfig(apiKey)
		cfg.BaseURL = ep
		clients[ep] = openaisdk.NewClientWithConfig(cfg)
	}
	if len(clients) == 0 {
		clients[""] = openaisdk.NewClient(apiKey)
	}
	return &Client{clients: clients, defaultModel: defaultModel, pool: llm.NewEndpointPool(endpoints)}
}

// ChatStream implements llm.Client.
func (c *Client) ChatStream(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.Chunk, error) {
	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}

	endpoint := c.pool.Next()
	client, ok := c.clients[endpoint]
	if !ok {
		for _, cl := range c.clients {
			client = cl
			break
		}
	}

	msgs := make([]openaisdk.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openaisdk.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	req := openaisdk.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Stream:      true,
		Temperature: float32(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
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
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case out <- llm.Chunk{Kind: llm.ChunkDone}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				return
			}
			if resp.Usage != nil {
				select {
				case out <- llm.Chunk{Kind: llm.ChunkUsage, Usage: llm.Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}}:
				case <-ctx.Done():
					return
				}
			}
			for _, choice := range resp.Choices {
				delta := choice.Delta.Content
				if delta == "" {
					continue
				}
				if opts.StripThinking {
					for _, chunk := range splitter.Feed(delta) {
						select {
						case out <- chunk:
						case <-ctx.Done():
							return
						}
					}
				} else {
					select {
					case out <- llm.Chunk{Kind: llm.ChunkText, Delta: delta}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}
