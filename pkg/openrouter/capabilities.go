package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

// ChatCompleter adapts the OpenAI SDK client to the contract's opaque LLM
// capability.
type ChatCompleter struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.Completer = (*ChatCompleter)(nil)

func NewChatCompleter(client *openaisdk.Client, model string) (*ChatCompleter, error) {
	if client == nil {
		return nil, errors.New("openrouter client is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("model name is required")
	}
	return &ChatCompleter{client: client, model: model}, nil
}

func (c *ChatCompleter) Complete(ctx context.Context, messages []contractx.Message) (contractx.Completion, error) {
	if len(messages) == 0 {
		return contractx.Completion{}, errors.New("messages are required")
	}

	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openaisdk.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openaisdk.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openaisdk.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return contractx.Completion{}, errors.New("chat completion returned no choices")
	}

	return contractx.Completion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// EmbeddingClient adapts the OpenAI SDK embeddings API. A backend failure
// degrades to a zero vector so similarity computations stay total.
type EmbeddingClient struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.Embedder = (*EmbeddingClient)(nil)

func NewEmbeddingClient(client *openaisdk.Client, model string) (*EmbeddingClient, error) {
	if client == nil {
		return nil, errors.New("openrouter client is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("embedding model name is required")
	}
	return &EmbeddingClient{client: client, model: model}, nil
}

func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(e.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}
