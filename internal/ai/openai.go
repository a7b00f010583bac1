package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to the OpenAI chat completion API, or to an Azure
// OpenAI deployment when built with NewAzureOpenAIProvider.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func NewAzureOpenAIProvider(apiKey, endpoint, deployment string) *OpenAIProvider {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  deployment,
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// wrapFilterErr translates the provider's safety rejection into
// ErrContentFiltered so callers can substitute a persona apology.
func wrapFilterErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && strings.Contains(code, "content_filter") {
			return fmt.Errorf("openai: %s: %w", apiErr.Message, ErrContentFiltered)
		}
		if apiErr.HTTPStatusCode == 400 && strings.Contains(apiErr.Message, "content management policy") {
			return fmt.Errorf("openai: %s: %w", apiErr.Message, ErrContentFiltered)
		}
	}
	return err
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", wrapFilterErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return "", ErrContentFiltered
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: toOpenAIMessages(messages),
			Stream:   true,
		})
		if err != nil {
			errs <- wrapFilterErr(err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- wrapFilterErr(err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.Delta.Content != "" {
				select {
				case chunks <- choice.Delta.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if choice.FinishReason == openai.FinishReasonContentFilter {
				errs <- ErrContentFiltered
				return
			}
		}
	}()

	return chunks, errs
}
