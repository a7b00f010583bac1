package ai

import (
	"context"
	"errors"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrContentFiltered marks an upstream refusal by the provider's safety
// filter. Wrapped by providers, checked with errors.Is.
var ErrContentFiltered = errors.New("ai: content filtered by provider")

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is implemented by providers that can yield incremental
// chunks. Both channels are closed when the stream ends; cancellation of ctx
// must stop the upstream request.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}
