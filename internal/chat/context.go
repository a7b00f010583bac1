package chat

import (
	"context"

	"github.com/helia-labs/helia-server/internal/ai"
	"github.com/helia-labs/helia-server/internal/persona"
)

// ContextBuilder assembles the bounded prompt for one turn: the persona's
// system prompt followed by the trailing window of conversation, oldest first.
// Dropped history is simply dropped; there is no summarization.
type ContextBuilder struct {
	repo     *Repo
	personas *persona.Registry
	window   int
}

func NewContextBuilder(repo *Repo, personas *persona.Registry, window int) *ContextBuilder {
	if window <= 0 {
		window = 20
	}
	return &ContextBuilder{repo: repo, personas: personas, window: window}
}

func (b *ContextBuilder) Build(ctx context.Context, sess *Session) ([]ai.Message, persona.Config, error) {
	cfg, err := b.personas.Resolve(sess.PersonaID)
	if err != nil {
		return nil, persona.Config{}, ErrInvalidPersona
	}

	recentDesc, err := b.repo.ListRecentMessagesDesc(ctx, sess.ID, b.window)
	if err != nil {
		return nil, persona.Config{}, err
	}

	out := make([]ai.Message, 0, len(recentDesc)+1)
	out = append(out, ai.Message{Role: "system", Content: cfg.SystemPrompt})
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out, cfg, nil
}
