package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/helia-labs/helia-server/internal/ai"
	"github.com/helia-labs/helia-server/internal/common"
	"github.com/helia-labs/helia-server/internal/moderation"
	"github.com/helia-labs/helia-server/internal/persona"
)

const (
	defaultTitle  = "New Chat"
	maxTitleLen   = 35
	titleEllipsis = "..."
)

// Service covers session CRUD and the non-streaming turn paths (synchronous
// send and the worker-side half of async jobs). Streaming turns live in Engine.
type Service struct {
	repo         *Repo
	personas     *persona.Registry
	providers    *ai.Registry
	providerName string
	builder      *ContextBuilder
}

func NewService(repo *Repo, personas *persona.Registry, providers *ai.Registry, providerName string, builder *ContextBuilder) *Service {
	return &Service{
		repo:         repo,
		personas:     personas,
		providers:    providers,
		providerName: providerName,
		builder:      builder,
	}
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return defaultTitle
	}
	if len(title) > maxTitleLen {
		return title[:maxTitleLen] + titleEllipsis
	}
	return title
}

// CreateSession validates the persona once, here; it is immutable afterwards.
func (s *Service) CreateSession(ctx context.Context, userID uint64, personaID, title string) (*Session, error) {
	if personaID == "" {
		personaID = persona.DefaultID
	}
	if _, err := s.personas.Resolve(personaID); err != nil {
		return nil, ErrInvalidPersona
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        id,
		UserID:    userID,
		Title:     normalizeTitle(title),
		PersonaID: personaID,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, userID uint64) ([]Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// RenameSession edits the title only: persona and messages are untouched and
// updated_at does not move.
func (s *Service) RenameSession(ctx context.Context, userID uint64, sessionID, title string) (*Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("chat: title is empty")
	}
	return s.repo.RenameSession(ctx, userID, sessionID, normalizeTitle(title))
}

func (s *Service) DeleteSession(ctx context.Context, userID uint64, sessionID string) error {
	return s.repo.DeleteSession(ctx, userID, sessionID)
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, afterSeq uint64) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.repo.ListMessages(ctx, userID, sessionID, limit, afterSeq)
}

func (s *Service) ValidateSessionOwner(ctx context.Context, userID uint64, sessionID string) error {
	_, err := s.repo.GetOwnedSession(ctx, userID, sessionID)
	return err
}

// SendMessage is the non-streaming turn: same protocol as the engine, with the
// whole reply returned at once.
func (s *Service) SendMessage(ctx context.Context, userID uint64, sessionID, text string) (string, uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, ErrEmptyMessage
	}

	sess, err := s.repo.GetOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return "", 0, err
	}
	if _, err := s.personas.Resolve(sess.PersonaID); err != nil {
		return "", 0, ErrInvalidPersona
	}
	provider, err := s.providers.Get(ctx, s.providerName)
	if err != nil {
		return "", 0, err
	}

	if err := s.repo.DeductCredit(ctx, userID); err != nil {
		return "", 0, err
	}
	if _, err := s.repo.AppendMessage(ctx, sessionID, RoleUser, text); err != nil {
		return "", 0, err
	}

	prompt, _, err := s.builder.Build(ctx, sess)
	if err != nil {
		return "", 0, err
	}

	reply, err := provider.Chat(ctx, prompt)
	if err != nil {
		if errors.Is(err, ai.ErrContentFiltered) {
			reply = moderation.Refusal(sess.PersonaID)
		} else {
			return "", 0, err
		}
	}

	msg, err := s.repo.AppendMessage(ctx, sessionID, RoleAssistant, reply)
	if err != nil {
		return "", 0, err
	}
	return reply, msg.ID, nil
}

// InsertUserMessage persists the user half of an async turn before the job is
// enqueued.
func (s *Service) InsertUserMessage(ctx context.Context, userID uint64, sessionID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.repo.DeductCredit(ctx, userID); err != nil {
		return err
	}
	_, err := s.repo.AppendMessage(ctx, sessionID, RoleUser, text)
	return err
}

// CompleteTurn generates and stores the assistant reply for a turn whose user
// message is already in history. Run by the worker.
func (s *Service) CompleteTurn(ctx context.Context, userID uint64, sessionID string) (string, uint64, error) {
	sess, err := s.repo.GetOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return "", 0, err
	}
	provider, err := s.providers.Get(ctx, s.providerName)
	if err != nil {
		return "", 0, err
	}

	prompt, _, err := s.builder.Build(ctx, sess)
	if err != nil {
		return "", 0, err
	}

	reply, err := provider.Chat(ctx, prompt)
	if err != nil {
		if errors.Is(err, ai.ErrContentFiltered) {
			reply = moderation.Refusal(sess.PersonaID)
		} else {
			return "", 0, err
		}
	}

	msg, err := s.repo.AppendMessage(ctx, sessionID, RoleAssistant, reply)
	if err != nil {
		return "", 0, err
	}
	return reply, msg.ID, nil
}

// Job passthroughs

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}
