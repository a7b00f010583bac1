package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helia-labs/helia-server/internal/ai"
	"github.com/helia-labs/helia-server/internal/moderation"
	"github.com/helia-labs/helia-server/internal/persona"
)

// turnState names the phases of one streaming turn, in order. Errored is
// reachable from every phase before done.
type turnState string

const (
	stateValidating     turnState = "validating"
	statePersistingUser turnState = "persisting_user_msg"
	stateStreaming      turnState = "streaming"
	stateFinalizing     turnState = "finalizing"
	stateDone           turnState = "done"
	stateErrored        turnState = "errored"
)

// TurnResult is the terminal outcome of a streaming turn. Exactly one result
// is delivered per turn.
type TurnResult struct {
	// MessageID is the stored assistant message, 0 when nothing was stored.
	MessageID uint64
	// Partial marks an assistant message persisted from an interrupted stream.
	Partial bool
	// Filtered marks a turn answered with the persona's safety refusal.
	Filtered bool
	Err      error
}

// Engine runs streaming chat turns. One Engine serves many concurrent turns;
// per-session ordering is enforced by the repo's append discipline.
type Engine struct {
	repo         *Repo
	personas     *persona.Registry
	providers    *ai.Registry
	providerName string
	builder      *ContextBuilder
	turnTimeout  time.Duration
	log          zerolog.Logger
}

func NewEngine(repo *Repo, personas *persona.Registry, providers *ai.Registry, providerName string, builder *ContextBuilder, turnTimeout time.Duration, log zerolog.Logger) *Engine {
	if turnTimeout <= 0 {
		turnTimeout = 2 * time.Minute
	}
	return &Engine{
		repo:         repo,
		personas:     personas,
		providers:    providers,
		providerName: providerName,
		builder:      builder,
		turnTimeout:  turnTimeout,
		log:          log.With().Str("component", "chat_engine").Logger(),
	}
}

// StreamTurn runs one turn: validate, persist the user message, stream the
// provider's reply to the returned channel while accumulating it, then persist
// the assistant message exactly once. The chunk channel is closed when the
// stream ends; the result channel then delivers the turn outcome.
func (e *Engine) StreamTurn(ctx context.Context, userID uint64, sessionID, text string) (<-chan string, <-chan TurnResult) {
	out := make(chan string, 16)
	res := make(chan TurnResult, 1)
	go func() {
		r := e.runTurn(ctx, userID, sessionID, text, out)
		// chunk channel closes strictly before the result is readable, so
		// consumers never see a result with chunks still pending.
		close(out)
		res <- r
	}()
	return out, res
}

func (e *Engine) runTurn(ctx context.Context, userID uint64, sessionID, text string, out chan<- string) TurnResult {
	log := e.log.With().Uint64("user_id", userID).Str("session_id", sessionID).Logger()
	step := func(s turnState) {
		log.Debug().Str("turn_state", string(s)).Msg("turn transition")
	}
	fail := func(err error) TurnResult {
		step(stateErrored)
		return TurnResult{Err: err}
	}

	step(stateValidating)
	text = strings.TrimSpace(text)
	if text == "" {
		return fail(ErrEmptyMessage)
	}

	sess, err := e.repo.GetOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return fail(err)
	}
	if _, err := e.personas.Resolve(sess.PersonaID); err != nil {
		return fail(ErrInvalidPersona)
	}

	provider, err := e.providers.Get(ctx, e.providerName)
	if err != nil {
		return fail(err)
	}
	sp, ok := provider.(ai.StreamProvider)
	if !ok {
		return fail(errors.New("chat: provider does not support streaming"))
	}

	if err := e.repo.DeductCredit(ctx, userID); err != nil {
		return fail(err)
	}

	// The user message must be durable before the provider is invoked: a
	// crash mid-stream may lose the reply but never the input.
	step(statePersistingUser)
	if _, err := e.repo.AppendMessage(ctx, sessionID, RoleUser, text); err != nil {
		return fail(err)
	}

	step(stateStreaming)
	turnCtx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	prompt, _, err := e.builder.Build(turnCtx, sess)
	if err != nil {
		return fail(err)
	}

	chunks, errs := sp.StreamChat(turnCtx, prompt)

	var acc strings.Builder
	var turnErr error

recv:
	for {
		select {
		case c, open := <-chunks:
			if !open {
				break recv
			}
			acc.WriteString(c)
			select {
			case out <- c:
			case <-turnCtx.Done():
				turnErr = turnCtx.Err()
				break recv
			}
		case <-turnCtx.Done():
			turnErr = turnCtx.Err()
			break recv
		}
	}
	if turnErr == nil {
		// chunks closed, so the provider goroutine has finished; a buffered
		// error (if any) is ready now.
		if perr, pending := <-errs; pending {
			turnErr = perr
		}
	}

	step(stateFinalizing)

	if turnErr != nil && errors.Is(turnErr, ai.ErrContentFiltered) {
		// Answer with the persona's refusal instead of failing the turn.
		refusal := moderation.Refusal(sess.PersonaID)
		select {
		case out <- refusal:
		default:
		}
		msg, perr := e.persistAssistant(ctx, sessionID, refusal)
		if perr != nil {
			return fail(perr)
		}
		step(stateDone)
		return TurnResult{MessageID: msg.ID, Filtered: true}
	}

	if turnErr != nil {
		partial := acc.String()
		if partial == "" {
			return fail(turnErr)
		}
		// The caller already saw these chunks; losing them from history
		// would be a correctness bug. Persist what was streamed.
		msg, perr := e.persistAssistant(ctx, sessionID, partial)
		if perr != nil {
			log.Error().Err(perr).Msg("partial assistant persist failed")
			return fail(turnErr)
		}
		step(stateErrored)
		return TurnResult{MessageID: msg.ID, Partial: true, Err: turnErr}
	}

	msg, err := e.persistAssistant(ctx, sessionID, acc.String())
	if err != nil {
		return fail(err)
	}
	step(stateDone)
	return TurnResult{MessageID: msg.ID}
}

// persistAssistant commits the assistant message on a context detached from
// the request, so a disconnected caller cannot veto the write.
func (e *Engine) persistAssistant(ctx context.Context, sessionID, content string) (*Message, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return e.repo.AppendMessage(fctx, sessionID, RoleAssistant, content)
}
