package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/helia-labs/helia-server/internal/ai"
	"github.com/helia-labs/helia-server/internal/models"
	"github.com/helia-labs/helia-server/internal/persona"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// one shared in-memory db per test, isolated by name
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	// a single connection keeps sqlite happy under concurrent writers
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &Session{}, &Message{}, &Job{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, credits int64) *models.User {
	t.Helper()
	u := &models.User{
		Email:            fmt.Sprintf("u%d@example.com", credits),
		Username:         fmt.Sprintf("user-%s-%d", strings.ReplaceAll(t.Name(), "/", "_"), credits),
		PasswordHash:     "x",
		CreditsRemaining: credits,
	}
	require.NoError(t, db.Create(u).Error)
	// gorm omits zero-valued fields that carry a default tag, so a seeded 0
	// would otherwise become the column default (100); write it explicitly.
	require.NoError(t, db.Model(u).UpdateColumn("credits_remaining", credits).Error)
	return u
}

func newTestSession(t *testing.T, repo *Repo, userID uint64, personaID string) *Session {
	t.Helper()
	sess := &Session{
		ID:        fmt.Sprintf("01TEST%020d", userID),
		UserID:    userID,
		Title:     "New Chat",
		PersonaID: personaID,
	}
	require.NoError(t, repo.CreateSession(context.Background(), sess))
	return sess
}

func testRegistry() *persona.Registry {
	return persona.NewRegistry(persona.Seed())
}

// recordingProvider captures the prompt it was given and replies with a fixed
// string.
type recordingProvider struct {
	last  []ai.Message
	reply string
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.last = append([]ai.Message(nil), messages...)
	if p.reply == "" {
		return "ok", nil
	}
	return p.reply, nil
}

// scriptedProvider streams a fixed chunk script, then optionally fails.
type scriptedProvider struct {
	chunks []string
	err    error
	// blockAfter > 0 stops emitting after that many chunks and waits for
	// cancellation, simulating a hung upstream.
	blockAfter int
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return strings.Join(p.chunks, ""), nil
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	chunks := make(chan string, len(p.chunks))
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for i, c := range p.chunks {
			if p.blockAfter > 0 && i >= p.blockAfter {
				<-ctx.Done()
				errs <- ctx.Err()
				return
			}
			select {
			case chunks <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return chunks, errs
}

func providerRegistry(p ai.Provider) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context) (ai.Provider, error) {
		return p, nil
	})
	return reg
}

func sessionMessages(t *testing.T, db *gorm.DB, sessionID string) []Message {
	t.Helper()
	var msgs []Message
	require.NoError(t, db.Where("session_id = ?", sessionID).Order("seq ASC").Find(&msgs).Error)
	return msgs
}
