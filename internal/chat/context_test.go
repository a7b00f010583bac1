package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextBuilderSystemPromptFirst(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "inner-dawn")

	_, err := repo.AppendMessage(context.Background(), sess.ID, RoleUser, "I feel overwhelmed")
	require.NoError(t, err)
	_, err = repo.AppendMessage(context.Background(), sess.ID, RoleAssistant, "Let's breathe together")
	require.NoError(t, err)

	builder := NewContextBuilder(repo, testRegistry(), 20)
	prompt, cfg, err := builder.Build(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, "inner-dawn", cfg.ID)
	require.Len(t, prompt, 3)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, cfg.SystemPrompt, prompt[0].Content)
	assert.Equal(t, "I feel overwhelmed", prompt[1].Content)
	assert.Equal(t, "Let's breathe together", prompt[2].Content)
}

func TestContextBuilderWindowsRecentMessages(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "supportive-parent")

	for i := 0; i < 6; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, err := repo.AppendMessage(context.Background(), sess.ID, role, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	builder := NewContextBuilder(repo, testRegistry(), 3)
	prompt, _, err := builder.Build(context.Background(), sess)
	require.NoError(t, err)

	// system prompt + the 3 newest messages, oldest of the window first
	require.Len(t, prompt, 4)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, "msg 3", prompt[1].Content)
	assert.Equal(t, "msg 4", prompt[2].Content)
	assert.Equal(t, "msg 5", prompt[3].Content)
}

func TestContextBuilderUnknownPersona(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := &Session{ID: "01BADPERSONA00000000000000", UserID: u.ID, Title: "x", PersonaID: "ghost"}
	require.NoError(t, repo.CreateSession(context.Background(), sess))

	builder := NewContextBuilder(repo, testRegistry(), 20)
	_, _, err := builder.Build(context.Background(), sess)
	assert.ErrorIs(t, err, ErrInvalidPersona)
}
