package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helia-labs/helia-server/internal/ai"
	"github.com/helia-labs/helia-server/internal/moderation"
)

func newTestService(repo *Repo, p ai.Provider, window int) *Service {
	personas := testRegistry()
	builder := NewContextBuilder(repo, personas, window)
	return NewService(repo, personas, providerRegistry(p), "fake", builder)
}

func TestCreateSessionDefaultsAndValidation(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	svc := newTestService(repo, &recordingProvider{}, 20)

	sess, err := svc.CreateSession(context.Background(), u.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "supportive-parent", sess.PersonaID)
	assert.Equal(t, "New Chat", sess.Title)
	assert.Len(t, sess.ID, 26)

	_, err = svc.CreateSession(context.Background(), u.ID, "ghost", "")
	assert.ErrorIs(t, err, ErrInvalidPersona)
}

func TestCreateSessionTruncatesLongTitle(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	svc := newTestService(repo, &recordingProvider{}, 20)

	long := strings.Repeat("a", 60)
	sess, err := svc.CreateSession(context.Background(), u.ID, "sunbeam", long)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 35)+"...", sess.Title)
}

func TestSendMessageWritesUserAndAssistant(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	prov := &recordingProvider{reply: "Here is a gentle routine."}
	svc := newTestService(repo, prov, 20)

	sess, err := svc.CreateSession(context.Background(), u.ID, "supportive-parent", "")
	require.NoError(t, err)

	reply, msgID, err := svc.SendMessage(context.Background(), u.ID, sess.ID, "My toddler won't sleep")
	require.NoError(t, err)
	assert.Equal(t, "Here is a gentle routine.", reply)
	assert.NotZero(t, msgID)

	msgs := sessionMessages(t, db, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, reply, msgs[1].Content)
}

func TestSendMessageUsesContextWindow(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	prov := &recordingProvider{}
	window := 3
	svc := newTestService(repo, prov, window)

	sess, err := svc.CreateSession(context.Background(), u.ID, "supportive-parent", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, err := repo.AppendMessage(context.Background(), sess.ID, role, "seed")
		require.NoError(t, err)
	}

	_, _, err = svc.SendMessage(context.Background(), u.ID, sess.ID, "new")
	require.NoError(t, err)

	// system prompt + window messages, the newest being the fresh user msg
	require.Len(t, prov.last, window+1)
	assert.Equal(t, "system", prov.last[0].Role)
	last := prov.last[len(prov.last)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Equal(t, "new", last.Content)
}

func TestSendMessageForeignSession(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	owner := seedUser(t, db, 100)
	other := seedUser(t, db, 50)
	svc := newTestService(repo, &recordingProvider{}, 20)

	sess, err := svc.CreateSession(context.Background(), owner.ID, "supportive-parent", "")
	require.NoError(t, err)

	_, _, err = svc.SendMessage(context.Background(), other.ID, sess.ID, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, sessionMessages(t, db, sess.ID))
}

func TestSendMessageContentFilteredStoresRefusal(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	svc := newTestService(repo, &scriptedProvider{err: ai.ErrContentFiltered}, 20)

	sess, err := svc.CreateSession(context.Background(), u.ID, "growth-ray", "")
	require.NoError(t, err)

	reply, _, err := svc.SendMessage(context.Background(), u.ID, sess.ID, "disallowed")
	require.NoError(t, err)
	assert.Equal(t, moderation.Refusal("growth-ray"), reply)

	msgs := sessionMessages(t, db, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, reply, msgs[1].Content)
}

func TestCompleteTurnAppendsAssistantOnly(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	prov := &recordingProvider{reply: "done"}
	svc := newTestService(repo, prov, 20)

	sess, err := svc.CreateSession(context.Background(), u.ID, "supportive-parent", "")
	require.NoError(t, err)
	require.NoError(t, svc.InsertUserMessage(context.Background(), u.ID, sess.ID, "queued question"))

	_, msgID, err := svc.CompleteTurn(context.Background(), u.ID, sess.ID)
	require.NoError(t, err)
	assert.NotZero(t, msgID)

	msgs := sessionMessages(t, db, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "queued question", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
}

func TestListMessagesPagination(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	svc := newTestService(repo, &recordingProvider{}, 20)

	sess, err := svc.CreateSession(context.Background(), u.ID, "supportive-parent", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := repo.AppendMessage(context.Background(), sess.ID, RoleUser, "m")
		require.NoError(t, err)
	}

	page1, err := svc.ListMessages(context.Background(), u.ID, sess.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, uint64(1), page1[0].Seq)

	page2, err := svc.ListMessages(context.Background(), u.ID, sess.ID, 2, page1[1].Seq)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, uint64(3), page2[0].Seq)
}
