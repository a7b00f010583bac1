package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessageAssignsGaplessSequence(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "supportive-parent")

	for i := 0; i < 5; i++ {
		_, err := repo.AppendMessage(context.Background(), sess.ID, RoleUser, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	msgs := sessionMessages(t, db, sess.ID)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Seq)
	}
}

func TestAppendMessageConcurrentNoGapsNoCollisions(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "supportive-parent")

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := repo.AppendMessage(context.Background(), sess.ID, RoleUser, fmt.Sprintf("w%d-%d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	msgs := sessionMessages(t, db, sess.ID)
	require.Len(t, msgs, writers*perWriter)

	seqs := make([]uint64, 0, len(msgs))
	for _, m := range msgs {
		seqs = append(seqs, m.Seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s, "sequence must be gapless")
	}
}

func TestAppendMessageBumpsUpdatedAt(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "supportive-parent")

	before := sess.UpdatedAt
	time.Sleep(10 * time.Millisecond)

	_, err := repo.AppendMessage(context.Background(), sess.ID, RoleUser, "hello")
	require.NoError(t, err)

	got, err := repo.GetOwnedSession(context.Background(), u.ID, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(before), "updated_at should advance on append")
	assert.Equal(t, uint64(1), got.LastSeq)
}

func TestOwnershipIndistinguishableFromMissing(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	owner := seedUser(t, db, 100)
	other := seedUser(t, db, 50)
	sess := newTestSession(t, repo, owner.ID, "supportive-parent")

	// someone else's session and a nonexistent one yield the identical error
	_, errForeign := repo.GetOwnedSession(context.Background(), other.ID, sess.ID)
	_, errMissing := repo.GetOwnedSession(context.Background(), other.ID, "01NOPE0000000000000000000000")
	assert.ErrorIs(t, errForeign, ErrNotFound)
	assert.ErrorIs(t, errMissing, ErrNotFound)

	_, err := repo.RenameSession(context.Background(), other.ID, sess.ID, "stolen")
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.DeleteSession(context.Background(), other.ID, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.ListMessages(context.Background(), other.ID, sess.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	// owner still sees it untouched
	got, err := repo.GetOwnedSession(context.Background(), owner.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Chat", got.Title)
}

func TestDeleteSessionCascades(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "supportive-parent")

	for i := 0; i < 3; i++ {
		_, err := repo.AppendMessage(context.Background(), sess.ID, RoleUser, "m")
		require.NoError(t, err)
	}

	require.NoError(t, repo.DeleteSession(context.Background(), u.ID, sess.ID))

	_, err := repo.GetOwnedSession(context.Background(), u.ID, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int64
	require.NoError(t, db.Model(&Message{}).Where("session_id = ?", sess.ID).Count(&orphans).Error)
	assert.Zero(t, orphans, "cascade delete must leave no orphaned messages")
}

func TestRenameDoesNotTouchUpdatedAt(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "growth-ray")

	_, err := repo.AppendMessage(context.Background(), sess.ID, RoleUser, "hi")
	require.NoError(t, err)
	before, err := repo.GetOwnedSession(context.Background(), u.ID, sess.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	renamed, err := repo.RenameSession(context.Background(), u.ID, sess.ID, "Sleep troubles")
	require.NoError(t, err)

	assert.Equal(t, "Sleep troubles", renamed.Title)
	assert.Equal(t, "growth-ray", renamed.PersonaID)
	assert.True(t, renamed.UpdatedAt.Equal(before.UpdatedAt), "rename must not bump updated_at")

	msgs := sessionMessages(t, db, sess.ID)
	assert.Len(t, msgs, 1)
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)

	a := &Session{ID: "01SESSA000000000000000000A", UserID: u.ID, Title: "a", PersonaID: "sunbeam"}
	b := &Session{ID: "01SESSB000000000000000000B", UserID: u.ID, Title: "b", PersonaID: "sunbeam"}
	require.NoError(t, repo.CreateSession(context.Background(), a))
	require.NoError(t, repo.CreateSession(context.Background(), b))

	// touching a makes it the most recent
	time.Sleep(10 * time.Millisecond)
	_, err := repo.AppendMessage(context.Background(), a.ID, RoleUser, "bump")
	require.NoError(t, err)

	got, err := repo.ListSessions(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestDeductCredit(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 2)

	require.NoError(t, repo.DeductCredit(context.Background(), u.ID))
	require.NoError(t, repo.DeductCredit(context.Background(), u.ID))
	assert.ErrorIs(t, repo.DeductCredit(context.Background(), u.ID), ErrNoCredits)
}

func TestCreateJobOrGetExistingIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db, 100)
	sess := newTestSession(t, repo, u.ID, "supportive-parent")

	key := "req-123"
	first := &Job{ID: "01JOB000000000000000000001", UserID: u.ID, SessionID: sess.ID, Prompt: "p", IdempotencyKey: &key, Status: JobQueued}
	j1, created, err := repo.CreateJobOrGetExisting(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &Job{ID: "01JOB000000000000000000002", UserID: u.ID, SessionID: sess.ID, Prompt: "p", IdempotencyKey: &key, Status: JobQueued}
	j2, created, err := repo.CreateJobOrGetExisting(context.Background(), dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, j1.ID, j2.ID)
}
