package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/helia-labs/helia-server/internal/models"
)

type Repo struct {
	db *gorm.DB

	// One lock per session id serializes sequence assignment. Entries are
	// never removed; sessions are bounded per deployment and the mutexes
	// are tiny.
	mu       sync.Mutex
	sessLock map[string]*sync.Mutex
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, sessLock: make(map[string]*sync.Mutex)}
}

func (r *Repo) lockSession(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.sessLock[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.sessLock[sessionID] = l
	}
	return l
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetOwnedSession resolves a session for its owner. A session that exists but
// belongs to another user is indistinguishable from a missing one.
func (r *Repo) GetOwnedSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ListSessions(ctx context.Context, userID uint64) ([]Session, error) {
	var out []Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error
	return out, err
}

// RenameSession updates only the title column. updated_at is deliberately not
// touched; it tracks message activity, not metadata edits.
func (r *Repo) RenameSession(ctx context.Context, userID uint64, sessionID, title string) (*Session, error) {
	res := r.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		UpdateColumn("title", title)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetOwnedSession(ctx, userID, sessionID)
}

// DeleteSession removes the session and all its messages in one transaction,
// so a half-deleted session can never be observed.
func (r *Repo) DeleteSession(ctx context.Context, userID uint64, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", sessionID, userID).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("session_id = ?", sessionID).Delete(&Message{}).Error
	})
}

// AppendMessage assigns the next per-session sequence and inserts the message
// atomically: the session's last_seq advance, the insert, and the updated_at
// bump share one transaction, guarded by the session lock.
func (r *Repo) AppendMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	l := r.lockSession(sessionID)
	l.Lock()
	defer l.Unlock()

	var msg *Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess Session
		if err := tx.First(&sess, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		seq := sess.LastSeq + 1
		m := Message{
			SessionID: sessionID,
			UserID:    sess.UserID,
			Role:      role,
			Content:   content,
			Seq:       seq,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		if err := tx.Model(&Session{}).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"last_seq":   seq,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		msg = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the owner's messages in ascending sequence order.
// afterSeq > 0 resumes after that sequence; limit <= 0 means no limit.
func (r *Repo) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, afterSeq uint64) ([]Message, error) {
	if _, err := r.GetOwnedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC")
	if afterSeq > 0 {
		q = q.Where("seq > ?", afterSeq)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the most recent messages, newest first.
// Used by the context builder, which reverses them back to chronological order.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeductCredit burns one credit, failing when none remain. The conditional
// update keeps it race-free without a transaction.
func (r *Repo) DeductCredit(ctx context.Context, userID uint64) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND credits_remaining > 0", userID).
		UpdateColumn("credits_remaining", gorm.Expr("credits_remaining - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoCredits
	}
	return nil
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job; if (user_id, idempotency_key)
// already exists, the existing job is returned instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
