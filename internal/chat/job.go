package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one queued async chat turn. The user message is persisted before the
// job is enqueued; the worker only produces the assistant half.
type Job struct {
	ID string `gorm:"primaryKey;type:varchar(26)"`

	UserID    uint64 `gorm:"index;not null;index:uniq_chat_job_user_idempo,unique,priority:1"`
	SessionID string `gorm:"type:varchar(26);index;not null"`

	Prompt string `gorm:"type:text;not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_chat_job_user_idempo,unique,priority:2" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
