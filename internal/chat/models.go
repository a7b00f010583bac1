package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Session struct {
	ID        string `gorm:"primaryKey;type:varchar(26)" json:"session_id"`
	UserID    uint64 `gorm:"index:idx_chat_sessions_user_updated,priority:1;not null" json:"-"`
	Title     string `gorm:"type:varchar(64);not null" json:"title"`
	PersonaID string `gorm:"type:varchar(32);not null" json:"persona_id"`

	// Highest message sequence handed out; advanced inside the same
	// transaction as the insert so sequences stay gapless.
	LastSeq uint64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index:idx_chat_sessions_user_updated,priority:2" json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

type Message struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string `gorm:"type:varchar(26);not null;index:uniq_chat_msg_session_seq,unique,priority:1" json:"session_id"`
	UserID    uint64 `gorm:"not null;index" json:"-"`
	Role      string `gorm:"type:varchar(16);not null" json:"role"`
	Content   string `gorm:"type:text;not null" json:"content"`
	Seq       uint64 `gorm:"not null;index:uniq_chat_msg_session_seq,unique,priority:2" json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
