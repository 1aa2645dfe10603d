package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents one completed tutor exchange, persisted for long-term history
// and usage analytics. The hot conversational window lives in Redis; this
// table is the durable copy.
type ChatRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	TopicID    string    `gorm:"index" json:"topic_id,omitempty"`
	Tier       string    `gorm:"index" json:"tier"`
	Content    string    `json:"content"`
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (ChatRecord) TableName() string {
	return "chat_records"
}
