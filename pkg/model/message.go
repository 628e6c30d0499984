package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one persisted turn of an agent session
type Message struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"column:session_id;index" json:"session_id"`
	Role      Role      `gorm:"column:role;type:text" json:"role"`
	Content   string    `gorm:"column:content" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "agent_messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
