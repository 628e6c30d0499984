package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/doodlesbykumbi/opsagent/pkg/model"
	"github.com/doodlesbykumbi/opsagent/pkg/server/store"
)

// Ensure SessionStore implements store.SessionStore
var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore using GORM
type SessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessionStore creates a new SessionStore
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

// Messages returns the most recent messages of a session, oldest first.
func (s *SessionStore) Messages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}

	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Append stores messages in one transaction. Timestamps are spaced by a
// microsecond so the order survives a created_at sort.
func (s *SessionStore) Append(ctx context.Context, sessionID string, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	base := s.now().UTC()
	rows := make([]model.Message, len(msgs))
	for i, m := range msgs {
		m.SessionID = sessionID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		}
		rows[i] = m
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// Delete removes every message of a session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	tx := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.Message{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}
