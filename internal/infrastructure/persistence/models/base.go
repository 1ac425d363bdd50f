package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ensureID assigns a fresh id when the model has none
func (m *BaseModel) ensureID() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// stamp sets CreatedAt (once) and UpdatedAt to now in UTC. A zero now means the wall clock.
func (m *BaseModel) stamp(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// utc normalizes a timestamp so text-backed drivers compare them lexically
func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
