package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"webrecorder/backend/internal/event"
)

type BaseModel struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

type User struct {
	BaseModel
	Username string `json:"username" gorm:"uniqueIndex;size:100;not null"`
	Email    string `json:"email" gorm:"uniqueIndex;size:100;not null"`
	Password string `json:"-" gorm:"size:255;not null"`
	Avatar   string `json:"avatar" gorm:"size:255"`
	Status   int    `json:"status" gorm:"default:1"` // 1:active, 0:inactive
}

// Recording is one saved capture session: the normalized event sequence
// plus the rendered test-case document.
type Recording struct {
	BaseModel
	Name        string `json:"name" gorm:"size:200;not null"`
	Description string `json:"description" gorm:"size:1000"`
	SessionID   string `json:"session_id" gorm:"uniqueIndex;size:64;not null"`
	TargetURL   string `json:"target_url" gorm:"size:500;not null"`
	Events      string `json:"events" gorm:"type:longtext"` // JSON event sequence
	EventCount  int    `json:"event_count"`
	XML         string `json:"xml" gorm:"type:longtext"` // rendered test-case document
	UserID      uint   `json:"user_id" gorm:"not null"`
	User        User   `json:"user" gorm:"foreignKey:UserID"`
	Status      int    `json:"status" gorm:"default:1"`
}

// GetEvents decodes the stored event sequence.
func (r *Recording) GetEvents() ([]event.Record, error) {
	var events []event.Record
	if r.Events == "" {
		return events, nil
	}
	err := json.Unmarshal([]byte(r.Events), &events)
	return events, err
}

// SetEvents stores the event sequence and keeps the count in sync.
func (r *Recording) SetEvents(events []event.Record) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	r.Events = string(data)
	r.EventCount = len(events)
	return nil
}
