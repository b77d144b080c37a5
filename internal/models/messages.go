package models

import (
	"database/sql/driver"
	"time"
)

type MessageType string

const (
	MessagePrivate MessageType = "private"
	MessageGroup   MessageType = "group"
)

// Message is the preview payload kept as an entry's last message.
type Message struct {
	ID        string      `json:"id" validate:"required,max=64"`
	FromID    string      `json:"from_id" validate:"required,max=64"`
	ToID      string      `json:"to_id,omitempty" validate:"max=64"`
	Type      MessageType `json:"type" validate:"omitempty,oneof=private group"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
}

func (m Message) Value() (driver.Value, error) {
	return jsonValue(m)
}

func (m *Message) Scan(src interface{}) error {
	return jsonScan(src, m)
}
