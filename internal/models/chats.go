package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ChatListType string

const (
	ChatListPrivate ChatListType = "private"
	ChatListGroup   ChatListType = "group"
)

// TargetInfo is a point-in-time copy of the other party's display info.
type TargetInfo struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Avatar string `json:"avatar" db:"avatar"`
}

func (t TargetInfo) Value() (driver.Value, error) {
	return jsonValue(t)
}

func (t *TargetInfo) Scan(src interface{}) error {
	return jsonScan(src, t)
}

type ChatListEntry struct {
	ID          string       `json:"id" db:"id"`
	OwnerID     string       `json:"owner_id" db:"owner_id"`
	TargetID    string       `json:"target_id" db:"target_id"`
	Type        ChatListType `json:"type" db:"type"`
	TargetInfo  TargetInfo   `json:"target_info" db:"target_info"`
	LastMessage *Message     `json:"last_message" db:"last_message"`
	UnreadCount int          `json:"unread_count" db:"unread_count"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers never share the stored snapshot or message.
func (e *ChatListEntry) Clone() *ChatListEntry {
	c := *e
	if e.LastMessage != nil {
		msg := *e.LastMessage
		c.LastMessage = &msg
	}
	return &c
}

// ChatListPatch holds the fields UpdateFields may change; nil fields are left as is.
type ChatListPatch struct {
	TargetInfo  *TargetInfo
	LastMessage *Message
	UnreadCount *int
}

func (p ChatListPatch) IsEmpty() bool {
	return p.TargetInfo == nil && p.LastMessage == nil && p.UnreadCount == nil
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	case nil:
		return nil
	default:
		return fmt.Errorf("can't scan %T into %T", src, dest)
	}
}
