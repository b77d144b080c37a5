package models

import "time"

type UpdateMeta struct {
	Timestamp time.Time
	Audience  []string
}

// ChatListUpdated tells the audience that a chat list row changed. An empty
// audience addresses every user, which is how group updates are sent.
type ChatListUpdated struct {
	UpdateMeta
	OwnerID  string
	TargetID string
	Type     ChatListType
	Message  *Message
}

type PresenceChanged struct {
	UpdateMeta
	UserID string
	Type   NotificationType
}
