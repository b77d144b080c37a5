package models

import "time"

type NotificationType string

const (
	NotificationOnline  NotificationType = "online"
	NotificationOffline NotificationType = "offline"
)

// Notification is pushed to every connected client when a user's presence changes.
type Notification struct {
	Type NotificationType `json:"type"`
	Time time.Time        `json:"time"`
	User TargetInfo       `json:"user"`
}
