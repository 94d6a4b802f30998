package models

import "time"

// NotificationQueueEntry is an outbound notification waiting for a delivery
// worker. This service only enqueues (e.g. parent alerts on late arrival);
// delivery is owned by a separate system.
type NotificationQueueEntry struct {
	ID               uint   `gorm:"primaryKey"`
	SchoolID         uint   `gorm:"index"`
	RecipientRef     uint   `gorm:"index"`
	RecipientType    string `gorm:"size:16"`
	NotificationType string `gorm:"size:32"`
	RelatedStudent   *uint
	Title            string
	Message          string
	Channel          string `gorm:"size:16;default:push"`
	Priority         string `gorm:"size:16;default:normal"`
	Status           string `gorm:"size:16;default:pending;index"`
	CreatedAt        time.Time
}
