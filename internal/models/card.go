package models

import "time"

const (
	CardStatusActive  = "active"
	CardStatusLost    = "lost"
	CardStatusRevoked = "revoked"
)

// Card links a physical NFC card UID to a user.
type Card struct {
	ID          uint   `gorm:"primaryKey"`
	CardUID     string `gorm:"uniqueIndex;size:64"`
	UserIDRef   uint   `gorm:"index"`
	SchoolID    uint   `gorm:"index"`
	Status      string `gorm:"size:16;default:active"`
	IsSuspended bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
