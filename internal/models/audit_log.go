package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records every manual change to reconciled data, one row per
// change with before/after snapshots. Written in the same transaction as
// the change itself.
type AuditLog struct {
	ID         uint   `gorm:"primaryKey"`
	ActorRef   uint   `gorm:"index"`
	Action     string `gorm:"size:64;index"`
	EntityType string `gorm:"size:64"`
	EntityID   uint   `gorm:"index"`
	Before     datatypes.JSON `gorm:"type:json"`
	After      datatypes.JSON `gorm:"type:json"`
	CreatedAt  time.Time
}
