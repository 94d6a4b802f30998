package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CommandStatusPending = "pending"
	CommandStatusSent    = "sent"
)

// DeviceCommand is a backend-to-device instruction delivered piggybacked on
// the next sync response. Delivery is at-most-once: a command is marked sent
// the moment it is included in a response and there is no device-side ack,
// so a response lost in transit drops the command. Kept that way on purpose;
// devices must tolerate missing commands and admins can re-enqueue.
type DeviceCommand struct {
	ID          uint   `gorm:"primaryKey"`
	CommandID   string `gorm:"type:uuid;uniqueIndex"`
	ReaderID    uint   `gorm:"index"`
	CommandType string `gorm:"size:64"`
	Payload     datatypes.JSON `gorm:"type:json"`
	Priority    int
	Status      string `gorm:"size:16;default:pending;index"`
	SentAt      *time.Time
	CreatedBy   uint
	CreatedAt   time.Time
}

func (dc *DeviceCommand) BeforeCreate(tx *gorm.DB) (err error) {
	if dc.CommandID == "" {
		dc.CommandID = uuid.NewString()
	}
	return nil
}
