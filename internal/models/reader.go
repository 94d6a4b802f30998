package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ReaderStatusOnline  = "online"
	ReaderStatusOffline = "offline"
	ReaderStatusUnknown = "unknown"
)

// Reader location types that participate in attendance marking.
const (
	LocationGate      = "gate"
	LocationClassroom = "classroom"
	LocationLibrary   = "library"
	LocationOffice    = "office"
)

// Reader is a physical NFC access-control device. Provisioned by an admin,
// never deleted: decommissioned devices are disabled (Enabled=false) so
// their access history stays intact.
type Reader struct {
	ID           uint   `gorm:"primaryKey"`
	SerialNumber string `gorm:"uniqueIndex;size:64"`
	Name         string
	Location     string
	LocationType string `gorm:"size:32;index"`
	SchoolID     uint   `gorm:"index"`
	// DeviceSecret is the per-device HMAC key. Stored in clear because the
	// server must recompute signatures with it; it is never returned by
	// read endpoints after provisioning.
	DeviceSecret string         `gorm:"size:128" json:"-"`
	Config       datatypes.JSON `gorm:"type:json"`
	Status       string         `gorm:"size:16;default:unknown"`
	Enabled      bool           `gorm:"default:true"`
	Version      string         `gorm:"size:32"`
	LastSeenAt   *time.Time
	TotalScans   int64
	TodayScans   int64
	Metadata     datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
