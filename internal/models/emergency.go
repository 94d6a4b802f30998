package models

import "time"

const (
	EmergencyLockdown = "lockdown"
	EmergencyUnlock   = "emergency_unlock"
	EmergencySilent   = "silent_mode"
)

var allowedEmergencyModes = map[string]struct{}{
	EmergencyLockdown: {},
	EmergencyUnlock:   {},
	EmergencySilent:   {},
}

func IsValidEmergencyMode(m string) bool {
	_, ok := allowedEmergencyModes[m]
	return ok
}

// EmergencyMode is a school-wide access override. While active, lockdown
// denies every scan and emergency_unlock grants every valid card; the mode
// is also pushed to devices as a synthetic high-priority command.
type EmergencyMode struct {
	ID            uint   `gorm:"primaryKey"`
	SchoolID      uint   `gorm:"index"`
	ModeType      string `gorm:"size:32"`
	Active        bool   `gorm:"index"`
	Reason        string
	ActivatedBy   uint
	ActivatedAt   time.Time
	DeactivatedAt *time.Time
}
