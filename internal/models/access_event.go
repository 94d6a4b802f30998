package models

import "time"

// Denial reasons recorded on access events.
const (
	DenialCardUnknown    = "card not registered"
	DenialCardInactive   = "card not active"
	DenialCardSuspended  = "card suspended"
	DenialCardExpired    = "card expired"
	DenialWrongSchool    = "card from different school"
	DenialLockdown       = "school in lockdown mode"
	DenialByRule         = "access denied by rule"
	DenialDeviceDecision = "denied by device"
)

// AccessEvent is one raw scan reported by a reader. Append-only; rows are
// never updated after insert. Student name/tag/role and the reader name are
// snapshotted at write time so history keeps showing what was true when the
// scan happened, even if the user or reader is later renamed.
//
// The (reader, card uid, event time) unique index is the dedup key: a device
// re-sending the same batch after a timeout inserts nothing new.
type AccessEvent struct {
	ID            uint   `gorm:"primaryKey"`
	SchoolID      uint   `gorm:"index"`
	ReaderID      uint   `gorm:"uniqueIndex:uniq_scan_dedup;index"`
	ReaderName    string
	CardID        *uint
	CardUID       string `gorm:"uniqueIndex:uniq_scan_dedup;size:64"`
	UserIDRef     *uint  `gorm:"index"`
	StudentName   string
	StudentTag    string `gorm:"size:32"`
	UserRole      string `gorm:"size:16"`
	AccessGranted bool
	DenialReason  string
	Details       string
	EventTime     time.Time `gorm:"uniqueIndex:uniq_scan_dedup;index"`
	CreatedAt     time.Time
}
