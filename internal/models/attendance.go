package models

import "time"

// Attendance statuses. AutoStatus only ever holds the computed subset
// (present/late/absent/early_exit/partial); FinalStatus may additionally
// hold the override-only values (excused/half_day).
const (
	AttendancePresent   = "present"
	AttendanceAbsent    = "absent"
	AttendanceLate      = "late"
	AttendanceEarlyExit = "early_exit"
	AttendancePartial   = "partial"
	AttendanceExcused   = "excused"
	AttendanceHalfDay   = "half_day"
)

var allowedAttendanceStatuses = map[string]struct{}{
	AttendancePresent:   {},
	AttendanceAbsent:    {},
	AttendanceLate:      {},
	AttendanceEarlyExit: {},
	AttendancePartial:   {},
	AttendanceExcused:   {},
	AttendanceHalfDay:   {},
}

func IsValidAttendanceStatus(s string) bool {
	_, ok := allowedAttendanceStatuses[s]
	return ok
}

// PeriodAttendance holds the reconciled attendance of one student for one
// class period on one date. At most one row per (student, period, date);
// the reconciler upserts against that index so reprocessing a batch never
// duplicates rows.
type PeriodAttendance struct {
	ID         uint   `gorm:"primaryKey"`
	SchoolID   uint   `gorm:"index"`
	StudentRef uint   `gorm:"uniqueIndex:uniq_student_period_date"`
	ClassID    uint   `gorm:"index"`
	PeriodID   uint   `gorm:"uniqueIndex:uniq_student_period_date"`
	Date       string `gorm:"uniqueIndex:uniq_student_period_date;size:10"` // YYYY-MM-DD
	EntryTime  *time.Time
	ExitTime   *time.Time
	// AutoStatus is always the scan-computed status. FinalStatus is what
	// reporting reads; it tracks AutoStatus until a human override pins it.
	AutoStatus         string `gorm:"size:16"`
	FinalStatus        string `gorm:"size:16;index"`
	LateByMinutes      int
	EarlyExitByMinutes int
	IsOverridden       bool `gorm:"index"`
	OverriddenBy       *uint
	OverrideReason     string
	OverriddenAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
