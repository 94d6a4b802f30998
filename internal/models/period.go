package models

import "time"

type Class struct {
	ID        uint `gorm:"primaryKey"`
	SchoolID  uint `gorm:"index"`
	Name      string
	Grade     string `gorm:"size:16"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClassPeriod is one scheduled time window of a class on a weekday.
// Start/End are minutes since midnight local to the school day; grace
// windows are per-period so e.g. first period can be stricter.
type ClassPeriod struct {
	ID               uint   `gorm:"primaryKey"`
	SchoolID         uint   `gorm:"index"`
	ClassID          uint   `gorm:"index"`
	Name             string `gorm:"size:64"`
	Weekday          int    `gorm:"index"` // time.Weekday: 0=Sunday
	StartMinute      int
	EndMinute        int
	GraceMinutes     int
	ExitGraceMinutes int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Enrollment maps a student to a class.
type Enrollment struct {
	ID         uint `gorm:"primaryKey"`
	StudentRef uint `gorm:"uniqueIndex:uniq_student_class"`
	ClassID    uint `gorm:"uniqueIndex:uniq_student_class"`
	CreatedAt  time.Time
}
