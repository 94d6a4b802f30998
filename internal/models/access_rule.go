package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	RuleActionAllow = "allow"
	RuleActionDeny  = "deny"
)

// AccessRule is an admin-defined allow/deny rule evaluated for every valid
// card scan that no emergency override already decided. Scope fields are
// JSON id arrays; an empty array matches everything. Highest priority
// matching rule wins; no match means access is granted.
type AccessRule struct {
	ID          uint `gorm:"primaryKey"`
	SchoolID    uint `gorm:"index"`
	Name        string
	Description string
	RuleType    string         `gorm:"size:32"`
	ReaderIDs   datatypes.JSON `gorm:"type:json"` // []uint, empty = all readers
	ClassIDs    datatypes.JSON `gorm:"type:json"` // []uint, empty = all students
	Conditions  datatypes.JSON `gorm:"type:json"` // RuleConditions
	Action      string         `gorm:"size:16"`
	Priority    int
	Active      bool `gorm:"index"`
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	CreatedBy   uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RuleConditions restricts a rule to parts of the week. Zero values mean
// unrestricted: an empty weekday list matches every day, and
// startMinute=endMinute=0 matches the whole day.
type RuleConditions struct {
	Weekdays    []int `json:"weekdays,omitempty"` // time.Weekday: 0=Sunday
	StartMinute int   `json:"startMinute,omitempty"`
	EndMinute   int   `json:"endMinute,omitempty"`
}

func IsValidRuleAction(a string) bool {
	return a == RuleActionAllow || a == RuleActionDeny
}

// AppliesAt reports whether the rule's validity window and time conditions
// match the scan time.
func (r AccessRule) AppliesAt(t time.Time) bool {
	if r.ValidFrom != nil && t.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && t.After(*r.ValidUntil) {
		return false
	}
	if len(r.Conditions) == 0 {
		return true
	}
	var cond RuleConditions
	if err := json.Unmarshal(r.Conditions, &cond); err != nil {
		return false
	}
	if len(cond.Weekdays) > 0 {
		match := false
		for _, wd := range cond.Weekdays {
			if wd == int(t.Weekday()) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if cond.StartMinute != 0 || cond.EndMinute != 0 {
		minute := t.Hour()*60 + t.Minute()
		if minute < cond.StartMinute || minute > cond.EndMinute {
			return false
		}
	}
	return true
}

// MatchesReader reports whether the rule's reader scope includes the reader.
func (r AccessRule) MatchesReader(readerID uint) bool {
	return idListMatches(r.ReaderIDs, readerID)
}

// MatchesAnyClass reports whether the rule's class scope intersects the
// student's enrolled classes.
func (r AccessRule) MatchesAnyClass(classIDs []uint) bool {
	if len(r.ClassIDs) == 0 {
		return true
	}
	for _, id := range classIDs {
		if idListMatches(r.ClassIDs, id) {
			return true
		}
	}
	return false
}

func idListMatches(raw datatypes.JSON, id uint) bool {
	if len(raw) == 0 {
		return true
	}
	var ids []uint
	if err := json.Unmarshal(raw, &ids); err != nil {
		return false
	}
	if len(ids) == 0 {
		return true
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
