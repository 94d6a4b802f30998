package models

import (
	"time"
)

type User struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     string `gorm:"uniqueIndex"`
	FullName   string
	Email      string `gorm:"uniqueIndex"`
	Password   string
	Role       string
	SchoolID   uint   `gorm:"index"`
	StudentTag string `gorm:"size:32"`
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ParentLink maps a parent user to a child (student) user. Used when
// queueing parent notifications for late arrivals.
type ParentLink struct {
	ID         uint `gorm:"primaryKey"`
	ParentRef  uint `gorm:"uniqueIndex:uniq_parent_child"`
	StudentRef uint `gorm:"uniqueIndex:uniq_parent_child"`
	CreatedAt  time.Time
}
