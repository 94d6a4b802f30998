package models

import "time"

type School struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Timezone  string `gorm:"size:64"`
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
