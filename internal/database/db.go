package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/config"
	"github.com/campuspass/nfc_backend_v1/internal/models"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.School{},
		&models.User{},
		&models.ParentLink{},
		&models.Class{},
		&models.ClassPeriod{},
		&models.Enrollment{},
		&models.Card{},
		&models.Reader{},
		&models.AccessEvent{},
		&models.AccessRule{},
		&models.PeriodAttendance{},
		&models.DeviceCommand{},
		&models.AuditLog{},
		&models.EmergencyMode{},
		&models.NotificationQueueEntry{},
	)
}
