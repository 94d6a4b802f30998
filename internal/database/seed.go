package database

import (
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/config"
	"github.com/campuspass/nfc_backend_v1/internal/models"
	"github.com/campuspass/nfc_backend_v1/internal/utils"
)

func SeedAdmin(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	pw, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	admin := models.User{
		UserID:   uuid.NewString(),
		FullName: cfg.AdminFullName,
		Email:    cfg.AdminEmail,
		Password: pw,
		Role:     "admin",
		Active:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	log.Printf("seeded admin user %s", admin.Email)
	return nil
}
