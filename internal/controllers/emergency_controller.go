package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/models"
)

type EmergencyController struct {
	DB *gorm.DB
}

type activateEmergencyRequest struct {
	SchoolID uint   `json:"school_id" binding:"required"`
	ModeType string `json:"mode_type" binding:"required"`
	Reason   string `json:"reason"`
}

// Activate turns on a school-wide emergency mode. Any previously active mode
// for the school is deactivated first so at most one is in effect. Devices
// learn about it on their next sync as a priority-100 command.
func (ec *EmergencyController) Activate(c *gin.Context) {
	uVal, _ := c.Get("user")
	actor := uVal.(models.User)

	var req activateEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.IsValidEmergencyMode(req.ModeType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode_type"})
		return
	}

	now := time.Now().UTC()
	var mode models.EmergencyMode
	err := ec.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EmergencyMode{}).
			Where("school_id = ? AND active = ?", req.SchoolID, true).
			Updates(map[string]interface{}{"active": false, "deactivated_at": now}).Error; err != nil {
			return err
		}
		mode = models.EmergencyMode{
			SchoolID:    req.SchoolID,
			ModeType:    req.ModeType,
			Active:      true,
			Reason:      req.Reason,
			ActivatedBy: actor.ID,
			ActivatedAt: now,
		}
		return tx.Create(&mode).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           mode.ID,
		"school_id":    mode.SchoolID,
		"mode_type":    mode.ModeType,
		"reason":       mode.Reason,
		"activated_at": mode.ActivatedAt,
	})
}

func (ec *EmergencyController) Deactivate(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var mode models.EmergencyMode
	if err := ec.DB.First(&mode, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "emergency mode not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if mode.Active {
		now := time.Now().UTC()
		if err := ec.DB.Model(&mode).
			Updates(map[string]interface{}{"active": false, "deactivated_at": now}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "deactivated"})
}

// Current returns the active emergency mode for a school, if any.
func (ec *EmergencyController) Current(c *gin.Context) {
	schoolID, err := strconv.Atoi(c.Query("school_id"))
	if err != nil || schoolID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid school_id"})
		return
	}
	var mode models.EmergencyMode
	if err := ec.DB.Where("school_id = ? AND active = ?", schoolID, true).
		Order("activated_at DESC").First(&mode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"mode_type": "normal", "active": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           mode.ID,
		"mode_type":    mode.ModeType,
		"active":       true,
		"reason":       mode.Reason,
		"activated_at": mode.ActivatedAt,
	})
}
