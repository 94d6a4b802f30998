package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/models"
)

type LogController struct {
	DB *gorm.DB
}

// List returns raw access events for dashboards. The denormalized reader and
// student fields are served as stored, so history reads need no joins and
// show names as they were at scan time.
func (lc *LogController) List(c *gin.Context) {
	query := lc.DB.Model(&models.AccessEvent{})

	if schoolStr := c.Query("school_id"); schoolStr != "" {
		if schoolID, err := strconv.Atoi(schoolStr); err == nil && schoolID > 0 {
			query = query.Where("school_id = ?", schoolID)
		}
	}
	if readerStr := c.Query("reader_id"); readerStr != "" {
		if readerID, err := strconv.Atoi(readerStr); err == nil && readerID > 0 {
			query = query.Where("reader_id = ?", readerID)
		}
	}
	if cardUID := c.Query("card_uid"); cardUID != "" {
		query = query.Where("card_uid = ?", cardUID)
	}
	switch c.Query("granted") {
	case "true", "1":
		query = query.Where("access_granted = ?", true)
	case "false", "0":
		query = query.Where("access_granted = ?", false)
	}
	if startDate := c.Query("start_date"); startDate != "" {
		query = query.Where("event_time >= ?", startDate+" 00:00:00")
	}
	if endDate := c.Query("end_date"); endDate != "" {
		query = query.Where("event_time <= ?", endDate+" 23:59:59")
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}
	page := 0
	if pageStr := c.Query("page"); pageStr != "" {
		if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
			page = n - 1
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var events []models.AccessEvent
	if err := query.Order("event_time DESC").
		Limit(limit).Offset(page * limit).Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(events))
	for _, ev := range events {
		out = append(out, gin.H{
			"id":             ev.ID,
			"school_id":      ev.SchoolID,
			"reader_id":      ev.ReaderID,
			"reader_name":    ev.ReaderName,
			"card_uid":       ev.CardUID,
			"user_id":        ev.UserIDRef,
			"student_name":   ev.StudentName,
			"student_tag":    ev.StudentTag,
			"user_role":      ev.UserRole,
			"access_granted": ev.AccessGranted,
			"denial_reason":  ev.DenialReason,
			"event_time":     ev.EventTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"total": total}})
}
