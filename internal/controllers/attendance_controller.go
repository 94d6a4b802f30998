package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/attendance"
	"github.com/campuspass/nfc_backend_v1/internal/models"
)

type AttendanceController struct {
	DB *gorm.DB
}

type overrideRequest struct {
	AttendanceID *uint  `json:"attendance_id"`
	StudentID    uint   `json:"student_id"`
	PeriodID     uint   `json:"period_id"`
	Date         string `json:"date"` // YYYY-MM-DD
	Status       string `json:"status" binding:"required"`
	Reason       string `json:"reason"`
}

// Override lets a staff member supersede a computed status. The row is
// addressed either by id or by (student, period, date); a tuple with no
// existing row originates one (student never scanned that day). The
// attendance update and its audit entry commit together or not at all.
func (ac *AttendanceController) Override(c *gin.Context) {
	uVal, _ := c.Get("user")
	actor := uVal.(models.User)

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.IsValidAttendanceStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if req.AttendanceID == nil {
		if req.StudentID == 0 || req.PeriodID == 0 || req.Date == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attendance_id or (student_id, period_id, date) required"})
			return
		}
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
	}

	now := time.Now().UTC()
	var row models.PeriodAttendance

	err := ac.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		if req.AttendanceID != nil {
			err = tx.First(&row, *req.AttendanceID).Error
			if err != nil {
				return err
			}
		} else {
			err = tx.Where("student_ref = ? AND period_id = ? AND date = ?",
				req.StudentID, req.PeriodID, req.Date).First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				var period models.ClassPeriod
				if err := tx.First(&period, req.PeriodID).Error; err != nil {
					return err
				}
				row = models.PeriodAttendance{
					SchoolID:   period.SchoolID,
					StudentRef: req.StudentID,
					ClassID:    period.ClassID,
					PeriodID:   req.PeriodID,
					Date:       req.Date,
					AutoStatus: models.AttendanceAbsent,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}

		before, err := json.Marshal(gin.H{
			"auto_status":   row.AutoStatus,
			"final_status":  row.FinalStatus,
			"is_overridden": row.IsOverridden,
		})
		if err != nil {
			return err
		}

		row.FinalStatus = req.Status
		row.IsOverridden = true
		row.OverriddenBy = &actor.ID
		row.OverrideReason = req.Reason
		row.OverriddenAt = &now
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		after, err := json.Marshal(gin.H{
			"auto_status":   row.AutoStatus,
			"final_status":  row.FinalStatus,
			"is_overridden": true,
			"reason":        req.Reason,
		})
		if err != nil {
			return err
		}

		audit := models.AuditLog{
			ActorRef:   actor.ID,
			Action:     "attendance_override",
			EntityType: "period_attendance",
			EntityID:   row.ID,
			Before:     datatypes.JSON(before),
			After:      datatypes.JSON(after),
		}
		return tx.Create(&audit).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attendance record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, attendanceResponse(row))
}

// List returns reconciled attendance for reporting, filterable by date,
// class, student and status.
func (ac *AttendanceController) List(c *gin.Context) {
	query := ac.DB.Model(&models.PeriodAttendance{})

	date := c.DefaultQuery("date", time.Now().UTC().Format("2006-01-02"))
	query = query.Where("date = ?", date)

	if classStr := c.Query("class_id"); classStr != "" {
		if classID, err := strconv.Atoi(classStr); err == nil && classID > 0 {
			query = query.Where("class_id = ?", classID)
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class_id"})
			return
		}
	}
	if studentStr := c.Query("student_id"); studentStr != "" {
		if studentID, err := strconv.Atoi(studentStr); err == nil && studentID > 0 {
			query = query.Where("student_ref = ?", studentID)
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student_id"})
			return
		}
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("final_status = ?", status)
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

	var rows []models.PeriodAttendance
	if err := query.Order("student_ref ASC, period_id ASC").
		Limit(limit).Offset(page * limit).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, attendanceResponse(row))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"total": total, "date": date}})
}

type finalizeRequest struct {
	SchoolID uint `json:"school_id" binding:"required"`
}

// Finalize creates absent rows for every period that has ended today with no
// scans. Idempotent; meant to be hit by a scheduler after the school day.
func (ac *AttendanceController) Finalize(c *gin.Context) {
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := attendance.FinalizeAbsences(ac.DB, req.SchoolID, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_absent": created})
}

func attendanceResponse(row models.PeriodAttendance) gin.H {
	return gin.H{
		"id":                    row.ID,
		"school_id":             row.SchoolID,
		"student_id":            row.StudentRef,
		"class_id":              row.ClassID,
		"period_id":             row.PeriodID,
		"date":                  row.Date,
		"entry_time":            row.EntryTime,
		"exit_time":             row.ExitTime,
		"auto_status":           row.AutoStatus,
		"final_status":          row.FinalStatus,
		"late_by_minutes":       row.LateByMinutes,
		"early_exit_by_minutes": row.EarlyExitByMinutes,
		"is_overridden":         row.IsOverridden,
		"overridden_by":         row.OverriddenBy,
		"override_reason":       row.OverrideReason,
		"overridden_at":         row.OverriddenAt,
		"updated_at":            row.UpdatedAt,
	}
}
