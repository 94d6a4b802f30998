package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/models"
	"github.com/campuspass/nfc_backend_v1/internal/utils"
)

type ReaderController struct {
	DB *gorm.DB
}

type provisionReaderRequest struct {
	SerialNumber string          `json:"serial_number" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	Location     string          `json:"location"`
	LocationType string          `json:"location_type" binding:"required,oneof=gate classroom library office"`
	SchoolID     uint            `json:"school_id" binding:"required"`
	Config       json.RawMessage `json:"config"`
}

// Provision registers a new physical reader and generates its HMAC secret.
// The secret is returned in this response only; it cannot be retrieved
// again, only rotated by re-provisioning.
func (rc *ReaderController) Provision(c *gin.Context) {
	var req provisionReaderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret, err := utils.GenerateDeviceSecret()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate device secret"})
		return
	}

	cfgBlob := []byte(`{"schemaVersion":1}`)
	if len(req.Config) > 0 {
		cfgBlob, err = models.ValidateReaderConfig(req.Config)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	reader := models.Reader{
		SerialNumber: req.SerialNumber,
		Name:         req.Name,
		Location:     req.Location,
		LocationType: req.LocationType,
		SchoolID:     req.SchoolID,
		DeviceSecret: secret,
		Config:       datatypes.JSON(cfgBlob),
		Status:       models.ReaderStatusUnknown,
		Enabled:      true,
	}
	if err := rc.DB.Create(&reader).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			c.JSON(http.StatusConflict, gin.H{"error": "serial number already provisioned"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            reader.ID,
		"serial_number": reader.SerialNumber,
		"device_secret": secret,
		"created_at":    reader.CreatedAt,
	})
}

func (rc *ReaderController) List(c *gin.Context) {
	query := rc.DB.Model(&models.Reader{})

	if schoolStr := c.Query("school_id"); schoolStr != "" {
		if schoolID, err := strconv.Atoi(schoolStr); err == nil && schoolID > 0 {
			query = query.Where("school_id = ?", schoolID)
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid school_id"})
			return
		}
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var readers []models.Reader
	if err := query.Order("serial_number ASC").Find(&readers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(readers))
	for _, r := range readers {
		out = append(out, readerResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (rc *ReaderController) Get(c *gin.Context) {
	reader, ok := rc.findByID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, readerResponse(reader))
}

type updateConfigRequest struct {
	Config json.RawMessage `json:"config" binding:"required"`
}

// UpdateConfig replaces the reader's config blob. The blob must pass the
// versioned schema check; devices pick it up on their next sync.
func (rc *ReaderController) UpdateConfig(c *gin.Context) {
	reader, ok := rc.findByID(c)
	if !ok {
		return
	}
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfgBlob, err := models.ValidateReaderConfig(req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := rc.DB.Model(&reader).Update("config", datatypes.JSON(cfgBlob)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "config updated"})
}

// Deactivate disables a reader. The row and its access history are kept;
// the device gets 403 on its next sync.
func (rc *ReaderController) Deactivate(c *gin.Context) {
	reader, ok := rc.findByID(c)
	if !ok {
		return
	}
	if err := rc.DB.Model(&reader).Update("enabled", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reader deactivated"})
}

func (rc *ReaderController) Reactivate(c *gin.Context) {
	reader, ok := rc.findByID(c)
	if !ok {
		return
	}
	if err := rc.DB.Model(&reader).Update("enabled", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reader reactivated"})
}

type enqueueCommandRequest struct {
	CommandType string          `json:"command_type" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
}

// EnqueueCommand queues a device-bound command for delivery on the reader's
// next sync.
func (rc *ReaderController) EnqueueCommand(c *gin.Context) {
	reader, ok := rc.findByID(c)
	if !ok {
		return
	}
	var req enqueueCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	cmd := models.DeviceCommand{
		ReaderID:    reader.ID,
		CommandType: req.CommandType,
		Payload:     datatypes.JSON(payload),
		Priority:    req.Priority,
		Status:      models.CommandStatusPending,
		CreatedBy:   user.ID,
	}
	if err := rc.DB.Create(&cmd).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           cmd.CommandID,
		"command_type": cmd.CommandType,
		"priority":     cmd.Priority,
		"status":       cmd.Status,
		"created_at":   cmd.CreatedAt,
	})
}

func (rc *ReaderController) ListCommands(c *gin.Context) {
	reader, ok := rc.findByID(c)
	if !ok {
		return
	}
	query := rc.DB.Where("reader_id = ?", reader.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var cmds []models.DeviceCommand
	if err := query.Order("created_at DESC").Limit(100).Find(&cmds).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, gin.H{
			"id":           cmd.CommandID,
			"command_type": cmd.CommandType,
			"payload":      json.RawMessage(cmd.Payload),
			"priority":     cmd.Priority,
			"status":       cmd.Status,
			"sent_at":      cmd.SentAt,
			"created_at":   cmd.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (rc *ReaderController) findByID(c *gin.Context) (models.Reader, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.Reader{}, false
	}
	var reader models.Reader
	if err := rc.DB.First(&reader, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reader not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return models.Reader{}, false
	}
	return reader, true
}

func readerResponse(r models.Reader) gin.H {
	return gin.H{
		"id":            r.ID,
		"serial_number": r.SerialNumber,
		"name":          r.Name,
		"location":      r.Location,
		"location_type": r.LocationType,
		"school_id":     r.SchoolID,
		"config":        json.RawMessage(r.Config),
		"status":        r.Status,
		"enabled":       r.Enabled,
		"version":       r.Version,
		"last_seen_at":  r.LastSeenAt,
		"total_scans":   r.TotalScans,
		"today_scans":   r.TodayScans,
		"created_at":    r.CreatedAt,
	}
}
