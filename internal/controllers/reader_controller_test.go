package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuspass/nfc_backend_v1/internal/models"
)

func TestProvision_ReturnsSecretOnce(t *testing.T) {
	db := openTestDB(t)
	staff := seedStaff(t, db)
	r := newStaffServer(db, staff)

	rec := postJSON(t, r, "/readers", gin.H{
		"serial_number": "R-200",
		"name":          "Lab Door",
		"location_type": "classroom",
		"school_id":     1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody(t, rec)
	secret, ok := resp["device_secret"].(string)
	require.True(t, ok)
	assert.Len(t, secret, 64)

	var reader models.Reader
	require.NoError(t, db.Where("serial_number = ?", "R-200").First(&reader).Error)
	assert.Equal(t, secret, reader.DeviceSecret)
	assert.True(t, reader.Enabled)
	assert.Equal(t, models.ReaderStatusUnknown, reader.Status)

	// secret is json:"-" so list/get responses never leak it
	raw, err := json.Marshal(reader)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secret)
}

func TestProvision_RejectsBadLocationType(t *testing.T) {
	db := openTestDB(t)
	staff := seedStaff(t, db)
	r := newStaffServer(db, staff)

	rec := postJSON(t, r, "/readers", gin.H{
		"serial_number": "R-201",
		"name":          "Roof Hatch",
		"location_type": "roof",
		"school_id":     1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProvision_RejectsInvalidConfig(t *testing.T) {
	db := openTestDB(t)
	staff := seedStaff(t, db)
	r := newStaffServer(db, staff)

	rec := postJSON(t, r, "/readers", gin.H{
		"serial_number": "R-202",
		"name":          "Side Gate",
		"location_type": "gate",
		"school_id":     1,
		"config":        gin.H{"schemaVersion": 1, "syncIntervalSec": -5},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.Reader{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUpdateConfig_ValidatedAndPersisted(t *testing.T) {
	db := openTestDB(t)
	staff := seedStaff(t, db)
	reader := seedReader(t, db)
	r := newStaffServer(db, staff)

	path := fmt.Sprintf("/readers/%d/config", reader.ID)

	rec := putJSON(t, r, path, gin.H{
		"config": gin.H{"schemaVersion": 1, "syncIntervalSec": 60, "ledBrightness": 80},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated models.Reader
	require.NoError(t, db.First(&updated, reader.ID).Error)
	var blob map[string]interface{}
	require.NoError(t, json.Unmarshal(updated.Config, &blob))
	assert.Equal(t, float64(60), blob["syncIntervalSec"])

	// unknown fields are rejected, old blob stays
	rec = putJSON(t, r, path, gin.H{
		"config": gin.H{"schemaVersion": 1, "selfDestruct": true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, db.First(&updated, reader.ID).Error)
	require.NoError(t, json.Unmarshal(updated.Config, &blob))
	assert.Equal(t, float64(60), blob["syncIntervalSec"])
}

func TestUpdateConfig_UnknownReader(t *testing.T) {
	db := openTestDB(t)
	staff := seedStaff(t, db)
	r := newStaffServer(db, staff)

	rec := putJSON(t, r, "/readers/9999/config", gin.H{
		"config": gin.H{"schemaVersion": 1},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueCommand_QueuedPending(t *testing.T) {
	db := openTestDB(t)
	staff := seedStaff(t, db)
	reader := seedReader(t, db)
	r := newStaffServer(db, staff)

	rec := postJSON(t, r, fmt.Sprintf("/readers/%d/commands", reader.ID), gin.H{
		"command_type": "update_firmware",
		"payload":      gin.H{"url": "https://example.com/fw-2.2.0.bin"},
		"priority":     5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var cmd models.DeviceCommand
	require.NoError(t, db.Where("reader_id = ?", reader.ID).First(&cmd).Error)
	assert.Equal(t, "update_firmware", cmd.CommandType)
	assert.Equal(t, 5, cmd.Priority)
	assert.Equal(t, models.CommandStatusPending, cmd.Status)
	assert.Equal(t, staff.ID, cmd.CreatedBy)
	assert.NotEmpty(t, cmd.CommandID)
	assert.Nil(t, cmd.SentAt)
}
