package middleware

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/models"
	"github.com/campuspass/nfc_backend_v1/internal/utils"
)

// Headers every device request must carry.
const (
	HeaderDeviceSignature = "X-Device-Signature"
	HeaderDeviceTimestamp = "X-Device-Timestamp"
	HeaderDeviceSerial    = "X-Device-Serial"
)

// Context keys set for downstream handlers.
const (
	CtxReader  = "reader"
	CtxRawBody = "rawBody"
)

type DeviceAuthConfig struct {
	ReplayWindowSeconds int
}

// DeviceAuth authenticates a reader's sync request. Verification only, no
// writes: the device's headers are checked, the signature is recomputed as
// HMAC-SHA256(secret, timestamp || body) and compared in constant time, and
// the timestamp must be within the replay window of server time. The replay
// check is independent of the signature check; a perfectly signed request
// replayed after the window is still rejected.
func DeviceAuth(db *gorm.DB, cfg DeviceAuthConfig) gin.HandlerFunc {
	window := float64(cfg.ReplayWindowSeconds)
	if window <= 0 {
		window = 300
	}
	return func(c *gin.Context) {
		signature := c.GetHeader(HeaderDeviceSignature)
		timestamp := c.GetHeader(HeaderDeviceTimestamp)
		serial := c.GetHeader(HeaderDeviceSerial)

		if signature == "" || timestamp == "" || serial == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "missing security headers",
				"required": []string{HeaderDeviceSignature, HeaderDeviceTimestamp, HeaderDeviceSerial},
			})
			return
		}

		now := time.Now().Unix()
		reqTS, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil || math.Abs(float64(now-reqTS)) > window {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":       "request expired",
				"serverTime":  now,
				"requestTime": timestamp,
			})
			return
		}

		var reader models.Reader
		if err := db.Where("serial_number = ?", serial).First(&reader).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		if !reader.Enabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "device is disabled"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !utils.VerifyDeviceSignature(reader.DeviceSecret, timestamp, body, signature) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Set(CtxReader, reader)
		c.Set(CtxRawBody, body)
		c.Next()
	}
}
