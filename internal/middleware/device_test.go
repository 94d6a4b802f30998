package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/database"
	"github.com/campuspass/nfc_backend_v1/internal/models"
	"github.com/campuspass/nfc_backend_v1/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "s3cr3t"

func setupDeviceAuth(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	reader := models.Reader{
		SerialNumber: "R-100", Name: "Main Gate", LocationType: models.LocationGate,
		SchoolID: 1, DeviceSecret: testSecret, Status: models.ReaderStatusUnknown, Enabled: true,
	}
	require.NoError(t, db.Create(&reader).Error)

	r := gin.New()
	r.POST("/device/sync", DeviceAuth(db, DeviceAuthConfig{ReplayWindowSeconds: 300}), func(c *gin.Context) {
		reader := c.MustGet(CtxReader).(models.Reader)
		c.JSON(http.StatusOK, gin.H{"serial": reader.SerialNumber})
	})
	return r, db
}

func signedRequest(serial, secret string, ts int64, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/device/sync", bytes.NewReader(body))
	tsStr := strconv.FormatInt(ts, 10)
	req.Header.Set(HeaderDeviceSerial, serial)
	req.Header.Set(HeaderDeviceTimestamp, tsStr)
	req.Header.Set(HeaderDeviceSignature, utils.DeviceSignature(secret, tsStr, body))
	return req
}

func TestDeviceAuth_ValidRequest(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("R-100", testSecret, time.Now().Unix(), body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "R-100")
}

func TestDeviceAuth_MissingHeaders(t *testing.T) {
	r, _ := setupDeviceAuth(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/device/sync", bytes.NewReader([]byte(`{}`)))
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing security headers")
}

func TestDeviceAuth_ExpiredTimestamp(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	// correctly signed but 400s old: valid signature must not save it
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("R-100", testSecret, time.Now().Unix()-400, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "request expired")
}

func TestDeviceAuth_FutureTimestamp(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("R-100", testSecret, time.Now().Unix()+400, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "request expired")
}

func TestDeviceAuth_UnknownSerial(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("R-999", testSecret, time.Now().Unix(), body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "device not found")
}

func TestDeviceAuth_DisabledDevice(t *testing.T) {
	r, db := setupDeviceAuth(t)
	require.NoError(t, db.Model(&models.Reader{}).Where("serial_number = ?", "R-100").
		Update("enabled", false).Error)
	body := []byte(`{"logs":[]}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("R-100", testSecret, time.Now().Unix(), body))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "device is disabled")
}

func TestDeviceAuth_WrongSecret(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest("R-100", "wrong_secret", time.Now().Unix(), body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid signature")
}

func TestDeviceAuth_TamperedBody(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	req := signedRequest("R-100", testSecret, time.Now().Unix(), body)
	// flip one byte after signing
	tampered := []byte(`{"logs":[]} `)
	req.Body = httptest.NewRequest(http.MethodPost, "/device/sync", bytes.NewReader(tampered)).Body

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid signature")
}

func TestDeviceAuth_TamperedSignature(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	req := signedRequest("R-100", testSecret, time.Now().Unix(), body)
	sig := []byte(req.Header.Get(HeaderDeviceSignature))
	if sig[0] == '0' {
		sig[0] = '1'
	} else {
		sig[0] = '0'
	}
	req.Header.Set(HeaderDeviceSignature, string(sig))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeviceAuth_NonHexSignature(t *testing.T) {
	r, _ := setupDeviceAuth(t)
	body := []byte(`{"logs":[]}`)

	req := signedRequest("R-100", testSecret, time.Now().Unix(), body)
	req.Header.Set(HeaderDeviceSignature, "not-a-hex-signature")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
