package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/attendance"
	"github.com/campuspass/nfc_backend_v1/internal/config"
	"github.com/campuspass/nfc_backend_v1/internal/database"
	"github.com/campuspass/nfc_backend_v1/internal/middleware"
	"github.com/campuspass/nfc_backend_v1/internal/models"
	"github.com/campuspass/nfc_backend_v1/internal/utils"
	"github.com/campuspass/nfc_backend_v1/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testSerial = "R-100"
	testSecret = "s3cr3t"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		ReplayWindowSeconds:     300,
		SyncDeadlineSeconds:     10,
		SyncCommandLimit:        10,
		DefaultGraceMinutes:     5,
		DefaultExitGraceMinutes: 5,
		OverrideSticky:          true,
	}
}

// newSyncServer wires the device sync route exactly as routes.Register does.
func newSyncServer(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	cfg := testConfig()
	hub := ws.NewFeedHub()
	go hub.Run()

	syncCtrl := &SyncController{
		DB:  db,
		Cfg: cfg,
		Rec: &attendance.Reconciler{OverrideSticky: cfg.OverrideSticky},
		Hub: hub,
	}
	r := gin.New()
	r.POST("/device/sync", middleware.DeviceAuth(db, middleware.DeviceAuthConfig{
		ReplayWindowSeconds: cfg.ReplayWindowSeconds,
	}), syncCtrl.Sync)
	return r
}

func seedReader(t *testing.T, db *gorm.DB) models.Reader {
	t.Helper()
	reader := models.Reader{
		SerialNumber: testSerial, Name: "Main Gate", LocationType: models.LocationGate,
		SchoolID: 1, DeviceSecret: testSecret,
		Config: []byte(`{"schemaVersion":1,"syncIntervalSec":30}`),
		Status: models.ReaderStatusUnknown, Enabled: true,
	}
	require.NoError(t, db.Create(&reader).Error)
	return reader
}

// seedStudentWithCard enrolls a student (card C1) in a class with one period
// 08:00-08:45 on Wednesdays, 5 min grace both ends.
func seedStudentWithCard(t *testing.T, db *gorm.DB) (models.User, models.ClassPeriod) {
	t.Helper()
	student := models.User{
		UserID: uuid.NewString(), FullName: "Sam Student", Email: "sam@example.com",
		Role: "student", SchoolID: 1, StudentTag: "S1", Active: true,
	}
	require.NoError(t, db.Create(&student).Error)

	card := models.Card{
		CardUID: "C1", UserIDRef: student.ID, SchoolID: 1, Status: models.CardStatusActive,
	}
	require.NoError(t, db.Create(&card).Error)

	class := models.Class{SchoolID: 1, Name: "Math 7A"}
	require.NoError(t, db.Create(&class).Error)

	period := models.ClassPeriod{
		SchoolID: 1, ClassID: class.ID, Name: "Period 1",
		Weekday: int(time.Wednesday), StartMinute: 480, EndMinute: 525,
		GraceMinutes: 5, ExitGraceMinutes: 5,
	}
	require.NoError(t, db.Create(&period).Error)

	enr := models.Enrollment{StudentRef: student.ID, ClassID: class.ID}
	require.NoError(t, db.Create(&enr).Error)

	return student, period
}

func doSync(t *testing.T, r *gin.Engine, ts int64, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/device/sync", bytes.NewReader(body))
	tsStr := strconv.FormatInt(ts, 10)
	req.Header.Set(middleware.HeaderDeviceSerial, testSerial)
	req.Header.Set(middleware.HeaderDeviceTimestamp, tsStr)
	req.Header.Set(middleware.HeaderDeviceSignature, utils.DeviceSignature(testSecret, tsStr, body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// newStaffServer wires staff endpoints with a stub auth layer that injects
// the given user, mirroring what AuthMiddleware does after token checks.
func newStaffServer(db *gorm.DB, user models.User) *gin.Engine {
	inject := func(c *gin.Context) {
		c.Set("user", user)
		c.Next()
	}
	attendanceCtrl := &AttendanceController{DB: db}
	readerCtrl := &ReaderController{DB: db}
	ruleCtrl := &AccessRuleController{DB: db}

	r := gin.New()
	r.POST("/attendance/override", inject, attendanceCtrl.Override)
	r.GET("/attendance", inject, attendanceCtrl.List)
	r.POST("/attendance/finalize", inject, attendanceCtrl.Finalize)
	r.POST("/readers", inject, readerCtrl.Provision)
	r.PUT("/readers/:id/config", inject, readerCtrl.UpdateConfig)
	r.POST("/readers/:id/commands", inject, readerCtrl.EnqueueCommand)
	r.GET("/access-rules", inject, ruleCtrl.List)
	r.POST("/access-rules", inject, ruleCtrl.Create)
	r.GET("/access-rules/:id", inject, ruleCtrl.Get)
	r.PUT("/access-rules/:id", inject, ruleCtrl.Update)
	r.DELETE("/access-rules/:id", inject, ruleCtrl.Delete)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return sendJSON(t, r, http.MethodPost, path, payload)
}

func putJSON(t *testing.T, r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return sendJSON(t, r, http.MethodPut, path, payload)
}

func sendJSON(t *testing.T, r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
