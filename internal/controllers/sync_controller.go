package controllers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuspass/nfc_backend_v1/internal/attendance"
	"github.com/campuspass/nfc_backend_v1/internal/config"
	"github.com/campuspass/nfc_backend_v1/internal/middleware"
	"github.com/campuspass/nfc_backend_v1/internal/models"
	"github.com/campuspass/nfc_backend_v1/internal/ws"
)

type SyncController struct {
	DB  *gorm.DB
	Cfg *config.Config
	Rec *attendance.Reconciler
	Hub *ws.FeedHub
}

type syncLogEntry struct {
	CardID        string `json:"cardId"`
	CardUID       string `json:"cardUid"` // older firmware sends cardUid
	Timestamp     string `json:"timestamp"`
	AccessGranted *bool  `json:"accessGranted"`
	Details       string `json:"details"`
}

type syncRequest struct {
	Logs    []syncLogEntry         `json:"logs"`
	Status  map[string]interface{} `json:"status"`
	Version string                 `json:"version"`
}

type accessResult struct {
	CardUID string `json:"cardUid"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
	Silent  bool   `json:"silent"`
}

// Sync handles POST /device/sync for a device already authenticated by the
// DeviceAuth middleware. Heartbeat update, log ingestion, attendance
// reconciliation and the command fetch-and-mark all run in one transaction:
// either the device gets a response describing exactly what was persisted,
// or nothing was persisted and it retries the whole batch. Retries are
// idempotent through the scan dedup index.
func (s *SyncController) Sync(c *gin.Context) {
	reader := c.MustGet(middleware.CtxReader).(models.Reader)
	raw := c.MustGet(middleware.CtxRawBody).([]byte)

	var req syncRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed batch"})
			return
		}
	}

	deadline := time.Duration(s.Cfg.SyncDeadlineSeconds) * time.Second
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), deadline)
	defer cancel()

	now := time.Now().UTC()
	emergency := s.activeEmergency(reader.SchoolID)
	silentMode := emergency != nil && emergency.ModeType == models.EmergencySilent

	var (
		accessResults []accessResult
		marked        []attendance.Result
		inserted      []models.AccessEvent
		commands      []models.DeviceCommand
		duplicates    int
		alerts        int
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touchReader(tx, c, &reader, &req, now); err != nil {
			return err
		}

		for _, entry := range req.Logs {
			cardUID := entry.CardID
			if cardUID == "" {
				cardUID = entry.CardUID
			}
			scanAt := parseScanTime(entry.Timestamp, now)

			granted, denial, card, student := s.evaluateAccess(tx, reader, cardUID, scanAt, emergency)
			if granted && entry.AccessGranted != nil && !*entry.AccessGranted {
				granted = false
				denial = models.DenialDeviceDecision
			}

			ev := models.AccessEvent{
				SchoolID:      reader.SchoolID,
				ReaderID:      reader.ID,
				ReaderName:    reader.Name,
				CardUID:       cardUID,
				AccessGranted: granted,
				DenialReason:  denial,
				Details:       entry.Details,
				EventTime:     scanAt,
			}
			if card != nil {
				ev.CardID = &card.ID
				ev.UserIDRef = &card.UserIDRef
			}
			if student != nil {
				ev.StudentName = student.FullName
				ev.StudentTag = student.StudentTag
				ev.UserRole = student.Role
			}

			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ev)
			if res.Error != nil {
				return res.Error
			}
			accessResults = append(accessResults, accessResult{
				CardUID: cardUID,
				Granted: granted,
				Reason:  denial,
				Silent:  silentMode,
			})
			if res.RowsAffected == 0 {
				// already ingested by an earlier attempt of this batch
				duplicates++
				continue
			}
			inserted = append(inserted, ev)

			if granted && card != nil && attendanceReader(reader.LocationType) {
				periodResults, err := s.Rec.ProcessScan(tx, &ev)
				if err != nil {
					return err
				}
				marked = append(marked, periodResults...)
			}

			if granted && ev.UserIDRef != nil {
				alerts += len(s.checkUnusualBehavior(tx, ev))
			}
		}

		if n := int64(len(inserted)); n > 0 {
			if err := tx.Model(&models.Reader{}).Where("id = ?", reader.ID).
				Updates(map[string]interface{}{
					"total_scans": gorm.Expr("total_scans + ?", n),
					"today_scans": gorm.Expr("today_scans + ?", n),
				}).Error; err != nil {
				return err
			}
		}

		var err error
		commands, err = s.claimPendingCommands(tx, reader.ID, now)
		return err
	})
	if err != nil {
		log.Printf("device sync failed for %s: %v", reader.SerialNumber, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	for _, ev := range inserted {
		s.Hub.Broadcast(ws.ScanPayload{
			EventID:       ev.ID,
			SchoolID:      ev.SchoolID,
			ReaderID:      ev.ReaderID,
			ReaderName:    ev.ReaderName,
			CardUID:       ev.CardUID,
			StudentName:   ev.StudentName,
			StudentTag:    ev.StudentTag,
			AccessGranted: ev.AccessGranted,
			DenialReason:  ev.DenialReason,
			EventTime:     ev.EventTime,
		})
	}

	cfgBlob := json.RawMessage(reader.Config)
	if len(cfgBlob) == 0 {
		cfgBlob = json.RawMessage("{}")
	}

	deviceCommands := make([]gin.H, 0, len(commands)+1)
	if emergency != nil {
		deviceCommands = append(deviceCommands, gin.H{
			"id":   "emergency-" + strconv.FormatUint(uint64(emergency.ID), 10),
			"type": "emergency_mode",
			"payload": gin.H{
				"mode":    emergency.ModeType,
				"message": emergency.Reason,
			},
			"priority": 100,
		})
	}
	for _, cmd := range commands {
		deviceCommands = append(deviceCommands, gin.H{
			"id":       cmd.CommandID,
			"type":     cmd.CommandType,
			"payload":  json.RawMessage(cmd.Payload),
			"priority": cmd.Priority,
		})
	}

	emergencyMode := "normal"
	if emergency != nil {
		emergencyMode = emergency.ModeType
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"ts":            now.Unix(),
		"config":        cfgBlob,
		"commands":      deviceCommands,
		"accessResults": accessResults,
		"summary": gin.H{
			"logsProcessed":     len(inserted),
			"duplicatesSkipped": duplicates,
			"attendanceMarked":  len(marked),
			"alertsGenerated":   alerts,
		},
		"settings": gin.H{
			"silentMode":    silentMode,
			"emergencyMode": emergencyMode,
		},
	})
}

// touchReader updates the heartbeat fields as part of the sync transaction,
// even for empty batches.
func (s *SyncController) touchReader(tx *gorm.DB, c *gin.Context, reader *models.Reader, req *syncRequest, now time.Time) error {
	meta := map[string]interface{}{
		"ip":        c.ClientIP(),
		"userAgent": c.Request.UserAgent(),
	}
	if req.Status != nil {
		meta["lastStatus"] = req.Status
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"status":       models.ReaderStatusOnline,
		"last_seen_at": now,
		"metadata":     metaJSON,
	}
	if req.Version != "" {
		updates["version"] = req.Version
	}
	// first sync of a new UTC day restarts the daily counter
	if reader.LastSeenAt == nil || !sameUTCDay(*reader.LastSeenAt, now) {
		updates["today_scans"] = 0
	}
	return tx.Model(&models.Reader{}).Where("id = ?", reader.ID).Updates(updates).Error
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// evaluateAccess checks the card against registration, status, validity and
// school scope, then applies any active emergency override. The card and
// resolved user are returned for denormalization; both may be nil. A failed
// lookup never fails the batch: the event is kept with the raw card uid.
func (s *SyncController) evaluateAccess(tx *gorm.DB, reader models.Reader, cardUID string, scanAt time.Time, emergency *models.EmergencyMode) (bool, string, *models.Card, *models.User) {
	var card models.Card
	if err := tx.Where("card_uid = ?", cardUID).First(&card).Error; err != nil {
		return false, models.DenialCardUnknown, nil, nil
	}

	var student *models.User
	var u models.User
	if err := tx.First(&u, card.UserIDRef).Error; err == nil {
		student = &u
	}

	switch {
	case card.Status != models.CardStatusActive:
		return false, models.DenialCardInactive, &card, student
	case card.IsSuspended:
		return false, models.DenialCardSuspended, &card, student
	case card.ValidUntil != nil && card.ValidUntil.Before(scanAt):
		return false, models.DenialCardExpired, &card, student
	case card.SchoolID != reader.SchoolID:
		return false, models.DenialWrongSchool, &card, student
	}

	if emergency != nil {
		switch emergency.ModeType {
		case models.EmergencyLockdown:
			return false, models.DenialLockdown, &card, student
		case models.EmergencyUnlock:
			return true, "", &card, student
		}
	}

	if denied, reason := s.evaluateRules(tx, reader, card, scanAt); denied {
		return false, reason, &card, student
	}
	return true, "", &card, student
}

// evaluateRules applies the school's active access rules to a valid card
// scan. A rule matches when its reader scope includes the reader, its class
// scope intersects the student's enrollments, and its validity window and
// time conditions contain the scan time. The highest priority match decides;
// no matching rule means access is granted.
func (s *SyncController) evaluateRules(tx *gorm.DB, reader models.Reader, card models.Card, scanAt time.Time) (bool, string) {
	var rules []models.AccessRule
	if err := tx.Where("school_id = ? AND active = ?", reader.SchoolID, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error; err != nil || len(rules) == 0 {
		return false, ""
	}

	var classIDs []uint
	var enrollments []models.Enrollment
	if err := tx.Where("student_ref = ?", card.UserIDRef).Find(&enrollments).Error; err == nil {
		for _, e := range enrollments {
			classIDs = append(classIDs, e.ClassID)
		}
	}

	for _, rule := range rules {
		if !rule.AppliesAt(scanAt) || !rule.MatchesReader(reader.ID) || !rule.MatchesAnyClass(classIDs) {
			continue
		}
		if rule.Action == models.RuleActionDeny {
			if rule.Description != "" {
				return true, rule.Description
			}
			return true, models.DenialByRule
		}
		return false, ""
	}
	return false, ""
}

// Behavior check thresholds.
const (
	rapidScanWindow    = time.Hour
	rapidScanThreshold = 10      // granted scans per window before alerting
	afterHoursStart    = 21 * 60 // minutes since midnight
	afterHoursEnd      = 6 * 60
)

// checkUnusualBehavior flags granted scans that look wrong: a tap outside
// school hours, or more taps inside the rapid-scan window than a student
// plausibly makes. Alerts are counted into the sync summary; the raw events
// the checks read are the only persistence.
func (s *SyncController) checkUnusualBehavior(tx *gorm.DB, ev models.AccessEvent) []string {
	var alerts []string

	minute := ev.EventTime.Hour()*60 + ev.EventTime.Minute()
	if minute >= afterHoursStart || minute < afterHoursEnd {
		alerts = append(alerts, "after_hours_scan")
	}

	var recent int64
	err := tx.Model(&models.AccessEvent{}).
		Where("user_id_ref = ? AND access_granted = ? AND event_time > ?",
			*ev.UserIDRef, true, ev.EventTime.Add(-rapidScanWindow)).
		Count(&recent).Error
	// the event itself is already inserted, so recent includes it
	if err == nil && recent > rapidScanThreshold {
		alerts = append(alerts, "rapid_scans")
	}
	return alerts
}

// claimPendingCommands returns the reader's pending commands and marks them
// sent in the same transaction. At-most-once: once marked they are never
// redelivered, even if the response is lost. Each row is claimed with a
// conditional UPDATE on status, so two syncs racing over the same pending
// row can both read it but only the one that flips it delivers it.
func (s *SyncController) claimPendingCommands(tx *gorm.DB, readerID uint, now time.Time) ([]models.DeviceCommand, error) {
	limit := s.Cfg.SyncCommandLimit
	if limit <= 0 {
		limit = 10
	}
	var cmds []models.DeviceCommand
	if err := tx.Where("reader_id = ? AND status = ?", readerID, models.CommandStatusPending).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&cmds).Error; err != nil {
		return nil, err
	}

	claimed := make([]models.DeviceCommand, 0, len(cmds))
	for _, cmd := range cmds {
		ok, err := claimCommand(tx, cmd.ID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			// a concurrent sync claimed it first
			continue
		}
		claimed = append(claimed, cmd)
	}
	return claimed, nil
}

// claimCommand flips one command from pending to sent. It reports false when
// the row was no longer pending, which is how a claim lost to a concurrent
// sync shows up.
func claimCommand(tx *gorm.DB, id uint, now time.Time) (bool, error) {
	res := tx.Model(&models.DeviceCommand{}).
		Where("id = ? AND status = ?", id, models.CommandStatusPending).
		Updates(map[string]interface{}{
			"status":  models.CommandStatusSent,
			"sent_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (s *SyncController) activeEmergency(schoolID uint) *models.EmergencyMode {
	var em models.EmergencyMode
	err := s.DB.Where("school_id = ? AND active = ?", schoolID, true).
		Order("activated_at DESC").
		First(&em).Error
	if err != nil {
		return nil
	}
	return &em
}

func attendanceReader(locationType string) bool {
	return locationType == models.LocationGate || locationType == models.LocationClassroom
}

// parseScanTime accepts RFC3339 or unix seconds; devices with a broken clock
// fall back to server time so the scan is not lost.
func parseScanTime(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return fallback
}
