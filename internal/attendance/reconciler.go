package attendance

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuspass/nfc_backend_v1/internal/models"
)

// Scan direction hints a device may put in a log entry's details field.
const (
	ScanEntry = "entry"
	ScanExit  = "exit"
)

// Window is a class period resolved to concrete times on one date.
type Window struct {
	Start            time.Time
	End              time.Time
	GraceMinutes     int
	ExitGraceMinutes int
}

// Contains reports whether a scan at t counts toward this window. Scans
// outside every window stay in the raw log but never touch attendance.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// WindowFor resolves a period's minute offsets onto the day of t.
func WindowFor(p models.ClassPeriod, t time.Time) Window {
	year, month, day := t.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	return Window{
		Start:            midnight.Add(time.Duration(p.StartMinute) * time.Minute),
		End:              midnight.Add(time.Duration(p.EndMinute) * time.Minute),
		GraceMinutes:     p.GraceMinutes,
		ExitGraceMinutes: p.ExitGraceMinutes,
	}
}

// Evaluate computes the attendance status for the given entry/exit times
// against a period window:
//
//   - no entry: absent
//   - entry within [start, start+grace]: present
//   - entry after the grace window: late, late_by = entry - (start+grace)
//   - exit before end-exitGrace: early_exit (partial if also late),
//     early_exit_by = (end-exitGrace) - exit
//
// Minutes are whole minutes, floored at zero.
func Evaluate(entry, exit *time.Time, w Window) (status string, lateBy, earlyBy int) {
	if entry == nil {
		return models.AttendanceAbsent, 0, 0
	}
	status = models.AttendancePresent
	graceEnd := w.Start.Add(time.Duration(w.GraceMinutes) * time.Minute)
	if entry.After(graceEnd) {
		status = models.AttendanceLate
		lateBy = int(entry.Sub(graceEnd).Minutes())
		if lateBy < 0 {
			lateBy = 0
		}
	}
	if exit != nil {
		exitCutoff := w.End.Add(-time.Duration(w.ExitGraceMinutes) * time.Minute)
		if exit.Before(exitCutoff) {
			earlyBy = int(exitCutoff.Sub(*exit).Minutes())
			if earlyBy < 0 {
				earlyBy = 0
			}
			if status == models.AttendanceLate {
				status = models.AttendancePartial
			} else {
				status = models.AttendanceEarlyExit
			}
		}
	}
	return status, lateBy, earlyBy
}

// Result describes one period a scan was reconciled into, echoed back to the
// device in the sync response summary.
type Result struct {
	PeriodID    uint   `json:"period_id"`
	PeriodName  string `json:"period_name"`
	Status      string `json:"status"`
	LateMinutes int    `json:"late_minutes"`
}

// Reconciler maps granted access events onto class-period attendance rows.
//
// OverrideSticky controls what happens when a scan arrives for a row a human
// has already overridden: sticky (default) preserves final_status and only
// refreshes auto_status and the raw times; non-sticky lets the scan win and
// clears the override flag.
type Reconciler struct {
	OverrideSticky bool
}

// ProcessScan upserts attendance rows for every period window of the
// student's enrolled classes that contains the event time. Idempotent:
// replaying the same event leaves rows unchanged thanks to the earliest-entry
// / latest-exit tie-break and the (student, period, date) unique index.
func (r *Reconciler) ProcessScan(tx *gorm.DB, ev *models.AccessEvent) ([]Result, error) {
	if ev.UserIDRef == nil || !ev.AccessGranted {
		return nil, nil
	}
	student := *ev.UserIDRef

	var enrollments []models.Enrollment
	if err := tx.Where("student_ref = ?", student).Find(&enrollments).Error; err != nil {
		return nil, err
	}
	if len(enrollments) == 0 {
		return nil, nil
	}
	classIDs := make([]uint, 0, len(enrollments))
	for _, e := range enrollments {
		classIDs = append(classIDs, e.ClassID)
	}

	var periods []models.ClassPeriod
	if err := tx.
		Where("class_id IN ? AND weekday = ?", classIDs, int(ev.EventTime.Weekday())).
		Find(&periods).Error; err != nil {
		return nil, err
	}

	var results []Result
	for _, p := range periods {
		w := WindowFor(p, ev.EventTime)
		if !w.Contains(ev.EventTime) {
			continue
		}
		res, err := r.applyScan(tx, ev, p, w)
		if err != nil {
			return nil, err
		}
		if res != nil {
			results = append(results, *res)
		}
	}
	return results, nil
}

func (r *Reconciler) applyScan(tx *gorm.DB, ev *models.AccessEvent, p models.ClassPeriod, w Window) (*Result, error) {
	student := *ev.UserIDRef
	date := ev.EventTime.Format("2006-01-02")

	var row models.PeriodAttendance
	err := tx.Where("student_ref = ? AND period_id = ? AND date = ?", student, p.ID, date).
		First(&row).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		row = models.PeriodAttendance{
			SchoolID:   p.SchoolID,
			StudentRef: student,
			ClassID:    p.ClassID,
			PeriodID:   p.ID,
			Date:       date,
		}
	}

	scanAt := ev.EventTime
	switch scanDirection(ev.Details, row) {
	case ScanEntry:
		// earliest valid entry wins
		if row.EntryTime == nil || scanAt.Before(*row.EntryTime) {
			row.EntryTime = &scanAt
		}
	case ScanExit:
		if row.EntryTime != nil && scanAt.Before(*row.EntryTime) {
			// taps replayed out of order: the earlier tap is the real
			// entry, the one we mistook for it becomes the exit candidate
			prev := *row.EntryTime
			row.EntryTime = &scanAt
			if row.ExitTime == nil || prev.After(*row.ExitTime) {
				row.ExitTime = &prev
			}
		} else if row.ExitTime == nil || scanAt.After(*row.ExitTime) {
			// latest valid exit wins
			row.ExitTime = &scanAt
		}
	}

	prevStatus := row.AutoStatus
	status, lateBy, earlyBy := Evaluate(row.EntryTime, row.ExitTime, w)
	row.AutoStatus = status
	row.LateByMinutes = lateBy
	row.EarlyExitByMinutes = earlyBy

	if row.IsOverridden && r.OverrideSticky {
		// final_status stays pinned; only computed fields refresh
	} else {
		if row.IsOverridden {
			row.IsOverridden = false
		}
		row.FinalStatus = status
	}

	if err := tx.Save(&row).Error; err != nil {
		return nil, err
	}

	if status == models.AttendanceLate && prevStatus != models.AttendanceLate && lateBy > 0 {
		if err := queueLateNotifications(tx, p, row, lateBy); err != nil {
			return nil, err
		}
	}

	return &Result{
		PeriodID:    p.ID,
		PeriodName:  p.Name,
		Status:      status,
		LateMinutes: lateBy,
	}, nil
}

// scanDirection decides whether a scan is an entry or an exit. Devices that
// know their direction say so in details; plain taps fall back to turnstile
// semantics: the first tap of the period is the entry, later taps are exits.
func scanDirection(details string, row models.PeriodAttendance) string {
	d := strings.ToLower(strings.TrimSpace(details))
	switch {
	case strings.Contains(d, ScanExit):
		return ScanExit
	case strings.Contains(d, ScanEntry):
		return ScanEntry
	case row.EntryTime == nil:
		return ScanEntry
	default:
		return ScanExit
	}
}

func queueLateNotifications(tx *gorm.DB, p models.ClassPeriod, row models.PeriodAttendance, lateBy int) error {
	var links []models.ParentLink
	if err := tx.Where("student_ref = ?", row.StudentRef).Find(&links).Error; err != nil {
		return err
	}
	for _, link := range links {
		student := row.StudentRef
		n := models.NotificationQueueEntry{
			SchoolID:         p.SchoolID,
			RecipientRef:     link.ParentRef,
			RecipientType:    "parent",
			NotificationType: "late_entry",
			RelatedStudent:   &student,
			Title:            "Late arrival",
			Message:          fmt.Sprintf("Your child arrived %d minutes late to %s", lateBy, p.Name),
			Channel:          "push",
			Priority:         "normal",
		}
		if err := tx.Create(&n).Error; err != nil {
			return err
		}
	}
	return nil
}

// FinalizeAbsences creates absent rows for every enrolled student who has no
// attendance row for a period that already ended on the given day. Safe to
// run repeatedly; existing rows (including overridden ones) are left alone.
// Returns the number of rows created.
func FinalizeAbsences(db *gorm.DB, schoolID uint, now time.Time) (int, error) {
	date := now.Format("2006-01-02")

	var periods []models.ClassPeriod
	if err := db.Where("school_id = ? AND weekday = ?", schoolID, int(now.Weekday())).
		Find(&periods).Error; err != nil {
		return 0, err
	}

	created := 0
	for _, p := range periods {
		w := WindowFor(p, now)
		if now.Before(w.End) {
			continue // period not over yet
		}
		var enrollments []models.Enrollment
		if err := db.Where("class_id = ?", p.ClassID).Find(&enrollments).Error; err != nil {
			return created, err
		}
		for _, e := range enrollments {
			row := models.PeriodAttendance{
				SchoolID:    p.SchoolID,
				StudentRef:  e.StudentRef,
				ClassID:     p.ClassID,
				PeriodID:    p.ID,
				Date:        date,
				AutoStatus:  models.AttendanceAbsent,
				FinalStatus: models.AttendanceAbsent,
			}
			res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return created, res.Error
			}
			created += int(res.RowsAffected)
		}
	}
	return created, nil
}
