package httpapi

import (
	"net/http"
	"time"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

// attendancePurpose labels the exports as the records the Labor Standards
// Act requires employers to keep.
const attendancePurpose = "勞基法上下班紀錄"

type attendanceRecord struct {
	UserID   string   `json:"user_id"`
	UserName string   `json:"user_name"`
	Date     string   `json:"date"`
	ClockIn  string   `json:"clock_in,omitempty"`
	ClockOut string   `json:"clock_out,omitempty"`
	Hours    *float64 `json:"hours,omitempty"`
}

func toAttendanceRecords(recs []gasdb.Attendance) []attendanceRecord {
	out := make([]attendanceRecord, 0, len(recs))
	for _, a := range recs {
		r := attendanceRecord{
			UserID:   a.UserID,
			UserName: a.DisplayName(),
			Date:     a.Date.Format(time.DateOnly),
		}
		if !a.ClockIn.IsZero() {
			r.ClockIn = a.ClockIn.In(gasdb.Taipei).Format(time.RFC3339)
		}
		if !a.ClockOut.IsZero() {
			r.ClockOut = a.ClockOut.In(gasdb.Taipei).Format(time.RFC3339)
		}
		if h, ok := a.Hours(); ok {
			r.Hours = &h
		}
		out = append(out, r)
	}
	return out
}

// attendanceSince answers with the records since since, or writes the
// error response and returns false.
func (a *api) attendanceSince(w http.ResponseWriter, r *http.Request, since time.Time) ([]attendanceRecord, bool) {
	if a.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not configured")
		return nil, false
	}
	recs, err := a.db.AttendanceSince(r.Context(), since)
	if err != nil {
		a.log.Error("attendance query failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Attendance query failed")
		return nil, false
	}
	return toAttendanceRecords(recs), true
}

func (a *api) handleAttendanceToday(w http.ResponseWriter, r *http.Request) {
	now := a.now()
	recs, ok := a.attendanceSince(w, r, now)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"date":      now.In(gasdb.Taipei).Format(time.DateOnly),
		"records":   recs,
		"count":     len(recs),
		"purpose":   attendancePurpose,
		"timestamp": a.timestamp(),
	})
}

func (a *api) handleAttendanceWeek(w http.ResponseWriter, r *http.Request) {
	start := gasdb.WeekStart(a.now())
	recs, ok := a.attendanceSince(w, r, start)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"week_start": start.Format(time.DateOnly),
		"records":    recs,
		"count":      len(recs),
		"purpose":    attendancePurpose,
		"timestamp":  a.timestamp(),
	})
}

// handleAttendanceAll exports every record for labor inspections.
func (a *api) handleAttendanceAll(w http.ResponseWriter, r *http.Request) {
	recs, ok := a.attendanceSince(w, r, time.Time{})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"total_records": len(recs),
		"records":       recs,
		"exported_at":   a.timestamp(),
		"purpose":       attendancePurpose,
	})
}
