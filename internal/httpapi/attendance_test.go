package httpapi

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

func TestAttendanceEndpoints(t *testing.T) {
	t.Parallel()

	records := []gasdb.Attendance{
		{UserID: "U1", UserName: "阿明", Date: testNow, ClockIn: testNow, ClockOut: testNow.Add(8*time.Hour + 30*time.Minute)},
		{UserID: "U2", Date: testNow, ClockIn: testNow.Add(time.Hour)},
	}
	wantRecords := []any{
		map[string]any{
			"user_id":   "U1",
			"user_name": "阿明",
			"date":      "2026-03-04",
			"clock_in":  "2026-03-04T09:00:00+08:00",
			"clock_out": "2026-03-04T17:30:00+08:00",
			"hours":     8.5,
		},
		map[string]any{
			"user_id":   "U2",
			"user_name": "U2",
			"date":      "2026-03-04",
			"clock_in":  "2026-03-04T10:00:00+08:00",
		},
	}

	tests := map[string]struct {
		path      string
		wantSince time.Time
		want      map[string]any
	}{
		"today": {
			path:      "/api/attendance/today",
			wantSince: testNow,
			want: map[string]any{
				"status":    "success",
				"date":      "2026-03-04",
				"records":   wantRecords,
				"count":     2.0,
				"purpose":   attendancePurpose,
				"timestamp": "2026-03-04T09:00:00+08:00",
			},
		},
		"week": {
			path:      "/api/attendance/week",
			wantSince: time.Date(2026, 3, 2, 0, 0, 0, 0, gasdb.Taipei),
			want: map[string]any{
				"status":     "success",
				"week_start": "2026-03-02",
				"records":    wantRecords,
				"count":      2.0,
				"purpose":    attendancePurpose,
				"timestamp":  "2026-03-04T09:00:00+08:00",
			},
		},
		"all": {
			path: "/api/attendance/all",
			want: map[string]any{
				"status":        "success",
				"total_records": 2.0,
				"records":       wantRecords,
				"exported_at":   "2026-03-04T09:00:00+08:00",
				"purpose":       attendancePurpose,
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			db := &fakeDB{attendance: records}
			code, body := get(t, newTestRouter(db, nil), tc.path)
			if code != http.StatusOK {
				t.Fatalf("status = %d, want %d", code, http.StatusOK)
			}
			if diff := cmp.Diff(tc.want, body); diff != "" {
				t.Errorf("GET %s mismatch (-want +got):\n%s", tc.path, diff)
			}
			if !db.lastSince.Equal(tc.wantSince) {
				t.Errorf("since = %v, want %v", db.lastSince, tc.wantSince)
			}
		})
	}
}

func TestAttendanceEndpoints_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		withDB   bool
		wantCode int
		wantErr  string
	}{
		"no database": {
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "Database not configured",
		},
		"query fails": {
			withDB:   true,
			wantCode: http.StatusInternalServerError,
			wantErr:  "Attendance query failed",
		},
	}
	for name, tc := range tests {
		for _, path := range []string{"/api/attendance/today", "/api/attendance/week", "/api/attendance/all"} {
			t.Run(name+" "+path, func(t *testing.T) {
				t.Parallel()

				var db Database
				if tc.withDB {
					db = &fakeDB{attendanceErr: errors.New(`relation "Attendance" does not exist`)}
				}
				code, body := get(t, newTestRouter(db, nil), path)
				if code != tc.wantCode {
					t.Errorf("status = %d, want %d", code, tc.wantCode)
				}
				want := map[string]any{"status": "error", "error": tc.wantErr}
				if diff := cmp.Diff(want, body); diff != "" {
					t.Errorf("body mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestAttendanceEndpoints_EmptyList(t *testing.T) {
	t.Parallel()

	_, body := get(t, newTestRouter(&fakeDB{}, nil), "/api/attendance/today")
	if records, ok := body["records"].([]any); !ok || len(records) != 0 {
		t.Errorf("records = %#v, want empty list", body["records"])
	}
}
