package gasdb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Attendance is one employee's record for one day. A zero ClockIn or
// ClockOut means that punch is missing.
type Attendance struct {
	UserID   string
	UserName string
	Date     time.Time
	ClockIn  time.Time
	ClockOut time.Time
}

// Hours returns the worked hours rounded to two decimals, and false when
// either punch is missing.
func (a Attendance) Hours() (float64, bool) {
	if a.ClockIn.IsZero() || a.ClockOut.IsZero() {
		return 0, false
	}
	d := a.ClockOut.Sub(a.ClockIn)
	if d < 0 {
		// Clocked out after midnight on a record keyed by the start day.
		d += 24 * time.Hour
	}
	return math.Round(d.Hours()*100) / 100, true
}

// DisplayName is the user name, or the user id when no name is known.
func (a Attendance) DisplayName() string {
	if a.UserName != "" {
		return a.UserName
	}
	return a.UserID
}

// ClockIn records a clock-in at now for today's Taipei date. Clocking in
// again the same day overwrites the time; updated reports that case.
func (d *DB) ClockIn(ctx context.Context, userID, userName string, now time.Time) (rec Attendance, updated bool, err error) {
	return d.punch(ctx, userID, userName, now, `"clockIn"`)
}

// ClockOut records a clock-out at now for today's Taipei date. A clock-out
// without a clock-in still creates the record; the caller can tell from the
// zero ClockIn.
func (d *DB) ClockOut(ctx context.Context, userID, userName string, now time.Time) (Attendance, error) {
	rec, _, err := d.punch(ctx, userID, userName, now, `"clockOut"`)
	return rec, err
}

// punch upserts one column of today's record in a single statement, so two
// first punches for the same user and day cannot race on the unique key.
// column is a quoted identifier from ClockIn or ClockOut, never user input.
func (d *DB) punch(ctx context.Context, userID, userName string, now time.Time, column string) (Attendance, bool, error) {
	day, _ := dayBounds(now)

	// xmax is zero only on a row this statement inserted.
	var inserted bool
	rec, err := scanAttendance(d.db.QueryRowContext(ctx, `
		INSERT INTO "Attendance" AS a ("id", "userId", "userName", "date", `+column+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ("userId", "date") DO UPDATE
		SET `+column+` = EXCLUDED.`+column+`,
		    "userName" = CASE WHEN a."userName" = '' THEN EXCLUDED."userName" ELSE a."userName" END,
		    "updatedAt" = now()
		RETURNING "userId", "userName", "date", "clockIn", "clockOut", (xmax = 0)`,
		uuid.NewString(), userID, userName, day.Format(time.DateOnly), now), &inserted)
	if err != nil {
		return Attendance{}, false, fmt.Errorf("record %s: %w", column, err)
	}
	return rec, !inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAttendance reads the five attendance columns followed by any extra
// columns into extra.
func scanAttendance(row rowScanner, extra ...any) (Attendance, error) {
	var (
		a       Attendance
		in, out sql.NullTime
	)
	dest := append([]any{&a.UserID, &a.UserName, &a.Date, &in, &out}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Attendance{}, fmt.Errorf("scan attendance: %w", err)
	}
	if in.Valid {
		a.ClockIn = in.Time.In(Taipei)
	}
	if out.Valid {
		a.ClockOut = out.Time.In(Taipei)
	}
	return a, nil
}

// AttendanceSince returns the records with a clock-in on or after the
// Taipei date of since, newest date first.
func (d *DB) AttendanceSince(ctx context.Context, since time.Time) ([]Attendance, error) {
	day, _ := dayBounds(since)
	rows, err := d.db.QueryContext(ctx, `
		SELECT "userId", "userName", "date", "clockIn", "clockOut"
		FROM "Attendance"
		WHERE "date" >= $1 AND "clockIn" IS NOT NULL
		ORDER BY "date" DESC, "clockIn"`, day.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
