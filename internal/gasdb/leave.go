package gasdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ROCMonth formats t's Taipei month as a Republic of China year-month, the
// way the leave announcements are dated: 2026-01 is "115-01".
func ROCMonth(t time.Time) string {
	t = t.In(Taipei)
	return fmt.Sprintf("%d-%02d", t.Year()-1911, int(t.Month()))
}

// LeaveEntry is one person's days off in a month's leave schedule. Dates
// are month/day strings as posted, such as "1/15".
type LeaveEntry struct {
	Month   string
	Name    string
	Station string
	Dates   []string
	Reason  string
}

// SaveLeaveSchedule stores entries under month in one transaction. An entry
// for a name and station already on file replaces its dates and reason, so
// posting a corrected announcement does not duplicate anyone. It returns
// the number of entries written.
func (d *DB) SaveLeaveSchedule(ctx context.Context, month string, entries []LeaveEntry) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO "LeaveSchedule" ("id", "month", "name", "station", "dates", "reason")
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT ("month", "name", "station") DO UPDATE
			SET "dates" = EXCLUDED."dates", "reason" = EXCLUDED."reason", "updatedAt" = now()`,
			uuid.NewString(), month, e.Name, e.Station, pq.Array(e.Dates), e.Reason); err != nil {
			return 0, fmt.Errorf("save leave of %s: %w", e.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	d.log.Info("leave schedule saved", "month", month, "entries", len(entries))
	return len(entries), nil
}

// LeaveSchedule returns month's entries ordered by station and name.
func (d *DB) LeaveSchedule(ctx context.Context, month string) ([]LeaveEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT "month", "name", "station", "dates", "reason"
		FROM "LeaveSchedule"
		WHERE "month" = $1
		ORDER BY "station", "name"`, month)
	if err != nil {
		return nil, fmt.Errorf("query leave schedule: %w", err)
	}
	defer rows.Close()

	var out []LeaveEntry
	for rows.Next() {
		var e LeaveEntry
		if err := rows.Scan(&e.Month, &e.Name, &e.Station, pq.Array(&e.Dates), &e.Reason); err != nil {
			return nil, fmt.Errorf("scan leave entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RequestKind tells leave requests from salary advances.
type RequestKind string

const (
	RequestLeave   RequestKind = "leave"
	RequestAdvance RequestKind = "advance"
)

// StatusPending is the status of a request nobody has reviewed.
const StatusPending = "pending"

// EmployeeRequest is a leave or salary advance request filed from the staff
// group. Days and LeaveType apply to leave, Amount to advances.
type EmployeeRequest struct {
	ID        string
	UserID    string
	UserName  string
	Kind      RequestKind
	LeaveType string
	Days      int
	Amount    int
	Reason    string
	Status    string
	CreatedAt time.Time
}

// CreateEmployeeRequest files r as pending and returns it with its id,
// status and creation time filled in.
func (d *DB) CreateEmployeeRequest(ctx context.Context, r EmployeeRequest) (EmployeeRequest, error) {
	r.ID = uuid.NewString()
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO "EmployeeRequest" ("id", "userId", "userName", "kind", "leaveType", "days", "amount", "reason")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING "status", "createdAt"`,
		r.ID, r.UserID, r.UserName, string(r.Kind), r.LeaveType, r.Days, r.Amount, r.Reason,
	).Scan(&r.Status, &r.CreatedAt)
	if err != nil {
		return EmployeeRequest{}, fmt.Errorf("create %s request: %w", r.Kind, err)
	}
	r.CreatedAt = r.CreatedAt.In(Taipei)
	return r, nil
}

// EmployeeRequests returns userID's latest requests, newest first.
func (d *DB) EmployeeRequests(ctx context.Context, userID string, limit int) ([]EmployeeRequest, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT "id", "userId", "userName", "kind", "leaveType", "days", "amount", "reason", "status", "createdAt"
		FROM "EmployeeRequest"
		WHERE "userId" = $1
		ORDER BY "createdAt" DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query employee requests: %w", err)
	}
	defer rows.Close()

	var out []EmployeeRequest
	for rows.Next() {
		var (
			r    EmployeeRequest
			kind string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.UserName, &kind, &r.LeaveType, &r.Days, &r.Amount,
			&r.Reason, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee request: %w", err)
		}
		r.Kind = RequestKind(kind)
		r.CreatedAt = r.CreatedAt.In(Taipei)
		out = append(out, r)
	}
	return out, rows.Err()
}
