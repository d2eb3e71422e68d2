package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver; no CGO.
	_ "modernc.org/sqlite"

	"github.com/jiujiugas/gasops/internal/fileutil"
)

// FileName is the journal file created inside the state directory.
const FileName = "supervisor.db"

const schema = `
CREATE TABLE IF NOT EXISTS service_status (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service_name TEXT NOT NULL,
	instance_id TEXT NOT NULL,
	pid INTEGER NOT NULL,
	port INTEGER NOT NULL,
	status TEXT NOT NULL,
	memory_usage REAL DEFAULT 0,
	cpu_usage REAL DEFAULT 0,
	request_count INTEGER DEFAULT 0,
	error_count INTEGER DEFAULT 0,
	health_score REAL DEFAULT 0,
	start_time TEXT NOT NULL,
	last_health_check TEXT,
	uptime_seconds INTEGER DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_service_status_instance ON service_status(service_name, instance_id, id);
CREATE INDEX IF NOT EXISTS idx_service_status_slot ON service_status(service_name, port, id);

CREATE TABLE IF NOT EXISTS system_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	cpu_percent REAL,
	memory_percent REAL,
	disk_usage REAL,
	network_io TEXT,
	active_instances INTEGER,
	total_requests INTEGER,
	error_rate REAL
);

CREATE TABLE IF NOT EXISTS error_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	service_name TEXT NOT NULL,
	instance_id TEXT,
	error_type TEXT NOT NULL,
	error_message TEXT NOT NULL,
	stack_trace TEXT,
	resolved BOOLEAN DEFAULT FALSE,
	resolution_time TEXT
);

CREATE TABLE IF NOT EXISTS recovery_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	service_name TEXT NOT NULL,
	instance_id TEXT,
	recovery_type TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	recovery_time_seconds REAL,
	details TEXT
);
`

// Journal is an open supervisor journal. It is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the journal at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fileutil.EnsureDirForFile(path); err != nil {
		return nil, err
	}

	// WAL lets "supervise status" read while the supervisor writes.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db, log: logger}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Prune deletes status, metrics and resolved error rows older than age.
// Recovery history is kept.
func (j *Journal) Prune(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-age))

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var total int64
	for _, stmt := range []string{
		`DELETE FROM service_status WHERE created_at < ?`,
		`DELETE FROM system_metrics WHERE timestamp < ?`,
		`DELETE FROM error_logs WHERE resolved AND timestamp < ?`,
	} {
		res, err := tx.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune journal: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	j.log.Debug("journal pruned", "rows", total, "older_than", age)
	return total, nil
}
