package gasdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Migration is one idempotent schema change. Every statement tolerates
// being run against a database that already has the change.
type Migration struct {
	ID   string
	Name string
	Up   func(ctx context.Context, tx *sql.Tx) error
}

// exec returns an Up that runs stmts in order.
func exec(stmts ...string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}
}

// renameColumns returns an Up that renames table.from to table.to when from
// exists and to does not.
func renameColumns(table string, renames map[string]string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for from, to := range renames {
			hasFrom, err := columnExists(ctx, tx, table, from)
			if err != nil {
				return err
			}
			hasTo, err := columnExists(ctx, tx, table, to)
			if err != nil {
				return err
			}
			if !hasFrom || hasTo {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
				pq.QuoteIdentifier(table), pq.QuoteIdentifier(from), pq.QuoteIdentifier(to))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
		table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up column %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// Migrations is the ordered list Migrate applies.
var Migrations = []Migration{
	{
		ID:   "0001",
		Name: "core business tables",
		Up: exec(
			`CREATE TABLE IF NOT EXISTS "User" (
				"id" TEXT PRIMARY KEY,
				"name" TEXT NOT NULL,
				"email" TEXT UNIQUE,
				"role" TEXT NOT NULL DEFAULT 'staff',
				"createdAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS "Customer" (
				"id" TEXT PRIMARY KEY,
				"name" TEXT NOT NULL,
				"phone" TEXT,
				"address" TEXT,
				"paymentType" TEXT NOT NULL DEFAULT 'cash',
				"lineUserId" TEXT,
				"createdAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS "Product" (
				"id" TEXT PRIMARY KEY,
				"name" TEXT NOT NULL,
				"code" TEXT NOT NULL UNIQUE,
				"price" NUMERIC(10,2) NOT NULL,
				"capacity" TEXT,
				"unit" TEXT NOT NULL DEFAULT '桶',
				"isActive" BOOLEAN NOT NULL DEFAULT true,
				"createdAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS "Inventory" (
				"id" TEXT PRIMARY KEY,
				"productId" TEXT NOT NULL UNIQUE REFERENCES "Product"("id") ON DELETE CASCADE,
				"quantity" INTEGER NOT NULL DEFAULT 0,
				"minStock" INTEGER NOT NULL DEFAULT 10,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS "GasOrder" (
				"id" TEXT PRIMARY KEY,
				"orderNo" TEXT NOT NULL,
				"customerId" TEXT REFERENCES "Customer"("id"),
				"orderDate" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"status" TEXT NOT NULL DEFAULT 'pending',
				"total" NUMERIC(12,2) NOT NULL DEFAULT 0,
				"createdAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS "idx_gas_order_status" ON "GasOrder"("status")`,
			`CREATE INDEX IF NOT EXISTS "idx_gas_order_date" ON "GasOrder"("orderDate")`,
		),
	},
	{
		ID:   "0002",
		Name: "knowledge base tables",
		Up: exec(
			`CREATE TABLE IF NOT EXISTS "knowledge_base" (
				"id" TEXT PRIMARY KEY,
				"title" TEXT NOT NULL,
				"category" TEXT NOT NULL,
				"content" TEXT NOT NULL,
				"keywords" TEXT[],
				"priority" INTEGER DEFAULT 0,
				"isActive" BOOLEAN DEFAULT true,
				"viewCount" INTEGER DEFAULT 0,
				"usageCount" INTEGER DEFAULT 0,
				"createdAt" TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS "idx_knowledge_base_category" ON "knowledge_base"("category")`,
			`CREATE INDEX IF NOT EXISTS "idx_knowledge_base_isActive" ON "knowledge_base"("isActive")`,
			`CREATE INDEX IF NOT EXISTS "idx_knowledge_base_priority" ON "knowledge_base"("priority")`,
			`CREATE TABLE IF NOT EXISTS "knowledge_keywords" (
				"id" TEXT PRIMARY KEY,
				"knowledgeBaseId" TEXT NOT NULL REFERENCES "knowledge_base"("id") ON DELETE CASCADE,
				"keyword" TEXT NOT NULL,
				"createdAt" TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS "idx_knowledge_keywords_keyword" ON "knowledge_keywords"("keyword")`,
			`CREATE TABLE IF NOT EXISTS "knowledge_usage_logs" (
				"id" TEXT PRIMARY KEY,
				"knowledgeBaseId" TEXT NOT NULL REFERENCES "knowledge_base"("id") ON DELETE CASCADE,
				"userId" TEXT,
				"query" TEXT,
				"matchScore" FLOAT,
				"timestamp" TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS "idx_knowledge_usage_logs_base" ON "knowledge_usage_logs"("knowledgeBaseId")`,
			`CREATE INDEX IF NOT EXISTS "idx_knowledge_usage_logs_timestamp" ON "knowledge_usage_logs"("timestamp")`,
		),
	},
	{
		ID:   "0003",
		Name: "LINE group and message tables",
		Up: exec(
			`CREATE TABLE IF NOT EXISTS "LineGroup" (
				"id" TEXT PRIMARY KEY,
				"groupId" TEXT NOT NULL UNIQUE,
				"groupName" TEXT,
				"groupType" TEXT NOT NULL DEFAULT 'general',
				"permissions" TEXT[] NOT NULL DEFAULT '{}',
				"isActive" BOOLEAN NOT NULL DEFAULT true,
				"memberCount" INTEGER NOT NULL DEFAULT 0,
				"description" TEXT,
				"createdAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS "LineMessage" (
				"id" TEXT PRIMARY KEY,
				"lineGroupId" TEXT,
				"userId" TEXT,
				"messageType" TEXT NOT NULL DEFAULT 'text',
				"content" TEXT,
				"response" TEXT,
				"intent" TEXT,
				"timestamp" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS "idx_line_message_user" ON "LineMessage"("userId")`,
			`CREATE INDEX IF NOT EXISTS "idx_line_message_timestamp" ON "LineMessage"("timestamp")`,
		),
	},
	{
		// Tables created by hand with unquoted names ended up lower case.
		ID:   "0004",
		Name: "camelCase LineMessage columns",
		Up: renameColumns("LineMessage", map[string]string{
			"userid":      "userId",
			"linegroupid": "lineGroupId",
			"messagetype": "messageType",
		}),
	},
	{
		ID:   "0005",
		Name: "attendance table",
		Up: exec(
			`CREATE TABLE IF NOT EXISTS "Attendance" (
				"id" TEXT PRIMARY KEY,
				"userId" TEXT NOT NULL,
				"userName" TEXT NOT NULL DEFAULT '',
				"date" DATE NOT NULL,
				"clockIn" TIMESTAMPTZ,
				"clockOut" TIMESTAMPTZ,
				"createdAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE ("userId", "date")
			)`,
			`CREATE INDEX IF NOT EXISTS "idx_attendance_date" ON "Attendance"("date")`,
		),
	},
	{
		ID:   "0006",
		Name: "leave schedule and employee requests",
		Up: exec(
			`CREATE TABLE IF NOT EXISTS "LeaveSchedule" (
				"id" TEXT PRIMARY KEY,
				"month" TEXT NOT NULL,
				"name" TEXT NOT NULL,
				"station" TEXT NOT NULL,
				"dates" TEXT[] NOT NULL DEFAULT '{}',
				"reason" TEXT NOT NULL DEFAULT '',
				"createdAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				"updatedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE ("month", "name", "station")
			)`,
			`CREATE TABLE IF NOT EXISTS "EmployeeRequest" (
				"id" TEXT PRIMARY KEY,
				"userId" TEXT NOT NULL,
				"userName" TEXT NOT NULL DEFAULT '',
				"kind" TEXT NOT NULL CHECK ("kind" IN ('leave', 'advance')),
				"leaveType" TEXT NOT NULL DEFAULT '',
				"days" INTEGER NOT NULL DEFAULT 0,
				"amount" INTEGER NOT NULL DEFAULT 0,
				"reason" TEXT NOT NULL DEFAULT '',
				"status" TEXT NOT NULL DEFAULT 'pending',
				"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS "idx_employee_request_user" ON "EmployeeRequest"("userId", "createdAt")`,
		),
	},
}

// Migrate applies every migration not yet recorded in gasops_migrations,
// each in its own transaction, and returns the ids it applied.
func (d *DB) Migrate(ctx context.Context) ([]string, error) {
	_, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS gasops_migrations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	done, err := d.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range Migrations {
		if done[m.ID] {
			continue
		}
		if err := d.apply(ctx, m); err != nil {
			return applied, fmt.Errorf("migration %s (%s): %w", m.ID, m.Name, err)
		}
		d.log.Info("migration applied", "id", m.ID, "name", m.Name)
		applied = append(applied, m.ID)
	}
	return applied, nil
}

func (d *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM gasops_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan migration id: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}

func (d *DB) apply(ctx context.Context, m Migration) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gasops_migrations (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
