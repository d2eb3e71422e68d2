package gasdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// DefaultSearchLimit caps SearchKnowledge when limit is not positive.
const DefaultSearchLimit = 5

// KnowledgeEntry is one active knowledge base article.
type KnowledgeEntry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Priority int      `json:"priority"`
}

// SearchKnowledge returns active entries whose title or content contains q,
// or whose keyword list holds q exactly, highest priority first. Every hit
// has its usage count incremented.
func (d *DB) SearchKnowledge(ctx context.Context, q string, limit int) ([]KnowledgeEntry, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT "id", "title", "category", "content", COALESCE("keywords", '{}'), COALESCE("priority", 0)
		FROM "knowledge_base"
		WHERE "isActive" = true
		  AND ("title" ILIKE $1 OR "content" ILIKE $1 OR $2 = ANY("keywords"))
		ORDER BY "priority" DESC NULLS LAST, "title"
		LIMIT $3`,
		"%"+escapeLike(q)+"%", q, limit)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()

	var (
		out []KnowledgeEntry
		ids []string
	)
	for rows.Next() {
		var e KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Category, &e.Content, pq.Array(&e.Keywords), &e.Priority); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}

	if len(ids) > 0 {
		if _, err := d.db.ExecContext(ctx,
			`UPDATE "knowledge_base" SET "usageCount" = COALESCE("usageCount", 0) + 1 WHERE "id" = ANY($1)`,
			pq.Array(ids)); err != nil {
			d.log.Warn("increment knowledge usage", "error", err)
		}
	}
	return out, nil
}

// SearchBuiltin matches q against CoreKnowledge the same way SearchKnowledge
// matches the table, without the usage counter. It serves when no database
// is configured.
func SearchBuiltin(q string, limit int) []KnowledgeEntry {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	lq := strings.ToLower(q)
	var out []KnowledgeEntry
	for _, k := range CoreKnowledge {
		match := strings.Contains(strings.ToLower(k.Title), lq) || strings.Contains(strings.ToLower(k.Content), lq)
		for _, kw := range k.Keywords {
			match = match || kw == q
		}
		if !match {
			continue
		}
		out = append(out, KnowledgeEntry{
			Title:    k.Title,
			Category: k.Category,
			Content:  k.Content,
			Keywords: k.Keywords,
			Priority: k.Priority,
		})
	}
	// CoreKnowledge is ordered by priority already.
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// escapeLike escapes the ILIKE wildcards in s.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// FullPermissions is the permission set FixGroupPermissions grants.
var FullPermissions = []string{
	"read_all", "write_all", "delete_all",
	"manage_users", "manage_customers", "manage_orders",
	"manage_inventory", "manage_deliveries", "manage_costs",
	"view_reports", "export_data", "import_data",
	"manage_line_groups", "manage_line_messages",
	"manage_schedules", "manage_attendance", "approve_checks",
	"system_admin", "api_access", "webhook_access",
}

// LineGroup is a registered LINE group.
type LineGroup struct {
	GroupID     string
	Name        string
	Type        string
	Active      bool
	Permissions []string
}

// FixGroupPermissions activates every LINE group, resets its type to
// general and grants FullPermissions. It returns the groups after the
// update.
func (d *DB) FixGroupPermissions(ctx context.Context) ([]LineGroup, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `
		UPDATE "LineGroup"
		SET "groupType" = 'general', "permissions" = $1, "isActive" = true, "updatedAt" = now()`,
		pq.Array(FullPermissions)); err != nil {
		return nil, fmt.Errorf("update line groups: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT "groupId", COALESCE("groupName", ''), "groupType", "isActive", "permissions"
		FROM "LineGroup" ORDER BY "groupId"`)
	if err != nil {
		return nil, fmt.Errorf("list line groups: %w", err)
	}
	var groups []LineGroup
	for rows.Next() {
		var g LineGroup
		if err := rows.Scan(&g.GroupID, &g.Name, &g.Type, &g.Active, pq.Array(&g.Permissions)); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan line group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list line groups: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	d.log.Info("line group permissions fixed", "groups", len(groups))
	return groups, nil
}
