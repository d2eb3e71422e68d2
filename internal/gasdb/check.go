package gasdb

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"
)

// CheckedTables are the tables Check counts, in report order.
var CheckedTables = []string{"User", "Customer", "GasOrder", "LineMessage"}

// recentRows is how many of the newest rows the report shows per table.
const recentRows = 2

// latestKnowledge is how many knowledge titles the report lists.
const latestKnowledge = 3

// Report is the result of Check.
type Report struct {
	Time      time.Time
	Tables    []TableReport
	Knowledge KnowledgeReport
}

// TableReport describes one table. Missing is set when the table does not
// exist; Err holds any other failure.
type TableReport struct {
	Name    string
	Count   int64
	Recent  []string
	Missing bool
	Err     string
}

// KnowledgeReport summarizes the active knowledge entries.
type KnowledgeReport struct {
	Active  int64
	Latest  []KnowledgeTitle
	Missing bool
	Err     string
}

// KnowledgeTitle is a title with its category.
type KnowledgeTitle struct {
	Title    string
	Category string
}

// Check inspects the main tables. Per-table failures land in the report;
// only a lost connection is returned as an error.
func (d *DB) Check(ctx context.Context) (*Report, error) {
	if err := d.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	r := &Report{Time: time.Now()}
	for _, name := range CheckedTables {
		r.Tables = append(r.Tables, d.checkTable(ctx, name))
	}
	r.Knowledge = d.checkKnowledge(ctx)
	return r, nil
}

func (d *DB) checkTable(ctx context.Context, name string) TableReport {
	tr := TableReport{Name: name}
	q := pq.QuoteIdentifier(name)

	if err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM "+q).Scan(&tr.Count); err != nil {
		tr.Missing = isUndefinedTable(err)
		tr.Err = err.Error()
		return tr
	}
	if tr.Count == 0 {
		return tr
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id DESC LIMIT %d", q, recentRows))
	if err != nil {
		tr.Err = err.Error()
		return tr
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		tr.Err = err.Error()
		return tr
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			tr.Err = err.Error()
			return tr
		}
		tr.Recent = append(tr.Recent, formatRow(cols, vals))
	}
	if err := rows.Err(); err != nil {
		tr.Err = err.Error()
	}
	return tr
}

func (d *DB) checkKnowledge(ctx context.Context) KnowledgeReport {
	var kr KnowledgeReport
	err := d.db.QueryRowContext(ctx,
		`SELECT count(*) FROM "knowledge_base" WHERE "isActive" = true`).Scan(&kr.Active)
	if err != nil {
		kr.Missing = isUndefinedTable(err)
		kr.Err = err.Error()
		return kr
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT "title", "category" FROM "knowledge_base"
		WHERE "isActive" = true
		ORDER BY "createdAt" DESC NULLS LAST, "id" DESC
		LIMIT $1`, latestKnowledge)
	if err != nil {
		kr.Err = err.Error()
		return kr
	}
	defer rows.Close()
	for rows.Next() {
		var kt KnowledgeTitle
		if err := rows.Scan(&kt.Title, &kt.Category); err != nil {
			kr.Err = err.Error()
			return kr
		}
		kr.Latest = append(kr.Latest, kt)
	}
	if err := rows.Err(); err != nil {
		kr.Err = err.Error()
	}
	return kr
}

// formatRow renders a row as "col=value" pairs in column order. Byte slices
// are shown as text.
func formatRow(cols []string, vals []any) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v := vals[i]
		switch x := v.(type) {
		case nil:
			v = "NULL"
		case []byte:
			v = string(x)
		case time.Time:
			v = x.Format(time.DateTime)
		}
		parts[i] = fmt.Sprintf("%s=%v", c, v)
	}
	return strings.Join(parts, ", ")
}

// OK reports whether every table was readable.
func (r *Report) OK() bool {
	for _, t := range r.Tables {
		if t.Err != "" {
			return false
		}
	}
	return r.Knowledge.Err == ""
}

// Format writes the report as text.
func (r *Report) Format(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 資料庫狀態 (%s)\n", r.Time.In(Taipei).Format(time.DateTime))
	b.WriteString(strings.Repeat("=", 50) + "\n")

	for _, t := range r.Tables {
		switch {
		case t.Missing:
			fmt.Fprintf(&b, "  ❌ %s: 表不存在\n", t.Name)
		case t.Err != "":
			fmt.Fprintf(&b, "  ❌ %s: %s\n", t.Name, t.Err)
		default:
			fmt.Fprintf(&b, "  📋 %s: %d 筆記錄\n", t.Name, t.Count)
			for _, row := range t.Recent {
				fmt.Fprintf(&b, "     最新: %s\n", row)
			}
		}
	}

	b.WriteString("\n🔍 知識庫:\n")
	k := r.Knowledge
	switch {
	case k.Missing:
		b.WriteString("  ❌ knowledge_base: 表不存在\n")
	case k.Err != "":
		fmt.Fprintf(&b, "  ❌ knowledge_base: %s\n", k.Err)
	default:
		fmt.Fprintf(&b, "  📚 knowledge_base: %d 筆活躍知識\n", k.Active)
		for _, kt := range k.Latest {
			fmt.Fprintf(&b, "     - %s (%s)\n", kt.Title, kt.Category)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
