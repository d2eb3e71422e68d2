package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jiujiugas/gasops/internal/gasdb"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "PostgreSQL maintenance",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Report row counts and recent rows of the core tables",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(ctx context.Context, db *gasdb.DB, out io.Writer, _ []string) error {
			report, err := db.Check(ctx)
			if err != nil {
				return err
			}
			return report.Format(out)
		}),
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(ctx context.Context, db *gasdb.DB, out io.Writer, _ []string) error {
			applied, err := db.Migrate(ctx)
			for _, id := range applied {
				fmt.Fprintf(out, "applied %s\n", id)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "schema is up to date")
			}
			return nil
		}),
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the price list and the core knowledge entries",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(ctx context.Context, db *gasdb.DB, out io.Writer, _ []string) error {
			res, err := db.Seed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "products: %d inserted, %d updated\nknowledge: %d inserted, %d updated\n",
				res.ProductsInserted, res.ProductsUpdated, res.KnowledgeInserted, res.KnowledgeUpdated)
			return nil
		}),
	}

	var limit int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withDB(func(ctx context.Context, db *gasdb.DB, out io.Writer, args []string) error {
			q := strings.Join(args, " ")
			entries, err := db.SearchKnowledge(ctx, q, limit)
			if err != nil {
				return err
			}
			writeKnowledge(out, q, entries)
			return nil
		}),
	}
	search.Flags().IntVar(&limit, "limit", gasdb.DefaultSearchLimit, "maximum number of entries")

	fixGroups := &cobra.Command{
		Use:   "fix-groups",
		Short: "Activate every LINE group and grant it the full permission set",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(ctx context.Context, db *gasdb.DB, out io.Writer, _ []string) error {
			groups, err := db.FixGroupPermissions(ctx)
			if err != nil {
				return err
			}
			return writeGroups(out, groups)
		}),
	}

	cmd.AddCommand(check, migrate, seed, search, fixGroups)
	return cmd
}

// withDB opens the configured database around fn.
func (a *app) withDB(fn func(ctx context.Context, db *gasdb.DB, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := gasdb.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(ctx, db, cmd.OutOrStdout(), args)
	}
}

func writeKnowledge(out io.Writer, q string, entries []gasdb.KnowledgeEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(out, "no knowledge matches %q\n", q)
		return
	}
	fmt.Fprintf(out, "%d entries match %q\n", len(entries), q)
	for i, e := range entries {
		fmt.Fprintf(out, "\n%d. %s [%s, priority %d]\n", i+1, e.Title, e.Category, e.Priority)
		if len(e.Keywords) > 0 {
			fmt.Fprintf(out, "   keywords: %s\n", strings.Join(e.Keywords, ", "))
		}
		for line := range strings.Lines(e.Content) {
			fmt.Fprintf(out, "   %s", line)
		}
		fmt.Fprintln(out)
	}
}

func writeGroups(out io.Writer, groups []gasdb.LineGroup) error {
	if len(groups) == 0 {
		fmt.Fprintln(out, "no LINE groups registered")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tNAME\tTYPE\tACTIVE\tPERMISSIONS")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\n", g.GroupID, g.Name, g.Type, g.Active, len(g.Permissions))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write groups: %w", err)
	}
	fmt.Fprintf(out, "%d groups updated\n", len(groups))
	return nil
}
