package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sagebase/sagebase/internal/membership"
	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/seed"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Parliamentary group lookups and seeding",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parliamentary groups of a governing body",
	Long:  "Lists parliamentary groups. With --as-of the group's validity period decides membership and the is_active flag is ignored.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		gbID, _ := cmd.Flags().GetInt64("governing-body")
		if gbID <= 0 {
			return eris.New("--governing-body is required")
		}

		var q membership.Query
		activeOnly, _ := cmd.Flags().GetBool("active-only")
		q.IncludeInactive = !activeOnly
		if v, _ := cmd.Flags().GetString("as-of"); v != "" {
			d, err := model.ParseDate(v)
			if err != nil {
				return err
			}
			q.AsOf = &d
		}
		if cmd.Flags().Changed("chamber") {
			chamber, _ := cmd.Flags().GetString("chamber")
			q.Chamber = &chamber
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		groups, err := membership.NewResolver(st).GetByGoverningBody(ctx, gbID, q)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(groups)
		}

		if len(groups) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No parliamentary groups found.")
			return nil
		}
		formatGroupsList(cmd.OutOrStdout(), groups)
		return nil
	},
}

var groupsSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Upsert parliamentary groups from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		groups, err := seed.LoadFile(args[0])
		if err != nil {
			return err
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			formatGroupsList(cmd.OutOrStdout(), groups)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d groups parsed (dry run, nothing written).\n", len(groups))
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := seed.Apply(ctx, st, groups)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Upserted %d parliamentary groups.\n", n)
		return nil
	},
}

func init() {
	groupsListCmd.Flags().Int64("governing-body", 0, "governing body id (required)")
	groupsListCmd.Flags().String("as-of", "", "reference date (YYYY-MM-DD)")
	groupsListCmd.Flags().Bool("active-only", true, "only groups flagged active; pass --active-only=false to include inactive ones (ignored with --as-of)")
	groupsListCmd.Flags().String("chamber", "", "restrict to one chamber; empty string selects unicameral bodies")
	groupsListCmd.Flags().Bool("json", false, "output JSON")

	groupsSeedCmd.Flags().Bool("dry-run", false, "parse and print without writing")

	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsSeedCmd)
	rootCmd.AddCommand(groupsCmd)
}

// formatGroupsList writes groups as a table.
func formatGroupsList(out io.Writer, groups []model.ParliamentaryGroup) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCHAMBER\tPERIOD\tACTIVE\tPARTY")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t------\t------\t-----")

	for _, g := range groups {
		id := "-"
		if g.ID != 0 {
			id = fmt.Sprintf("%d", g.ID)
		}
		chamber := g.Chamber
		if chamber == "" {
			chamber = "-"
		}
		party := "-"
		if g.PoliticalPartyID != nil {
			party = fmt.Sprintf("%d", *g.PoliticalPartyID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			id,
			g.Name,
			chamber,
			formatPeriod(g.StartDate, g.EndDate),
			g.IsActive,
			party,
		)
	}
	_ = w.Flush()
}

func formatPeriod(start, end *time.Time) string {
	if start == nil && end == nil {
		return "-"
	}
	var b strings.Builder
	if start != nil {
		b.WriteString(start.Format(model.DateLayout))
	}
	b.WriteString("..")
	if end != nil {
		b.WriteString(end.Format(model.DateLayout))
	}
	return b.String()
}
