package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/monitoring"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the extraction log",
	Long:  "Commands for listing, viewing, summarizing and importing extraction log entries.",
}

// -- logs list --

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extraction logs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := logFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		page, err := st.SearchExtractionLogs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "logs list")
		}

		if len(page.Logs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No extraction logs found.")
			return nil
		}

		formatLogsList(cmd.OutOrStdout(), page)
		return nil
	},
}

// -- logs show --

var logsShowCmd = &cobra.Command{
	Use:   "show <log-id>",
	Short: "Show one extraction log with its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return eris.Errorf("invalid log id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		l, err := st.GetExtractionLog(ctx, id)
		if err != nil {
			return eris.Wrap(err, "logs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	},
}

// -- logs stats --

var logsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate extraction statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := logFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 && filter.DateFrom == nil {
			from := time.Now().UTC().Add(-since)
			filter.DateFrom = &from
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.ExtractionStatistics(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "logs stats")
		}

		formatLogStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

// -- logs import --

var logsImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Bulk-load extraction logs produced elsewhere",
	Long:  "Reads newline-delimited JSON extraction logs (or a single JSON array) and appends them to the log. Entities are not touched.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		logs, err := parseLogFile(data)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No extraction logs in file.")
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportExtractionLogs(ctx, logs)
		if err != nil {
			return eris.Wrap(err, "logs import")
		}

		zap.L().Info("import complete",
			zap.Int64("logs", n),
			zap.String("file", args[0]),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d extraction logs.\n", n)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{logsListCmd, logsStatsCmd} {
		c.Flags().String("entity-type", "", "filter by entity type (statement, politician, speaker, conference_member, parliamentary_group_member)")
		c.Flags().String("pipeline-version", "", "filter by pipeline version")
		c.Flags().String("from", "", "only logs created on or after this date (YYYY-MM-DD)")
		c.Flags().String("to", "", "only logs created on or before this date (YYYY-MM-DD)")
	}
	logsListCmd.Flags().Int64("entity-id", 0, "filter by entity id")
	logsListCmd.Flags().Float64("min-confidence", 0, "minimum confidence score")
	logsListCmd.Flags().Int("limit", 50, "max number of logs to display")
	logsListCmd.Flags().Int("offset", 0, "number of logs to skip")

	logsStatsCmd.Flags().Duration("since", 0, "time window for stats (e.g. 24h, 168h); ignored when --from is set")
	logsCheckCmd.Flags().Int("lookback-hours", 0, "lookback window (default from config)")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsShowCmd)
	logsCmd.AddCommand(logsStatsCmd)
	logsCmd.AddCommand(logsImportCmd)
	logsCmd.AddCommand(logsCheckCmd)
	rootCmd.AddCommand(logsCmd)
}

// logFilterFromFlags builds a filter from whichever filter flags cmd defines.
func logFilterFromFlags(cmd *cobra.Command) (model.ExtractionLogFilter, error) {
	var f model.ExtractionLogFilter
	flags := cmd.Flags()

	if v, _ := flags.GetString("entity-type"); v != "" {
		t, err := model.ParseEntityType(v)
		if err != nil {
			return f, err
		}
		f.EntityType = t
	}
	f.PipelineVersion, _ = flags.GetString("pipeline-version")

	if v, _ := flags.GetString("from"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.DateFrom = &d
	}
	if v, _ := flags.GetString("to"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			return f, err
		}
		end := d.AddDate(0, 0, 1).Add(-time.Millisecond)
		f.DateTo = &end
	}

	if flags.Lookup("entity-id") != nil {
		f.EntityID, _ = flags.GetInt64("entity-id")
	}
	if flags.Changed("min-confidence") {
		c, _ := flags.GetFloat64("min-confidence")
		if c < 0 || c > 1 {
			return f, eris.Errorf("min-confidence %v out of range [0,1]", c)
		}
		f.MinConfidence = &c
	}
	if flags.Lookup("limit") != nil {
		f.Limit, _ = flags.GetInt("limit")
		f.Offset, _ = flags.GetInt("offset")
	}
	return f, nil
}

// parseLogFile accepts either a JSON array or JSON lines.
func parseLogFile(data []byte) ([]model.ExtractionLog, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var logs []model.ExtractionLog
		if err := json.Unmarshal(trimmed, &logs); err != nil {
			return nil, eris.Wrap(err, "parse extraction logs")
		}
		return logs, nil
	}

	var logs []model.ExtractionLog
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var l model.ExtractionLog
		if err := json.Unmarshal(b, &l); err != nil {
			return nil, eris.Wrapf(err, "parse extraction log on line %d", line)
		}
		logs = append(logs, l)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "scan extraction logs")
	}
	return logs, nil
}

// formatLogsList writes a tabular page of logs to w.
func formatLogsList(out io.Writer, page *model.ExtractionLogPage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tENTITY\tPIPELINE\tCONFIDENCE\tMODEL\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t----------\t-----\t-------")

	for _, l := range page.Logs {
		conf := "-"
		if l.ConfidenceScore != nil {
			conf = fmt.Sprintf("%.2f", *l.ConfidenceScore)
		}
		modelName := "-"
		if l.ModelName != nil {
			modelName = *l.ModelName
		}
		_, _ = fmt.Fprintf(w, "%d\t%s/%d\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.EntityType,
			l.EntityID,
			l.PipelineVersion,
			conf,
			modelName,
			l.CreatedAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()

	if page.TotalCount > len(page.Logs) {
		_, _ = fmt.Fprintf(out, "\nShowing %d-%d of %d.\n", page.Offset+1, page.Offset+len(page.Logs), page.TotalCount)
	}
}

// formatLogStats writes aggregate statistics to w.
func formatLogStats(out io.Writer, s *model.ExtractionStatistics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total logs:\t%d\n", s.TotalCount)
	if s.AverageConfidence != nil {
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.3f\n", *s.AverageConfidence)
	}

	if len(s.ByEntityType) > 0 {
		_, _ = fmt.Fprintln(w, "By entity type:")
		for _, k := range sortedKeys(s.ByEntityType) {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, s.ByEntityType[k])
		}
	}

	if len(s.ByPipelineVersion) > 0 {
		_, _ = fmt.Fprintln(w, "By pipeline version:")
		for _, k := range sortedKeys(s.ByPipelineVersion) {
			line := fmt.Sprintf("  %s:\t%d", k, s.ByPipelineVersion[k])
			if c, ok := s.ConfidenceByPipeline[k]; ok {
				line += fmt.Sprintf("\t(avg confidence %.3f)", c)
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}

	if len(s.DailyCounts) > 0 {
		_, _ = fmt.Fprintln(w, "Daily:")
		for _, d := range s.DailyCounts {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", d.Date.Format(model.DateLayout), d.Count)
		}
	}
	_ = w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -- logs check --

var logsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate extraction quality thresholds once",
	Long:  "Collects extraction statistics over the monitoring lookback window, evaluates the alert thresholds and posts any alerts to the configured webhook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		mcfg := cfg.Monitoring
		if mcfg.LookbackWindowHours <= 0 {
			mcfg.LookbackWindowHours = 24
		}
		lookback, _ := cmd.Flags().GetInt("lookback-hours")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := monitoring.NewChecker(st, mcfg).Check(ctx, lookback)
		if err != nil {
			return err
		}
		snap := rep.Snapshot

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "%d logs in last %dh", snap.LogsTotal, snap.LookbackHours)
		if snap.AvgConfidence != nil {
			_, _ = fmt.Fprintf(out, ", avg confidence %.3f", *snap.AvgConfidence)
		}
		_, _ = fmt.Fprintln(out)

		if len(rep.Firing) == 0 {
			_, _ = fmt.Fprintln(out, "No alerts.")
			return nil
		}
		for _, a := range rep.Firing {
			_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", a.Severity, a.Type, a.Message)
		}
		if rep.Sent > 0 {
			_, _ = fmt.Fprintf(out, "%d alert(s) posted to webhook.\n", rep.Sent)
		}
		return nil
	},
}
