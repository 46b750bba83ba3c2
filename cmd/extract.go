package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/extraction"
	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/resilience"
)

var extractCmd = &cobra.Command{
	Use:   "extract <entity-type> <file.json>",
	Short: "Apply a file of extraction results",
	Long: `Reads a JSON array of {"entity_id": N, "result": {...}} objects and runs
each result through the update use case. Every result is logged; results for
manually verified entities are not applied. Failures are reported per item.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		entityType, err := model.ParseEntityType(args[0])
		if err != nil {
			return err
		}

		pipelineVersion, _ := cmd.Flags().GetString("pipeline-version")
		if pipelineVersion == "" {
			pipelineVersion = cfg.Extraction.DefaultPipelineVersion
		}
		if pipelineVersion == "" {
			return eris.New("--pipeline-version is required (or set extraction.default_pipeline_version)")
		}
		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Batch.MaxConcurrency = c
		}
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		data, err := os.ReadFile(args[1])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[1])
		}
		items, err := extraction.DecodeItems(entityType, data)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No extraction results in file.")
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := extraction.NewService(st, st)
		batch := extraction.NewBatch(svc.Apply, extraction.BatchOptions{
			MaxConcurrency: cfg.Batch.MaxConcurrency,
			RatePerSec:     cfg.Batch.RatePerSec,
			Retry: resilience.FromRetryConfig(
				cfg.Batch.MaxAttempts,
				cfg.Batch.InitialBackoffMs,
				cfg.Batch.MaxBackoffMs,
			),
		})

		details := extraction.LogDetails{Metadata: map[string]any{"source_file": args[1]}}
		if modelName, _ := cmd.Flags().GetString("model"); modelName != "" {
			details.ModelName = &modelName
		}
		ctx = extraction.WithLogDetails(ctx, details)

		report, err := batch.Run(ctx, items, pipelineVersion)
		if err != nil {
			return err
		}

		zap.L().Info("extract complete",
			zap.String("run_id", report.RunID),
			zap.String("entity_type", string(entityType)),
			zap.Int("applied", report.Applied),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			formatBatchReport(cmd.OutOrStdout(), report)
		}

		if report.Failed > 0 {
			return eris.Errorf("%d of %d results failed", report.Failed, len(items))
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().String("pipeline-version", "", "pipeline version recorded with each log (default from config)")
	extractCmd.Flags().Int("concurrency", 0, "max results applied in parallel (default from config)")
	extractCmd.Flags().String("model", "", "model name recorded with each log")
	extractCmd.Flags().Bool("json", false, "output the full report as JSON")
	rootCmd.AddCommand(extractCmd)
}

// formatBatchReport prints the run summary followed by any failed or skipped items.
func formatBatchReport(out io.Writer, r *extraction.BatchReport) {
	_, _ = fmt.Fprintf(out, "Run %s: %d applied, %d skipped, %d failed\n", r.RunID, r.Applied, r.Skipped, r.Failed)

	var notable []extraction.Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil || o.Error != "" || (o.Result != nil && !o.Result.Applied) {
			notable = append(notable, o)
		}
	}
	if len(notable) == 0 {
		return
	}

	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tSTATUS\tLOG\tDETAIL")
	_, _ = fmt.Fprintln(w, "------\t------\t---\t------")
	for _, o := range notable {
		if o.Result != nil {
			_, _ = fmt.Fprintf(w, "%d\tskipped\t%d\t%s\n", o.EntityID, o.Result.LogID, o.Result.Reason)
			continue
		}
		msg := o.Error
		if msg == "" && o.Err != nil {
			msg = o.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%d\tfailed\t-\t%s\n", o.EntityID, msg)
	}
	_ = w.Flush()
}
