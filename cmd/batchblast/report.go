// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/batchblast/internal/classify"
	"github.com/pdiddy/batchblast/internal/normalize"
	"github.com/pdiddy/batchblast/internal/report"
	"github.com/pdiddy/batchblast/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report ID",
	Short: "Regenerate the reports of a finished job",
	Long: `Report reloads a job's CSV datasets, classifies them with the current
configuration, and rewrites anomaly_report.md and full_report.md. Use it
after changing classify.non_anomaly_keywords or report.label.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	job, err := store.Find(ctx, args[0])
	if err != nil {
		return err
	}
	if job.State != types.StateCompleted {
		return fmt.Errorf("job %s is %s; only completed jobs have datasets", job.ID, job.State)
	}

	datasets, err := normalize.ReadDatasets(job.WorkDir)
	if err != nil {
		return err
	}
	classified := classify.New(cfg.Classify).ClassifyAll(datasets)
	if err := report.New(cfg).Report(ctx, job, datasets, classified); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Wrote %s\n", filepath.Join(job.WorkDir, report.AnomalyReportFile))
	fmt.Fprintf(os.Stdout, "Wrote %s\n", filepath.Join(job.WorkDir, report.FullReportFile))
	return nil
}
