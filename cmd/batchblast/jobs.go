// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/batchblast/internal/fasta"
	"github.com/pdiddy/batchblast/internal/jobs"
	"github.com/pdiddy/batchblast/internal/normalize"
	"github.com/pdiddy/batchblast/pkg/types"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List and inspect recorded jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded jobs, newest first",
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one job and the files in its work directory",
	Long: `Show prints a job's record and the files in its work directory. Jobs
missing from the index are read from job.yaml under jobs.root_dir/ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

func init() {
	jobsListCmd.Flags().Bool("json", false, "output jobs as JSON")
	jobsListCmd.Flags().String("state", "", "only list jobs in this state")

	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	all, err := store.List(context.Background())
	if err != nil {
		return err
	}
	state, _ := cmd.Flags().GetString("state")
	var list []types.Job
	for _, j := range all {
		if state == "" || string(j.State) == state {
			list = append(list, j)
		}
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-12s  %-11s  %-20s  %s\n", "ID", "Request ID", "State", "Created", "Error")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, j := range list {
		fmt.Fprintf(os.Stdout, "%-36s  %-12s  %-11s  %-20s  %s\n",
			j.ID, j.RequestID, j.State, j.CreatedAt.Local().Format("2006-01-02 15:04:05"), j.Error)
	}
	fmt.Fprintf(os.Stdout, "\n%d job(s)\n", len(list))
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.Find(context.Background(), args[0])
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(job)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	if !job.State.IsTerminal() {
		fmt.Fprintln(os.Stderr, "note: job has not finished; its files may still change")
	}

	if raw, err := jobs.ReadInput(job.WorkDir); err == nil {
		fmt.Fprintf(os.Stdout, "queries: %d\n", len(fasta.Headers(raw)))
	}

	entries, err := os.ReadDir(job.WorkDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: work directory unavailable: %v\n", err)
		return nil
	}
	fmt.Fprintln(os.Stdout, "files:")
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		note := ""
		if strings.HasSuffix(e.Name(), normalize.DatasetExt) {
			if ds, err := normalize.ReadDataset(filepath.Join(job.WorkDir, e.Name())); err == nil {
				note = fmt.Sprintf(" (%d hits)", len(ds.Records))
			}
		}
		fmt.Fprintf(os.Stdout, "  - %s%s\n", e.Name(), note)
	}
	return nil
}
