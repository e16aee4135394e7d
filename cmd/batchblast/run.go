// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/batchblast/internal/config"
	"github.com/pdiddy/batchblast/internal/fasta"
	"github.com/pdiddy/batchblast/internal/jobs"
	"github.com/pdiddy/batchblast/internal/progress"
	"github.com/pdiddy/batchblast/internal/report"
	"github.com/pdiddy/batchblast/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run FILE...",
	Short: "Submit FASTA files to BLAST and report anomalies",
	Long: `Run submits each input file as one BLAST job. Jobs run concurrently, up to
jobs.max_concurrent at a time, and print their progress as they advance.
Use "-" to read a query from stdin; .gz files are decompressed. Input is
sent as-is, so bare sequences and accession numbers work too.

On a terminal progress is styled; otherwise each line is prefixed with
the input's name. Interrupting cancels the running jobs and lists them.
SIGHUP re-reads the config file; jobs that have not started yet use the
new settings (jobs.* settings stay fixed for the invocation).

With --redis, progress events are also published as JSON to the channel
batchblast:job:<id> so other processes can follow a job.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("redis", "", "Redis address (host:port) to publish progress events to")
	runCmd.Flags().Bool("no-queue", false, "fail instead of waiting when jobs.max_concurrent jobs are already running")
	runCmd.Flags().Bool("no-color", false, "render progress without colors")
	rootCmd.AddCommand(runCmd)
}

type pendingJob struct {
	label string
	id    string
}

// snapshotRunner runs each job with the configuration current when the
// job starts, so a reload affects only jobs started after it.
type snapshotRunner struct {
	loader *config.Loader
	jobs   types.JobsConfig
	store  *jobs.Store
}

func (r snapshotRunner) Run(ctx context.Context, jobID, rawInput string, sink jobs.Sink) (*types.Job, error) {
	cfg := snapshotOf(r.loader).Config
	cfg.Jobs = r.jobs
	return jobs.NewRunner(cfg, r.store, report.New(cfg)).Run(ctx, jobID, rawInput, sink)
}

// queryInput is one command-line input ready for submission.
type queryInput struct {
	path  string
	label string
	raw   string
}

// readInputs loads every input. Only empty or whitespace-only input is
// rejected; anything else is sent to the service as-is.
func readInputs(paths []string) ([]queryInput, error) {
	inputs := make([]queryInput, len(paths))
	for i, path := range paths {
		raw, err := fasta.ReadInput(path)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("%s: empty input", path)
		}
		inputs[i] = queryInput{path: path, label: filepath.Base(path), raw: raw}
	}
	return inputs, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	inputs, err := readInputs(args)
	if err != nil {
		return err
	}

	loader, err := newLoader()
	if err != nil {
		return err
	}
	cfg := snapshotOf(loader).Config
	store, err := jobs.OpenStore(cfg.Jobs.RootDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	hupDone := make(chan struct{})
	defer close(hupDone)
	go reloadOnHangup(os.Stderr, loader, hup, hupDone)

	registry := jobs.NewRegistry(snapshotRunner{loader: loader, jobs: cfg.Jobs, store: store}, cfg.Jobs.MaxConcurrent)

	noColor, _ := cmd.Flags().GetBool("no-color")
	b := &batch{
		registry: registry,
		newSink:  progressSinks(os.Stdout, noColor),
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
	if noQueue, _ := cmd.Flags().GetBool("no-queue"); noQueue {
		b.start = registry.TryStart
	}

	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		client := progress.NewRedisClient(addr)
		defer client.Close()
		queue := progress.NewChannelSink(64)
		stopPump := queue.Pump(progress.BestEffort{
			Emitter: progress.NewRedisSink(context.Background(), client, ""),
			Warn:    os.Stderr,
		})
		defer stopPump()
		b.fanout = queue
	}

	return b.run(ctx, stop, inputs)
}

// batch starts one job per input and reports how each ended.
type batch struct {
	registry *jobs.Registry
	// start defaults to registry.Start.
	start   func(ctx context.Context, rawInput string, sink jobs.Sink) (string, error)
	newSink func(label string) jobs.Sink
	fanout  progress.Emitter
	out     io.Writer
	errOut  io.Writer
}

// run starts the jobs and waits for every job it started, also when
// starting stops early. When ctx ends the running jobs are cancelled and
// listed, and release is called so a second interrupt is not swallowed.
func (b *batch) run(ctx context.Context, release func(), inputs []queryInput) error {
	start := b.start
	if start == nil {
		start = b.registry.Start
	}

	var started []pendingJob
	labels := make(map[string]string)
	var startErr error
	for _, in := range inputs {
		sink := b.newSink(in.label)
		if b.fanout != nil {
			sink = progress.Multi{sink, b.fanout}
		}

		err := ctx.Err()
		var id string
		if err == nil {
			id, err = start(ctx, in.raw, sink)
		}
		if err != nil {
			startErr = fmt.Errorf("starting job for %s: %w", in.path, err)
			break
		}
		started = append(started, pendingJob{label: in.label, id: id})
		labels[id] = in.label
	}

	var failed int
	waitCtx := ctx
	for _, p := range started {
		job, err := b.registry.Wait(waitCtx, p.id)
		if err != nil && waitCtx.Err() != nil {
			release()
			cancelRunning(b.errOut, b.registry, labels)
			waitCtx = context.Background()
			job, err = b.registry.Wait(waitCtx, p.id)
		}
		if err != nil {
			failed++
			var f *jobs.Failure
			if errors.As(err, &f) {
				fmt.Fprintf(b.errOut, "%s: job %s failed (%s): %v\n", p.label, p.id, f.Kind, f.Err)
			} else {
				fmt.Fprintf(b.errOut, "%s: job %s failed: %v\n", p.label, p.id, err)
			}
			continue
		}
		fmt.Fprintf(b.out, "%s: reports in %s\n", p.label, job.WorkDir)
	}

	var failedErr error
	if failed > 0 {
		failedErr = fmt.Errorf("%d of %d job(s) failed", failed, len(started))
	}
	return errors.Join(startErr, failedErr)
}

// progressSinks returns a constructor for per-job sinks on w: styled
// output on a terminal, plain prefixed lines otherwise.
func progressSinks(w *os.File, noColor bool) func(label string) jobs.Sink {
	if !progress.IsTerminal(w) {
		plain := progress.NewWriterSink(w, "")
		return func(label string) jobs.Sink { return plain.Share("[" + label + "] ") }
	}
	theme := progress.DefaultTheme()
	if noColor || os.Getenv("NO_COLOR") != "" {
		theme = progress.MonoTheme()
	}
	terminal := progress.NewTerminalSink(w, theme, "", jobs.HeadlineComplete)
	return func(label string) jobs.Sink { return terminal.Share(label) }
}

// cancelRunning stops every job the registry still runs and names each
// one on w.
func cancelRunning(w io.Writer, registry *jobs.Registry, labels map[string]string) {
	ids := registry.Active()
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(w, "Interrupted: cancelling %d running job(s)\n", len(ids))
	for _, id := range ids {
		st, err := registry.Lookup(id)
		if err != nil || !st.Running {
			continue
		}
		fmt.Fprintf(w, "  %s (job %s)\n", labels[id], id)
		registry.Cancel(id)
	}
}

// reloadOnHangup publishes a new configuration snapshot on every signal
// from hup until done is closed.
func reloadOnHangup(w io.Writer, loader *config.Loader, hup <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-hup:
			snap, err := loader.Reload()
			if err != nil {
				fmt.Fprintf(w, "Config reload failed, keeping version %d: %v\n", snap.Version, err)
				continue
			}
			fmt.Fprintf(w, "Config reloaded (version %d)\n", snap.Version)
		case <-done:
			return
		}
	}
}
