// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the batchblast CLI. It submits FASTA
// queries to NCBI BLAST, waits for results, and writes per-query datasets
// and anomaly reports into one work directory per job.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/batchblast/internal/config"
	"github.com/pdiddy/batchblast/internal/jobs"
	"github.com/pdiddy/batchblast/internal/secrets"
	"github.com/pdiddy/batchblast/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// identity holds NCBI caller identification loaded from .secrets/.
var identity secrets.Identity

var rootCmd = &cobra.Command{
	Use:   "batchblast",
	Short: "Batch BLAST submission with anomaly reports",
	Long: `batchblast submits nucleotide queries to the NCBI BLAST URL API, polls
until the results are ready, and turns the zipped JSON results into one
CSV dataset per query. Hits whose subject title matches none of the
configured non-anomaly keywords are grouped by species and reported.

Every job gets its own work directory under jobs.root_dir holding the
query, the datasets, job.yaml, and the Markdown reports.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("secrets-dir")
		id, err := secrets.LoadIdentity(dir)
		if err != nil {
			return err
		}
		identity = id
		if id.Email != "" || id.Tool != "" {
			fmt.Fprintf(os.Stderr, "Loaded NCBI identity from %s\n", dir)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./batchblast.yaml or ~/.config/batchblast/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", secrets.DefaultDir, "directory holding ncbi-email and ncbi-tool")
	rootCmd.PersistentFlags().String("root", "", "work root holding one directory per job (default blast_res)")
	viper.BindPFlag("jobs.root_dir", rootCmd.PersistentFlags().Lookup("root"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("batchblast")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "batchblast"))
		}
	}

	viper.SetEnvPrefix("BATCHBLAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLoader reads the configuration in effect for this invocation.
func newLoader() (*config.Loader, error) {
	loader, err := config.NewLoader(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, nil
}

// snapshotOf returns the loader's current snapshot with the NCBI identity
// applied.
func snapshotOf(loader *config.Loader) config.Snapshot {
	snap := loader.Current()
	snap.Config = config.ApplyIdentity(snap.Config, identity)
	return snap
}

func loadSnapshot() (config.Snapshot, error) {
	loader, err := newLoader()
	if err != nil {
		return config.Snapshot{}, err
	}
	return snapshotOf(loader), nil
}

// openStore loads the configuration and opens the job index.
func openStore() (types.Config, *jobs.Store, error) {
	snap, err := loadSnapshot()
	if err != nil {
		return types.Config{}, nil, err
	}
	store, err := jobs.OpenStore(snap.Config.Jobs.RootDir)
	if err != nil {
		return types.Config{}, nil, err
	}
	return snap.Config, store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
