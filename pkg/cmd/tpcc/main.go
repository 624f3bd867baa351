// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// tpcc drives a TPC-C workload against PostgreSQL-compatible databases.
//
//	tpcc init  [flags] <url>...
//	tpcc load  [flags] <url>...
//	tpcc run   [flags] <url>...
//	tpcc check [flags] <url>...
//	tpcc histograms <file>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tpccbench/pkg/util/log"
	"github.com/cockroachdb/tpccbench/pkg/workload"
	"github.com/cockroachdb/tpccbench/pkg/workload/tpcc"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

const defaultURL = "postgresql://root@localhost:26257/tpcc?sslmode=disable"

var (
	cfg        = tpcc.DefaultConfig()
	logCfg     log.Config
	configFile string

	dropSchema      bool
	loadConcurrency int
)

var rootCmd = &cobra.Command{
	Use:           "tpcc",
	Short:         "TPC-C load generator",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCfg.Apply()
		if configFile != "" {
			if err := tpcc.ApplyConfigFile(&cfg, cmd.Flags(), configFile); err != nil {
				return err
			}
		}
		if len(args) > 0 {
			cfg.URLs = args
		}
		if len(cfg.URLs) == 0 {
			cfg.URLs = []string{defaultURL}
		}
		return cfg.Validate()
	},
}

var initCmd = &cobra.Command{
	Use:   "init [<url>...]",
	Short: "create the TPC-C tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pool, err := workload.NewRoundRobinPool(ctx, cfg.URLs[:1], 1)
		if err != nil {
			return err
		}
		defer pool.Close()
		if dropSchema {
			if err := tpcc.DropSchema(ctx, pool.Get()); err != nil {
				return err
			}
		}
		return tpcc.CreateSchema(ctx, pool.Get())
	},
}

var loadCmd = &cobra.Command{
	Use:   "load [<url>...]",
	Short: "populate the TPC-C tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pool, err := workload.NewRoundRobinPool(ctx, cfg.URLs, perPool(loadConcurrency, len(cfg.URLs)))
		if err != nil {
			return err
		}
		defer pool.Close()
		return tpcc.Load(ctx, &cfg, pool, loadConcurrency)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [<url>...]",
	Short: "run the TPC-C workload",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pool, err := workload.NewRoundRobinPool(ctx, cfg.URLs, perPool(cfg.Terminals, len(cfg.URLs)))
		if err != nil {
			return err
		}
		defer pool.Close()
		_, err = tpcc.Run(ctx, &cfg, pool, os.Stdout)
		return err
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [<url>...]",
	Short: "run the TPC-C consistency checks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := workload.NewRoundRobinDB("postgres", cfg.URLs)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return tpcc.RunChecks(cmd.Context(), tpcc.SQLQuerier(db), tpcc.AllChecks(), os.Stdout)
	},
}

var histogramsCmd = &cobra.Command{
	Use:   "histograms <file>",
	Short: "summarize a file written by run --histograms",
	Args:  cobra.ExactArgs(1),
	// No database and no workload settings are involved.
	PersistentPreRun: func(*cobra.Command, []string) {
		logCfg.Apply()
	},
	RunE: func(_ *cobra.Command, args []string) error {
		return tpcc.SummarizeHistograms(args[0], os.Stdout)
	},
}

// perPool spreads n connections evenly over pools.
func perPool(n, pools int) int {
	return (n + pools - 1) / pools
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.AddFlagSet(cfg.Flags())
	pf.StringVar(&configFile, "config", "",
		"YAML or TOML file with settings; flags given on the command line take precedence.")
	logCfg.AddFlags(pf)

	initCmd.Flags().BoolVar(&dropSchema, "drop", false, "Drop existing tables first.")
	loadCmd.Flags().IntVar(&loadConcurrency, "concurrency", 8,
		"Number of warehouses loaded at the same time.")

	rootCmd.AddCommand(initCmd, loadCmd, runCmd, checkCmd, histogramsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.SetExitFunc(true /* hideStack */, func(code int) {
		stop()
		os.Exit(code)
	})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, tpcc.ErrCheckFailed) {
			fmt.Fprintln(os.Stderr, "consistency checks failed")
		}
		log.Fatalf(ctx, "%v", err)
	}
}
