// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command spider builds and queries a cross-language dependency and
// symbol graph for a source tree.
//
// Supported languages: TypeScript/JavaScript, Python, Rust.
//
// Usage:
//
//	spider --root /path/to/project index
//	spider --root /path/to/project analyze src/app.ts
//	spider --root /path/to/project refs src/utils/helpers.ts
//	spider --root /path/to/project crawl src/main.ts --depth 3
//	spider --root /path/to/project unused src/utils/helpers.ts
//	spider --root /path/to/project trace src/main.ts handleRequest --depth 5
//	spider --root /path/to/project validate
//	spider --root /path/to/project snapshot save --db /tmp/spider-db
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/spider/services/spider/config"
	"github.com/AleutianAI/spider/services/spider/graph"
	"github.com/AleutianAI/spider/services/spider/indexer"
	spiderpkg "github.com/AleutianAI/spider/services/spider/spider"
)

var (
	rootDir string
	dbDir   string
	verbose bool
	depth   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "spider",
		Short:         "Cross-language dependency and symbol graph engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVar(&dbDir, "db", "", "BadgerDB directory for snapshot persistence")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	crawlCmd := newFileCmd("crawl <file>", "Walk the dependency graph from a file", runCrawl)
	crawlCmd.Flags().IntVar(&depth, "depth", graph.DefaultMaxDepth, "maximum crawl depth")

	traceCmd := &cobra.Command{
		Use:   "trace <file> <symbol>",
		Short: "Follow call edges from a symbol",
		Args:  cobra.ExactArgs(2),
		RunE:  runTrace,
	}
	traceCmd.Flags().IntVar(&depth, "depth", 5, "maximum trace depth")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the reverse index against on-disk file state",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}
	validateCmd.Flags().Float64("threshold", 0, "stale fraction above which the index is invalid")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot <save|load>",
		Short: "Persist or restore the reverse index",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshot,
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "index",
			Short: "Index every source file under the workspace root",
			Args:  cobra.NoArgs,
			RunE:  runIndex,
		},
		newFileCmd("analyze <file>", "Extract a file's dependencies", runAnalyze),
		newFileCmd("symbols <file>", "Extract a file's symbol graph", runSymbols),
		newFileCmd("refs <file>", "List files referencing a file", runRefs),
		newFileCmd("unused <file>", "List exported symbols nothing references", runUnused),
		crawlCmd,
		traceCmd,
		validateCmd,
		snapshotCmd,
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache and index statistics",
			Args:  cobra.NoArgs,
			RunE:  runStats,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newFileCmd builds a one-file-argument subcommand.
func newFileCmd(use, short string, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
}

// setup creates the Spider and a signal-cancelled context. The caller
// must invoke the returned cleanup.
func setup() (*spiderpkg.Spider, context.Context, func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving root %q: %w", rootDir, err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []spiderpkg.Option{
		spiderpkg.WithConfig(cfg),
		spiderpkg.WithLogger(logger),
	}

	var db *badger.DB
	if dbDir != "" {
		badgerOpts := badger.DefaultOptions(dbDir).WithLogger(nil)
		db, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening badger at %s: %w", dbDir, err)
		}
		opts = append(opts, spiderpkg.WithSnapshotDB(db))
	}

	s, err := spiderpkg.New(absRoot, opts...)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cleanup := func() {
		stop()
		s.Stop()
		if db != nil {
			if err := db.Close(); err != nil {
				logger.Warn("closing badger", slog.Any("error", err))
			}
		}
	}
	return s, ctx, cleanup, nil
}

// resolveArg makes a file argument absolute relative to the cwd.
func resolveArg(arg string) (string, error) {
	return filepath.Abs(arg)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := s.BuildFullIndex(ctx, func(st indexer.Status) {
		if st.State == indexer.StateIndexing && st.CurrentFile != "" {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s", st.Processed, st.Total, st.CurrentFile)
		}
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	return printJSON(status)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := resolveArg(args[0])
	if err != nil {
		return err
	}
	deps, err := s.Analyze(ctx, file)
	if err != nil {
		return err
	}
	return printJSON(deps)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := resolveArg(args[0])
	if err != nil {
		return err
	}
	g, err := s.SymbolGraph(ctx, file)
	if err != nil {
		return err
	}
	return printJSON(g)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := resolveArg(args[0])
	if err != nil {
		return err
	}
	result, err := s.CrawlFrom(ctx, file, nil, depth, graph.CrawlFromOptions{})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runRefs(cmd *cobra.Command, args []string) error {
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := resolveArg(args[0])
	if err != nil {
		return err
	}
	refs, err := s.FindReferencingFiles(ctx, file)
	if err != nil {
		return err
	}
	return printJSON(refs)
}

func runUnused(cmd *cobra.Command, args []string) error {
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := resolveArg(args[0])
	if err != nil {
		return err
	}
	unused, err := s.FindUnusedSymbols(ctx, file)
	if err != nil {
		return err
	}
	return printJSON(unused)
}

func runTrace(cmd *cobra.Command, args []string) error {
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := resolveArg(args[0])
	if err != nil {
		return err
	}
	tree, err := s.TraceFunctionExecution(ctx, file, args[1], depth)
	if err != nil {
		return err
	}
	return printJSON(tree)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	s, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	threshold, _ := cmd.Flags().GetFloat64("threshold")
	return printJSON(s.ValidateReverseIndex(threshold))
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	if dbDir == "" {
		return fmt.Errorf("snapshot requires --db")
	}
	s, ctx, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	switch args[0] {
	case "save":
		if _, err := s.BuildFullIndex(ctx, nil); err != nil {
			return err
		}
		meta, err := s.SaveSnapshot(ctx)
		if err != nil {
			return err
		}
		return printJSON(meta)
	case "load":
		restored, err := s.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		if !restored {
			fmt.Println("no usable snapshot found, index is empty")
			return nil
		}
		return printJSON(s.CacheStats())
	default:
		return fmt.Errorf("unknown snapshot action %q, want save or load", args[0])
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	s, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	return printJSON(s.CacheStats())
}
