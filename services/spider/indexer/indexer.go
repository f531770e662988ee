// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package indexer drives full-workspace and incremental indexing with
// progress reporting and cooperative cancellation.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/spider/services/spider/ast"
	"github.com/AleutianAI/spider/services/spider/revindex"
)

// State is one phase of an indexing run.
type State string

const (
	StateIdle      State = "idle"
	StateCounting  State = "counting"
	StateIndexing  State = "indexing"
	StateComplete  State = "complete"
	StateError     State = "error"
	StateCancelled State = "cancelled"
)

// Status is a point-in-time view of an indexing run, delivered to
// subscribers on every transition and periodically during the
// indexing phase.
type Status struct {
	State       State     `json:"state"`
	RunID       string    `json:"run_id"`
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
	CurrentFile string    `json:"current_file,omitempty"`
	StartTime   time.Time `json:"start_time"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	Skipped     int       `json:"skipped"`
	Error       string    `json:"error,omitempty"`
}

// ProgressFunc observes status updates. Implementations must be fast;
// they run on the indexing goroutine.
type ProgressFunc func(Status)

// ImportFunc applies one file's analysis result to the caches and the
// reverse index. The indexer itself never touches them directly, so
// the inline and worker execution paths produce an identical end
// state through the same import hook.
type ImportFunc func(source string, deps []ast.Dependency, hash revindex.FileHash)

// InvalidateFunc clears a file's cache and reverse-index entries
// before re-analysis.
type InvalidateFunc func(path string)

// AnalyzeFunc analyzes one file's imports.
type AnalyzeFunc func(ctx context.Context, path string) ([]ast.Dependency, error)

// yieldEvery is the file interval between explicit scheduler yields
// during a full index, keeping the host process responsive.
const yieldEvery = 25

// DefaultReindexConcurrency bounds parallel stale-file re-analysis.
const DefaultReindexConcurrency = 4

// Option configures an Indexer.
type Option func(*Indexer)

// WithReindexConcurrency sets the stale-file re-analysis parallelism.
func WithReindexConcurrency(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.reindexConcurrency = n
		}
	}
}

// Indexer runs full and incremental indexing passes.
//
// Thread Safety:
//
//	Safe for concurrent use, but runs are serialized by an internal
//	mutex: at most one indexing run is in flight at a time.
type Indexer struct {
	scanner    *revindex.Scanner
	reader     ast.FileReader
	analyze    AnalyzeFunc
	importFn   ImportFunc
	invalidate InvalidateFunc

	reindexConcurrency int

	runMu sync.Mutex

	mu          sync.Mutex
	status      Status
	subscribers map[int]ProgressFunc
	nextSubID   int
}

// New creates an Indexer. importFn receives each successfully analyzed
// file; invalidate clears a file's derived state before re-analysis.
func New(scanner *revindex.Scanner, reader ast.FileReader, analyze AnalyzeFunc, importFn ImportFunc, invalidate InvalidateFunc, opts ...Option) *Indexer {
	if reader == nil {
		reader = ast.OSFileReader{}
	}
	ix := &Indexer{
		scanner:            scanner,
		reader:             reader,
		analyze:            analyze,
		importFn:           importFn,
		invalidate:         invalidate,
		reindexConcurrency: DefaultReindexConcurrency,
		status:             Status{State: StateIdle},
		subscribers:        make(map[int]ProgressFunc),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Subscribe registers fn for status updates. The returned func
// unsubscribes.
func (ix *Indexer) Subscribe(fn ProgressFunc) func() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id := ix.nextSubID
	ix.nextSubID++
	ix.subscribers[id] = fn
	return func() {
		ix.mu.Lock()
		defer ix.mu.Unlock()
		delete(ix.subscribers, id)
	}
}

// Status returns the most recent status.
func (ix *Indexer) Status() Status {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.status
}

// publish stores status and fans it out to subscribers.
func (ix *Indexer) publish(status Status) {
	ix.mu.Lock()
	ix.status = status
	fns := make([]ProgressFunc, 0, len(ix.subscribers))
	for _, fn := range ix.subscribers {
		fns = append(fns, fn)
	}
	ix.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}

// BuildFullIndex enumerates every source file under rootDir and
// analyzes each one.
//
// Description:
//
//	Drives idle -> counting -> indexing -> complete|error|cancelled.
//	Per-file failures are logged and skipped; a single unreadable or
//	unparsable file never aborts the run. Cancellation is checked
//	before each file; a cancelled run returns the partial processed
//	count and elapsed time. The loop yields to the scheduler at a
//	fixed interval.
func (ix *Indexer) BuildFullIndex(ctx context.Context, rootDir string) (Status, error) {
	ix.runMu.Lock()
	defer ix.runMu.Unlock()

	status := Status{
		State:     StateCounting,
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	ix.publish(status)

	files, err := ix.scanner.CollectSourceFiles(ctx, rootDir)
	if err != nil {
		if ctx.Err() != nil {
			status.State = StateCancelled
			status.ElapsedMs = time.Since(status.StartTime).Milliseconds()
			ix.publish(status)
			return status, nil
		}
		status.State = StateError
		status.Error = err.Error()
		status.ElapsedMs = time.Since(status.StartTime).Milliseconds()
		ix.publish(status)
		return status, fmt.Errorf("enumerating source files: %w", err)
	}

	status.State = StateIndexing
	status.Total = len(files)
	ix.publish(status)

	for i, file := range files {
		if ctx.Err() != nil {
			status.State = StateCancelled
			status.CurrentFile = ""
			status.ElapsedMs = time.Since(status.StartTime).Milliseconds()
			ix.publish(status)
			slog.Info("full index cancelled",
				slog.String("run_id", status.RunID),
				slog.Int("processed", status.Processed),
				slog.Int("total", status.Total))
			return status, nil
		}

		status.CurrentFile = file
		ix.publish(status)

		if err := ix.indexOne(ctx, file); err != nil {
			slog.Warn("skipping file during full index",
				slog.String("file", file), slog.Any("error", err))
			status.Skipped++
		}
		status.Processed++

		if (i+1)%yieldEvery == 0 {
			runtime.Gosched()
		}
	}

	status.State = StateComplete
	status.CurrentFile = ""
	status.ElapsedMs = time.Since(status.StartTime).Milliseconds()
	ix.publish(status)

	slog.Info("full index complete",
		slog.String("run_id", status.RunID),
		slog.Int("processed", status.Processed),
		slog.Int("skipped", status.Skipped),
		slog.Int64("elapsed_ms", status.ElapsedMs))
	return status, nil
}

// indexOne analyzes file and imports the result.
func (ix *Indexer) indexOne(ctx context.Context, file string) error {
	deps, err := ix.analyze(ctx, file)
	if err != nil {
		return err
	}
	hash, err := revindex.HashFile(ix.reader, file)
	if err != nil {
		return err
	}
	ix.importFn(file, deps, hash)
	return nil
}

// ReindexStaleFiles re-analyzes paths under a concurrency limit.
//
// Description:
//
//	Each file's cache and reverse-index entries are cleared before
//	re-analysis, so a failed re-analysis leaves no stale phantom
//	entry. Per-file failures are logged and skipped.
func (ix *Indexer) ReindexStaleFiles(ctx context.Context, paths []string, onProgress ProgressFunc) (Status, error) {
	ix.runMu.Lock()
	defer ix.runMu.Unlock()

	status := Status{
		State:     StateIndexing,
		RunID:     uuid.NewString(),
		Total:     len(paths),
		StartTime: time.Now(),
	}

	sem := semaphore.NewWeighted(int64(ix.reindexConcurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer sem.Release(1)

			norm := ast.NormalizePath(p)
			ix.invalidate(norm)
			if err := ix.indexOne(ctx, norm); err != nil {
				slog.Warn("skipping file during reindex",
					slog.String("file", norm), slog.Any("error", err))
				mu.Lock()
				status.Skipped++
				mu.Unlock()
			}

			mu.Lock()
			status.Processed++
			snapshot := status
			mu.Unlock()
			if onProgress != nil {
				onProgress(snapshot)
			}
		}(path)
	}
	wg.Wait()

	if ctx.Err() != nil {
		status.State = StateCancelled
	} else {
		status.State = StateComplete
	}
	status.ElapsedMs = time.Since(status.StartTime).Milliseconds()
	if onProgress != nil {
		onProgress(status)
	}
	return status, nil
}
