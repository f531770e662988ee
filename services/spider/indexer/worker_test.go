// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/spider/services/spider/ast"
)

func TestWorker_AnalyzeFile(t *testing.T) {
	h := newHarness(t, threeFiles())
	w := NewWorker(h.indexer)
	defer w.Stop()

	path := ast.NormalizePath(filepath.Join(h.dir, "a.ts"))
	deps, hash, err := w.AnalyzeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("deps = %v, want none for the canned analyzer", deps)
	}
	if hash.Size == 0 || hash.MTimeMilli == 0 {
		t.Errorf("hash = %+v, want populated mtime and size", hash)
	}
}

func TestWorker_FullIndexMatchesInline(t *testing.T) {
	// Two identical workspaces, one indexed inline and one through the
	// worker, must end in the same state.
	inline := newHarness(t, threeFiles())
	viaWorker := newHarness(t, threeFiles())
	ctx := context.Background()

	inlineStatus, err := inline.indexer.BuildFullIndex(ctx, inline.dir)
	if err != nil {
		t.Fatalf("inline BuildFullIndex: %v", err)
	}

	w := NewWorker(viaWorker.indexer)
	defer w.Stop()
	workerStatus, err := w.BuildFullIndex(ctx, viaWorker.dir)
	if err != nil {
		t.Fatalf("worker BuildFullIndex: %v", err)
	}

	if inlineStatus.State != workerStatus.State {
		t.Errorf("state: inline %s, worker %s", inlineStatus.State, workerStatus.State)
	}
	if inlineStatus.Processed != workerStatus.Processed {
		t.Errorf("processed: inline %d, worker %d", inlineStatus.Processed, workerStatus.Processed)
	}

	inlineFiles := relativeAll(t, inline.dir, inline.index.IndexedFiles())
	workerFiles := relativeAll(t, viaWorker.dir, viaWorker.index.IndexedFiles())
	if !reflect.DeepEqual(inlineFiles, workerFiles) {
		t.Errorf("indexed files: inline %v, worker %v", inlineFiles, workerFiles)
	}
}

func relativeAll(t *testing.T, base string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(p))
		if err != nil {
			t.Fatalf("rel %s: %v", p, err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestWorker_StopRejectsNewRequests(t *testing.T) {
	h := newHarness(t, threeFiles())
	w := NewWorker(h.indexer)

	// Exercise once so the goroutine is running, then stop.
	path := filepath.Join(h.dir, "a.ts")
	if _, _, err := w.AnalyzeFile(context.Background(), path); err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	w.Stop()

	_, _, err := w.AnalyzeFile(context.Background(), path)
	if !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("err after Stop = %v, want ErrWorkerStopped", err)
	}
}

func TestWorker_StopWithoutStart(t *testing.T) {
	w := NewWorker(newHarness(t, threeFiles()).indexer)
	w.Stop()
	w.Stop()

	if _, _, err := w.AnalyzeFile(context.Background(), "/src/a.ts"); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("err = %v, want ErrWorkerStopped", err)
	}
}

// stallContext parks the worker loop inside its cancellation check
// until released, then reports itself cancelled. entered closes once
// the loop is parked.
type stallContext struct {
	context.Context
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallContext() *stallContext {
	return &stallContext{
		Context: context.Background(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *stallContext) Err() error {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	return context.Canceled
}

func TestWorker_StopWhileSendersBlocked(t *testing.T) {
	h := newHarness(t, threeFiles())
	w := NewWorker(h.indexer)

	stall := newStallContext()
	path := filepath.Join(h.dir, "a.ts")

	// Enough callers to fill the request buffer and leave several
	// blocked mid-send when Stop fires.
	const callers = 22
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, _, err := w.AnalyzeFile(stall, path)
			errs <- err
		}()
	}

	<-stall.entered
	time.Sleep(20 * time.Millisecond)

	stopDone := make(chan struct{})
	go func() {
		w.Stop()
		close(stopDone)
	}()
	<-w.stopping
	close(stall.release)
	<-stopDone
	wg.Wait()
	close(errs)

	var stopped, cancelled int
	for err := range errs {
		switch {
		case errors.Is(err, ErrWorkerStopped):
			stopped++
		case errors.Is(err, context.Canceled):
			cancelled++
		default:
			t.Errorf("caller returned %v, want ErrWorkerStopped", err)
		}
	}
	if stopped != callers-1 {
		t.Errorf("rejected callers = %d, want %d", stopped, callers-1)
	}
	if cancelled != 1 {
		t.Errorf("cancelled callers = %d, only the in-flight request sees its context error", cancelled)
	}

	if _, _, err := w.AnalyzeFile(context.Background(), path); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("err after Stop = %v, want ErrWorkerStopped", err)
	}
}

func TestWorker_RequestIDsIncrement(t *testing.T) {
	h := newHarness(t, threeFiles())
	w := NewWorker(h.indexer)
	defer w.Stop()

	path := filepath.Join(h.dir, "a.ts")
	for i := 0; i < 3; i++ {
		if _, _, err := w.AnalyzeFile(context.Background(), path); err != nil {
			t.Fatalf("AnalyzeFile %d: %v", i, err)
		}
	}
	if got := w.nextID.Load(); got != 3 {
		t.Errorf("next id = %d, want 3", got)
	}
}
