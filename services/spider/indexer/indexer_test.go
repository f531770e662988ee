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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/spider/services/spider/ast"
	"github.com/AleutianAI/spider/services/spider/revindex"
)

// testHarness wires an Indexer over a temp workspace with a canned
// analyzer.
type testHarness struct {
	dir     string
	index   *revindex.ReverseIndex
	indexer *Indexer

	mu          sync.Mutex
	analyzed    []string
	invalidated []string
	failFor     map[string]bool
}

func newHarness(t *testing.T, files map[string]string) *testHarness {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	h := &testHarness{
		dir:     dir,
		index:   revindex.New(),
		failFor: make(map[string]bool),
	}

	analyze := func(_ context.Context, path string) ([]ast.Dependency, error) {
		h.mu.Lock()
		h.analyzed = append(h.analyzed, path)
		fail := h.failFor[filepath.Base(path)]
		h.mu.Unlock()
		if fail {
			return nil, fmt.Errorf("parse failed for %s", path)
		}
		return nil, nil
	}
	importFn := func(source string, deps []ast.Dependency, hash revindex.FileHash) {
		h.index.AddDependencies(source, deps, &hash)
	}
	invalidate := func(path string) {
		h.mu.Lock()
		h.invalidated = append(h.invalidated, path)
		h.mu.Unlock()
		h.index.RemoveSource(path)
	}

	supports := func(path string) bool { return strings.HasSuffix(path, ".ts") }
	scanner := revindex.NewScanner(ast.OSFileReader{}, supports, analyze)
	h.indexer = New(scanner, ast.OSFileReader{}, analyze, importFn, invalidate)
	return h
}

func threeFiles() map[string]string {
	return map[string]string{
		"a.ts": "export const a = 1;\n",
		"b.ts": "export const b = 2;\n",
		"c.ts": "export const c = 3;\n",
	}
}

func TestBuildFullIndex_Complete(t *testing.T) {
	h := newHarness(t, threeFiles())

	var states []State
	unsubscribe := h.indexer.Subscribe(func(st Status) {
		if len(states) == 0 || states[len(states)-1] != st.State {
			states = append(states, st.State)
		}
	})
	defer unsubscribe()

	status, err := h.indexer.BuildFullIndex(context.Background(), h.dir)
	if err != nil {
		t.Fatalf("BuildFullIndex: %v", err)
	}

	if status.State != StateComplete {
		t.Errorf("state = %s, want complete", status.State)
	}
	if status.Processed != 3 || status.Total != 3 {
		t.Errorf("processed/total = %d/%d, want 3/3", status.Processed, status.Total)
	}
	if status.RunID == "" {
		t.Error("run id should be set")
	}
	if len(h.index.IndexedFiles()) != 3 {
		t.Errorf("indexed files = %d, want 3", len(h.index.IndexedFiles()))
	}

	want := []State{StateCounting, StateIndexing, StateComplete}
	if len(states) != len(want) {
		t.Fatalf("state transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestBuildFullIndex_SwallowsPerFileFailures(t *testing.T) {
	h := newHarness(t, threeFiles())
	h.failFor["b.ts"] = true

	status, err := h.indexer.BuildFullIndex(context.Background(), h.dir)
	if err != nil {
		t.Fatalf("BuildFullIndex: %v", err)
	}

	if status.State != StateComplete {
		t.Errorf("state = %s, want complete despite one bad file", status.State)
	}
	if status.Processed != 3 {
		t.Errorf("processed = %d, want 3", status.Processed)
	}
	if status.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", status.Skipped)
	}
	if len(h.index.IndexedFiles()) != 2 {
		t.Errorf("indexed files = %d, want 2", len(h.index.IndexedFiles()))
	}
}

func TestBuildFullIndex_Cancellation(t *testing.T) {
	h := newHarness(t, threeFiles())

	ctx, cancel := context.WithCancel(context.Background())
	unsubscribe := h.indexer.Subscribe(func(st Status) {
		if st.State == StateIndexing && st.Processed >= 1 {
			cancel()
		}
	})
	defer unsubscribe()
	defer cancel()

	status, err := h.indexer.BuildFullIndex(ctx, h.dir)
	if err != nil {
		t.Fatalf("BuildFullIndex: %v", err)
	}

	if status.State != StateCancelled {
		t.Errorf("state = %s, want cancelled", status.State)
	}
	if status.Processed == 0 || status.Processed >= status.Total {
		t.Errorf("processed = %d of %d, want a partial count", status.Processed, status.Total)
	}
	if status.ElapsedMs < 0 {
		t.Errorf("elapsed = %d, want non-negative", status.ElapsedMs)
	}
}

func TestReindexStaleFiles(t *testing.T) {
	h := newHarness(t, threeFiles())
	ctx := context.Background()

	if _, err := h.indexer.BuildFullIndex(ctx, h.dir); err != nil {
		t.Fatalf("BuildFullIndex: %v", err)
	}

	paths := []string{
		filepath.Join(h.dir, "a.ts"),
		filepath.Join(h.dir, "b.ts"),
	}
	status, err := h.indexer.ReindexStaleFiles(ctx, paths, nil)
	if err != nil {
		t.Fatalf("ReindexStaleFiles: %v", err)
	}

	if status.State != StateComplete {
		t.Errorf("state = %s, want complete", status.State)
	}
	if status.Processed != 2 {
		t.Errorf("processed = %d, want 2", status.Processed)
	}

	h.mu.Lock()
	invalidated := len(h.invalidated)
	h.mu.Unlock()
	if invalidated != 2 {
		t.Errorf("invalidated = %d, want each file cleared before re-analysis", invalidated)
	}
}

func TestReindexStaleFiles_FailureLeavesNoPhantom(t *testing.T) {
	h := newHarness(t, threeFiles())
	ctx := context.Background()

	if _, err := h.indexer.BuildFullIndex(ctx, h.dir); err != nil {
		t.Fatalf("BuildFullIndex: %v", err)
	}

	h.mu.Lock()
	h.failFor["a.ts"] = true
	h.mu.Unlock()

	aPath := ast.NormalizePath(filepath.Join(h.dir, "a.ts"))
	status, err := h.indexer.ReindexStaleFiles(ctx, []string{aPath}, nil)
	if err != nil {
		t.Fatalf("ReindexStaleFiles: %v", err)
	}
	if status.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", status.Skipped)
	}

	// The entry was cleared up front, so the failed re-analysis leaves
	// no stale edges sourced from a.
	for _, file := range h.index.IndexedFiles() {
		if file == aPath {
			t.Error("failed re-analysis must not leave a phantom entry")
		}
	}
}
