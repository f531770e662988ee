// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph traverses the dependency graph from a start file,
// producing a node/edge view either whole or in streamed batches.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/spider/services/spider/ast"
)

// ErrCrawlCancelled distinguishes a cooperative cancellation from a
// crawl failure. Partial results produced before the check fired are
// already delivered through OnBatch.
var ErrCrawlCancelled = errors.New("crawl cancelled")

// DefaultMaxDepth bounds a full crawl.
const DefaultMaxDepth = 10

// DefaultBatchSize is the accumulated node+edge count that triggers an
// OnBatch flush.
const DefaultBatchSize = 50

// Edge is one dependency edge in the crawl result.
type Edge struct {
	Source string             `json:"source"`
	Target string             `json:"target"`
	Type   ast.DependencyType `json:"type"`
	Line   int                `json:"line"`
}

// Result is a node/edge view of the crawled subgraph. NodeLabels maps
// each node to its extensionless basename for display.
type Result struct {
	Nodes      []string          `json:"nodes"`
	Edges      []Edge            `json:"edges"`
	NodeLabels map[string]string `json:"node_labels,omitempty"`
}

// merge appends other's nodes and edges into r.
func (r *Result) merge(other *Result) {
	r.Nodes = append(r.Nodes, other.Nodes...)
	r.Edges = append(r.Edges, other.Edges...)
	for k, v := range other.NodeLabels {
		r.NodeLabels[k] = v
	}
}

func (r *Result) size() int {
	return len(r.Nodes) + len(r.Edges)
}

// AnalyzeFunc produces the outgoing dependencies of one file.
type AnalyzeFunc func(ctx context.Context, path string) ([]ast.Dependency, error)

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithMaxDepth bounds full crawls.
func WithMaxDepth(depth int) CrawlerOption {
	return func(c *Crawler) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// WithIgnoredPredicate sets the predicate for external/vendored paths.
// Matching dependencies still appear as graph nodes but are never
// recursed into.
func WithIgnoredPredicate(pred func(path string) bool) CrawlerOption {
	return func(c *Crawler) {
		if pred != nil {
			c.isIgnored = pred
		}
	}
}

// Crawler walks the dependency graph depth-first.
//
// Thread Safety:
//
//	Safe for concurrent use. Each crawl carries its own visited state.
type Crawler struct {
	analyze   AnalyzeFunc
	maxDepth  int
	isIgnored func(path string) bool
}

// defaultIgnored matches vendored and generated directories.
func defaultIgnored(path string) bool {
	for _, seg := range []string{"/node_modules/", "/vendor/", "/dist/", "/build/", "/__pycache__/", "/.git/"} {
		if strings.Contains(path, seg) {
			return true
		}
	}
	return false
}

// NewCrawler creates a Crawler over analyze.
func NewCrawler(analyze AnalyzeFunc, opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		analyze:   analyze,
		maxDepth:  DefaultMaxDepth,
		isIgnored: defaultIgnored,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CrawlFromOptions controls an incremental crawl.
type CrawlFromOptions struct {
	// OnBatch streams accumulated nodes and edges once their combined
	// count reaches BatchSize. A non-nil error aborts the crawl.
	OnBatch func(batch *Result) error

	// BatchSize is the node+edge count per flush. Zero means
	// DefaultBatchSize.
	BatchSize int
}

// crawlState is the per-crawl bookkeeping.
type crawlState struct {
	visited  map[string]bool
	known    map[string]bool
	reported map[string]bool
	total    *Result
	pending  *Result
	opts     CrawlFromOptions
}

func newCrawlState(known map[string]bool, opts CrawlFromOptions) *crawlState {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &crawlState{
		visited:  make(map[string]bool),
		known:    known,
		reported: make(map[string]bool),
		total:    &Result{NodeLabels: make(map[string]string)},
		pending:  &Result{NodeLabels: make(map[string]string)},
		opts:     opts,
	}
}

// addNode records path once, skipping nodes the caller already knows.
func (st *crawlState) addNode(path string) {
	if st.known != nil && st.known[path] {
		return
	}
	if st.reported[path] {
		return
	}
	st.reported[path] = true
	label := ast.BaseNameNoExt(path)
	st.total.Nodes = append(st.total.Nodes, path)
	st.total.NodeLabels[path] = label
	st.pending.Nodes = append(st.pending.Nodes, path)
	st.pending.NodeLabels[path] = label
}

// addEdge records e, skipping edges between two nodes the caller
// already has: those were rendered by the crawl that produced the
// known set.
func (st *crawlState) addEdge(e Edge) {
	if st.known != nil && st.known[e.Source] && st.known[e.Target] {
		return
	}
	st.total.Edges = append(st.total.Edges, e)
	st.pending.Edges = append(st.pending.Edges, e)
}

// flush delivers pending results when the batch threshold is reached,
// or unconditionally when force is set.
func (st *crawlState) flush(force bool) error {
	if st.opts.OnBatch == nil {
		return nil
	}
	if !force && st.pending.size() < st.opts.BatchSize {
		return nil
	}
	if st.pending.size() == 0 {
		return nil
	}
	batch := st.pending
	st.pending = &Result{NodeLabels: make(map[string]string)}
	return st.opts.OnBatch(batch)
}

// Crawl walks the dependency graph from startPath up to the configured
// depth bound.
func (c *Crawler) Crawl(ctx context.Context, startPath string) (*Result, error) {
	return c.CrawlFrom(ctx, startPath, nil, c.maxDepth, CrawlFromOptions{})
}

// CrawlFrom incrementally expands the graph from startPath.
//
// Description:
//
//	Only nodes absent from existingNodes are reported, and edges with
//	both endpoints in existingNodes are dropped, letting a caller
//	expand an already-rendered graph without duplicates. extraDepth
//	bounds recursion relative to startPath: at zero only startPath and
//	its direct edges are produced. Cancellation is checked before each
//	node visit and surfaces as ErrCrawlCancelled. When OnBatch is set,
//	results stream in batches instead of one payload; the full result
//	is still returned.
//
// Edge Cases:
//
//	Ignored-directory dependencies become leaf nodes, never recursed.
//	A node whose analysis fails recoverably stays a leaf.
func (c *Crawler) CrawlFrom(ctx context.Context, startPath string, existingNodes map[string]bool, extraDepth int, opts CrawlFromOptions) (*Result, error) {
	start := ast.NormalizePath(startPath)
	st := newCrawlState(existingNodes, opts)

	st.addNode(start)
	if err := c.crawlNode(ctx, start, 0, extraDepth, st); err != nil {
		return nil, err
	}
	if err := st.flush(true); err != nil {
		return nil, err
	}
	return st.total, nil
}

// crawlNode analyzes path, records its edges, and recurses while depth
// allows.
func (c *Crawler) crawlNode(ctx context.Context, path string, depth, maxDepth int, st *crawlState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCrawlCancelled, err)
	}
	if st.visited[path] {
		return nil
	}
	st.visited[path] = true

	deps, err := c.analyze(ctx, path)
	if err != nil {
		if ast.IsRecoverable(path, err) {
			slog.Debug("crawl skipping unanalyzable file",
				slog.String("file", path), slog.Any("error", err))
			return nil
		}
		return err
	}

	for _, dep := range deps {
		if dep.Path == "" {
			continue
		}
		target := ast.NormalizePath(dep.Path)

		st.addNode(target)
		st.addEdge(Edge{Source: path, Target: target, Type: dep.Type, Line: dep.Line})
		if err := st.flush(false); err != nil {
			return err
		}

		if depth >= maxDepth {
			continue
		}
		if c.isIgnored(target) {
			continue
		}
		if err := c.crawlNode(ctx, target, depth+1, maxDepth, st); err != nil {
			return err
		}
	}
	return nil
}
