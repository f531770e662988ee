// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package spider composes the analyzers, caches, reverse index,
// crawler, and indexing service behind the stable public contract.
//
// Ownership Model:
//
//	Spider owns every mutable collaborator: the dependency and symbol
//	caches, the reverse index, the project arenas inside the
//	analyzers, and the indexing worker. Sub-services mutate them only
//	through Spider, which guarantees at most one in-flight analysis
//	per path.
package spider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/spider/services/spider/ast"
	"github.com/AleutianAI/spider/services/spider/cache"
	"github.com/AleutianAI/spider/services/spider/callgraph"
	"github.com/AleutianAI/spider/services/spider/config"
	"github.com/AleutianAI/spider/services/spider/graph"
	"github.com/AleutianAI/spider/services/spider/indexer"
	"github.com/AleutianAI/spider/services/spider/revindex"
)

// Default cache capacities. Symbol graphs are heavier per entry than
// dependency lists, so the symbol cache is smaller and independently
// sized.
const (
	DefaultDependencyCacheSize = 500
	DefaultSymbolCacheSize     = 200
)

// Option configures a Spider.
type Option func(*builder)

type builder struct {
	cfg       config.Config
	reader    ast.FileReader
	logger    *slog.Logger
	db        *badger.DB
	analyzers []ast.Analyzer
}

// WithConfig applies workspace configuration.
func WithConfig(cfg config.Config) Option {
	return func(b *builder) { b.cfg = cfg }
}

// WithFileReader substitutes the file-system collaborator.
func WithFileReader(reader ast.FileReader) Option {
	return func(b *builder) { b.reader = reader }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithSnapshotDB enables BadgerDB snapshot persistence. The caller
// owns the DB lifecycle.
func WithSnapshotDB(db *badger.DB) Option {
	return func(b *builder) { b.db = db }
}

// WithAnalyzers replaces the default analyzer set.
func WithAnalyzers(analyzers ...ast.Analyzer) Option {
	return func(b *builder) { b.analyzers = analyzers }
}

// Spider is the facade over the dependency/symbol graph engine.
//
// Thread Safety:
//
//	Safe for concurrent use. Analyses of the same path are serialized
//	by a per-path in-flight guard; analyses of different paths may
//	run and complete in any order.
type Spider struct {
	rootDir  string
	reader   ast.FileReader
	registry *ast.Registry
	logger   *slog.Logger

	depCache *cache.Cache[[]ast.Dependency]
	symCache *cache.Cache[*SymbolGraph]

	indexMu      sync.RWMutex
	index        *revindex.ReverseIndex
	indexEnabled bool

	scanner *revindex.Scanner
	crawler *graph.Crawler
	indexer *indexer.Indexer
	worker  *indexer.Worker
	store   *revindex.SnapshotStore

	flight *inflight

	deps    *DependencyService
	symbols *SymbolService
	refs    *ReferenceService
	caches  *CacheCoordinator
}

// New creates a Spider rooted at rootDir.
func New(rootDir string, opts ...Option) (*Spider, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("root dir must not be empty")
	}

	b := &builder{
		reader: ast.OSFileReader{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	s := &Spider{
		rootDir:      ast.NormalizePath(rootDir),
		reader:       b.reader,
		logger:       b.logger,
		index:        revindex.New(),
		indexEnabled: true,
		flight:       newInflight(),
	}

	depCacheSize := b.cfg.DependencyCacheSize
	if depCacheSize == 0 {
		depCacheSize = DefaultDependencyCacheSize
	}
	symCacheSize := b.cfg.SymbolCacheSize
	if symCacheSize == 0 {
		symCacheSize = DefaultSymbolCacheSize
	}
	s.depCache = cache.New[[]ast.Dependency](depCacheSize)
	s.symCache = cache.New[*SymbolGraph](symCacheSize)

	analyzers := b.analyzers
	if analyzers == nil {
		resolver := ast.NewResolver(b.reader, b.cfg.ResolveAliases(rootDir))
		var tsOpts []ast.TypeScriptAnalyzerOption
		var pyOpts []ast.PythonAnalyzerOption
		var rsOpts []ast.RustAnalyzerOption
		if b.cfg.MaxFileSizeBytes > 0 {
			tsOpts = append(tsOpts, ast.WithTypeScriptMaxFileSize(b.cfg.MaxFileSizeBytes))
			pyOpts = append(pyOpts, ast.WithPythonMaxFileSize(b.cfg.MaxFileSizeBytes))
			rsOpts = append(rsOpts, ast.WithRustMaxFileSize(b.cfg.MaxFileSizeBytes))
		}
		analyzers = []ast.Analyzer{
			ast.NewTypeScriptAnalyzer(b.reader, resolver, tsOpts...),
			ast.NewPythonAnalyzer(b.reader, resolver, pyOpts...),
			ast.NewRustAnalyzer(b.reader, resolver, rsOpts...),
		}
	}
	s.registry = ast.NewRegistry(analyzers...)

	s.deps = &DependencyService{s: s}
	s.symbols = &SymbolService{s: s}
	s.refs = &ReferenceService{s: s}
	s.caches = &CacheCoordinator{s: s}

	var scanOpts []revindex.ScannerOption
	if b.cfg.ScanConcurrency > 0 {
		scanOpts = append(scanOpts, revindex.WithScanConcurrency(b.cfg.ScanConcurrency))
	}
	if len(b.cfg.IgnoredDirs) > 0 {
		scanOpts = append(scanOpts, revindex.WithIgnoredDirs(b.cfg.IgnoredDirs))
	}
	s.scanner = revindex.NewScanner(b.reader, s.registry.Supports, s.deps.Analyze, scanOpts...)

	var crawlOpts []graph.CrawlerOption
	if b.cfg.MaxCrawlDepth > 0 {
		crawlOpts = append(crawlOpts, graph.WithMaxDepth(b.cfg.MaxCrawlDepth))
	}
	s.crawler = graph.NewCrawler(s.deps.Analyze, crawlOpts...)

	var ixOpts []indexer.Option
	if b.cfg.ReindexConcurrency > 0 {
		ixOpts = append(ixOpts, indexer.WithReindexConcurrency(b.cfg.ReindexConcurrency))
	}
	s.indexer = indexer.New(s.scanner, b.reader, s.deps.Analyze, s.importResult, s.caches.InvalidateFile, ixOpts...)
	s.worker = indexer.NewWorker(s.indexer)

	if b.db != nil {
		store, err := revindex.NewSnapshotStore(b.db, b.logger)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	return s, nil
}

// RootDir returns the workspace root.
func (s *Spider) RootDir() string {
	return s.rootDir
}

// importResult applies one analyzed file to the cache and, when
// enabled, the reverse index. Shared by inline analysis, the full
// indexer, and the worker import path.
func (s *Spider) importResult(source string, deps []ast.Dependency, hash revindex.FileHash) {
	s.depCache.Set(source, deps)

	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	if s.indexEnabled {
		s.index.AddDependencies(source, deps, &hash)
	}
}

// Analyze returns filePath's dependencies, from cache when warm.
func (s *Spider) Analyze(ctx context.Context, filePath string) ([]ast.Dependency, error) {
	return s.deps.Analyze(ctx, filePath)
}

// SymbolGraph returns filePath's symbols and symbol-level edges.
func (s *Spider) SymbolGraph(ctx context.Context, filePath string) (*SymbolGraph, error) {
	return s.symbols.Graph(ctx, filePath)
}

// Crawl walks the dependency graph from startPath to the configured
// depth bound.
func (s *Spider) Crawl(ctx context.Context, startPath string) (*graph.Result, error) {
	return s.crawler.Crawl(ctx, startPath)
}

// CrawlFrom incrementally expands the graph from startPath, reporting
// only nodes and edges absent from existingNodes.
func (s *Spider) CrawlFrom(ctx context.Context, startPath string, existingNodes map[string]bool, extraDepth int, opts graph.CrawlFromOptions) (*graph.Result, error) {
	return s.crawler.CrawlFrom(ctx, startPath, existingNodes, extraDepth, opts)
}

// FindReferencingFiles answers "who references target", via the
// reverse index when available or a workspace scan otherwise.
func (s *Spider) FindReferencingFiles(ctx context.Context, target string) ([]revindex.Entry, error) {
	return s.refs.FindReferencingFiles(ctx, target)
}

// FindUnusedSymbols returns filePath's exported symbols that nothing
// references, in-file or across the workspace.
func (s *Spider) FindUnusedSymbols(ctx context.Context, filePath string) ([]ast.SymbolInfo, error) {
	return s.symbols.FindUnusedSymbols(ctx, filePath)
}

// SymbolDependents returns the symbols, across referencing files, that
// depend on filePath's symbolName.
func (s *Spider) SymbolDependents(ctx context.Context, filePath, symbolName string) ([]SymbolDependent, error) {
	return s.symbols.Dependents(ctx, filePath, symbolName)
}

// TraceFunctionExecution follows call edges from filePath's symbolName
// down to maxDepth, producing a call tree.
func (s *Spider) TraceFunctionExecution(ctx context.Context, filePath, symbolName string, maxDepth int) (*TraceNode, error) {
	return s.symbols.Trace(ctx, filePath, symbolName, maxDepth)
}

// AnalyzeCallCycles builds the intra-file call graph from externally
// supplied call-hierarchy data and classifies its cycles.
func (s *Spider) AnalyzeCallCycles(filePath string, symbols map[string]ast.SymbolInfo, calls []callgraph.Call) []callgraph.Cycle {
	return callgraph.Build(filePath, symbols, calls).Cycles()
}

// BuildFullIndex indexes every source file under the workspace root.
func (s *Spider) BuildFullIndex(ctx context.Context, onProgress indexer.ProgressFunc) (indexer.Status, error) {
	var unsubscribe func()
	if onProgress != nil {
		unsubscribe = s.indexer.Subscribe(onProgress)
		defer unsubscribe()
	}
	return s.indexer.BuildFullIndex(ctx, s.rootDir)
}

// BuildFullIndexInWorker runs the full index on the background worker
// so the caller's goroutine is never blocked by parsing. The end state
// is identical to BuildFullIndex.
func (s *Spider) BuildFullIndexInWorker(ctx context.Context, onProgress indexer.ProgressFunc) (indexer.Status, error) {
	var unsubscribe func()
	if onProgress != nil {
		unsubscribe = s.indexer.Subscribe(onProgress)
		defer unsubscribe()
	}
	return s.worker.BuildFullIndex(ctx, s.rootDir)
}

// ReindexStaleFiles re-analyzes paths under a concurrency limit.
func (s *Spider) ReindexStaleFiles(ctx context.Context, paths []string, onProgress indexer.ProgressFunc) (indexer.Status, error) {
	return s.indexer.ReindexStaleFiles(ctx, paths, onProgress)
}

// IndexerStatus returns the most recent indexing status.
func (s *Spider) IndexerStatus() indexer.Status {
	return s.indexer.Status()
}

// SubscribeIndexer registers fn for indexing status updates.
func (s *Spider) SubscribeIndexer(fn indexer.ProgressFunc) func() {
	return s.indexer.Subscribe(fn)
}

// EnableReverseIndex turns the reverse index on, optionally restoring
// it from a serialized snapshot.
//
// Outputs:
//
//	bool - True when the snapshot was restored. False means the index
//	       started empty: no snapshot given, or the snapshot's version
//	       or root directory did not match. A mismatch is never an
//	       error.
func (s *Spider) EnableReverseIndex(serialized []byte) bool {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	s.indexEnabled = true
	if len(serialized) == 0 {
		return false
	}
	restored := revindex.Deserialize(serialized, s.rootDir)
	if restored == nil {
		s.index = revindex.New()
		return false
	}
	s.index = restored
	s.logger.Info("reverse index restored from snapshot",
		slog.Int("targets", restored.TargetCount()),
		slog.Int("edges", restored.EdgeCount()))
	return true
}

// DisableReverseIndex turns the reverse index off and clears it.
// Reference lookups fall back to workspace scans.
func (s *Spider) DisableReverseIndex() {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	s.indexEnabled = false
	s.index.Clear()
}

// SerializedReverseIndex returns the index as versioned JSON, or nil
// when the index is disabled.
func (s *Spider) SerializedReverseIndex() ([]byte, error) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	if !s.indexEnabled {
		return nil, nil
	}
	return s.index.Serialize(s.rootDir)
}

// ValidateReverseIndex re-hashes every indexed file and reports
// staleness. staleThreshold <= 0 uses the default.
func (s *Spider) ValidateReverseIndex(staleThreshold float64) revindex.ValidationResult {
	s.indexMu.RLock()
	idx := s.index
	s.indexMu.RUnlock()

	return idx.Validate(s.reader, staleThreshold)
}

// SaveSnapshot persists the reverse index to the snapshot store.
func (s *Spider) SaveSnapshot(ctx context.Context) (*revindex.SnapshotMetadata, error) {
	if s.store == nil {
		return nil, fmt.Errorf("snapshot store not configured")
	}
	s.indexMu.RLock()
	idx := s.index
	s.indexMu.RUnlock()

	return s.store.Save(ctx, idx, s.rootDir)
}

// LoadSnapshot restores the reverse index from the snapshot store.
// Returns false when no usable snapshot exists.
func (s *Spider) LoadSnapshot(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, fmt.Errorf("snapshot store not configured")
	}
	idx, _, err := s.store.Load(ctx, s.rootDir)
	if err != nil {
		return false, err
	}
	if idx == nil {
		return false, nil
	}

	s.indexMu.Lock()
	s.index = idx
	s.indexEnabled = true
	s.indexMu.Unlock()
	return true, nil
}

// InvalidateFile drops filePath from the caches, the analyzers, and
// the reverse index's source-side bookkeeping.
func (s *Spider) InvalidateFile(filePath string) {
	s.caches.InvalidateFile(filePath)
}

// InvalidateFiles invalidates each path in order.
func (s *Spider) InvalidateFiles(paths []string) {
	s.caches.InvalidateFiles(paths)
}

// HandleFileDeleted removes filePath entirely: caches, source-side
// edges, and its standing as a referenced target.
func (s *Spider) HandleFileDeleted(filePath string) {
	s.caches.HandleFileDeleted(filePath)
}

// CacheStats returns combined cache and index statistics.
func (s *Spider) CacheStats() CombinedStats {
	return s.caches.Stats()
}

// Stop tears down the background worker. Pending worker requests are
// rejected, not dropped.
func (s *Spider) Stop() {
	s.worker.Stop()
}

// inflight serializes analyses of the same path. Different paths
// proceed independently.
type inflight struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func newInflight() *inflight {
	return &inflight{m: make(map[string]chan struct{})}
}

// acquire blocks until no other analysis of key is running, then
// claims the slot. The returned func releases it.
func (f *inflight) acquire(key string) func() {
	for {
		f.mu.Lock()
		ch, busy := f.m[key]
		if !busy {
			done := make(chan struct{})
			f.m[key] = done
			f.mu.Unlock()
			return func() {
				f.mu.Lock()
				delete(f.m, key)
				f.mu.Unlock()
				close(done)
			}
		}
		f.mu.Unlock()
		<-ch
	}
}
