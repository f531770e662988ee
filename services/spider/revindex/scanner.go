// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package revindex

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/spider/services/spider/ast"
)

// DefaultScanConcurrency bounds parallel candidate analysis during a
// fallback scan.
const DefaultScanConcurrency = 8

// defaultIgnoredDirs are directory basenames a workspace walk never
// descends into.
var defaultIgnoredDirs = map[string]bool{
	"node_modules":  true,
	".git":          true,
	"dist":          true,
	"build":         true,
	"out":           true,
	"target":        true,
	"vendor":        true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".spider_cache": true,
}

// AnalyzeFunc analyzes one file's imports. The Scanner calls it only
// for candidates that pass the basename pre-check.
type AnalyzeFunc func(ctx context.Context, path string) ([]ast.Dependency, error)

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScanConcurrency sets the number of candidates analyzed in
// parallel.
func WithScanConcurrency(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithIgnoredDirs replaces the default ignored-directory set.
func WithIgnoredDirs(dirs []string) ScannerOption {
	return func(s *Scanner) {
		s.ignoredDirs = make(map[string]bool, len(dirs))
		for _, d := range dirs {
			s.ignoredDirs[d] = true
		}
	}
}

// Scanner answers "who references this file" without a reverse index.
//
// Description:
//
//	Fallback for a disabled or empty index: collect every supported
//	workspace file, then check candidates in bounded-concurrency
//	batches. A cheap substring pre-check on the target's basename
//	skips the full parse for files that cannot possibly reference the
//	target, since a full scan is O(n) per query and each candidate
//	must stay cheap.
type Scanner struct {
	reader      ast.FileReader
	supports    func(path string) bool
	analyze     AnalyzeFunc
	concurrency int
	ignoredDirs map[string]bool
}

// NewScanner creates a Scanner. supports filters walked files by
// extension; analyze produces a candidate's dependencies.
func NewScanner(reader ast.FileReader, supports func(string) bool, analyze AnalyzeFunc, opts ...ScannerOption) *Scanner {
	if reader == nil {
		reader = ast.OSFileReader{}
	}
	s := &Scanner{
		reader:      reader,
		supports:    supports,
		analyze:     analyze,
		concurrency: DefaultScanConcurrency,
		ignoredDirs: defaultIgnoredDirs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CollectSourceFiles walks rootDir and returns every supported source
// file, sorted, skipping ignored directories.
func (s *Scanner) CollectSourceFiles(ctx context.Context, rootDir string) ([]string, error) {
	var files []string
	root := filepath.FromSlash(ast.NormalizePath(rootDir))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip, never abort the walk.
			slog.Debug("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if s.ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		norm := ast.NormalizePath(path)
		if s.supports == nil || s.supports(norm) {
			files = append(files, norm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// FindReferencingFiles scans rootDir for files whose imports resolve to
// target.
//
// Description:
//
//	Two-tier check per candidate: a substring search for the target's
//	extensionless basename in the raw content, then a full import
//	parse with normalized-path comparison. Per-candidate failures are
//	logged and skipped.
func (s *Scanner) FindReferencingFiles(ctx context.Context, rootDir, target string) ([]Entry, error) {
	normTarget := ast.NormalizePath(target)
	baseName := []byte(ast.BaseNameNoExt(normTarget))

	candidates, err := s.CollectSourceFiles(ctx, rootDir)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var results []Entry

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, candidate := range candidates {
		candidate := candidate
		if candidate == normTarget {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			content, err := s.reader.ReadFile(candidate)
			if err != nil {
				slog.Debug("scan skipping unreadable file",
					slog.String("file", candidate), slog.Any("error", err))
				return nil
			}
			if !bytes.Contains(content, baseName) {
				return nil
			}

			deps, err := s.analyze(ctx, candidate)
			if err != nil {
				if ast.IsRecoverable(candidate, err) {
					slog.Debug("scan skipping unparsable file",
						slog.String("file", candidate), slog.Any("error", err))
					return nil
				}
				return err
			}

			for _, dep := range deps {
				if dep.Path == "" {
					continue
				}
				if ast.NormalizePath(dep.Path) == normTarget {
					mu.Lock()
					results = append(results, Entry{
						SourcePath: candidate,
						Type:       dep.Type,
						Line:       dep.Line,
						Module:     dep.Module,
					})
					mu.Unlock()
					break
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SourcePath < results[j].SourcePath })
	return results, nil
}
