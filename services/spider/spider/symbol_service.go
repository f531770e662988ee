// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spider

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/spider/services/spider/ast"
)

// SymbolGraph is one file's symbols plus its symbol-level edges. Every
// Dependencies entry has an absolute TargetFilePath; unresolvable
// cross-file edges (external packages) are dropped at construction.
type SymbolGraph struct {
	Symbols      map[string]ast.SymbolInfo `json:"symbols"`
	Dependencies []ast.SymbolDependency    `json:"dependencies"`
}

// SymbolDependent is one symbol depending on a queried symbol.
type SymbolDependent struct {
	FilePath   string `json:"file_path"`
	SymbolID   string `json:"symbol_id"`
	SymbolName string `json:"symbol_name"`
}

// TraceNode is one step of a call trace.
type TraceNode struct {
	SymbolID string       `json:"symbol_id"`
	Name     string       `json:"name"`
	FilePath string       `json:"file_path"`
	Line     int          `json:"line"`
	Depth    int          `json:"depth"`
	Children []*TraceNode `json:"children,omitempty"`
}

// SymbolService owns symbol-level analysis.
type SymbolService struct {
	s *Spider
}

// Graph returns filePath's symbol graph, from cache when warm.
//
// Errors:
//
//	Recoverable failures degrade to an empty graph so downstream graph
//	construction needs no per-call nil checks.
func (ss *SymbolService) Graph(ctx context.Context, filePath string) (*SymbolGraph, error) {
	norm := ast.NormalizePath(filePath)

	if g, ok := ss.s.symCache.Get(norm); ok {
		return g, nil
	}

	release := ss.s.flight.acquire("sym:" + norm)
	defer release()

	if g, ok := ss.s.symCache.Get(norm); ok {
		return g, nil
	}

	analyzer, err := ss.s.registry.ForFile(norm)
	if err != nil {
		return nil, err
	}

	symbols, err := analyzer.AnalyzeFile(ctx, norm)
	if err != nil {
		return ss.degrade(norm, err)
	}
	rawDeps, err := analyzer.SymbolDependencies(ctx, norm)
	if err != nil {
		return ss.degrade(norm, err)
	}

	g := &SymbolGraph{
		Symbols:      symbols,
		Dependencies: resolveTargets(norm, rawDeps, analyzer),
	}
	ss.s.symCache.Set(norm, g)
	return g, nil
}

// degrade returns an empty graph for recoverable failures and
// propagates the rest.
func (ss *SymbolService) degrade(norm string, err error) (*SymbolGraph, error) {
	classified := ast.Classify(norm, err)
	if classified.Recoverable() {
		ss.s.logger.Warn("symbol analysis degraded to empty result",
			slog.String("file", norm),
			slog.String("kind", string(classified.Kind)),
			slog.Any("error", err))
		return &SymbolGraph{
			Symbols:      map[string]ast.SymbolInfo{},
			Dependencies: []ast.SymbolDependency{},
		}, nil
	}
	return nil, classified
}

// resolveTargets rewrites cross-file edges so TargetFilePath is always
// an absolute path and TargetSymbolID uses it. A module specifier must
// never leak into equality checks against target files; edges whose
// specifier does not resolve to a workspace file are dropped.
func resolveTargets(sourceFile string, deps []ast.SymbolDependency, analyzer ast.DependencyAnalyzer) []ast.SymbolDependency {
	out := make([]ast.SymbolDependency, 0, len(deps))
	for _, d := range deps {
		if d.TargetFilePath == sourceFile {
			out = append(out, d)
			continue
		}
		abs, ok := analyzer.ResolvePath(sourceFile, d.TargetFilePath)
		if !ok {
			continue
		}
		name := d.TargetSymbolID
		if idx := strings.LastIndex(name, ":"); idx >= 0 {
			name = name[idx+1:]
		}
		d.TargetFilePath = abs
		d.TargetSymbolID = ast.SymbolID(abs, name)
		out = append(out, d)
	}
	return out
}

// FindUnusedSymbols returns filePath's exported symbols with no
// referencer, intra-file or across the workspace.
//
// Description:
//
//	A symbol referenced only inside another export's body or signature
//	is still used; the intra-file edge set exists exactly to avoid
//	that false positive. External usage comes from the symbol graphs
//	of every file referencing filePath.
func (ss *SymbolService) FindUnusedSymbols(ctx context.Context, filePath string) ([]ast.SymbolInfo, error) {
	norm := ast.NormalizePath(filePath)

	g, err := ss.Graph(ctx, norm)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	for _, d := range g.Dependencies {
		if d.TargetFilePath == norm && d.SourceSymbolID != d.TargetSymbolID {
			used[d.TargetSymbolID] = true
		}
	}

	refs, err := ss.s.refs.FindReferencingFiles(ctx, norm)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		sg, err := ss.Graph(ctx, ref.SourcePath)
		if err != nil {
			if ast.IsRecoverable(ref.SourcePath, err) {
				continue
			}
			return nil, err
		}
		for _, d := range sg.Dependencies {
			if d.TargetFilePath == norm {
				used[d.TargetSymbolID] = true
			}
		}
	}

	var unused []ast.SymbolInfo
	fileScope := ast.FileScopeID(norm)
	for id, sym := range g.Symbols {
		if id == fileScope {
			continue
		}
		if !sym.IsExported {
			continue
		}
		if used[id] {
			continue
		}
		// A member is used when its parent is.
		if sym.ParentSymbolID != "" && used[sym.ParentSymbolID] {
			continue
		}
		unused = append(unused, sym)
	}
	sort.Slice(unused, func(i, j int) bool { return unused[i].Line < unused[j].Line })
	return unused, nil
}

// Dependents returns every symbol depending on filePath's symbolName,
// in this file and in every referencing file.
func (ss *SymbolService) Dependents(ctx context.Context, filePath, symbolName string) ([]SymbolDependent, error) {
	norm := ast.NormalizePath(filePath)
	targetID := ast.SymbolID(norm, symbolName)

	var out []SymbolDependent
	seen := make(map[string]bool)
	collect := func(sourceFile string, sg *SymbolGraph) {
		for _, d := range sg.Dependencies {
			if d.TargetSymbolID != targetID {
				continue
			}
			if seen[d.SourceSymbolID] {
				continue
			}
			seen[d.SourceSymbolID] = true
			dep := SymbolDependent{
				FilePath: sourceFile,
				SymbolID: d.SourceSymbolID,
			}
			if sym, ok := sg.Symbols[d.SourceSymbolID]; ok {
				dep.SymbolName = sym.Name
			} else {
				dep.SymbolName = ast.FileScopeName
			}
			out = append(out, dep)
		}
	}

	g, err := ss.Graph(ctx, norm)
	if err != nil {
		return nil, err
	}
	collect(norm, g)

	refs, err := ss.s.refs.FindReferencingFiles(ctx, norm)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		sg, err := ss.Graph(ctx, ref.SourcePath)
		if err != nil {
			if ast.IsRecoverable(ref.SourcePath, err) {
				continue
			}
			return nil, err
		}
		collect(ref.SourcePath, sg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SymbolID < out[j].SymbolID })
	return out, nil
}

// Trace follows call edges from filePath's symbolName down to
// maxDepth, producing a call tree. Already-visited symbols become leaf
// nodes so recursion terminates on cycles.
func (ss *SymbolService) Trace(ctx context.Context, filePath, symbolName string, maxDepth int) (*TraceNode, error) {
	norm := ast.NormalizePath(filePath)
	startID := ast.SymbolID(norm, symbolName)

	g, err := ss.Graph(ctx, norm)
	if err != nil {
		return nil, err
	}

	root := &TraceNode{
		SymbolID: startID,
		Name:     symbolName,
		FilePath: norm,
	}
	if sym, ok := g.Symbols[startID]; ok {
		root.Line = sym.Line
	}

	visited := map[string]bool{startID: true}
	if err := ss.expandTrace(ctx, root, maxDepth, visited); err != nil {
		return nil, err
	}
	return root, nil
}

// expandTrace fills node's children from its file's symbol graph.
func (ss *SymbolService) expandTrace(ctx context.Context, node *TraceNode, maxDepth int, visited map[string]bool) error {
	if node.Depth >= maxDepth {
		return nil
	}

	g, err := ss.Graph(ctx, node.FilePath)
	if err != nil {
		if ast.IsRecoverable(node.FilePath, err) {
			return nil
		}
		return err
	}

	for _, d := range g.Dependencies {
		if d.SourceSymbolID != node.SymbolID {
			continue
		}
		child := &TraceNode{
			SymbolID: d.TargetSymbolID,
			FilePath: d.TargetFilePath,
			Depth:    node.Depth + 1,
		}
		if name := d.TargetSymbolID; strings.LastIndex(name, ":") >= 0 {
			child.Name = name[strings.LastIndex(name, ":")+1:]
		}
		node.Children = append(node.Children, child)

		if visited[d.TargetSymbolID] {
			continue
		}
		visited[d.TargetSymbolID] = true
		if err := ss.expandTrace(ctx, child, maxDepth, visited); err != nil {
			return err
		}
	}

	sort.Slice(node.Children, func(i, j int) bool {
		return node.Children[i].SymbolID < node.Children[j].SymbolID
	})
	return nil
}
