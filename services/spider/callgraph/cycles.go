// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callgraph builds an intra-file call graph from externally
// supplied call-hierarchy data and classifies its cycles, so
// intentional recursion (parser and interpreter patterns) can be told
// apart from accidental circular coupling.
package callgraph

import (
	"sort"
	"strings"

	"github.com/AleutianAI/spider/services/spider/ast"
)

// Call is one outgoing call reported by a call-hierarchy provider.
// This package consumes, never produces, call-hierarchy data.
type Call struct {
	FromSymbolID string `json:"from_symbol_id"`
	ToSymbolID   string `json:"to_symbol_id"`
	ToFilePath   string `json:"to_file_path"`
	Line         int    `json:"line"`
}

// CycleKind classifies a detected cycle by its size.
type CycleKind string

const (
	// CycleSelfRecursive is a single function calling itself.
	CycleSelfRecursive CycleKind = "self-recursive"

	// CycleMutualRecursive is exactly two functions calling each other.
	CycleMutualRecursive CycleKind = "mutual-recursive"

	// CycleComplex is a cycle through three or more functions.
	CycleComplex CycleKind = "complex"
)

// Cycle is one detected call cycle. SymbolIDs is sorted.
type Cycle struct {
	Kind      CycleKind `json:"kind"`
	SymbolIDs []string  `json:"symbol_ids"`
}

// Graph is the intra-file call graph for one file. Cross-file calls
// are dropped at construction; only edges whose endpoints are both
// symbols of the file survive.
type Graph struct {
	filePath string
	nodes    map[string]ast.SymbolInfo
	adj      map[string][]string
}

// Build constructs the intra-file graph for filePath.
func Build(filePath string, symbols map[string]ast.SymbolInfo, calls []Call) *Graph {
	norm := ast.NormalizePath(filePath)
	g := &Graph{
		filePath: norm,
		nodes:    make(map[string]ast.SymbolInfo, len(symbols)),
		adj:      make(map[string][]string),
	}
	for id, sym := range symbols {
		g.nodes[id] = sym
	}

	seen := make(map[string]bool)
	for _, call := range calls {
		if call.ToFilePath != "" && ast.NormalizePath(call.ToFilePath) != norm {
			continue
		}
		if _, ok := g.nodes[call.FromSymbolID]; !ok {
			continue
		}
		if _, ok := g.nodes[call.ToSymbolID]; !ok {
			continue
		}
		key := call.FromSymbolID + "\x00" + call.ToSymbolID
		if seen[key] {
			continue
		}
		seen[key] = true
		g.adj[call.FromSymbolID] = append(g.adj[call.FromSymbolID], call.ToSymbolID)
	}

	for id := range g.adj {
		sort.Strings(g.adj[id])
	}
	return g
}

// FilePath returns the file this graph was built for.
func (g *Graph) FilePath() string {
	return g.filePath
}

// Callees returns the sorted direct callees of symbolID.
func (g *Graph) Callees(symbolID string) []string {
	return g.adj[symbolID]
}

// Cycles detects call cycles with a DFS recursion stack.
//
// Description:
//
//	On a back-edge, every node currently on the recursion stack from
//	the closing node onward is part of the cycle. Classification is by
//	cycle size: one node with a self-loop is self-recursive, two nodes
//	are mutual-recursive, three or more are complex. Each distinct
//	cycle set is reported once; results are sorted by their first
//	symbol id.
func (g *Graph) Cycles() []Cycle {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(ids))
	var stack []string
	var cycles []Cycle
	reported := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		for _, callee := range g.adj[id] {
			switch color[callee] {
			case white:
				visit(callee)
			case gray:
				// Back-edge: stack from callee to here is the cycle.
				start := len(stack) - 1
				for start >= 0 && stack[start] != callee {
					start--
				}
				if start < 0 {
					continue
				}
				members := append([]string(nil), stack[start:]...)
				sort.Strings(members)
				key := strings.Join(members, "\x00")
				if reported[key] {
					continue
				}
				reported[key] = true
				cycles = append(cycles, Cycle{
					Kind:      classify(members),
					SymbolIDs: members,
				})
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].SymbolIDs[0] < cycles[j].SymbolIDs[0]
	})
	return cycles
}

// classify maps a cycle's member count to its kind.
func classify(members []string) CycleKind {
	switch len(members) {
	case 1:
		return CycleSelfRecursive
	case 2:
		return CycleMutualRecursive
	default:
		return CycleComplex
	}
}

// HasPath reports whether to is reachable from from over call edges.
func (g *Graph) HasPath(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[cur] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
