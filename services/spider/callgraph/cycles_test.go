// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgraph

import (
	"testing"

	"github.com/AleutianAI/spider/services/spider/ast"
)

const testFile = "/src/parser.ts"

func sym(name string) (string, ast.SymbolInfo) {
	id := ast.SymbolID(testFile, name)
	return id, ast.SymbolInfo{
		ID:       id,
		Name:     name,
		Kind:     "function",
		Category: ast.CategoryFunction,
	}
}

func symbolSet(names ...string) map[string]ast.SymbolInfo {
	out := make(map[string]ast.SymbolInfo, len(names))
	for _, name := range names {
		id, info := sym(name)
		out[id] = info
	}
	return out
}

func call(from, to string) Call {
	return Call{
		FromSymbolID: ast.SymbolID(testFile, from),
		ToSymbolID:   ast.SymbolID(testFile, to),
		ToFilePath:   testFile,
	}
}

func TestCycles_SelfRecursive(t *testing.T) {
	g := Build(testFile, symbolSet("walk"), []Call{call("walk", "walk")})

	cycles := g.Cycles()
	if len(cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(cycles))
	}
	if cycles[0].Kind != CycleSelfRecursive {
		t.Errorf("kind = %s, want %s", cycles[0].Kind, CycleSelfRecursive)
	}
	if len(cycles[0].SymbolIDs) != 1 {
		t.Errorf("members = %v, want 1", cycles[0].SymbolIDs)
	}
}

func TestCycles_MutualRecursive(t *testing.T) {
	g := Build(testFile, symbolSet("parseExpr", "parseTerm"), []Call{
		call("parseExpr", "parseTerm"),
		call("parseTerm", "parseExpr"),
	})

	cycles := g.Cycles()
	if len(cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(cycles))
	}
	if cycles[0].Kind != CycleMutualRecursive {
		t.Errorf("kind = %s, want %s", cycles[0].Kind, CycleMutualRecursive)
	}
}

func TestCycles_Complex(t *testing.T) {
	g := Build(testFile, symbolSet("a", "b", "c"), []Call{
		call("a", "b"),
		call("b", "c"),
		call("c", "a"),
	})

	cycles := g.Cycles()
	if len(cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(cycles))
	}
	if cycles[0].Kind != CycleComplex {
		t.Errorf("kind = %s, want %s", cycles[0].Kind, CycleComplex)
	}
	if len(cycles[0].SymbolIDs) != 3 {
		t.Errorf("members = %v, want 3", cycles[0].SymbolIDs)
	}
}

func TestCycles_AcyclicGraph(t *testing.T) {
	g := Build(testFile, symbolSet("main", "helper", "leaf"), []Call{
		call("main", "helper"),
		call("main", "leaf"),
		call("helper", "leaf"),
	})

	if cycles := g.Cycles(); len(cycles) != 0 {
		t.Errorf("cycles = %v, want none", cycles)
	}
}

func TestBuild_DropsCrossFileCalls(t *testing.T) {
	calls := []Call{
		call("local", "local"),
		{
			FromSymbolID: ast.SymbolID(testFile, "local"),
			ToSymbolID:   "/src/other.ts:remote",
			ToFilePath:   "/src/other.ts",
		},
	}
	g := Build(testFile, symbolSet("local"), calls)

	if got := g.Callees(ast.SymbolID(testFile, "local")); len(got) != 1 {
		t.Errorf("callees = %v, want only the same-file edge", got)
	}
}

func TestBuild_DropsCallsToUnknownSymbols(t *testing.T) {
	g := Build(testFile, symbolSet("known"), []Call{call("known", "phantom")})

	if got := g.Callees(ast.SymbolID(testFile, "known")); len(got) != 0 {
		t.Errorf("callees = %v, want none for unknown target", got)
	}
}

func TestCycles_TwoIndependentCycles(t *testing.T) {
	g := Build(testFile, symbolSet("a", "b", "loop"), []Call{
		call("a", "b"),
		call("b", "a"),
		call("loop", "loop"),
	})

	cycles := g.Cycles()
	if len(cycles) != 2 {
		t.Fatalf("cycles = %d, want 2", len(cycles))
	}
	kinds := map[CycleKind]bool{}
	for _, c := range cycles {
		kinds[c.Kind] = true
	}
	if !kinds[CycleMutualRecursive] || !kinds[CycleSelfRecursive] {
		t.Errorf("kinds = %v, want mutual and self", kinds)
	}
}

func TestHasPath(t *testing.T) {
	g := Build(testFile, symbolSet("a", "b", "c"), []Call{
		call("a", "b"),
		call("b", "c"),
	})

	aID := ast.SymbolID(testFile, "a")
	cID := ast.SymbolID(testFile, "c")
	if !g.HasPath(aID, cID) {
		t.Error("c should be reachable from a")
	}
	if g.HasPath(cID, aID) {
		t.Error("a should not be reachable from c")
	}
}
