// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"testing"
)

func newRustAnalyzer() *RustAnalyzer {
	reader := OSFileReader{}
	return NewRustAnalyzer(reader, NewResolver(reader, nil))
}

func rustFixture(t *testing.T) string {
	t.Helper()
	return writeTree(t, map[string]string{
		"lib.rs": `mod utils;
mod helpers;
use utils::database;
use utils::database::{connect, Pool};
use std::collections::HashMap;
extern crate serde;

pub fn init() {
    let _pool = connect();
    database::query();
}
`,
		"helpers.rs":        "pub fn help() {}\n",
		"utils/mod.rs":      "pub mod database;\n",
		"utils/database.rs": "pub fn connect() {}\npub fn query() {}\npub struct Pool;\n",
	})
}

func TestRust_ParseImports(t *testing.T) {
	dir := rustFixture(t)
	a := newRustAnalyzer()

	deps, err := a.ParseImports(context.Background(), dir+"/lib.rs")
	if err != nil {
		t.Fatalf("ParseImports: %v", err)
	}
	byMod := depsByModule(deps)

	wantModules := []string{
		"utils",
		"helpers",
		"utils::database",
		"utils::database::connect",
		"utils::database::Pool",
		"std::collections::HashMap",
		"serde",
	}
	if len(deps) != len(wantModules) {
		t.Fatalf("deps = %d (%v), want %d", len(deps), byMod, len(wantModules))
	}
	for _, mod := range wantModules {
		if _, ok := byMod[mod]; !ok {
			t.Errorf("module %q missing from %v", mod, byMod)
		}
	}

	if got := byMod["utils"].Path; got != dir+"/utils/mod.rs" {
		t.Errorf("utils path = %s, want mod.rs", got)
	}
	if got := byMod["utils::database"].Path; got != dir+"/utils/database.rs" {
		t.Errorf("utils::database path = %s, want database.rs", got)
	}
	// Item imports resolve to the file that declares the item.
	if got := byMod["utils::database::connect"].Path; got != dir+"/utils/database.rs" {
		t.Errorf("utils::database::connect path = %s, want database.rs", got)
	}
	if byMod["std::collections::HashMap"].Path != "" {
		t.Error("std paths never resolve to workspace files")
	}
	if byMod["serde"].Path != "" {
		t.Error("external crates never resolve to workspace files")
	}
}

func TestRust_ResolvePath(t *testing.T) {
	dir := rustFixture(t)
	a := newRustAnalyzer()

	if got, ok := a.ResolvePath(dir+"/lib.rs", "crate::utils::database"); !ok || got != dir+"/utils/database.rs" {
		t.Errorf("crate:: resolved = %s (%v), want utils/database.rs", got, ok)
	}
	if got, ok := a.ResolvePath(dir+"/utils/database.rs", "super::helpers"); !ok || got != dir+"/helpers.rs" {
		t.Errorf("super:: resolved = %s (%v), want helpers.rs", got, ok)
	}
	if got, ok := a.ResolvePath(dir+"/utils/mod.rs", "self::database"); !ok || got != dir+"/utils/database.rs" {
		t.Errorf("self:: resolved = %s (%v), want utils/database.rs", got, ok)
	}
	if _, ok := a.ResolvePath(dir+"/lib.rs", "std::fmt"); ok {
		t.Error("std:: should not resolve")
	}
}

func TestRust_AnalyzeFile(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"types.rs": `pub struct Pool;

impl Pool {
    pub fn new() -> Pool {
        Pool
    }

    fn reset(&mut self) {}
}

pub trait Store {}

pub enum Mode {
    Fast,
    Full,
}

const MAX: usize = 10;

pub fn open() -> Pool {
    Pool::new()
}
`,
	})
	a := newRustAnalyzer()
	file := dir + "/types.rs"

	symbols, err := a.AnalyzeFile(context.Background(), file)
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}

	want := map[string]struct {
		kind     string
		exported bool
	}{
		"Pool":       {"struct", true},
		"Pool.new":   {"method", true},
		"Pool.reset": {"method", false},
		"Store":      {"trait", true},
		"Mode":       {"enum", true},
		"MAX":        {"const", false},
		"open":       {"function", true},
	}
	if len(symbols) != len(want) {
		t.Errorf("symbols = %d, want %d: %v", len(symbols), len(want), symbols)
	}
	for name, expect := range want {
		sym, ok := symbols[SymbolID(file, name)]
		if !ok {
			t.Errorf("symbol %q missing", name)
			continue
		}
		if sym.Kind != expect.kind {
			t.Errorf("%s kind = %s, want %s", name, sym.Kind, expect.kind)
		}
		if sym.IsExported != expect.exported {
			t.Errorf("%s exported = %v, want %v", name, sym.IsExported, expect.exported)
		}
	}

	newSym := symbols[SymbolID(file, "Pool.new")]
	if newSym.ParentSymbolID != SymbolID(file, "Pool") {
		t.Errorf("Pool.new parent = %s, want the struct symbol", newSym.ParentSymbolID)
	}
}

func TestRust_SymbolDependenciesSameFile(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"types.rs": `pub struct Pool;

impl Pool {
    pub fn new() -> Pool {
        Pool
    }
}

pub fn open() -> Pool {
    Pool::new()
}

pub fn reopen() -> Pool {
    open()
}
`,
	})
	a := newRustAnalyzer()
	file := dir + "/types.rs"

	edges, err := a.SymbolDependencies(context.Background(), file)
	if err != nil {
		t.Fatalf("SymbolDependencies: %v", err)
	}

	var openToNew, reopenToOpen bool
	for _, e := range edges {
		if e.SourceSymbolID == SymbolID(file, "open") && e.TargetSymbolID == SymbolID(file, "Pool.new") {
			openToNew = true
		}
		if e.SourceSymbolID == SymbolID(file, "reopen") && e.TargetSymbolID == SymbolID(file, "open") {
			reopenToOpen = true
		}
	}
	if !openToNew {
		t.Errorf("edges = %v, want open -> Pool.new for the scoped call", edges)
	}
	if !reopenToOpen {
		t.Errorf("edges = %v, want reopen -> open", edges)
	}
}

func TestRust_SymbolDependenciesCrossFile(t *testing.T) {
	dir := rustFixture(t)
	a := newRustAnalyzer()
	file := dir + "/lib.rs"

	edges, err := a.SymbolDependencies(context.Background(), file)
	if err != nil {
		t.Fatalf("SymbolDependencies: %v", err)
	}

	initID := SymbolID(file, "init")
	var viaUse, viaScoped bool
	for _, e := range edges {
		if e.SourceSymbolID != initID {
			continue
		}
		if e.TargetSymbolID == "utils::database::connect:connect" {
			viaUse = true
		}
		if e.TargetSymbolID == "utils::database:query" {
			viaScoped = true
			if e.TargetFilePath != "utils::database" {
				t.Errorf("target path = %s, want the module path", e.TargetFilePath)
			}
		}
	}
	if !viaUse {
		t.Errorf("edges = %v, want init -> connect through the use binding", edges)
	}
	if !viaScoped {
		t.Errorf("edges = %v, want init -> query through the module alias", edges)
	}
}
