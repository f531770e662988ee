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
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// RustAnalyzerOption configures a RustAnalyzer.
type RustAnalyzerOption func(*RustAnalyzer)

// WithRustMaxFileSize sets the maximum file size the analyzer will
// accept.
func WithRustMaxFileSize(bytes int64) RustAnalyzerOption {
	return func(a *RustAnalyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// RustAnalyzer analyzes Rust sources with the tree-sitter grammar.
//
// Thread Safety:
//
//	Safe for concurrent use. Each call creates its own tree-sitter
//	parser instance.
type RustAnalyzer struct {
	maxFileSize int64
	reader      FileReader
	resolver    *Resolver
}

// NewRustAnalyzer creates a RustAnalyzer.
func NewRustAnalyzer(reader FileReader, resolver *Resolver, opts ...RustAnalyzerOption) *RustAnalyzer {
	if reader == nil {
		reader = OSFileReader{}
	}
	if resolver == nil {
		resolver = NewResolver(reader, nil)
	}
	a := &RustAnalyzer{
		maxFileSize: DefaultMaxFileSize,
		reader:      reader,
		resolver:    resolver,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns the canonical language name for this analyzer.
func (a *RustAnalyzer) Language() string {
	return "rust"
}

// Extensions returns the file extensions this analyzer handles.
func (a *RustAnalyzer) Extensions() []string {
	return []string{".rs"}
}

// ResolvePath resolves a Rust module path relative to fromFile.
//
// Description:
//
//	"crate::a::b" walks up from the importing file looking for "a/b"
//	under each ancestor (covering src/ crate roots without Cargo
//	metadata). "self::a" is the importing file's directory, each
//	"super::" walks one directory up, and a bare path is tried relative
//	to the importing file first, then up the ancestor chain. Candidates
//	are "name.rs" then "name/mod.rs"; a bare directory never resolves.
func (a *RustAnalyzer) ResolvePath(fromFile, module string) (string, bool) {
	if module == "" {
		return "", false
	}
	fromDir := path.Dir(NormalizePath(fromFile))
	exts := []string{".rs"}
	indexNames := []string{"mod"}

	segments := strings.Split(module, "::")
	switch segments[0] {
	case "crate":
		segments = segments[1:]
	case "self":
		segments = segments[1:]
		if len(segments) == 0 {
			return "", false
		}
		return a.resolver.resolveBase(path.Join(fromDir, path.Join(segments...)), exts, indexNames)
	case "super":
		dir := fromDir
		for len(segments) > 0 && segments[0] == "super" {
			dir = path.Dir(dir)
			segments = segments[1:]
		}
		if len(segments) == 0 {
			return "", false
		}
		return a.resolver.resolveBase(path.Join(dir, path.Join(segments...)), exts, indexNames)
	case "std", "core", "alloc":
		return "", false
	}
	if len(segments) == 0 {
		return "", false
	}

	// Longest-prefix first: "utils::database::connect" may name a file
	// ("utils/database.rs") plus an item inside it.
	for take := len(segments); take >= 1; take-- {
		rel := path.Join(segments[:take]...)
		dir := fromDir
		for range [8]struct{}{} {
			if resolved, ok := a.resolver.resolveBase(path.Join(dir, rel), exts, indexNames); ok {
				return resolved, true
			}
			parent := path.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return "", false
}

// parse reads and parses filePath, applying size and UTF-8 guards.
func (a *RustAnalyzer) parse(ctx context.Context, filePath string) (*sitter.Tree, []byte, error) {
	content, err := a.reader.ReadFile(NormalizePath(filePath))
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(content)) > a.maxFileSize {
		return nil, nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), a.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	// Create tree-sitter parser (new instance per call for thread safety)
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	return tree, content, nil
}

// ParseImports extracts use declarations, module declarations, and
// extern crate statements.
func (a *RustAnalyzer) ParseImports(ctx context.Context, filePath string) ([]Dependency, error) {
	ctx, span := startParseSpan(ctx, "rust", filePath, 0)
	defer span.End()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	tree, content, err := a.parse(ctx, filePath)
	if err != nil {
		recordParseMetrics(ctx, "rust", time.Since(start), 0, false)
		return nil, err
	}
	defer tree.Close()

	norm := NormalizePath(filePath)
	deps := newDependencySet()
	root := tree.RootNode()

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "use_declaration":
			if arg := child.ChildByFieldName("argument"); arg != nil {
				for _, module := range useTargets(arg, content) {
					deps.add(Dependency{
						Type:   DependencyImport,
						Line:   int(child.StartPoint().Row + 1),
						Module: module,
					})
				}
			}
		case "mod_item":
			// `mod foo;` without a body pulls in foo.rs / foo/mod.rs.
			if child.ChildByFieldName("body") != nil {
				continue
			}
			if name := fieldText(child, "name", content); name != "" {
				deps.add(Dependency{
					Type:   DependencyImport,
					Line:   int(child.StartPoint().Row + 1),
					Module: name,
				})
			}
		case "extern_crate_declaration":
			if name := fieldText(child, "name", content); name != "" {
				deps.add(Dependency{
					Type:   DependencyImport,
					Line:   int(child.StartPoint().Row + 1),
					Module: name,
				})
			}
		}
	}

	out := deps.list()
	for i := range out {
		if resolved, ok := a.ResolvePath(norm, out[i].Module); ok {
			out[i].Path = resolved
		}
	}

	recordParseMetrics(ctx, "rust", time.Since(start), 0, true)
	return out, nil
}

// useTargets flattens one use-declaration argument into module paths.
// Grouped lists (use a::{b, c}) produce one path per item; as-clauses
// keep the original path.
func useTargets(node *sitter.Node, content []byte) []string {
	switch node.Type() {
	case "identifier", "scoped_identifier", "crate", "self", "super":
		return []string{nodeText(node, content)}
	case "use_as_clause":
		if p := node.ChildByFieldName("path"); p != nil {
			return useTargets(p, content)
		}
	case "use_wildcard":
		// use a::b::* depends on a::b.
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
				return []string{nodeText(child, content)}
			}
		}
	case "scoped_use_list":
		prefix := ""
		if p := node.ChildByFieldName("path"); p != nil {
			prefix = nodeText(p, content)
		}
		var out []string
		if list := node.ChildByFieldName("list"); list != nil {
			for i := 0; i < int(list.ChildCount()); i++ {
				for _, sub := range useTargets(list.Child(i), content) {
					if prefix != "" {
						sub = prefix + "::" + sub
					}
					out = append(out, sub)
				}
			}
		}
		return out
	case "use_list":
		var out []string
		for i := 0; i < int(node.ChildCount()); i++ {
			out = append(out, useTargets(node.Child(i), content)...)
		}
		return out
	}
	return nil
}

// AnalyzeFile extracts top-level items: functions, structs, enums,
// traits, impl methods, consts, statics, and type aliases.
func (a *RustAnalyzer) AnalyzeFile(ctx context.Context, filePath string) (map[string]SymbolInfo, error) {
	ctx, span := startParseSpan(ctx, "rust", filePath, 0)
	defer span.End()
	start := time.Now()

	tree, content, err := a.parse(ctx, filePath)
	if err != nil {
		recordParseMetrics(ctx, "rust", time.Since(start), 0, false)
		return nil, err
	}
	defer tree.Close()

	norm := NormalizePath(filePath)
	symbols := make(map[string]SymbolInfo)
	root := tree.RootNode()

	for i := 0; i < int(root.ChildCount()); i++ {
		a.collectItem(root.Child(i), content, norm, symbols)
	}

	setParseSpanResult(span, len(symbols), 0)
	recordParseMetrics(ctx, "rust", time.Since(start), len(symbols), true)
	return symbols, nil
}

// isPub reports whether an item carries a visibility modifier.
func isPub(node *sitter.Node) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "visibility_modifier" {
			return true
		}
	}
	return false
}

// collectItem adds the symbol(s) declared by one top-level item.
func (a *RustAnalyzer) collectItem(node *sitter.Node, content []byte, filePath string, out map[string]SymbolInfo) {
	if node == nil {
		return
	}
	var kind string
	var category SymbolCategory
	switch node.Type() {
	case "function_item":
		kind, category = "function", CategoryFunction
	case "struct_item":
		kind, category = "struct", CategoryClass
	case "enum_item":
		kind, category = "enum", CategoryType
	case "trait_item":
		kind, category = "trait", CategoryInterface
	case "type_item":
		kind, category = "type_alias", CategoryType
	case "const_item", "static_item":
		kind, category = "const", CategoryVariable
	case "impl_item":
		a.collectImpl(node, content, filePath, out)
		return
	case "mod_item":
		// Inline modules contribute their items at top level under the
		// qualified name; declaration-only mods are dependencies.
		return
	default:
		return
	}

	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	id := SymbolID(filePath, name)
	out[id] = SymbolInfo{
		ID:         id,
		Name:       name,
		Kind:       kind,
		Line:       int(node.StartPoint().Row + 1),
		IsExported: isPub(node),
		Category:   category,
	}
}

// collectImpl adds "<Type>.<method>" members for an impl block.
func (a *RustAnalyzer) collectImpl(node *sitter.Node, content []byte, filePath string, out map[string]SymbolInfo) {
	typeName := fieldText(node, "type", content)
	if typeName == "" {
		return
	}
	// Strip generic arguments: impl Foo<T> names Foo.
	if idx := strings.IndexByte(typeName, '<'); idx > 0 {
		typeName = typeName[:idx]
	}
	parentID := SymbolID(filePath, typeName)

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		if member.Type() != "function_item" {
			continue
		}
		methodName := fieldText(member, "name", content)
		if methodName == "" {
			continue
		}
		qualified := typeName + "." + methodName
		id := SymbolID(filePath, qualified)
		out[id] = SymbolInfo{
			ID:             id,
			Name:           qualified,
			Kind:           "method",
			Line:           int(member.StartPoint().Row + 1),
			IsExported:     isPub(member),
			ParentSymbolID: parentID,
			Category:       CategoryFunction,
		}
	}
}

// rustImportBinding is one local name bound by a use declaration or
// module declaration.
type rustImportBinding struct {
	module       string
	originalName string
}

// SymbolDependencies extracts symbol-level edges for filePath.
//
// Pass 1 collects local-name → module bindings from use declarations
// (including as-clauses and grouped lists) and declaration-only mod
// items. Pass 2 walks call expressions: plain identifiers match
// same-file items first, then the import map; scoped calls
// (qualifier::item) match the qualifier against the import map.
func (a *RustAnalyzer) SymbolDependencies(ctx context.Context, filePath string) ([]SymbolDependency, error) {
	tree, content, err := a.parse(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	norm := NormalizePath(filePath)
	symbols, err := a.AnalyzeFile(ctx, filePath)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(symbols))
	for id, sym := range symbols {
		byName[sym.Name] = id
	}

	root := tree.RootNode()

	// Pass 1: import map.
	imports := make(map[string]rustImportBinding)
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "use_declaration":
			if arg := child.ChildByFieldName("argument"); arg != nil {
				collectUseBindings(arg, content, imports)
			}
		case "mod_item":
			if child.ChildByFieldName("body") == nil {
				if name := fieldText(child, "name", content); name != "" {
					imports[name] = rustImportBinding{module: name, originalName: "*"}
				}
			}
		}
	}

	// Pass 2: call walk.
	var edges []SymbolDependency
	seen := make(map[string]bool)
	emit := func(e SymbolDependency) {
		key := e.SourceSymbolID + "\x00" + e.TargetSymbolID
		if !seen[key] {
			seen[key] = true
			edges = append(edges, e)
		}
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		sourceID := FileScopeID(norm)
		switch node.Type() {
		case "function_item":
			if name := fieldText(node, "name", content); name != "" {
				sourceID = SymbolID(norm, name)
			}
			a.scanCalls(node, content, norm, sourceID, byName, imports, emit)
		case "impl_item":
			typeName := fieldText(node, "type", content)
			if idx := strings.IndexByte(typeName, '<'); idx > 0 {
				typeName = typeName[:idx]
			}
			body := node.ChildByFieldName("body")
			if body == nil {
				continue
			}
			for j := 0; j < int(body.ChildCount()); j++ {
				member := body.Child(j)
				if member.Type() != "function_item" {
					continue
				}
				methodName := fieldText(member, "name", content)
				memberSource := FileScopeID(norm)
				if typeName != "" && methodName != "" {
					memberSource = SymbolID(norm, typeName+"."+methodName)
				}
				a.scanCalls(member, content, norm, memberSource, byName, imports, emit)
			}
		default:
			a.scanCalls(node, content, norm, sourceID, byName, imports, emit)
		}
	}

	return edges, nil
}

// collectUseBindings records the local names bound by one use argument.
func collectUseBindings(node *sitter.Node, content []byte, out map[string]rustImportBinding) {
	switch node.Type() {
	case "identifier":
		name := nodeText(node, content)
		out[name] = rustImportBinding{module: name, originalName: "*"}
	case "scoped_identifier":
		full := nodeText(node, content)
		last := full
		modulePath := full
		if idx := strings.LastIndex(full, "::"); idx >= 0 {
			last = full[idx+2:]
			modulePath = full[:idx]
		}
		// `use utils::database;` binds "database" as a module alias;
		// `use utils::database::connect;` binds "connect" as an item.
		out[last] = rustImportBinding{module: modulePath + "::" + last, originalName: last}
	case "use_as_clause":
		p := node.ChildByFieldName("path")
		alias := node.ChildByFieldName("alias")
		if p == nil || alias == nil {
			return
		}
		full := nodeText(p, content)
		last := full
		if idx := strings.LastIndex(full, "::"); idx >= 0 {
			last = full[idx+2:]
		}
		out[nodeText(alias, content)] = rustImportBinding{module: full, originalName: last}
	case "scoped_use_list":
		prefix := ""
		if p := node.ChildByFieldName("path"); p != nil {
			prefix = nodeText(p, content)
		}
		if list := node.ChildByFieldName("list"); list != nil {
			for i := 0; i < int(list.ChildCount()); i++ {
				child := list.Child(i)
				switch child.Type() {
				case "identifier":
					name := nodeText(child, content)
					out[name] = rustImportBinding{module: prefix + "::" + name, originalName: name}
				case "use_as_clause":
					p := child.ChildByFieldName("path")
					alias := child.ChildByFieldName("alias")
					if p != nil && alias != nil {
						name := nodeText(p, content)
						out[nodeText(alias, content)] = rustImportBinding{module: prefix + "::" + name, originalName: name}
					}
				case "scoped_identifier":
					collectUseBindings(child, content, out)
				}
			}
		}
	}
}

// scanCalls walks call expressions emitting edges.
func (a *RustAnalyzer) scanCalls(node *sitter.Node, content []byte, filePath, sourceID string, byName map[string]string, imports map[string]rustImportBinding, emit func(SymbolDependency)) {
	if node == nil {
		return
	}
	if node.Type() == "call_expression" {
		if fn := node.ChildByFieldName("function"); fn != nil {
			a.resolveCallTarget(fn, content, filePath, sourceID, byName, imports, emit)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.scanCalls(node.Child(i), content, filePath, sourceID, byName, imports, emit)
	}
}

// resolveCallTarget matches one call target.
func (a *RustAnalyzer) resolveCallTarget(fn *sitter.Node, content []byte, filePath, sourceID string, byName map[string]string, imports map[string]rustImportBinding, emit func(SymbolDependency)) {
	switch fn.Type() {
	case "identifier":
		name := nodeText(fn, content)
		if targetID, ok := byName[name]; ok && targetID != sourceID {
			emit(SymbolDependency{
				SourceSymbolID: sourceID,
				TargetSymbolID: targetID,
				TargetFilePath: filePath,
			})
			return
		}
		if binding, ok := imports[name]; ok {
			target := binding.originalName
			if target == "*" {
				target = name
			}
			emit(SymbolDependency{
				SourceSymbolID: sourceID,
				TargetSymbolID: binding.module + ":" + target,
				TargetFilePath: binding.module,
			})
		}
	case "scoped_identifier":
		full := nodeText(fn, content)
		idx := strings.LastIndex(full, "::")
		if idx < 0 {
			return
		}
		qualifier := full[:idx]
		item := full[idx+2:]
		// Type::method() against a same-file type.
		if _, isLocal := byName[qualifier]; isLocal {
			qualified := qualifier + "." + item
			if targetID, ok := byName[qualified]; ok && targetID != sourceID {
				emit(SymbolDependency{
					SourceSymbolID: sourceID,
					TargetSymbolID: targetID,
					TargetFilePath: filePath,
				})
			}
			return
		}
		head := qualifier
		if hIdx := strings.Index(head, "::"); hIdx >= 0 {
			head = head[:hIdx]
		}
		if binding, ok := imports[head]; ok {
			module := binding.module
			if head != qualifier {
				module = module + "::" + strings.TrimPrefix(qualifier, head+"::")
			}
			emit(SymbolDependency{
				SourceSymbolID: sourceID,
				TargetSymbolID: module + ":" + item,
				TargetFilePath: module,
			})
		}
	}
}
