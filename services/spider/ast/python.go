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
	"github.com/smacker/go-tree-sitter/python"
)

// maxImportWalkDepth bounds recursive import extraction. Imports nested
// deeper than this (inside pathological nesting) are ignored.
const maxImportWalkDepth = 30

// PythonAnalyzerOption configures a PythonAnalyzer.
type PythonAnalyzerOption func(*PythonAnalyzer)

// WithPythonMaxFileSize sets the maximum file size the analyzer will
// accept.
func WithPythonMaxFileSize(bytes int64) PythonAnalyzerOption {
	return func(a *PythonAnalyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// PythonAnalyzer analyzes Python sources with the tree-sitter grammar.
//
// Thread Safety:
//
//	Safe for concurrent use. Each call creates its own tree-sitter
//	parser instance.
type PythonAnalyzer struct {
	maxFileSize int64
	reader      FileReader
	resolver    *Resolver
}

// NewPythonAnalyzer creates a PythonAnalyzer.
func NewPythonAnalyzer(reader FileReader, resolver *Resolver, opts ...PythonAnalyzerOption) *PythonAnalyzer {
	if reader == nil {
		reader = OSFileReader{}
	}
	if resolver == nil {
		resolver = NewResolver(reader, nil)
	}
	a := &PythonAnalyzer{
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
func (a *PythonAnalyzer) Language() string {
	return "python"
}

// Extensions returns the file extensions this analyzer handles.
func (a *PythonAnalyzer) Extensions() []string {
	return []string{".py", ".pyi"}
}

// ResolvePath resolves a Python module specifier relative to fromFile.
//
// Description:
//
//	Dotted module paths become directory paths ("pkg.mod" →
//	"pkg/mod"). Leading dots are relative-import levels: one dot is the
//	importing file's package, each further dot walks one directory up.
//	Candidates are tried as "name.py" then "name/__init__.py"; a bare
//	directory is never a valid resolution. Absolute module paths are
//	tried relative to the importing file's directory walk-up chain,
//	which covers project-root execution layouts without a configured
//	source root.
func (a *PythonAnalyzer) ResolvePath(fromFile, module string) (string, bool) {
	if module == "" {
		return "", false
	}
	fromDir := path.Dir(NormalizePath(fromFile))
	exts := []string{".py", ".pyi"}
	indexNames := []string{"__init__"}

	if strings.HasPrefix(module, ".") {
		// Relative import: count leading dots.
		level := 0
		for level < len(module) && module[level] == '.' {
			level++
		}
		rest := strings.ReplaceAll(module[level:], ".", "/")
		dir := fromDir
		for i := 1; i < level; i++ {
			dir = path.Dir(dir)
		}
		base := dir
		if rest != "" {
			base = path.Join(dir, rest)
		}
		return a.resolver.resolveBase(base, exts, indexNames)
	}

	rel := strings.ReplaceAll(module, ".", "/")

	// Walk up from the importing file's directory so "utils.helpers"
	// resolves from any file inside the project tree.
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
	return "", false
}

// parse reads and parses filePath, applying size and UTF-8 guards.
func (a *PythonAnalyzer) parse(ctx context.Context, filePath string) (*sitter.Tree, []byte, error) {
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
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	return tree, content, nil
}

// ParseImports extracts import and from-import statements, anywhere in
// the file (imports inside function bodies count).
func (a *PythonAnalyzer) ParseImports(ctx context.Context, filePath string) ([]Dependency, error) {
	ctx, span := startParseSpan(ctx, "python", filePath, 0)
	defer span.End()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	tree, content, err := a.parse(ctx, filePath)
	if err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, err
	}
	defer tree.Close()

	norm := NormalizePath(filePath)
	deps := newDependencySet()
	a.collectImports(tree.RootNode(), content, deps, 0)

	out := deps.list()
	for i := range out {
		if resolved, ok := a.ResolvePath(norm, out[i].Module); ok {
			out[i].Path = resolved
		}
	}

	recordParseMetrics(ctx, "python", time.Since(start), 0, true)
	return out, nil
}

// collectImports walks the tree for import statements.
func (a *PythonAnalyzer) collectImports(node *sitter.Node, content []byte, deps *dependencySet, depth int) {
	if node == nil || depth > maxImportWalkDepth {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import_statement":
			// import foo.bar, import foo as f
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "dotted_name":
					deps.add(Dependency{
						Type:   DependencyImport,
						Line:   int(child.StartPoint().Row + 1),
						Module: nodeText(gc, content),
					})
				case "aliased_import":
					if name := gc.ChildByFieldName("name"); name != nil {
						deps.add(Dependency{
							Type:   DependencyImport,
							Line:   int(child.StartPoint().Row + 1),
							Module: nodeText(name, content),
						})
					}
				}
			}
		case "import_from_statement":
			// from x import y — the dependency is on module x.
			if module := child.ChildByFieldName("module_name"); module != nil {
				deps.add(Dependency{
					Type:   DependencyImport,
					Line:   int(child.StartPoint().Row + 1),
					Module: nodeText(module, content),
				})
			}
		case "call":
			// importlib.import_module("x") and __import__("x")
			if module, line, ok := dynamicImportTarget(child, content); ok {
				deps.add(Dependency{
					Type:   DependencyDynamic,
					Line:   line,
					Module: module,
				})
			}
			a.collectImports(child, content, deps, depth+1)
		default:
			a.collectImports(child, content, deps, depth+1)
		}
	}
}

// dynamicImportTarget matches importlib.import_module("x") and
// __import__("x") calls with a literal first argument.
func dynamicImportTarget(call *sitter.Node, content []byte) (string, int, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", 0, false
	}
	fnText := nodeText(fn, content)
	if fnText != "importlib.import_module" && fnText != "__import__" {
		return "", 0, false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return "", 0, false
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		arg := args.Child(i)
		if arg.Type() == "string" {
			return stringContent(arg, content), int(call.StartPoint().Row + 1), true
		}
	}
	return "", 0, false
}

// AnalyzeFile extracts module-level functions, classes, class members,
// and assignments.
func (a *PythonAnalyzer) AnalyzeFile(ctx context.Context, filePath string) (map[string]SymbolInfo, error) {
	ctx, span := startParseSpan(ctx, "python", filePath, 0)
	defer span.End()
	start := time.Now()

	tree, content, err := a.parse(ctx, filePath)
	if err != nil {
		recordParseMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, err
	}
	defer tree.Close()

	norm := NormalizePath(filePath)
	symbols := make(map[string]SymbolInfo)
	root := tree.RootNode()

	for i := 0; i < int(root.ChildCount()); i++ {
		a.collectTopLevel(unwrapDecorated(root.Child(i)), content, norm, symbols)
	}

	setParseSpanResult(span, len(symbols), 0)
	recordParseMetrics(ctx, "python", time.Since(start), len(symbols), true)
	return symbols, nil
}

// unwrapDecorated returns the definition inside a decorated_definition,
// or node itself.
func unwrapDecorated(node *sitter.Node) *sitter.Node {
	if node != nil && node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return node
}

// collectTopLevel adds the symbol(s) declared by one module-level node.
// Python has no export keyword: a leading underscore marks a symbol as
// private by convention, everything else is exported.
func (a *PythonAnalyzer) collectTopLevel(node *sitter.Node, content []byte, filePath string, out map[string]SymbolInfo) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "function_definition":
		name := fieldText(node, "name", content)
		if name == "" {
			return
		}
		id := SymbolID(filePath, name)
		out[id] = SymbolInfo{
			ID:         id,
			Name:       name,
			Kind:       "function",
			Line:       int(node.StartPoint().Row + 1),
			IsExported: !strings.HasPrefix(name, "_"),
			Category:   CategoryFunction,
		}
	case "class_definition":
		a.collectClass(node, content, filePath, out)
	case "expression_statement":
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() != "assignment" {
				continue
			}
			left := child.ChildByFieldName("left")
			if left == nil || left.Type() != "identifier" {
				continue
			}
			name := nodeText(left, content)
			id := SymbolID(filePath, name)
			out[id] = SymbolInfo{
				ID:         id,
				Name:       name,
				Kind:       "variable",
				Line:       int(node.StartPoint().Row + 1),
				IsExported: !strings.HasPrefix(name, "_"),
				Category:   CategoryVariable,
			}
		}
	}
}

// collectClass adds a class symbol plus "<Class>.<method>" members.
func (a *PythonAnalyzer) collectClass(node *sitter.Node, content []byte, filePath string, out map[string]SymbolInfo) {
	className := fieldText(node, "name", content)
	if className == "" {
		return
	}
	classID := SymbolID(filePath, className)
	out[classID] = SymbolInfo{
		ID:         classID,
		Name:       className,
		Kind:       "class",
		Line:       int(node.StartPoint().Row + 1),
		IsExported: !strings.HasPrefix(className, "_"),
		Category:   CategoryClass,
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		member := unwrapDecorated(body.Child(i))
		if member == nil || member.Type() != "function_definition" {
			continue
		}
		methodName := fieldText(member, "name", content)
		if methodName == "" {
			continue
		}
		qualified := className + "." + methodName
		id := SymbolID(filePath, qualified)
		out[id] = SymbolInfo{
			ID:             id,
			Name:           qualified,
			Kind:           "method",
			Line:           int(member.StartPoint().Row + 1),
			IsExported:     !strings.HasPrefix(methodName, "_"),
			ParentSymbolID: classID,
			Category:       CategoryFunction,
		}
	}
}

// pyImportBinding is one local name bound by an import.
type pyImportBinding struct {
	module       string
	originalName string
}

// SymbolDependencies extracts symbol-level edges for filePath.
//
// Pass 1 collects local-name → module bindings from import statements
// and aliasing clauses. Pass 2 walks call and attribute expressions:
// a call target is first matched against the file's own symbols, then
// against the import map for a cross-file edge whose target file is
// still a module specifier.
func (a *PythonAnalyzer) SymbolDependencies(ctx context.Context, filePath string) ([]SymbolDependency, error) {
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
	imports := make(map[string]pyImportBinding)
	a.collectImportBindings(root, content, imports, 0)

	// Pass 2: reference walk per top-level declaration.
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
		node := unwrapDecorated(root.Child(i))
		if node == nil {
			continue
		}
		sourceID := FileScopeID(norm)
		switch node.Type() {
		case "function_definition", "class_definition":
			if name := fieldText(node, "name", content); name != "" {
				sourceID = SymbolID(norm, name)
			}
		}
		a.scanCalls(node, content, norm, sourceID, byName, imports, emit, 0)
	}

	return edges, nil
}

// collectImportBindings walks for local names bound by imports.
func (a *PythonAnalyzer) collectImportBindings(node *sitter.Node, content []byte, out map[string]pyImportBinding, depth int) {
	if node == nil || depth > maxImportWalkDepth {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import_statement":
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "dotted_name":
					// import a.b: binds local name "a" (head of the path)
					// but calls go through the full dotted qualifier.
					full := nodeText(gc, content)
					out[full] = pyImportBinding{module: full, originalName: "*"}
				case "aliased_import":
					name := gc.ChildByFieldName("name")
					alias := gc.ChildByFieldName("alias")
					if name != nil && alias != nil {
						out[nodeText(alias, content)] = pyImportBinding{
							module:       nodeText(name, content),
							originalName: "*",
						}
					}
				}
			}
		case "import_from_statement":
			module := child.ChildByFieldName("module_name")
			if module == nil {
				continue
			}
			modText := nodeText(module, content)
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				// Skip the module_name itself; remaining dotted_name and
				// aliased_import children are the imported names.
				if gc == module {
					continue
				}
				switch gc.Type() {
				case "dotted_name":
					name := nodeText(gc, content)
					out[name] = pyImportBinding{module: modText, originalName: name}
				case "aliased_import":
					name := gc.ChildByFieldName("name")
					alias := gc.ChildByFieldName("alias")
					if name != nil && alias != nil {
						out[nodeText(alias, content)] = pyImportBinding{
							module:       modText,
							originalName: nodeText(name, content),
						}
					}
				}
			}
		default:
			a.collectImportBindings(child, content, out, depth+1)
		}
	}
}

// scanCalls walks call and attribute expressions emitting edges.
func (a *PythonAnalyzer) scanCalls(node *sitter.Node, content []byte, filePath, sourceID string, byName map[string]string, imports map[string]pyImportBinding, emit func(SymbolDependency), depth int) {
	if node == nil || depth > maxImportWalkDepth*2 {
		return
	}
	if node.Type() == "call" {
		if fn := node.ChildByFieldName("function"); fn != nil {
			a.resolveCallTarget(fn, content, filePath, sourceID, byName, imports, emit)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.scanCalls(node.Child(i), content, filePath, sourceID, byName, imports, emit, depth+1)
	}
}

// resolveCallTarget matches one call target against same-file symbols,
// then the import map.
func (a *PythonAnalyzer) resolveCallTarget(fn *sitter.Node, content []byte, filePath, sourceID string, byName map[string]string, imports map[string]pyImportBinding, emit func(SymbolDependency)) {
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
	case "attribute":
		// qualifier.attr(): the qualifier may be an imported module or
		// a same-file class (Class.method()).
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return
		}
		qualifier := nodeText(obj, content)
		attrName := nodeText(attr, content)
		if _, isLocal := byName[qualifier]; isLocal {
			qualified := qualifier + "." + attrName
			if targetID, ok := byName[qualified]; ok && targetID != sourceID {
				emit(SymbolDependency{
					SourceSymbolID: sourceID,
					TargetSymbolID: targetID,
					TargetFilePath: filePath,
				})
			}
			return
		}
		if binding, ok := imports[qualifier]; ok {
			emit(SymbolDependency{
				SourceSymbolID: sourceID,
				TargetSymbolID: binding.module + ":" + attrName,
				TargetFilePath: binding.module,
			})
		}
	}
}
