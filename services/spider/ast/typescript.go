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
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// DefaultMaxProjectFiles is the default resident-file ceiling for the
// TypeScript analyzer's project arena. Once the arena holds this many
// parsed files, the whole arena is discarded and recreated empty before
// the next file is added. There is no per-file eviction: the trade is
// re-parse cost for bounded memory.
const DefaultMaxProjectFiles = 64

// tsExtensions are the extension candidates for TypeScript/JavaScript
// module resolution, in priority order.
var tsExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}

// TypeScriptAnalyzerOption configures a TypeScriptAnalyzer.
type TypeScriptAnalyzerOption func(*TypeScriptAnalyzer)

// WithTypeScriptMaxFileSize sets the maximum file size the analyzer
// will accept.
func WithTypeScriptMaxFileSize(bytes int64) TypeScriptAnalyzerOption {
	return func(a *TypeScriptAnalyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// WithTypeScriptMaxProjectFiles sets the resident-file ceiling of the
// project arena.
func WithTypeScriptMaxProjectFiles(n int) TypeScriptAnalyzerOption {
	return func(a *TypeScriptAnalyzer) {
		if n > 0 {
			a.maxProjectFiles = n
		}
	}
}

// TypeScriptAnalyzer analyzes TypeScript and JavaScript sources.
//
// Description:
//
//	The analyzer extracts import/require/export/dynamic-import
//	dependencies, top-level symbols (functions, classes and members,
//	interfaces, type aliases, enums, variables), symbol-level
//	dependencies, and declaration signatures for breaking-change
//	comparison. Parsed files are held in a bounded project arena so
//	repeated symbol queries against the same file do not re-parse.
//
// Thread Safety:
//
//	Safe for concurrent use. Each parse creates its own tree-sitter
//	parser; the shared arena is mutex-protected.
type TypeScriptAnalyzer struct {
	maxFileSize     int64
	maxProjectFiles int
	reader          FileReader
	resolver        *Resolver

	mu      sync.Mutex
	project map[string]*projectFile
}

// projectFile is one resident parsed source in the project arena.
type projectFile struct {
	tree    *sitter.Tree
	content []byte
}

// NewTypeScriptAnalyzer creates a TypeScriptAnalyzer reading through
// reader and resolving module specifiers through resolver.
func NewTypeScriptAnalyzer(reader FileReader, resolver *Resolver, opts ...TypeScriptAnalyzerOption) *TypeScriptAnalyzer {
	if reader == nil {
		reader = OSFileReader{}
	}
	if resolver == nil {
		resolver = NewResolver(reader, nil)
	}
	a := &TypeScriptAnalyzer{
		maxFileSize:     DefaultMaxFileSize,
		maxProjectFiles: DefaultMaxProjectFiles,
		reader:          reader,
		resolver:        resolver,
		project:         make(map[string]*projectFile),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns the canonical language name for this analyzer.
func (a *TypeScriptAnalyzer) Language() string {
	return "typescript"
}

// Extensions returns the file extensions this analyzer handles.
func (a *TypeScriptAnalyzer) Extensions() []string {
	return tsExtensions
}

// ResolvePath implements DependencyAnalyzer.
func (a *TypeScriptAnalyzer) ResolvePath(fromFile, module string) (string, bool) {
	return a.resolver.Resolve(fromFile, module, tsExtensions, []string{"index"})
}

// grammarFor picks the tree-sitter grammar by extension. TSX has its
// own grammar; plain JavaScript parses under the javascript grammar to
// keep JSX and older syntax happy.
func grammarFor(filePath string) *sitter.Language {
	switch {
	case strings.HasSuffix(filePath, ".tsx"):
		return tsx.GetLanguage()
	case strings.HasSuffix(filePath, ".js"), strings.HasSuffix(filePath, ".jsx"),
		strings.HasSuffix(filePath, ".mjs"), strings.HasSuffix(filePath, ".cjs"):
		return javascript.GetLanguage()
	default:
		return typescript.GetLanguage()
	}
}

// parseFile loads filePath into the project arena, reusing the resident
// tree when present.
//
// The arena enforces the resident-file ceiling: at capacity, every held
// tree is closed and the arena restarts empty before the new file is
// added. Whole-arena reset is deliberate; see DefaultMaxProjectFiles.
func (a *TypeScriptAnalyzer) parseFile(ctx context.Context, filePath string) (*projectFile, error) {
	norm := NormalizePath(filePath)

	a.mu.Lock()
	if pf, ok := a.project[norm]; ok {
		a.mu.Unlock()
		return pf, nil
	}
	a.mu.Unlock()

	content, err := a.reader.ReadFile(norm)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(content)) > a.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), a.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", norm),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	// Create tree-sitter parser (new instance per call for thread safety)
	parser := sitter.NewParser()
	parser.SetLanguage(grammarFor(norm))
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}

	pf := &projectFile{tree: tree, content: content}

	a.mu.Lock()
	if len(a.project) >= a.maxProjectFiles {
		slog.Info("project arena ceiling reached, resetting",
			slog.Int("resident_files", len(a.project)),
			slog.Int("ceiling", a.maxProjectFiles))
		for _, old := range a.project {
			old.tree.Close()
		}
		a.project = make(map[string]*projectFile)
	}
	// Last-write-wins on concurrent parses of the same file.
	if existing, ok := a.project[norm]; ok {
		existing.tree.Close()
	}
	a.project[norm] = pf
	a.mu.Unlock()

	return pf, nil
}

// Invalidate drops filePath from the project arena so the next parse
// re-reads it from disk.
func (a *TypeScriptAnalyzer) Invalidate(filePath string) {
	norm := NormalizePath(filePath)
	a.mu.Lock()
	if pf, ok := a.project[norm]; ok {
		pf.tree.Close()
		delete(a.project, norm)
	}
	a.mu.Unlock()
}

// ParseImports extracts import/require/export/dynamic dependencies.
//
// Outputs:
//
//	[]Dependency - One entry per distinct module specifier, first
//	statement wins. Path is filled for resolvable relative specifiers.
//	error - Read/parse failures, classified downstream.
func (a *TypeScriptAnalyzer) ParseImports(ctx context.Context, filePath string) ([]Dependency, error) {
	ctx, span := startParseSpan(ctx, "typescript", filePath, 0)
	defer span.End()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	pf, err := a.parseFile(ctx, filePath)
	if err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, err
	}

	norm := NormalizePath(filePath)
	deps := newDependencySet()
	root := pf.tree.RootNode()

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "import_statement":
			a.collectImportStatement(child, pf.content, deps)
		case "export_statement":
			a.collectExportFrom(child, pf.content, deps)
		case "lexical_declaration", "variable_declaration":
			a.collectRequire(child, pf.content, deps)
		}
	}

	// Dynamic imports can appear anywhere in the tree.
	a.collectDynamicImports(root, pf.content, deps)

	out := deps.list()
	for i := range out {
		if resolved, ok := a.ResolvePath(norm, out[i].Module); ok {
			out[i].Path = resolved
		}
	}

	setParseSpanResult(span, 0, 0)
	recordParseMetrics(ctx, "typescript", time.Since(start), 0, true)
	return out, nil
}

// collectImportStatement handles ES module import statements.
func (a *TypeScriptAnalyzer) collectImportStatement(node *sitter.Node, content []byte, deps *dependencySet) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			module := stringContent(child, content)
			deps.add(Dependency{
				Type:   DependencyImport,
				Line:   int(node.StartPoint().Row + 1),
				Module: module,
			})
		}
	}
}

// collectExportFrom handles re-export edges: export { X } from './x',
// export * from './x'.
func (a *TypeScriptAnalyzer) collectExportFrom(node *sitter.Node, content []byte, deps *dependencySet) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			module := stringContent(child, content)
			deps.add(Dependency{
				Type:   DependencyExport,
				Line:   int(node.StartPoint().Row + 1),
				Module: module,
			})
		}
	}
}

// collectRequire handles const foo = require('bar') bindings.
func (a *TypeScriptAnalyzer) collectRequire(node *sitter.Node, content []byte, deps *dependencySet) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		value := child.ChildByFieldName("value")
		if value == nil || value.Type() != "call_expression" {
			continue
		}
		if module := requireTarget(value, content); module != "" {
			deps.add(Dependency{
				Type:   DependencyRequire,
				Line:   int(node.StartPoint().Row + 1),
				Module: module,
			})
		}
	}
}

// requireTarget returns the module path of a require() call, or "".
func requireTarget(call *sitter.Node, content []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil || nodeText(fn, content) != "require" {
		return ""
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		arg := args.Child(i)
		if arg.Type() == "string" {
			return stringContent(arg, content)
		}
	}
	return ""
}

// collectDynamicImports walks the whole tree for import('./x')
// expressions.
func (a *TypeScriptAnalyzer) collectDynamicImports(node *sitter.Node, content []byte, deps *dependencySet) {
	if node.Type() == "call_expression" {
		fn := node.ChildByFieldName("function")
		if fn != nil && fn.Type() == "import" {
			args := node.ChildByFieldName("arguments")
			if args != nil {
				for i := 0; i < int(args.ChildCount()); i++ {
					arg := args.Child(i)
					if arg.Type() == "string" {
						deps.add(Dependency{
							Type:   DependencyDynamic,
							Line:   int(node.StartPoint().Row + 1),
							Module: stringContent(arg, content),
						})
					}
				}
			}
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.collectDynamicImports(node.Child(i), content, deps)
	}
}

// AnalyzeFile extracts all top-level symbols and class members.
func (a *TypeScriptAnalyzer) AnalyzeFile(ctx context.Context, filePath string) (map[string]SymbolInfo, error) {
	ctx, span := startParseSpan(ctx, "typescript", filePath, 0)
	defer span.End()
	start := time.Now()

	pf, err := a.parseFile(ctx, filePath)
	if err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, err
	}

	norm := NormalizePath(filePath)
	symbols := make(map[string]SymbolInfo)
	root := pf.tree.RootNode()

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() == "export_statement" {
			for j := 0; j < int(child.ChildCount()); j++ {
				a.collectDeclaration(child.Child(j), pf.content, norm, true, symbols)
			}
			continue
		}
		a.collectDeclaration(child, pf.content, norm, false, symbols)
	}

	setParseSpanResult(span, len(symbols), 0)
	recordParseMetrics(ctx, "typescript", time.Since(start), len(symbols), true)
	return symbols, nil
}

// collectDeclaration adds the symbol(s) declared by node, if any.
func (a *TypeScriptAnalyzer) collectDeclaration(node *sitter.Node, content []byte, filePath string, exported bool, out map[string]SymbolInfo) {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration":
		a.addNamedSymbol(node, content, filePath, exported, "function", CategoryFunction, out)
	case "class_declaration", "abstract_class_declaration":
		a.collectClass(node, content, filePath, exported, out)
	case "interface_declaration":
		a.addNamedSymbol(node, content, filePath, exported, "interface", CategoryInterface, out)
	case "type_alias_declaration":
		a.addNamedSymbol(node, content, filePath, exported, "type_alias", CategoryType, out)
	case "enum_declaration":
		a.addNamedSymbol(node, content, filePath, exported, "enum", CategoryType, out)
	case "lexical_declaration", "variable_declaration":
		a.collectVariables(node, content, filePath, exported, out)
	}
}

// addNamedSymbol adds a declaration with a "name" field.
func (a *TypeScriptAnalyzer) addNamedSymbol(node *sitter.Node, content []byte, filePath string, exported bool, kind string, category SymbolCategory, out map[string]SymbolInfo) {
	name := fieldText(node, "name", content)
	if name == "" {
		return
	}
	sym := SymbolInfo{
		ID:         SymbolID(filePath, name),
		Name:       name,
		Kind:       kind,
		Line:       int(node.StartPoint().Row + 1),
		IsExported: exported,
		Category:   category,
	}
	out[sym.ID] = sym
}

// collectClass adds a class symbol plus one symbol per member, named
// "<Class>.<member>".
func (a *TypeScriptAnalyzer) collectClass(node *sitter.Node, content []byte, filePath string, exported bool, out map[string]SymbolInfo) {
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
		IsExported: exported,
		Category:   CategoryClass,
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		var memberName, kind string
		var category SymbolCategory
		switch member.Type() {
		case "method_definition":
			memberName = fieldText(member, "name", content)
			kind = "method"
			category = CategoryFunction
		case "public_field_definition":
			memberName = fieldText(member, "name", content)
			kind = "property"
			category = CategoryVariable
		default:
			continue
		}
		if memberName == "" {
			continue
		}
		qualified := className + "." + memberName
		id := SymbolID(filePath, qualified)
		out[id] = SymbolInfo{
			ID:             id,
			Name:           qualified,
			Kind:           kind,
			Line:           int(member.StartPoint().Row + 1),
			IsExported:     exported,
			ParentSymbolID: classID,
			Category:       category,
		}
	}
}

// collectVariables adds one symbol per declarator in a variable
// declaration.
func (a *TypeScriptAnalyzer) collectVariables(node *sitter.Node, content []byte, filePath string, exported bool, out map[string]SymbolInfo) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		name := fieldText(child, "name", content)
		if name == "" {
			continue
		}
		kind := "variable"
		category := CategoryVariable
		if value := child.ChildByFieldName("value"); value != nil {
			if value.Type() == "arrow_function" || value.Type() == "function_expression" || value.Type() == "function" {
				kind = "function"
				category = CategoryFunction
			}
		}
		id := SymbolID(filePath, name)
		out[id] = SymbolInfo{
			ID:         id,
			Name:       name,
			Kind:       kind,
			Line:       int(node.StartPoint().Row + 1),
			IsExported: exported,
			Category:   category,
		}
	}
}

// SymbolDependencies extracts symbol-level edges for filePath.
//
// Description:
//
//	Intra-file edges come from a syntactic identifier scan of each
//	declaration's subtree against the file's own symbol table (this is
//	the internal export dependency graph: an exported type referenced
//	only inside another export's signature still counts as used).
//	Cross-file edges come from the import map: local names bound by
//	import clauses, matched against identifiers and member-expression
//	qualifiers. Cross-file targets keep the module specifier in
//	TargetFilePath; the facade resolves them to absolute paths.
func (a *TypeScriptAnalyzer) SymbolDependencies(ctx context.Context, filePath string) ([]SymbolDependency, error) {
	pf, err := a.parseFile(ctx, filePath)
	if err != nil {
		return nil, err
	}
	norm := NormalizePath(filePath)

	symbols, err := a.AnalyzeFile(ctx, filePath)
	if err != nil {
		return nil, err
	}

	// Name → symbol ID for same-file matching. Members are reachable
	// under their qualified name only.
	byName := make(map[string]string, len(symbols))
	for id, sym := range symbols {
		byName[sym.Name] = id
	}

	imports := a.importMap(pf.tree.RootNode(), pf.content)

	var edges []SymbolDependency
	seen := make(map[string]bool)
	addEdge := func(e SymbolDependency) {
		key := e.SourceSymbolID + "\x00" + e.TargetSymbolID
		if !seen[key] {
			seen[key] = true
			edges = append(edges, e)
		}
	}

	root := pf.tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		decl := child
		if child.Type() == "export_statement" {
			if d := child.ChildByFieldName("declaration"); d != nil {
				decl = d
			}
		}
		sourceID := a.declarationSymbolID(decl, pf.content, norm)
		if sourceID == "" {
			sourceID = FileScopeID(norm)
		}
		a.scanReferences(decl, pf.content, norm, sourceID, byName, imports, addEdge)
	}

	return edges, nil
}

// declarationSymbolID returns the symbol ID a top-level node declares,
// or "" for non-declarations (statements run at module scope).
func (a *TypeScriptAnalyzer) declarationSymbolID(node *sitter.Node, content []byte, filePath string) string {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration",
		"interface_declaration", "type_alias_declaration", "enum_declaration":
		if name := fieldText(node, "name", content); name != "" {
			return SymbolID(filePath, name)
		}
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "variable_declarator" {
				if name := fieldText(child, "name", content); name != "" {
					return SymbolID(filePath, name)
				}
			}
		}
	}
	return ""
}

// tsImportBinding is one local name bound by an import clause.
type tsImportBinding struct {
	module       string
	originalName string
	typeOnly     bool
}

// importMap collects local-name → module bindings from import
// statements and require declarations in a single pass.
func (a *TypeScriptAnalyzer) importMap(root *sitter.Node, content []byte) map[string]tsImportBinding {
	bindings := make(map[string]tsImportBinding)

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		switch node.Type() {
		case "import_statement":
			a.collectImportBindings(node, content, bindings)
		case "lexical_declaration", "variable_declaration":
			for j := 0; j < int(node.ChildCount()); j++ {
				child := node.Child(j)
				if child.Type() != "variable_declarator" {
					continue
				}
				value := child.ChildByFieldName("value")
				if value == nil || value.Type() != "call_expression" {
					continue
				}
				module := requireTarget(value, content)
				name := fieldText(child, "name", content)
				if module != "" && name != "" {
					bindings[name] = tsImportBinding{module: module, originalName: name}
				}
			}
		}
	}
	return bindings
}

// collectImportBindings extracts the local names bound by one import
// statement: default alias, namespace alias, and named specifiers
// (with "as" aliases).
func (a *TypeScriptAnalyzer) collectImportBindings(node *sitter.Node, content []byte, out map[string]tsImportBinding) {
	var module string
	typeOnly := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string" {
			module = stringContent(child, content)
		}
		if child.Type() == "type" {
			typeOnly = true
		}
	}
	if module == "" {
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		clause := node.Child(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.ChildCount()); j++ {
			child := clause.Child(j)
			switch child.Type() {
			case "identifier":
				// Default import: import foo from 'bar'
				name := nodeText(child, content)
				out[name] = tsImportBinding{module: module, originalName: "default", typeOnly: typeOnly}
			case "namespace_import":
				// import * as foo from 'bar'
				for k := 0; k < int(child.ChildCount()); k++ {
					gc := child.Child(k)
					if gc.Type() == "identifier" {
						name := nodeText(gc, content)
						out[name] = tsImportBinding{module: module, originalName: "*", typeOnly: typeOnly}
					}
				}
			case "named_imports":
				for k := 0; k < int(child.ChildCount()); k++ {
					spec := child.Child(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					original := fieldText(spec, "name", content)
					local := fieldText(spec, "alias", content)
					if local == "" {
						local = original
					}
					if local != "" {
						out[local] = tsImportBinding{module: module, originalName: original, typeOnly: typeOnly}
					}
				}
			}
		}
	}
}

// scanReferences walks node's subtree and emits edges for identifiers
// matching same-file symbols or imported names.
func (a *TypeScriptAnalyzer) scanReferences(node *sitter.Node, content []byte, filePath, sourceID string, byName map[string]string, imports map[string]tsImportBinding, emit func(SymbolDependency)) {
	switch node.Type() {
	case "identifier", "type_identifier":
		name := nodeText(node, content)
		if targetID, ok := byName[name]; ok && targetID != sourceID {
			emit(SymbolDependency{
				SourceSymbolID: sourceID,
				TargetSymbolID: targetID,
				TargetFilePath: filePath,
				IsTypeOnly:     node.Type() == "type_identifier",
			})
			return
		}
		if binding, ok := imports[name]; ok {
			target := binding.originalName
			if target == "*" || target == "default" {
				target = name
			}
			emit(SymbolDependency{
				SourceSymbolID: sourceID,
				TargetSymbolID: binding.module + ":" + target,
				TargetFilePath: binding.module,
				IsTypeOnly:     binding.typeOnly || node.Type() == "type_identifier",
			})
		}
		return
	case "member_expression":
		// For ns.fn() only the qualifier can be an import binding.
		if obj := node.ChildByFieldName("object"); obj != nil {
			a.scanReferences(obj, content, filePath, sourceID, byName, imports, emit)
		}
		if prop := node.ChildByFieldName("property"); prop != nil && prop.Type() != "property_identifier" {
			a.scanReferences(prop, content, filePath, sourceID, byName, imports, emit)
		}
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		a.scanReferences(node.Child(i), content, filePath, sourceID, byName, imports, emit)
	}
}

// dependencySet deduplicates dependencies per module specifier,
// keeping the first statement seen.
type dependencySet struct {
	order []Dependency
	byMod map[string]bool
}

func newDependencySet() *dependencySet {
	return &dependencySet{byMod: make(map[string]bool)}
}

func (s *dependencySet) add(d Dependency) {
	if d.Module == "" || s.byMod[d.Module] {
		return
	}
	s.byMod[d.Module] = true
	s.order = append(s.order, d)
}

func (s *dependencySet) list() []Dependency {
	out := make([]Dependency, len(s.order))
	copy(out, s.order)
	return out
}

// nodeText returns the source text of node.
func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

// fieldText returns the text of node's named field, or "".
func fieldText(node *sitter.Node, field string, content []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, content)
}

// stringContent strips quotes from a string literal node.
func stringContent(node *sitter.Node, content []byte) string {
	text := nodeText(node, content)
	return strings.Trim(text, "'\"`")
}
