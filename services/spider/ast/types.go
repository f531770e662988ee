// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast provides per-language source analyzers for the Spider engine.
//
// Analyzers turn file content into file-level dependency edges and, on
// demand, function/class-level symbols and the calls between them. Three
// analyzers are provided: TypeScript/JavaScript (full-fidelity symbol and
// signature analysis), Python, and Rust (grammar-based extraction). All
// three parse with tree-sitter; selection is by file extension through a
// Registry.
//
// # Ownership Model
//
// Analyzers never own the data they return. Dependency and SymbolInfo
// values are plain values that callers may cache, serialize, or mutate
// freely after an analysis call returns.
//
// # Thread Safety
//
// All analyzers are safe for concurrent use. Each ParseImports or
// AnalyzeFile call creates its own tree-sitter parser instance; shared
// analyzer state (the TypeScript project arena) is mutex-protected.
package ast

import (
	"context"
	"path/filepath"
	"strings"
)

// Default analyzer limits.
const (
	// DefaultMaxFileSize is the maximum file size an analyzer will accept.
	// Files larger than this are rejected with ErrFileTooLarge.
	DefaultMaxFileSize = 5 * 1024 * 1024

	// WarnFileSize is the threshold above which a warning is logged for
	// slow-to-parse files.
	WarnFileSize = 1024 * 1024
)

// DependencyType classifies how one file depends on another.
type DependencyType string

// Dependency edge types.
const (
	// DependencyImport is a static import (ES import, Python import/from,
	// Rust use/mod).
	DependencyImport DependencyType = "import"

	// DependencyRequire is a CommonJS require() binding.
	DependencyRequire DependencyType = "require"

	// DependencyExport is a re-export edge (export ... from './x').
	DependencyExport DependencyType = "export"

	// DependencyDynamic is a dynamic import expression (import('./x'),
	// Python importlib.import_module).
	DependencyDynamic DependencyType = "dynamic"
)

// Dependency is one resolved import/require/export/dynamic edge from a
// source file to a target file.
//
// Dependencies are unique per (source file, Module): duplicate specifiers
// within one file collapse to a single entry.
type Dependency struct {
	// Path is the absolute, normalized path of the target file.
	Path string `json:"path"`

	// Type classifies the dependency statement.
	Type DependencyType `json:"type"`

	// Line is the 1-based line of the statement in the source file.
	Line int `json:"line"`

	// Module is the original module specifier as written in source
	// (e.g. "./utils", "pandas.core", "crate::db").
	Module string `json:"module"`
}

// SymbolCategory is the language-independent grouping of a symbol.
type SymbolCategory string

// Symbol categories.
const (
	CategoryFunction  SymbolCategory = "function"
	CategoryClass     SymbolCategory = "class"
	CategoryVariable  SymbolCategory = "variable"
	CategoryInterface SymbolCategory = "interface"
	CategoryType      SymbolCategory = "type"
	CategoryOther     SymbolCategory = "other"
)

// SymbolInfo describes one named declaration within a file.
//
// A symbol's ID is "<filePath>:<name>" and is stable across re-analysis
// of the same unchanged name. Class members use "<Class>.<member>" as
// their name.
type SymbolInfo struct {
	// ID uniquely identifies the symbol as "<filePath>:<name>".
	ID string `json:"id"`

	// Name is the declared name ("Foo", "Foo.bar").
	Name string `json:"name"`

	// Kind is the language-specific declaration tag
	// (e.g. "function", "class", "method", "struct", "trait").
	Kind string `json:"kind"`

	// Line is the 1-based declaration line.
	Line int `json:"line"`

	// IsExported reports whether the symbol is visible outside the file.
	IsExported bool `json:"is_exported"`

	// ParentSymbolID is the owning class/namespace symbol ID, empty for
	// top-level symbols.
	ParentSymbolID string `json:"parent_symbol_id,omitempty"`

	// Category is the language-independent grouping.
	Category SymbolCategory `json:"category"`
}

// FileScopeName is the synthetic symbol name representing top-level
// module scope usage not inside any named declaration.
const FileScopeName = "(file)"

// FileScopeID returns the synthetic symbol ID for a file's module scope.
func FileScopeID(filePath string) string {
	return filePath + ":" + FileScopeName
}

// SymbolID builds a symbol ID from its file path and name.
func SymbolID(filePath, name string) string {
	return filePath + ":" + name
}

// SymbolDependency is one symbol-level edge: a use of targetSymbolID
// from sourceSymbolID.
//
// TargetFilePath starts as a module specifier inside the analyzers and
// MUST be resolved to an absolute path before cross-file comparison;
// the Spider facade performs that resolution.
type SymbolDependency struct {
	// SourceSymbolID is the using symbol, or FileScopeID(file) for
	// module-scope usage.
	SourceSymbolID string `json:"source_symbol_id"`

	// TargetSymbolID is the used symbol's ID.
	TargetSymbolID string `json:"target_symbol_id"`

	// TargetFilePath is the file declaring the target symbol.
	TargetFilePath string `json:"target_file_path"`

	// IsTypeOnly marks type-only references (TypeScript `import type`,
	// type annotations).
	IsTypeOnly bool `json:"is_type_only,omitempty"`
}

// DependencyAnalyzer extracts file-level dependencies for one language
// family.
type DependencyAnalyzer interface {
	// Language returns the canonical language name ("typescript",
	// "python", "rust").
	Language() string

	// Extensions returns the file extensions this analyzer handles,
	// including the leading dot.
	Extensions() []string

	// ParseImports reads filePath and extracts its import/require/
	// export/dynamic-import statements. Returned dependencies carry the
	// original module specifier; Path is filled for specifiers the
	// analyzer can resolve, and left empty otherwise.
	ParseImports(ctx context.Context, filePath string) ([]Dependency, error)

	// ResolvePath resolves a module specifier relative to the importing
	// file. Returns the absolute path of an existing regular file and
	// true, or "" and false if the specifier cannot be resolved.
	ResolvePath(fromFile, module string) (string, bool)
}

// SymbolAnalyzer extracts symbol-level data for one language family.
// Implemented alongside DependencyAnalyzer but kept separate: dependency
// crawling never pays the symbol-extraction cost.
type SymbolAnalyzer interface {
	// AnalyzeFile extracts all top-level symbols (and class members)
	// declared in filePath, keyed by symbol ID.
	AnalyzeFile(ctx context.Context, filePath string) (map[string]SymbolInfo, error)

	// SymbolDependencies extracts symbol-to-symbol edges for filePath:
	// intra-file references plus cross-file edges through the file's
	// import map. Cross-file targets carry an unresolved module
	// specifier in TargetFilePath.
	SymbolDependencies(ctx context.Context, filePath string) ([]SymbolDependency, error)
}

// NormalizePath converts a path to the canonical form used for all map
// keys: absolute, cleaned, forward slashes. Two representations of the
// same file must normalize identically.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return filepath.ToSlash(abs)
}

// BaseNameNoExt returns the file name without directory or extension,
// used by the fallback reference scanner's substring pre-check.
func BaseNameNoExt(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
