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
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Analyzer is the full per-language capability set: file-level
// dependency extraction plus symbol-level analysis.
type Analyzer interface {
	DependencyAnalyzer
	SymbolAnalyzer
}

// Registry dispatches files to analyzers by extension.
//
// Thread Safety: Registry is immutable after construction and safe for
// concurrent use.
type Registry struct {
	byExt map[string]Analyzer
}

// NewRegistry builds a registry from the given analyzers. Later
// analyzers win on extension collision.
func NewRegistry(analyzers ...Analyzer) *Registry {
	r := &Registry{byExt: make(map[string]Analyzer)}
	for _, a := range analyzers {
		for _, ext := range a.Extensions() {
			r.byExt[strings.ToLower(ext)] = a
		}
	}
	return r
}

// ForFile returns the analyzer for path's extension. Unsupported
// extensions return ErrUnsupportedLanguage; callers must not treat that
// as an empty result.
func (r *Registry) ForFile(path string) (Analyzer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	a, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: extension %q (%s)", ErrUnsupportedLanguage, ext, path)
	}
	return a, nil
}

// Supports reports whether path's extension maps to an analyzer.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns all registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
