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
	"path"
	"sort"
	"strings"
)

// Resolver turns module specifiers into absolute file paths.
//
// Description:
//
//	Resolution walks from the importing file's directory, trying
//	extension candidates and directory-index candidates in priority
//	order. The first existing regular file wins; a directory is never a
//	valid result. Path-alias prefixes (tsconfig "paths" style) are
//	remapped before candidate generation.
//
// Thread Safety: Resolver is immutable after construction and safe for
// concurrent use.
type Resolver struct {
	reader FileReader

	// aliases maps a specifier prefix (e.g. "@app/") to an absolute
	// directory prefix. Longest prefix wins.
	aliases map[string]string
}

// NewResolver creates a Resolver reading through reader. aliases may be
// nil.
func NewResolver(reader FileReader, aliases map[string]string) *Resolver {
	if reader == nil {
		reader = OSFileReader{}
	}
	norm := make(map[string]string, len(aliases))
	for prefix, target := range aliases {
		norm[prefix] = NormalizePath(target)
	}
	return &Resolver{reader: reader, aliases: norm}
}

// applyAlias remaps spec through the alias table. Returns the remapped
// absolute path and true, or spec and false when no alias matches.
func (r *Resolver) applyAlias(spec string) (string, bool) {
	var bestPrefix string
	for prefix := range r.aliases {
		if strings.HasPrefix(spec, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
		}
	}
	if bestPrefix == "" {
		return spec, false
	}
	return r.aliases[bestPrefix] + "/" + strings.TrimPrefix(spec, bestPrefix), true
}

// Resolve resolves spec relative to fromFile.
//
// Inputs:
//
//	fromFile - Absolute path of the importing file.
//	spec - The module specifier as written in source.
//	exts - Extension candidates in priority order (".ts", ".tsx", ...).
//	indexNames - Directory-index base names in priority order
//	             ("index" for TS, "__init__" for Python, "mod" for Rust).
//
// Outputs:
//
//	string - Absolute normalized path of the resolved regular file.
//	bool - False when nothing resolves (bare package specifiers,
//	       missing files, directory-only matches).
func (r *Resolver) Resolve(fromFile, spec string, exts, indexNames []string) (string, bool) {
	if spec == "" {
		return "", false
	}

	if remapped, ok := r.applyAlias(spec); ok {
		return r.resolveBase(remapped, exts, indexNames)
	}

	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".." {
		fromDir := path.Dir(NormalizePath(fromFile))
		return r.resolveBase(path.Join(fromDir, spec), exts, indexNames)
	}

	if path.IsAbs(spec) {
		return r.resolveBase(NormalizePath(spec), exts, indexNames)
	}

	// Bare specifier: a package import, not a workspace file.
	return "", false
}

// resolveBase tries candidates for an already-absolute base path.
func (r *Resolver) resolveBase(base string, exts, indexNames []string) (string, bool) {
	base = path.Clean(base)

	// The specifier may already name a file with extension.
	if hasKnownExt(base, exts) && isRegularFile(r.reader, base) {
		return base, true
	}

	// Extension candidates: base.ext
	for _, ext := range exts {
		candidate := base + ext
		if isRegularFile(r.reader, candidate) {
			return candidate, true
		}
	}

	// Directory-index candidates: base/index.ext
	for _, idx := range indexNames {
		for _, ext := range exts {
			candidate := base + "/" + idx + ext
			if isRegularFile(r.reader, candidate) {
				return candidate, true
			}
		}
	}

	return "", false
}

// hasKnownExt reports whether p ends in one of exts.
func hasKnownExt(p string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// Aliases returns the configured alias prefixes, sorted. Used for
// diagnostics.
func (r *Resolver) Aliases() []string {
	prefixes := make([]string, 0, len(r.aliases))
	for p := range r.aliases {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}
