// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package revindex

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/spider/services/spider/ast"
)

var importRe = regexp.MustCompile(`import .* from '(.+)'`)

// lineAnalyze is a minimal import extractor for scanner tests: one
// relative specifier per import line, resolved by path join plus ".ts".
func lineAnalyze(calls *atomic.Int64) AnalyzeFunc {
	return func(_ context.Context, path string) ([]ast.Dependency, error) {
		if calls != nil {
			calls.Add(1)
		}
		content, err := os.ReadFile(filepath.FromSlash(path))
		if err != nil {
			return nil, err
		}
		var deps []ast.Dependency
		for i, line := range strings.Split(string(content), "\n") {
			m := importRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			spec := m[1]
			resolved := ""
			if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
				resolved = ast.NormalizePath(filepath.Join(filepath.Dir(path), spec) + ".ts")
			}
			deps = append(deps, ast.Dependency{
				Path:   resolved,
				Type:   ast.DependencyImport,
				Line:   i + 1,
				Module: spec,
			})
		}
		return deps, nil
	}
}

func supportsTS(path string) bool {
	return strings.HasSuffix(path, ".ts")
}

func writeScanFixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	write("target.ts", "export const answer = 42;\n")
	write("a.ts", "import { answer } from './target';\n")
	write("b.ts", "import { other } from './other';\n")
	write("c.ts", "// mentions target in a comment only\nexport const c = 1;\n")
	write("other.ts", "export const other = 2;\n")
	write("node_modules/dep.ts", "import { answer } from '../target';\n")
	write("notes.txt", "talks about target.ts but is not source\n")

	return dir, ast.NormalizePath(filepath.Join(dir, "target.ts"))
}

func TestScanner_FindReferencingFiles(t *testing.T) {
	dir, target := writeScanFixture(t)
	scanner := NewScanner(ast.OSFileReader{}, supportsTS, lineAnalyze(nil))

	refs, err := scanner.FindReferencingFiles(context.Background(), dir, target)
	if err != nil {
		t.Fatalf("FindReferencingFiles: %v", err)
	}

	if len(refs) != 1 {
		t.Fatalf("referencing files = %d, want 1: %v", len(refs), refs)
	}
	wantSource := ast.NormalizePath(filepath.Join(dir, "a.ts"))
	if refs[0].SourcePath != wantSource {
		t.Errorf("source = %s, want %s", refs[0].SourcePath, wantSource)
	}
	if refs[0].Module != "./target" {
		t.Errorf("module = %q, want %q", refs[0].Module, "./target")
	}
}

func TestScanner_BasenamePrefilterSkipsParse(t *testing.T) {
	dir, target := writeScanFixture(t)
	var calls atomic.Int64
	scanner := NewScanner(ast.OSFileReader{}, supportsTS, lineAnalyze(&calls))

	if _, err := scanner.FindReferencingFiles(context.Background(), dir, target); err != nil {
		t.Fatalf("FindReferencingFiles: %v", err)
	}

	// Only a.ts and c.ts contain the substring "target"; b.ts and
	// other.ts must be skipped before the parse.
	if got := calls.Load(); got != 2 {
		t.Errorf("analyze calls = %d, want 2", got)
	}
}

func TestScanner_CollectSourceFiles(t *testing.T) {
	dir, _ := writeScanFixture(t)
	scanner := NewScanner(ast.OSFileReader{}, supportsTS, lineAnalyze(nil))

	files, err := scanner.CollectSourceFiles(context.Background(), dir)
	if err != nil {
		t.Fatalf("CollectSourceFiles: %v", err)
	}

	if len(files) != 5 {
		t.Fatalf("files = %d, want 5: %v", len(files), files)
	}
	for _, f := range files {
		if strings.Contains(f, "node_modules") {
			t.Errorf("ignored directory leaked into walk: %s", f)
		}
		if strings.HasSuffix(f, ".txt") {
			t.Errorf("unsupported file leaked into walk: %s", f)
		}
	}
}

func TestScanner_AgreesWithReverseIndex(t *testing.T) {
	dir, target := writeScanFixture(t)
	analyze := lineAnalyze(nil)
	scanner := NewScanner(ast.OSFileReader{}, supportsTS, analyze)
	ctx := context.Background()

	// Build the index from the same analyzer output.
	ri := New()
	files, err := scanner.CollectSourceFiles(ctx, dir)
	if err != nil {
		t.Fatalf("CollectSourceFiles: %v", err)
	}
	for _, f := range files {
		deps, err := analyze(ctx, f)
		if err != nil {
			t.Fatalf("analyze %s: %v", f, err)
		}
		ri.AddDependencies(f, deps, nil)
	}

	indexed := ri.ReferencingFiles(target)
	scanned, err := scanner.FindReferencingFiles(ctx, dir, target)
	if err != nil {
		t.Fatalf("FindReferencingFiles: %v", err)
	}

	if len(indexed) != len(scanned) {
		t.Fatalf("index found %d refs, scan found %d", len(indexed), len(scanned))
	}
	for i := range indexed {
		if indexed[i].SourcePath != scanned[i].SourcePath {
			t.Errorf("ref %d: index %s, scan %s", i, indexed[i].SourcePath, scanned[i].SourcePath)
		}
	}
}
