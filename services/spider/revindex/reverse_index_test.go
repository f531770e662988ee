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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/spider/services/spider/ast"
)

func dep(path, module string, line int) ast.Dependency {
	return ast.Dependency{
		Path:   path,
		Type:   ast.DependencyImport,
		Line:   line,
		Module: module,
	}
}

func TestAddDependencies_ReplacesPriorEdges(t *testing.T) {
	ri := New()

	// a imports b and c.
	ri.AddDependencies("/src/a.ts", []ast.Dependency{
		dep("/src/b.ts", "./b", 1),
		dep("/src/c.ts", "./c", 2),
	}, nil)

	if got := len(ri.ReferencingFiles("/src/c.ts")); got != 1 {
		t.Fatalf("c referencing files = %d, want 1", got)
	}

	// Re-analysis of a dropped the c import.
	ri.AddDependencies("/src/a.ts", []ast.Dependency{
		dep("/src/b.ts", "./b", 1),
	}, nil)

	if got := ri.ReferencingFiles("/src/c.ts"); len(got) != 0 {
		t.Errorf("c referencing files after re-add = %v, want empty", got)
	}
	refs := ri.ReferencingFiles("/src/b.ts")
	if len(refs) != 1 || refs[0].SourcePath != "/src/a.ts" {
		t.Errorf("b referencing files = %v, want [a]", refs)
	}
}

func TestAddDependencies_SkipsUnresolvedSpecifiers(t *testing.T) {
	ri := New()
	ri.AddDependencies("/src/a.ts", []ast.Dependency{
		{Type: ast.DependencyImport, Line: 1, Module: "react"},
		dep("/src/b.ts", "./b", 2),
	}, nil)

	if got := ri.EdgeCount(); got != 1 {
		t.Errorf("edge count = %d, want 1 (bare specifier skipped)", got)
	}
}

func TestReferencingFiles_AbsentTarget(t *testing.T) {
	ri := New()
	if got := ri.ReferencingFiles("/src/nowhere.ts"); got != nil {
		t.Errorf("absent target = %v, want nil", got)
	}
}

func TestRemoveSource_PrunesEmptyTargets(t *testing.T) {
	ri := New()
	ri.AddDependencies("/src/a.ts", []ast.Dependency{dep("/src/b.ts", "./b", 1)}, &FileHash{MTimeMilli: 1, Size: 10})

	ri.RemoveSource("/src/a.ts")

	if got := ri.EdgeCount(); got != 0 {
		t.Errorf("edge count = %d, want 0", got)
	}
	// A fully-unreferenced target must be indistinguishable from an
	// absent one.
	if got := ri.TargetCount(); got != 0 {
		t.Errorf("target count = %d, want 0", got)
	}
	if _, ok := ri.FileHashFor("/src/a.ts"); ok {
		t.Error("hash for removed source should be gone")
	}
}

func TestIsFileStale(t *testing.T) {
	ri := New()
	hash := FileHash{MTimeMilli: 1000, Size: 50}
	ri.AddDependencies("/src/a.ts", nil, &hash)

	if ri.IsFileStale("/src/a.ts", hash) {
		t.Error("unchanged file should not be stale")
	}
	if !ri.IsFileStale("/src/a.ts", FileHash{MTimeMilli: 2000, Size: 50}) {
		t.Error("mtime change should be stale")
	}
	if !ri.IsFileStale("/src/a.ts", FileHash{MTimeMilli: 1000, Size: 51}) {
		t.Error("size change should be stale")
	}
	if !ri.IsFileStale("/src/unseen.ts", hash) {
		t.Error("unseen file should be stale")
	}
}

func TestReferencingFiles_HighFanIn(t *testing.T) {
	ri := New()
	for i := 0; i < 1000; i++ {
		source := fmt.Sprintf("/src/file%04d.ts", i)
		ri.AddDependencies(source, []ast.Dependency{dep("/src/popular.ts", "./popular", 1)}, nil)
	}

	refs := ri.ReferencingFiles("/src/popular.ts")
	if len(refs) != 1000 {
		t.Fatalf("referencing files = %d, want 1000", len(refs))
	}
	// Sorted by source path.
	if refs[0].SourcePath != "/src/file0000.ts" || refs[999].SourcePath != "/src/file0999.ts" {
		t.Errorf("unexpected ordering: first %s, last %s", refs[0].SourcePath, refs[999].SourcePath)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	reader := ast.OSFileReader{}
	ri := New()

	writeFile := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		return ast.NormalizePath(path)
	}

	fresh := writeFile("fresh.ts", "export const a = 1;\n")
	stale := writeFile("stale.ts", "export const b = 2;\n")
	missing := writeFile("missing.ts", "export const c = 3;\n")

	for _, path := range []string{fresh, stale, missing} {
		hash, err := HashFile(reader, path)
		if err != nil {
			t.Fatalf("HashFile(%s): %v", path, err)
		}
		ri.AddDependencies(path, nil, &hash)
	}

	// Mutate one, delete one.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.FromSlash(stale), future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Remove(filepath.FromSlash(missing)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	result := ri.Validate(reader, 0.2)
	if result.TotalFiles != 3 {
		t.Errorf("total = %d, want 3", result.TotalFiles)
	}
	if len(result.StaleFiles) != 1 || result.StaleFiles[0] != stale {
		t.Errorf("stale = %v, want [%s]", result.StaleFiles, stale)
	}
	if len(result.MissingFiles) != 1 || result.MissingFiles[0] != missing {
		t.Errorf("missing = %v, want [%s]", result.MissingFiles, missing)
	}
	if result.IsValid {
		t.Error("2/3 bad files should exceed a 0.2 threshold")
	}

	generous := ri.Validate(reader, 0.9)
	if !generous.IsValid {
		t.Error("2/3 bad files should pass a 0.9 threshold")
	}
}

func TestValidate_EmptyIndex(t *testing.T) {
	ri := New()
	result := ri.Validate(ast.OSFileReader{}, 0.2)
	if !result.IsValid {
		t.Error("empty index should be valid")
	}
}

func TestRemoveTarget(t *testing.T) {
	ri := New()
	ri.AddDependencies("/src/a.ts", []ast.Dependency{dep("/src/b.ts", "./b", 1)}, nil)

	ri.RemoveTarget("/src/b.ts")

	if got := ri.ReferencingFiles("/src/b.ts"); len(got) != 0 {
		t.Errorf("referencing files after RemoveTarget = %v, want empty", got)
	}
}

func TestClear(t *testing.T) {
	ri := New()
	ri.AddDependencies("/src/a.ts", []ast.Dependency{dep("/src/b.ts", "./b", 1)}, &FileHash{MTimeMilli: 1, Size: 1})
	ri.Clear()

	if ri.EdgeCount() != 0 || ri.TargetCount() != 0 || len(ri.IndexedFiles()) != 0 {
		t.Error("Clear should drop all state")
	}
}
