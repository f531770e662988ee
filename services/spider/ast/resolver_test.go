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
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeTree materializes a file map under a temp directory and returns
// the normalized root. Shared across the package's analyzer tests.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return NormalizePath(dir)
}

var tsResolveExts = []string{".ts", ".tsx"}

func TestResolve_RelativeFile(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/app.ts":    "",
		"src/helper.ts": "",
	})
	r := NewResolver(OSFileReader{}, nil)

	got, ok := r.Resolve(dir+"/src/app.ts", "./helper", tsResolveExts, []string{"index"})
	if !ok {
		t.Fatal("./helper should resolve")
	}
	if want := dir + "/src/helper.ts"; got != want {
		t.Errorf("resolved = %s, want %s", got, want)
	}
}

func TestResolve_ParentRelative(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/deep/app.ts": "",
		"src/shared.ts":   "",
	})
	r := NewResolver(OSFileReader{}, nil)

	got, ok := r.Resolve(dir+"/src/deep/app.ts", "../shared", tsResolveExts, []string{"index"})
	if !ok || got != dir+"/src/shared.ts" {
		t.Errorf("resolved = %s (%v), want %s", got, ok, dir+"/src/shared.ts")
	}
}

func TestResolve_DirectoryIndexNeverBareDirectory(t *testing.T) {
	// Only utils/index.ts exists. The resolution must land on the index
	// file, never the directory itself.
	dir := writeTree(t, map[string]string{
		"src/app.ts":         "",
		"src/utils/index.ts": "",
	})
	r := NewResolver(OSFileReader{}, nil)

	got, ok := r.Resolve(dir+"/src/app.ts", "./utils", tsResolveExts, []string{"index"})
	if !ok {
		t.Fatal("./utils should resolve through its index file")
	}
	if want := dir + "/src/utils/index.ts"; got != want {
		t.Errorf("resolved = %s, want %s", got, want)
	}
	if got == dir+"/src/utils" {
		t.Error("a bare directory is never a valid resolution")
	}
}

func TestResolve_FileWinsOverDirectoryIndex(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/app.ts":         "",
		"src/utils.ts":       "",
		"src/utils/index.ts": "",
	})
	r := NewResolver(OSFileReader{}, nil)

	got, ok := r.Resolve(dir+"/src/app.ts", "./utils", tsResolveExts, []string{"index"})
	if !ok || got != dir+"/src/utils.ts" {
		t.Errorf("resolved = %s (%v), want the extension candidate %s", got, ok, dir+"/src/utils.ts")
	}
}

func TestResolve_DirectoryWithoutIndexFails(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/app.ts":          "",
		"src/utils/helper.ts": "",
	})
	r := NewResolver(OSFileReader{}, nil)

	if got, ok := r.Resolve(dir+"/src/app.ts", "./utils", tsResolveExts, []string{"index"}); ok {
		t.Errorf("resolved = %s, want failure for a directory without an index file", got)
	}
}

func TestResolve_SpecifierWithExtension(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/app.ts":    "",
		"src/helper.ts": "",
	})
	r := NewResolver(OSFileReader{}, nil)

	got, ok := r.Resolve(dir+"/src/app.ts", "./helper.ts", tsResolveExts, []string{"index"})
	if !ok || got != dir+"/src/helper.ts" {
		t.Errorf("resolved = %s (%v), want direct hit", got, ok)
	}
}

func TestResolve_BareSpecifier(t *testing.T) {
	dir := writeTree(t, map[string]string{"src/app.ts": ""})
	r := NewResolver(OSFileReader{}, nil)

	if got, ok := r.Resolve(dir+"/src/app.ts", "react", tsResolveExts, []string{"index"}); ok {
		t.Errorf("resolved = %s, want failure for a package specifier", got)
	}
}

func TestResolve_Missing(t *testing.T) {
	dir := writeTree(t, map[string]string{"src/app.ts": ""})
	r := NewResolver(OSFileReader{}, nil)

	if _, ok := r.Resolve(dir+"/src/app.ts", "./nope", tsResolveExts, []string{"index"}); ok {
		t.Error("missing module should not resolve")
	}
}

func TestResolve_AliasPrefix(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/lib/client.ts": "",
		"app/main.ts":       "",
	})
	r := NewResolver(OSFileReader{}, map[string]string{
		"@lib/": dir + "/src/lib",
	})

	got, ok := r.Resolve(dir+"/app/main.ts", "@lib/client", tsResolveExts, []string{"index"})
	if !ok || got != dir+"/src/lib/client.ts" {
		t.Errorf("resolved = %s (%v), want alias remap to %s", got, ok, dir+"/src/lib/client.ts")
	}
}

func TestResolve_LongestAliasWins(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a/thing.ts":  "",
		"ab/thing.ts": "",
		"main.ts":     "",
	})
	r := NewResolver(OSFileReader{}, map[string]string{
		"@x/":     dir + "/a",
		"@x/sub/": dir + "/ab",
	})

	got, ok := r.Resolve(dir+"/main.ts", "@x/sub/thing", tsResolveExts, []string{"index"})
	if !ok || got != dir+"/ab/thing.ts" {
		t.Errorf("resolved = %s (%v), want the longer prefix target", got, ok)
	}
}

func TestResolver_Aliases(t *testing.T) {
	r := NewResolver(OSFileReader{}, map[string]string{
		"@b/": "/x/b",
		"@a/": "/x/a",
	})
	if got, want := r.Aliases(), []string{"@a/", "@b/"}; !reflect.DeepEqual(got, want) {
		t.Errorf("aliases = %v, want %v", got, want)
	}
}
