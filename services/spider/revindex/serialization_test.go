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
	"encoding/json"
	"reflect"
	"testing"

	"github.com/AleutianAI/spider/services/spider/ast"
)

func buildTestIndex() *ReverseIndex {
	ri := New()
	ri.AddDependencies("/proj/src/a.ts", []ast.Dependency{
		dep("/proj/src/b.ts", "./b", 1),
		dep("/proj/src/c.ts", "./c", 2),
	}, &FileHash{MTimeMilli: 111, Size: 10})
	ri.AddDependencies("/proj/src/b.ts", []ast.Dependency{
		dep("/proj/src/c.ts", "./c", 3),
	}, &FileHash{MTimeMilli: 222, Size: 20})
	return ri
}

func TestSerialize_RoundTrip(t *testing.T) {
	ri := buildTestIndex()

	data, err := ri.Serialize("/proj")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	restored := Deserialize(data, "/proj")
	if restored == nil {
		t.Fatal("Deserialize returned nil for a matching snapshot")
	}

	for _, target := range []string{"/proj/src/b.ts", "/proj/src/c.ts"} {
		want := ri.ReferencingFiles(target)
		got := restored.ReferencingFiles(target)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ReferencingFiles(%s) = %v, want %v", target, got, want)
		}
	}

	hash, ok := restored.FileHashFor("/proj/src/a.ts")
	if !ok || hash.MTimeMilli != 111 || hash.Size != 10 {
		t.Errorf("restored hash = %+v, %v", hash, ok)
	}
}

func TestDeserialize_VersionMismatch(t *testing.T) {
	ri := buildTestIndex()
	data, err := ri.Serialize("/proj")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	snap.Version = SnapshotVersion + 1
	tampered, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if got := Deserialize(tampered, "/proj"); got != nil {
		t.Error("version mismatch should return nil, not an index")
	}
}

func TestDeserialize_RootDirMismatch(t *testing.T) {
	ri := buildTestIndex()
	data, err := ri.Serialize("/proj")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	if got := Deserialize(data, "/other-proj"); got != nil {
		t.Error("root mismatch should return nil, not an index")
	}
}

func TestDeserialize_MalformedJSON(t *testing.T) {
	if got := Deserialize([]byte("{not json"), "/proj"); got != nil {
		t.Error("malformed snapshot should return nil")
	}
}

func TestDeserialize_PrunesEmptyInnerMaps(t *testing.T) {
	snap := Snapshot{
		Version: SnapshotVersion,
		RootDir: "/proj",
		ReverseMap: map[string]map[string]Entry{
			"/proj/src/empty.ts": {},
			"/proj/src/b.ts": {
				"/proj/src/a.ts": {SourcePath: "/proj/src/a.ts", Type: ast.DependencyImport, Line: 1, Module: "./b"},
			},
		},
		FileHashes: map[string]FileHash{},
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := Deserialize(data, "/proj")
	if restored == nil {
		t.Fatal("Deserialize returned nil")
	}
	if got := restored.TargetCount(); got != 1 {
		t.Errorf("target count = %d, want 1 (empty inner map pruned)", got)
	}
}
