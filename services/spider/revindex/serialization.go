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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/spider/services/spider/ast"
)

// SnapshotVersion is the reverse-index snapshot schema version. Bump on
// any breaking shape change; deserialization rejects other versions.
const SnapshotVersion = 1

// Snapshot is the serialized form of a ReverseIndex.
type Snapshot struct {
	Version        int                         `json:"version"`
	TimestampMilli int64                       `json:"timestamp_milli"`
	RootDir        string                      `json:"root_dir"`
	ReverseMap     map[string]map[string]Entry `json:"reverse_map"`
	FileHashes     map[string]FileHash         `json:"file_hashes"`
}

// Serialize returns the index as versioned JSON bound to rootDir.
func (ri *ReverseIndex) Serialize(rootDir string) ([]byte, error) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	snap := Snapshot{
		Version:        SnapshotVersion,
		TimestampMilli: time.Now().UnixMilli(),
		RootDir:        ast.NormalizePath(rootDir),
		ReverseMap:     ri.reverseMap,
		FileHashes:     ri.fileHashes,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshaling reverse index snapshot: %w", err)
	}
	return data, nil
}

// Deserialize reconstructs a ReverseIndex from data.
//
// Description:
//
//	Returns nil, not an error, on malformed JSON, a version mismatch,
//	or a root-directory mismatch (paths normalized before comparison).
//	A nil result tells the caller to start from an empty index; a
//	stale or foreign snapshot is never a hard failure.
func Deserialize(data []byte, rootDir string) *ReverseIndex {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("reverse index snapshot unreadable, starting empty",
			slog.Any("error", err))
		return nil
	}

	if snap.Version != SnapshotVersion {
		slog.Warn("reverse index snapshot version mismatch, starting empty",
			slog.Int("snapshot_version", snap.Version),
			slog.Int("expected_version", SnapshotVersion))
		return nil
	}

	if ast.NormalizePath(snap.RootDir) != ast.NormalizePath(rootDir) {
		slog.Warn("reverse index snapshot root mismatch, starting empty",
			slog.String("snapshot_root", snap.RootDir),
			slog.String("current_root", rootDir))
		return nil
	}

	ri := New()
	for target, inner := range snap.ReverseMap {
		if len(inner) == 0 {
			continue
		}
		normTarget := ast.NormalizePath(target)
		m := make(map[string]Entry, len(inner))
		for source, entry := range inner {
			m[ast.NormalizePath(source)] = entry
		}
		ri.reverseMap[normTarget] = m
	}
	for path, hash := range snap.FileHashes {
		ri.fileHashes[ast.NormalizePath(path)] = hash
	}
	return ri
}
