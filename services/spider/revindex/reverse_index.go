// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package revindex maintains the target-file to source-files reverse
// index answering "who imports this" in O(1), with mtime/size
// staleness detection and versioned snapshots.
package revindex

import (
	"sort"
	"sync"

	"github.com/AleutianAI/spider/services/spider/ast"
)

// FileHash is a cheap change proxy: modification time plus size. It is
// deliberately not a content hash; a same-mtime-same-size edit is an
// accepted false negative.
type FileHash struct {
	MTimeMilli int64 `json:"mtime_milli"`
	Size       int64 `json:"size"`
}

// HashFile stats path through reader and returns its FileHash.
func HashFile(reader ast.FileReader, path string) (FileHash, error) {
	info, err := reader.Stat(ast.NormalizePath(path))
	if err != nil {
		return FileHash{}, err
	}
	return FileHash{
		MTimeMilli: info.ModTime().UnixMilli(),
		Size:       info.Size(),
	}, nil
}

// Entry is one (target, source) edge.
type Entry struct {
	SourcePath string             `json:"source_path"`
	Type       ast.DependencyType `json:"type"`
	Line       int                `json:"line"`
	Module     string             `json:"module"`
}

// ValidationResult summarizes an index health check.
type ValidationResult struct {
	IsValid         bool     `json:"is_valid"`
	StaleFiles      []string `json:"stale_files"`
	MissingFiles    []string `json:"missing_files"`
	TotalFiles      int      `json:"total_files"`
	StalePercentage float64  `json:"stale_percentage"`
}

// DefaultStaleThreshold is the validation threshold when the caller
// passes a non-positive value.
const DefaultStaleThreshold = 0.2

// ReverseIndex maps target path -> source path -> Entry.
//
// Description:
//
//	Edges from one source are replaced wholesale on re-analysis, so a
//	removed import disappears from its former target's inner map.
//	Empty inner maps are pruned eagerly, keeping an absent target and
//	a fully-unreferenced target indistinguishable.
//
// Thread Safety:
//
//	Safe for concurrent use. All operations take an internal RWMutex.
type ReverseIndex struct {
	mu         sync.RWMutex
	reverseMap map[string]map[string]Entry
	fileHashes map[string]FileHash
}

// New creates an empty ReverseIndex.
func New() *ReverseIndex {
	return &ReverseIndex{
		reverseMap: make(map[string]map[string]Entry),
		fileHashes: make(map[string]FileHash),
	}
}

// AddDependencies replaces all edges from source with one entry per
// dependency, then records hash if non-nil. Dependencies without a
// resolved path (bare package specifiers) are skipped.
func (ri *ReverseIndex) AddDependencies(source string, deps []ast.Dependency, hash *FileHash) {
	source = ast.NormalizePath(source)

	ri.mu.Lock()
	defer ri.mu.Unlock()

	ri.removeSourceLocked(source)

	for _, dep := range deps {
		if dep.Path == "" {
			continue
		}
		target := ast.NormalizePath(dep.Path)
		inner, ok := ri.reverseMap[target]
		if !ok {
			inner = make(map[string]Entry)
			ri.reverseMap[target] = inner
		}
		inner[source] = Entry{
			SourcePath: source,
			Type:       dep.Type,
			Line:       dep.Line,
			Module:     dep.Module,
		}
	}

	if hash != nil {
		ri.fileHashes[source] = *hash
	}
}

// ReferencingFiles returns every edge pointing at target, sorted by
// source path for deterministic output.
func (ri *ReverseIndex) ReferencingFiles(target string) []Entry {
	target = ast.NormalizePath(target)

	ri.mu.RLock()
	defer ri.mu.RUnlock()

	inner, ok := ri.reverseMap[target]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(inner))
	for _, entry := range inner {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out
}

// RemoveSource deletes every edge from source and its stored hash.
func (ri *ReverseIndex) RemoveSource(source string) {
	source = ast.NormalizePath(source)

	ri.mu.Lock()
	defer ri.mu.Unlock()

	ri.removeSourceLocked(source)
	delete(ri.fileHashes, source)
}

// removeSourceLocked deletes source from every target's inner map,
// pruning inner maps that become empty. Caller holds mu.
func (ri *ReverseIndex) removeSourceLocked(source string) {
	for target, inner := range ri.reverseMap {
		if _, ok := inner[source]; ok {
			delete(inner, source)
			if len(inner) == 0 {
				delete(ri.reverseMap, target)
			}
		}
	}
}

// RemoveTarget drops target as a referenced file. Used when a file is
// deleted from disk.
func (ri *ReverseIndex) RemoveTarget(target string) {
	target = ast.NormalizePath(target)

	ri.mu.Lock()
	defer ri.mu.Unlock()

	delete(ri.reverseMap, target)
}

// FileHashFor returns the stored hash for path.
func (ri *ReverseIndex) FileHashFor(path string) (FileHash, bool) {
	path = ast.NormalizePath(path)

	ri.mu.RLock()
	defer ri.mu.RUnlock()

	h, ok := ri.fileHashes[path]
	return h, ok
}

// IsFileStale reports whether path is unseen, or its current hash
// differs from the stored one in either mtime or size.
func (ri *ReverseIndex) IsFileStale(path string, current FileHash) bool {
	path = ast.NormalizePath(path)

	ri.mu.RLock()
	defer ri.mu.RUnlock()

	stored, ok := ri.fileHashes[path]
	if !ok {
		return true
	}
	return stored.MTimeMilli != current.MTimeMilli || stored.Size != current.Size
}

// IndexedFiles returns every source path with a stored hash, sorted.
func (ri *ReverseIndex) IndexedFiles() []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	files := make([]string, 0, len(ri.fileHashes))
	for path := range ri.fileHashes {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// Validate re-hashes every indexed file on disk and reports stale and
// missing files. The index is valid when (stale+missing)/total is at
// or below staleThreshold; an empty index is always valid.
func (ri *ReverseIndex) Validate(reader ast.FileReader, staleThreshold float64) ValidationResult {
	if reader == nil {
		reader = ast.OSFileReader{}
	}
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}

	files := ri.IndexedFiles()
	result := ValidationResult{
		IsValid:    true,
		TotalFiles: len(files),
	}
	if len(files) == 0 {
		return result
	}

	for _, path := range files {
		current, err := HashFile(reader, path)
		if err != nil {
			result.MissingFiles = append(result.MissingFiles, path)
			continue
		}
		if ri.IsFileStale(path, current) {
			result.StaleFiles = append(result.StaleFiles, path)
		}
	}

	bad := len(result.StaleFiles) + len(result.MissingFiles)
	result.StalePercentage = float64(bad) / float64(len(files))
	result.IsValid = result.StalePercentage <= staleThreshold
	return result
}

// Clear drops every edge and hash.
func (ri *ReverseIndex) Clear() {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	ri.reverseMap = make(map[string]map[string]Entry)
	ri.fileHashes = make(map[string]FileHash)
}

// TargetCount returns the number of referenced targets.
func (ri *ReverseIndex) TargetCount() int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.reverseMap)
}

// EdgeCount returns the total number of (target, source) edges.
func (ri *ReverseIndex) EdgeCount() int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	n := 0
	for _, inner := range ri.reverseMap {
		n += len(inner)
	}
	return n
}
