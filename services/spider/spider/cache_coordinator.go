// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spider

import (
	"github.com/AleutianAI/spider/services/spider/ast"
	"github.com/AleutianAI/spider/services/spider/cache"
)

// arenaInvalidator is implemented by analyzers holding per-file parse
// state that must be dropped on invalidation.
type arenaInvalidator interface {
	Invalidate(filePath string)
}

// IndexStats summarizes the reverse index.
type IndexStats struct {
	Enabled bool `json:"enabled"`
	Targets int  `json:"targets"`
	Edges   int  `json:"edges"`
	Files   int  `json:"files"`
}

// CombinedStats is the full cache and index view.
type CombinedStats struct {
	Dependencies cache.Stats `json:"dependencies"`
	Symbols      cache.Stats `json:"symbols"`
	Index        IndexStats  `json:"index"`
}

// CacheCoordinator keeps the caches, analyzer arenas, and reverse
// index coherent under file mutation.
//
// Description:
//
//	Invalidation is atomic from the caller's point of view: after
//	InvalidateFile(f) returns, no cache counts f and the reverse index
//	holds zero edges sourced from f.
type CacheCoordinator struct {
	s *Spider
}

// InvalidateFile drops filePath from both caches, the owning
// analyzer's arena, and the reverse index's source-side bookkeeping.
func (cc *CacheCoordinator) InvalidateFile(filePath string) {
	norm := ast.NormalizePath(filePath)

	cc.s.depCache.Delete(norm)
	cc.s.symCache.Delete(norm)

	if analyzer, err := cc.s.registry.ForFile(norm); err == nil {
		if inv, ok := analyzer.(arenaInvalidator); ok {
			inv.Invalidate(norm)
		}
	}

	cc.s.indexMu.RLock()
	cc.s.index.RemoveSource(norm)
	cc.s.indexMu.RUnlock()
}

// InvalidateFiles invalidates each path in the caller's order.
func (cc *CacheCoordinator) InvalidateFiles(paths []string) {
	for _, p := range paths {
		cc.InvalidateFile(p)
	}
}

// HandleFileDeleted removes filePath entirely: its cached results, its
// outgoing edges, and its standing as a referenced target. Files that
// imported it keep their edges until they are themselves re-analyzed.
func (cc *CacheCoordinator) HandleFileDeleted(filePath string) {
	norm := ast.NormalizePath(filePath)

	cc.InvalidateFile(norm)

	cc.s.indexMu.RLock()
	cc.s.index.RemoveTarget(norm)
	cc.s.indexMu.RUnlock()
}

// Stats returns combined cache and index statistics.
func (cc *CacheCoordinator) Stats() CombinedStats {
	cc.s.indexMu.RLock()
	idx := cc.s.index
	enabled := cc.s.indexEnabled
	cc.s.indexMu.RUnlock()

	return CombinedStats{
		Dependencies: cc.s.depCache.Stats(),
		Symbols:      cc.s.symCache.Stats(),
		Index: IndexStats{
			Enabled: enabled,
			Targets: idx.TargetCount(),
			Edges:   idx.EdgeCount(),
			Files:   len(idx.IndexedFiles()),
		},
	}
}
