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
	"context"

	"github.com/AleutianAI/spider/services/spider/ast"
	"github.com/AleutianAI/spider/services/spider/revindex"
)

// ReferenceService answers "who references this file".
//
// Description:
//
//	Two-tier lookup: the reverse index when enabled and populated
//	(O(1) per query), the workspace scan with its basename pre-filter
//	otherwise. Both tiers agree on the edges they report for any
//	statically imported target.
type ReferenceService struct {
	s *Spider
}

// FindReferencingFiles returns every edge pointing at target.
func (rs *ReferenceService) FindReferencingFiles(ctx context.Context, target string) ([]revindex.Entry, error) {
	norm := ast.NormalizePath(target)

	rs.s.indexMu.RLock()
	enabled := rs.s.indexEnabled
	idx := rs.s.index
	rs.s.indexMu.RUnlock()

	if enabled && idx.EdgeCount() > 0 {
		return idx.ReferencingFiles(norm), nil
	}
	return rs.s.scanner.FindReferencingFiles(ctx, rs.s.rootDir, norm)
}
