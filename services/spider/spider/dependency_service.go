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
	"log/slog"

	"github.com/AleutianAI/spider/services/spider/ast"
	"github.com/AleutianAI/spider/services/spider/revindex"
)

// DependencyService owns per-file dependency analysis.
//
// Description:
//
//	Analysis is idempotent: a second Analyze of an unchanged file is a
//	cache hit and never re-invokes the parser. At most one analysis of
//	a path is in flight at a time; a racing caller waits and then hits
//	the cache.
type DependencyService struct {
	s *Spider
}

// Analyze returns filePath's dependencies.
//
// Errors:
//
//	Unsupported extensions surface ast.ErrUnsupportedLanguage, never a
//	silent empty result. Recoverable analysis failures (missing file,
//	permission, parse error) degrade to an empty slice so batch
//	callers need no per-file checks; Timeout and Unknown propagate.
func (d *DependencyService) Analyze(ctx context.Context, filePath string) ([]ast.Dependency, error) {
	norm := ast.NormalizePath(filePath)

	if deps, ok := d.s.depCache.Get(norm); ok {
		return deps, nil
	}

	release := d.s.flight.acquire("dep:" + norm)
	defer release()

	// A racing analysis may have filled the cache while we waited.
	if deps, ok := d.s.depCache.Get(norm); ok {
		return deps, nil
	}

	analyzer, err := d.s.registry.ForFile(norm)
	if err != nil {
		return nil, err
	}

	deps, err := analyzer.ParseImports(ctx, norm)
	if err != nil {
		classified := ast.Classify(norm, err)
		if classified.Recoverable() {
			d.s.logger.Warn("dependency analysis degraded to empty result",
				slog.String("file", norm),
				slog.String("kind", string(classified.Kind)),
				slog.Any("error", err))
			return []ast.Dependency{}, nil
		}
		return nil, classified
	}

	hash, hashErr := revindex.HashFile(d.s.reader, norm)
	if hashErr != nil {
		// File vanished between parse and stat. Cache the result but
		// skip the index update; staleness detection has no hash to
		// compare against.
		d.s.depCache.Set(norm, deps)
		return deps, nil
	}

	d.s.importResult(norm, deps, hash)
	return deps, nil
}
