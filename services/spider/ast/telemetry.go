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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/AleutianAI/spider/services/spider/ast"

var (
	tracer = otel.Tracer(instrumentationName)

	metricsOnce     sync.Once
	parseCounter    metric.Int64Counter
	parseSymbols    metric.Int64Counter
	parseDurationMs metric.Float64Histogram
)

// initMetrics lazily creates the parse instruments. Instrument creation
// errors are ignored; the no-op meter is used until an SDK is installed
// by the host process.
func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		parseCounter, _ = meter.Int64Counter("spider.parse.count",
			metric.WithDescription("Number of analyzer parse operations"))
		parseSymbols, _ = meter.Int64Counter("spider.parse.symbols",
			metric.WithDescription("Number of symbols extracted by parse operations"))
		parseDurationMs, _ = meter.Float64Histogram("spider.parse.duration_ms",
			metric.WithDescription("Analyzer parse duration in milliseconds"))
	})
}

// startParseSpan starts a tracing span for one parse operation.
func startParseSpan(ctx context.Context, language, filePath string, sizeBytes int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.parse",
		trace.WithAttributes(
			attribute.String("spider.language", language),
			attribute.String("spider.file", filePath),
			attribute.Int("spider.size_bytes", sizeBytes),
		))
}

// setParseSpanResult records the parse outcome on the span.
func setParseSpanResult(span trace.Span, symbols, errors int) {
	span.SetAttributes(
		attribute.Int("spider.symbols", symbols),
		attribute.Int("spider.errors", errors),
	)
}

// recordParseMetrics records counter and duration metrics for one parse.
func recordParseMetrics(ctx context.Context, language string, elapsed time.Duration, symbols int, success bool) {
	initMetrics()
	attrs := metric.WithAttributes(
		attribute.String("spider.language", language),
		attribute.Bool("spider.success", success),
	)
	if parseCounter != nil {
		parseCounter.Add(ctx, 1, attrs)
	}
	if parseSymbols != nil && symbols > 0 {
		parseSymbols.Add(ctx, int64(symbols), attrs)
	}
	if parseDurationMs != nil {
		parseDurationMs.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	}
}
