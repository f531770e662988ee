// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/spider/services/spider/ast"
	"github.com/AleutianAI/spider/services/spider/revindex"
)

// ErrWorkerStopped is returned for requests pending or submitted
// after Stop. Pending requests are rejected, never silently dropped.
var ErrWorkerStopped = errors.New("indexing worker stopped")

// requestKind selects the worker operation.
type requestKind int

const (
	requestAnalyze requestKind = iota
	requestFullIndex
)

// workerRequest is one id-correlated message to the worker goroutine.
type workerRequest struct {
	id    uint64
	kind  requestKind
	ctx   context.Context
	path  string
	reply chan workerResponse
}

// workerResponse carries the result back, correlated by id.
type workerResponse struct {
	id     uint64
	deps   []ast.Dependency
	hash   revindex.FileHash
	status Status
	err    error
}

// Worker isolates heavy analysis on a dedicated goroutine reached via
// message passing.
//
// Description:
//
//	Requests and responses are correlated by an incrementing id. The
//	worker starts lazily on first use; Stop tears it down gracefully,
//	rejecting queued requests with ErrWorkerStopped. The worker runs
//	the same Indexer as the inline path, so both paths produce an
//	identical end state.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Worker struct {
	indexer *Indexer
	nextID  atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool
	reqCh   chan workerRequest

	// stopping is closed by Stop to signal shutdown. The request
	// channel itself is never closed: submitters may be blocked in a
	// send when Stop runs, and closing it under them would panic.
	stopping chan struct{}
	done     chan struct{}
}

// NewWorker creates a Worker over indexer. The goroutine is not
// started until the first request.
func NewWorker(indexer *Indexer) *Worker {
	return &Worker{indexer: indexer, stopping: make(chan struct{})}
}

// ensureStarted lazily launches the worker goroutine.
func (w *Worker) ensureStarted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrWorkerStopped
	}
	if w.started {
		return nil
	}
	w.reqCh = make(chan workerRequest, 16)
	w.done = make(chan struct{})
	w.started = true
	go w.run()
	slog.Debug("indexing worker started")
	return nil
}

// run is the worker loop. It exits on the stop signal, rejecting
// anything still queued.
func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case req := <-w.reqCh:
			select {
			case <-w.stopping:
				req.reply <- workerResponse{id: req.id, err: ErrWorkerStopped}
				continue
			default:
			}
			if req.ctx.Err() != nil {
				req.reply <- workerResponse{id: req.id, err: req.ctx.Err()}
				continue
			}
			resp := workerResponse{id: req.id}
			switch req.kind {
			case requestAnalyze:
				resp.deps, resp.hash, resp.err = w.analyzeOne(req.ctx, req.path)
			case requestFullIndex:
				resp.status, resp.err = w.indexer.BuildFullIndex(req.ctx, req.path)
			default:
				resp.err = fmt.Errorf("unknown worker request kind %d", req.kind)
			}
			req.reply <- resp
		case <-w.stopping:
			w.drain()
			return
		}
	}
}

// drain rejects every request still queued at shutdown.
func (w *Worker) drain() {
	for {
		select {
		case req := <-w.reqCh:
			req.reply <- workerResponse{id: req.id, err: ErrWorkerStopped}
		default:
			return
		}
	}
}

// analyzeOne analyzes a single file off the caller's goroutine. The
// result is returned to the caller for import, not applied directly.
func (w *Worker) analyzeOne(ctx context.Context, path string) ([]ast.Dependency, revindex.FileHash, error) {
	deps, err := w.indexer.analyze(ctx, path)
	if err != nil {
		return nil, revindex.FileHash{}, err
	}
	hash, err := revindex.HashFile(w.indexer.reader, path)
	if err != nil {
		return nil, revindex.FileHash{}, err
	}
	return deps, hash, nil
}

// submit sends a request and waits for its response or cancellation.
func (w *Worker) submit(ctx context.Context, kind requestKind, path string) (workerResponse, error) {
	if err := w.ensureStarted(); err != nil {
		return workerResponse{}, err
	}

	req := workerRequest{
		id:    w.nextID.Add(1),
		kind:  kind,
		ctx:   ctx,
		path:  path,
		reply: make(chan workerResponse, 1),
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return workerResponse{}, ErrWorkerStopped
	}
	reqCh := w.reqCh
	w.mu.Unlock()

	select {
	case reqCh <- req:
	case <-ctx.Done():
		return workerResponse{}, ctx.Err()
	case <-w.stopping:
		return workerResponse{}, ErrWorkerStopped
	}

	select {
	case resp := <-req.reply:
		if resp.id != req.id {
			return workerResponse{}, fmt.Errorf("worker response id mismatch: sent %d, got %d", req.id, resp.id)
		}
		return resp, resp.err
	case <-ctx.Done():
		return workerResponse{}, ctx.Err()
	case <-w.done:
		// The loop exited; a request buffered as the drain finished
		// gets no reply. A reply that raced the exit still wins.
		select {
		case resp := <-req.reply:
			return resp, resp.err
		default:
			return workerResponse{}, ErrWorkerStopped
		}
	}
}

// AnalyzeFile analyzes path on the worker goroutine, returning the
// dependencies plus the file hash for the caller to import.
func (w *Worker) AnalyzeFile(ctx context.Context, path string) ([]ast.Dependency, revindex.FileHash, error) {
	resp, err := w.submit(ctx, requestAnalyze, path)
	if err != nil {
		return nil, revindex.FileHash{}, err
	}
	return resp.deps, resp.hash, nil
}

// BuildFullIndex runs a full index on the worker goroutine.
func (w *Worker) BuildFullIndex(ctx context.Context, rootDir string) (Status, error) {
	resp, err := w.submit(ctx, requestFullIndex, rootDir)
	if err != nil {
		return Status{}, err
	}
	return resp.status, nil
}

// Stop shuts the worker down. Requests still queued are rejected with
// ErrWorkerStopped. Stop is idempotent and safe to call on a worker
// that never started.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	close(w.stopping)
	if !started {
		return
	}
	<-w.done
	slog.Debug("indexing worker stopped")
}
