// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
)

// outboundQueue batches writes and deletes destined for the remote
// store. A debounce timer is re-armed on every enqueue; reaching the
// flush threshold triggers a flush immediately. Flushes are
// single-flight: operations enqueued while a flush is in progress
// accumulate for its next drain cycle.
type outboundQueue struct {
	store          tripcloud.Store
	sup            *suppressor
	logger         *slog.Logger
	debounce       time.Duration
	flushThreshold int
	maxBatchOps    int
	onError        func(error)

	mu    sync.Mutex
	ops   []tripcloud.Op
	timer *time.Timer

	flightMu sync.Mutex // held for the duration of one flush
}

func newOutboundQueue(store tripcloud.Store, sup *suppressor, cfg *Config, logger *slog.Logger, onError func(error)) *outboundQueue {
	return &outboundQueue{
		store:          store,
		sup:            sup,
		logger:         logger,
		debounce:       cfg.Debounce,
		flushThreshold: cfg.FlushThreshold,
		maxBatchOps:    cfg.MaxBatchOps,
		onError:        onError,
	}
}

// Write enqueues a document write. When suppress is set, the echo
// suppressor is armed before the operation can reach the remote store.
func (q *outboundQueue) Write(collection, id string, data map[string]any, suppress bool) {
	q.enqueue(tripcloud.Op{Collection: collection, ID: id, Data: data}, suppress)
}

// Delete enqueues a document delete.
func (q *outboundQueue) Delete(collection, id string, suppress bool) {
	q.enqueue(tripcloud.Op{Collection: collection, ID: id, Delete: true}, suppress)
}

func (q *outboundQueue) enqueue(op tripcloud.Op, suppress bool) {
	if suppress {
		q.sup.arm(op.Collection, op.ID)
	}

	q.mu.Lock()
	q.ops = append(q.ops, op)
	full := len(q.ops) >= q.flushThreshold
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if !full {
		q.timer = time.AfterFunc(q.debounce, q.timerFlush)
	}
	q.mu.Unlock()

	if full {
		go q.timerFlush()
	}
}

func (q *outboundQueue) timerFlush() {
	q.Flush(context.Background())
}

// Flush synchronously drains the queue, committing chunked batches.
// Commit failures fall back to per-item writes; nothing is dropped
// silently, nothing propagates. Safe to call concurrently.
func (q *outboundQueue) Flush(ctx context.Context) {
	q.flightMu.Lock()
	defer q.flightMu.Unlock()

	for {
		q.mu.Lock()
		if q.timer != nil {
			q.timer.Stop()
			q.timer = nil
		}
		work := q.ops
		q.ops = nil
		q.mu.Unlock()

		if len(work) == 0 {
			return
		}
		q.commit(ctx, work)
	}
}

func (q *outboundQueue) commit(ctx context.Context, work []tripcloud.Op) {
	for start := 0; start < len(work); start += q.maxBatchOps {
		end := start + q.maxBatchOps
		if end > len(work) {
			end = len(work)
		}
		chunk := work[start:end]
		if err := q.store.Commit(ctx, chunk); err != nil {
			q.logger.Warn("batch commit failed, retrying operations individually",
				"ops", len(chunk), "error", err)
			q.commitIndividually(ctx, chunk)
			if q.onError != nil {
				q.onError(err)
			}
		}
	}
}

// commitIndividually is the best-effort fallback after a failed batch:
// partial progress beats total failure.
func (q *outboundQueue) commitIndividually(ctx context.Context, chunk []tripcloud.Op) {
	for _, op := range chunk {
		var err error
		if op.Delete {
			err = q.store.Delete(ctx, op.Collection, op.ID)
		} else {
			err = q.store.Set(ctx, op.Collection, op.ID, op.Data)
		}
		if err != nil {
			q.logger.Error("failed to write document",
				"collection", op.Collection, "doc_id", op.ID, "delete", op.Delete, "error", err)
		}
	}
}
