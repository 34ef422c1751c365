// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
)

func newTestQueue(cfg *Config, store tripcloud.Store) (*outboundQueue, *suppressor) {
	sup := newSuppressor()
	return newOutboundQueue(store, sup, cfg, testLogger(), nil), sup
}

func TestQueueDebouncesIntoOneBatch(t *testing.T) {
	store := newCountingStore(tripcloud.NewMemoryStore())
	queue, _ := newTestQueue(testConfig(), store)

	for i := 0; i < 5; i++ {
		queue.Write(tripcloud.CollectionTrips, fmt.Sprintf("t%d", i), map[string]any{"title": "x"}, false)
	}

	eventually(t, func() bool { return store.commitCount() == 1 }, "expected a single debounced batch")
	require.Len(t, store.allCommits()[0], 5)
	require.Zero(t, store.sets, "no individual writes expected")
}

func TestQueueFlushThresholdTriggersImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 10 * time.Second // only the threshold can trigger
	cfg.FlushThreshold = 3
	store := newCountingStore(tripcloud.NewMemoryStore())
	queue, _ := newTestQueue(cfg, store)

	queue.Write(tripcloud.CollectionTrips, "t1", map[string]any{}, false)
	queue.Write(tripcloud.CollectionTrips, "t2", map[string]any{}, false)
	require.Zero(t, store.commitCount())
	queue.Write(tripcloud.CollectionTrips, "t3", map[string]any{}, false)

	eventually(t, func() bool { return store.commitCount() == 1 }, "threshold must flush without waiting for debounce")
	require.Len(t, store.allCommits()[0], 3)
}

func TestQueueChunksOversizedFlush(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBatchOps = 2
	store := newCountingStore(tripcloud.NewMemoryStore())
	queue, _ := newTestQueue(cfg, store)

	for i := 0; i < 5; i++ {
		queue.Write(tripcloud.CollectionPlans, fmt.Sprintf("p%d", i), map[string]any{}, false)
	}
	queue.Flush(context.Background())

	commits := store.allCommits()
	require.Len(t, commits, 3) // ceil(5/2)
	require.Len(t, commits[0], 2)
	require.Len(t, commits[1], 2)
	require.Len(t, commits[2], 1)
}

func TestQueueFallsBackToIndividualWrites(t *testing.T) {
	memory := tripcloud.NewMemoryStore()
	store := newCountingStore(memory)
	store.failCommits = true
	queue, _ := newTestQueue(testConfig(), store)

	queue.Write(tripcloud.CollectionTrips, "t1", map[string]any{"title": "a"}, false)
	queue.Write(tripcloud.CollectionTrips, "t2", map[string]any{"title": "b"}, false)
	queue.Delete(tripcloud.CollectionTrips, "t3", false)
	queue.Flush(context.Background())

	require.Equal(t, 2, store.sets)
	require.Equal(t, 1, store.deletes)

	docs, err := memory.GetAll(context.Background(), tripcloud.CollectionTrips)
	require.NoError(t, err)
	require.Len(t, docs, 2, "fallback writes must land despite batch failure")
}

func TestQueueFlushIsSynchronousAndDrains(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 10 * time.Second
	store := newCountingStore(tripcloud.NewMemoryStore())
	queue, _ := newTestQueue(cfg, store)

	queue.Write(tripcloud.CollectionPlaces, "p1", map[string]any{}, false)
	queue.Write(tripcloud.CollectionPlaces, "p2", map[string]any{}, false)
	queue.Flush(context.Background())

	require.Equal(t, 1, store.commitCount())

	// A second flush with an empty queue is a no-op.
	queue.Flush(context.Background())
	require.Equal(t, 1, store.commitCount())
}

func TestQueueWriteArmsSuppression(t *testing.T) {
	store := newCountingStore(tripcloud.NewMemoryStore())
	queue, sup := newTestQueue(testConfig(), store)

	queue.Write(tripcloud.CollectionTrips, "t1", map[string]any{}, true)
	require.True(t, sup.consume(tripcloud.CollectionTrips, "t1"),
		"suppression must be armed before the write reaches the remote store")
}
