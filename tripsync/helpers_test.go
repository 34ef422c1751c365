// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	return &Config{
		Debounce:       25 * time.Millisecond,
		FlushThreshold: 400,
		MaxBatchOps:    tripcloud.MaxBatchOps,
		UndoGrace:      5 * time.Second,
	}
}

// countingStore wraps a Store and records every commit, set and delete
// so tests can assert on batching behavior.
type countingStore struct {
	inner tripcloud.Store

	mu          sync.Mutex
	commits     [][]tripcloud.Op
	sets        int
	deletes     int
	failCommits bool
}

func newCountingStore(inner tripcloud.Store) *countingStore {
	return &countingStore{inner: inner}
}

func (c *countingStore) GetAll(ctx context.Context, collection string) ([]tripcloud.Document, error) {
	return c.inner.GetAll(ctx, collection)
}

func (c *countingStore) QueryByField(ctx context.Context, collection, field, value string) ([]tripcloud.Document, error) {
	return c.inner.QueryByField(ctx, collection, field, value)
}

func (c *countingStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.inner.Set(ctx, collection, id, data)
}

func (c *countingStore) Delete(ctx context.Context, collection, id string) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.inner.Delete(ctx, collection, id)
}

func (c *countingStore) Commit(ctx context.Context, ops []tripcloud.Op) error {
	c.mu.Lock()
	fail := c.failCommits
	if !fail {
		c.commits = append(c.commits, append([]tripcloud.Op(nil), ops...))
	}
	c.mu.Unlock()
	if fail {
		return errors.New("simulated batch failure")
	}
	return c.inner.Commit(ctx, ops)
}

func (c *countingStore) Subscribe(ctx context.Context, collection string) (tripcloud.Subscription, error) {
	return c.inner.Subscribe(ctx, collection)
}

func (c *countingStore) commitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commits)
}

func (c *countingStore) allCommits() [][]tripcloud.Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]tripcloud.Op, len(c.commits))
	copy(out, c.commits)
	return out
}

func (c *countingStore) deleteOps() []tripcloud.Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []tripcloud.Op
	for _, batch := range c.commits {
		for _, op := range batch {
			if op.Delete {
				out = append(out, op)
			}
		}
	}
	return out
}

// staticProvider hands the same store to every user, letting tests
// inject a countingStore.
type staticProvider struct {
	store tripcloud.Store
}

func (p staticProvider) ForUser(context.Context, string) (tripcloud.Store, error) {
	return p.store, nil
}

func newTestEngine(t *testing.T, cfg *Config, store tripcloud.Store) (*Engine, *tripstore.Store) {
	t.Helper()
	local, err := tripstore.Open(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	engine := New(local, staticProvider{store: store}, cfg, testLogger())
	t.Cleanup(engine.Stop)
	return engine, local
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}
