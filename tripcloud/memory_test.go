// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripcloud

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, CollectionTrips, "t1", map[string]any{"title": "Lisbon"}))
	docs, err := store.GetAll(ctx, CollectionTrips)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "t1", docs[0].ID)
	require.Equal(t, "Lisbon", docs[0].Data["title"])

	require.NoError(t, store.Delete(ctx, CollectionTrips, "t1"))
	docs, err = store.GetAll(ctx, CollectionTrips)
	require.NoError(t, err)
	require.Empty(t, docs)

	// Deleting an absent document is not an error.
	require.NoError(t, store.Delete(ctx, CollectionTrips, "missing"))
}

func TestMemoryStoreQueryByField(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, CollectionPlans, "p1", map[string]any{"tripId": "t1", "title": "A"}))
	require.NoError(t, store.Set(ctx, CollectionPlans, "p2", map[string]any{"tripId": "t1", "title": "B"}))
	require.NoError(t, store.Set(ctx, CollectionPlans, "p3", map[string]any{"tripId": "t2", "title": "C"}))

	docs, err := store.QueryByField(ctx, CollectionPlans, FieldTripID, "t1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestMemoryStoreCommitRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ops := make([]Op, MaxBatchOps+1)
	for i := range ops {
		ops[i] = Op{Collection: CollectionTrips, ID: "t", Data: map[string]any{}}
	}
	require.Error(t, store.Commit(ctx, ops))
	require.NoError(t, store.Commit(ctx, ops[:MaxBatchOps]))
}

func TestMemoryStoreSubscription(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, CollectionTrips)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.Set(ctx, CollectionTrips, "t1", map[string]any{"title": "Lisbon"}))
	ev := receiveEvent(t, sub)
	require.Equal(t, EventAdded, ev.Type)
	require.Equal(t, "t1", ev.ID)

	require.NoError(t, store.Set(ctx, CollectionTrips, "t1", map[string]any{"title": "Porto"}))
	ev = receiveEvent(t, sub)
	require.Equal(t, EventModified, ev.Type)

	require.NoError(t, store.Delete(ctx, CollectionTrips, "t1"))
	ev = receiveEvent(t, sub)
	require.Equal(t, EventRemoved, ev.Type)
	require.Nil(t, ev.Data)
}

func TestMemoryStoreCommitEmitsEventsAfterBatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, CollectionPlans)
	require.NoError(t, err)
	defer sub.Close()

	ops := []Op{
		{Collection: CollectionPlans, ID: "p1", Data: map[string]any{"title": "A"}},
		{Collection: CollectionPlans, ID: "p2", Data: map[string]any{"title": "B"}},
		{Collection: CollectionPlans, ID: "p1", Delete: true},
	}
	require.NoError(t, store.Commit(ctx, ops))

	types := []EventType{receiveEvent(t, sub).Type, receiveEvent(t, sub).Type, receiveEvent(t, sub).Type}
	require.Equal(t, []EventType{EventAdded, EventAdded, EventRemoved}, types)

	docs, err := store.GetAll(ctx, CollectionPlans)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "p2", docs[0].ID)
}

func TestMemorySubscriptionCloseEndsStream(t *testing.T) {
	store := NewMemoryStore()
	sub, err := store.Subscribe(context.Background(), CollectionTrips)
	require.NoError(t, err)

	sub.Close()
	_, ok := <-sub.Events()
	require.False(t, ok)

	// Writes after close must not panic or block.
	require.NoError(t, store.Set(context.Background(), CollectionTrips, "t1", map[string]any{}))
}

func TestMemoryProviderIsolatesUsers(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	alice, err := provider.ForUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := provider.ForUser(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, alice.Set(ctx, CollectionTrips, "t1", map[string]any{"title": "Lisbon"}))
	docs, err := bob.GetAll(ctx, CollectionTrips)
	require.NoError(t, err)
	require.Empty(t, docs)

	// Same user id resolves to the same store (multi-device model).
	aliceAgain, err := provider.ForUser(ctx, "alice")
	require.NoError(t, err)
	docs, err = aliceAgain.GetAll(ctx, CollectionTrips)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func receiveEvent(t *testing.T, sub Subscription) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}
