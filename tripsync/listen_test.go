// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
)

func TestListenerAppliesLiveAdditions(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()

	engine, local := newTestEngine(t, testConfig(), remote)
	require.NoError(t, engine.Start(ctx, "u1"))

	require.NoError(t, remote.Set(ctx, tripcloud.CollectionTrips, "t1",
		map[string]any{"title": "Porto", "updatedAt": int64(100)}))

	eventually(t, func() bool {
		trip, err := local.TripByRemoteID(ctx, "t1")
		return err == nil && trip != nil && trip.Title == "Porto"
	}, "live addition must materialize locally")
}

func TestListenerLastWriteWins(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, remote.Set(ctx, tripcloud.CollectionTrips, "t1",
		map[string]any{"title": "Original", "updatedAt": int64(100)}))

	engine, local := newTestEngine(t, testConfig(), remote)
	require.NoError(t, engine.Start(ctx, "u1"))

	// An older incoming revision must not clobber the local record.
	require.NoError(t, remote.Set(ctx, tripcloud.CollectionTrips, "t1",
		map[string]any{"title": "Stale", "updatedAt": int64(50)}))
	require.Never(t, func() bool {
		trip, _ := local.TripByRemoteID(ctx, "t1")
		return trip != nil && trip.Title == "Stale"
	}, 200*time.Millisecond, 10*time.Millisecond, "older revision must be ignored")

	// A strictly newer one wins.
	require.NoError(t, remote.Set(ctx, tripcloud.CollectionTrips, "t1",
		map[string]any{"title": "Fresh", "updatedAt": int64(200)}))
	eventually(t, func() bool {
		trip, _ := local.TripByRemoteID(ctx, "t1")
		return trip != nil && trip.Title == "Fresh"
	}, "newer revision must apply")
}

func TestListenerSwallowsOwnEchoes(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()

	engine, local := newTestEngine(t, testConfig(), remote)
	require.NoError(t, engine.Start(ctx, "u1"))

	var mu sync.Mutex
	var updates []string
	unsubscribe := engine.OnSyncUpdate(func(collection string) {
		mu.Lock()
		updates = append(updates, collection)
		mu.Unlock()
	})
	defer unsubscribe()

	trip := &tripstore.Trip{Title: "Mine", UpdatedAt: nowMillis()}
	require.NoError(t, local.InsertTrip(ctx, trip))
	remoteID, err := engine.UploadTrip(ctx, trip)
	require.NoError(t, err)
	require.NoError(t, local.SetTripRemoteID(ctx, trip.ID, remoteID))

	eventually(t, func() bool {
		docs, err := remote.GetAll(ctx, tripcloud.CollectionTrips)
		return err == nil && len(docs) == 1
	}, "upload must reach the remote store")

	require.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) > 0
	}, 200*time.Millisecond, 10*time.Millisecond,
		"echo of an own write must not surface as a sync update")
}

func TestListenerRemovalCascadesLocally(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, remote.Set(ctx, tripcloud.CollectionTrips, "t1",
		map[string]any{"title": "Doomed", "updatedAt": int64(100)}))
	require.NoError(t, remote.Set(ctx, tripcloud.CollectionPlans, "p1",
		map[string]any{"tripId": "t1", "title": "Child", "updatedAt": int64(100)}))
	require.NoError(t, remote.Set(ctx, tripcloud.CollectionSegments, "s1",
		map[string]any{"tripId": "t1", "updatedAt": int64(100)}))

	engine, local := newTestEngine(t, testConfig(), remote)
	require.NoError(t, engine.Start(ctx, "u1"))

	require.NoError(t, remote.Delete(ctx, tripcloud.CollectionTrips, "t1"))

	eventually(t, func() bool {
		trips, err := local.ListTrips(ctx)
		return err == nil && len(trips) == 0
	}, "removed trip must disappear locally")

	plans, err := local.ListPlans(ctx)
	require.NoError(t, err)
	require.Empty(t, plans, "dependent plans must go with the trip")
	segments, err := local.ListSegments(ctx)
	require.NoError(t, err)
	require.Empty(t, segments, "dependent segments must go with the trip")
}

func TestListenerDropsChildWithUnknownParent(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()

	engine, local := newTestEngine(t, testConfig(), remote)
	require.NoError(t, engine.Start(ctx, "u1"))

	require.NoError(t, remote.Set(ctx, tripcloud.CollectionPlans, "p1",
		map[string]any{"tripId": "ghost", "title": "Orphan", "updatedAt": int64(100)}))

	require.Never(t, func() bool {
		plans, _ := local.ListPlans(ctx)
		return len(plans) > 0
	}, 200*time.Millisecond, 10*time.Millisecond,
		"a plan whose parent trip is unknown locally is skipped")
}

func TestListenerUpdatesSettingsSingleton(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()

	engine, local := newTestEngine(t, testConfig(), remote)
	require.NoError(t, engine.Start(ctx, "u1"))

	require.NoError(t, remote.Set(ctx, tripcloud.CollectionSettings, "preferences",
		map[string]any{"currency": "JPY", "theme": "dark", "updatedAt": nowMillis()}))

	eventually(t, func() bool {
		st, err := local.GetSettings(ctx)
		return err == nil && st != nil && st.Currency == "JPY"
	}, "settings change must apply to the local singleton")
}
