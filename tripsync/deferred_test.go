// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
)

// seedUploadedTrip inserts a trip with two plans locally, uploads them
// and waits until the documents have landed in the remote store.
func seedUploadedTrip(t *testing.T, engine *Engine, local *tripstore.Store, remote *tripcloud.MemoryStore) *tripstore.Trip {
	t.Helper()
	ctx := context.Background()

	trip := &tripstore.Trip{Title: "Andalusia", UpdatedAt: nowMillis()}
	require.NoError(t, local.InsertTrip(ctx, trip))
	tripRemoteID, err := engine.UploadTrip(ctx, trip)
	require.NoError(t, err)
	require.NoError(t, local.SetTripRemoteID(ctx, trip.ID, tripRemoteID))
	trip.RemoteID = tripRemoteID

	for _, title := range []string{"Alhambra", "Mezquita"} {
		plan := &tripstore.Plan{TripID: trip.ID, Title: title, Day: 1, UpdatedAt: nowMillis()}
		require.NoError(t, local.InsertPlan(ctx, plan))
		planRemoteID, err := engine.UploadPlan(ctx, plan)
		require.NoError(t, err)
		require.NoError(t, local.SetPlanRemoteID(ctx, plan.ID, planRemoteID))
	}

	eventually(t, func() bool {
		trips, err1 := remote.GetAll(ctx, tripcloud.CollectionTrips)
		plans, err2 := remote.GetAll(ctx, tripcloud.CollectionPlans)
		return err1 == nil && err2 == nil && len(trips) == 1 && len(plans) == 2
	}, "uploads must land before the scenario starts")
	return trip
}

func TestDeleteTripWithUndoRestoresUnderFreshIDs(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	store := newCountingStore(remote)
	ctx := context.Background()

	engine, local := newTestEngine(t, testConfig(), store)
	require.NoError(t, engine.Start(ctx, "u1"))
	trip := seedUploadedTrip(t, engine, local, remote)

	pending, err := engine.DeleteTripWithUndo(ctx, trip.ID)
	require.NoError(t, err)

	// Local record and dependents are gone immediately.
	trips, err := local.ListTrips(ctx)
	require.NoError(t, err)
	require.Empty(t, trips)
	plans, err := local.ListPlans(ctx)
	require.NoError(t, err)
	require.Empty(t, plans)

	require.NoError(t, pending.Undo(ctx))

	trips, err = local.ListTrips(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	require.NotEqual(t, trip.ID, trips[0].ID, "restored trip gets a fresh local id")
	require.NotEqual(t, trip.RemoteID, trips[0].RemoteID, "restored trip gets a fresh remote id")
	require.Equal(t, "Andalusia", trips[0].Title)

	plans, err = local.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2, "plans are restored with the trip")
	for _, p := range plans {
		require.Equal(t, trips[0].ID, p.TripID)
	}

	// Second undo on the same handle is rejected.
	require.ErrorIs(t, pending.Undo(ctx), ErrUndoExpired)

	// The deferred remote deletion never fired.
	engine.Stop()
	require.Empty(t, store.deleteOps(), "undo must cancel the remote deletion")
}

func TestDeleteTripWithUndoFiresCascadeAfterGrace(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	store := newCountingStore(remote)
	ctx := context.Background()

	cfg := testConfig()
	cfg.UndoGrace = 50 * time.Millisecond
	engine, local := newTestEngine(t, cfg, store)
	require.NoError(t, engine.Start(ctx, "u1"))
	trip := seedUploadedTrip(t, engine, local, remote)

	_, err := engine.DeleteTripWithUndo(ctx, trip.ID)
	require.NoError(t, err)

	eventually(t, func() bool {
		trips, err1 := remote.GetAll(ctx, tripcloud.CollectionTrips)
		plans, err2 := remote.GetAll(ctx, tripcloud.CollectionPlans)
		return err1 == nil && err2 == nil && len(trips) == 0 && len(plans) == 0
	}, "grace expiry must delete the trip and its plans remotely")

	require.Len(t, store.deleteOps(), 3, "one deletion per remote document")

	var batchesWithDeletes int
	for _, batch := range store.allCommits() {
		for _, op := range batch {
			if op.Delete {
				batchesWithDeletes++
				break
			}
		}
	}
	require.Equal(t, 1, batchesWithDeletes, "the cascade goes out as a single batch")
}

func TestDeleteTripWithUndoExpiredHandle(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()

	cfg := testConfig()
	cfg.UndoGrace = 20 * time.Millisecond
	engine, local := newTestEngine(t, cfg, remote)
	require.NoError(t, engine.Start(ctx, "u1"))
	trip := seedUploadedTrip(t, engine, local, remote)

	pending, err := engine.DeleteTripWithUndo(ctx, trip.ID)
	require.NoError(t, err)

	eventually(t, func() bool {
		docs, err := remote.GetAll(ctx, tripcloud.CollectionTrips)
		return err == nil && len(docs) == 0
	}, "deletion must fire after the grace window")

	require.ErrorIs(t, pending.Undo(ctx), ErrUndoExpired)
}

func TestDeletePlaceWithUndo(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	store := newCountingStore(remote)
	ctx := context.Background()

	engine, local := newTestEngine(t, testConfig(), store)
	require.NoError(t, engine.Start(ctx, "u1"))

	place := &tripstore.Place{Name: "Sagrada Familia", Category: "sight", UpdatedAt: nowMillis()}
	require.NoError(t, local.InsertPlace(ctx, place))
	remoteID, err := engine.UploadPlace(ctx, place)
	require.NoError(t, err)
	require.NoError(t, local.SetPlaceRemoteID(ctx, place.ID, remoteID))

	eventually(t, func() bool {
		docs, err := remote.GetAll(ctx, tripcloud.CollectionPlaces)
		return err == nil && len(docs) == 1
	}, "upload must land first")

	pending, err := engine.DeletePlaceWithUndo(ctx, place.ID)
	require.NoError(t, err)
	places, err := local.ListPlaces(ctx)
	require.NoError(t, err)
	require.Empty(t, places)

	require.NoError(t, pending.Undo(ctx))
	places, err = local.ListPlaces(ctx)
	require.NoError(t, err)
	require.Len(t, places, 1)
	require.Equal(t, "Sagrada Familia", places[0].Name)
	require.NotEqual(t, place.ID, places[0].ID)

	engine.Stop()
	require.Empty(t, store.deleteOps())
}

func TestDeleteWithUndoRequiresSessionAndRecord(t *testing.T) {
	remote := tripcloud.NewMemoryStore()
	ctx := context.Background()

	engine, local := newTestEngine(t, testConfig(), remote)

	_, err := engine.DeleteTripWithUndo(ctx, 1)
	require.ErrorIs(t, err, ErrSessionInactive)

	require.NoError(t, engine.Start(ctx, "u1"))
	_, err = engine.DeleteTripWithUndo(ctx, 12345)
	require.ErrorIs(t, err, ErrNotFound)
	_ = local
}
