// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"sync"
	"time"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
)

// PendingDelete is the undo handle of a deferred remote deletion. The
// local record is already gone when the handle is returned; the remote
// counterpart is deleted once the grace window elapses, unless Undo is
// called first.
type PendingDelete struct {
	session *session
	timer   *time.Timer

	mu      sync.Mutex
	done    bool
	fire    func()
	restore func(ctx context.Context) error
}

func (s *session) newPendingDelete(fire func(), restore func(ctx context.Context) error) *PendingDelete {
	pd := &PendingDelete{session: s, fire: fire, restore: restore}
	pd.timer = time.AfterFunc(s.engine.config.UndoGrace, pd.expire)
	s.trackDeferred(pd)
	return pd
}

// Undo cancels the scheduled remote deletion and re-creates the
// deleted record (and, for a trip, its plans) under fresh local ids,
// queued as brand-new uploads. The old remote documents are not
// restored; they may already be gone.
func (pd *PendingDelete) Undo(ctx context.Context) error {
	pd.mu.Lock()
	if pd.done {
		pd.mu.Unlock()
		return ErrUndoExpired
	}
	pd.done = true
	pd.timer.Stop()
	pd.mu.Unlock()

	pd.session.untrackDeferred(pd)
	return pd.restore(ctx)
}

// expire runs on the grace timer: the undo window is over, issue the
// remote deletion exactly once.
func (pd *PendingDelete) expire() {
	pd.mu.Lock()
	if pd.done {
		pd.mu.Unlock()
		return
	}
	pd.done = true
	pd.mu.Unlock()

	pd.session.untrackDeferred(pd)
	pd.fire()
}

// DeleteTripWithUndo deletes the trip (with its plans and route
// segments) from the local store immediately and schedules the remote
// cascade deletion after the undo grace window.
func (e *Engine) DeleteTripWithUndo(ctx context.Context, localID int64) (*PendingDelete, error) {
	s := e.activeSession()
	if s == nil {
		return nil, ErrSessionInactive
	}

	trip, err := e.local.GetTrip(ctx, localID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ErrNotFound
	}
	plans, err := e.local.PlansForTrip(ctx, localID)
	if err != nil {
		return nil, err
	}
	segments, err := e.local.SegmentsForTrip(ctx, localID)
	if err != nil {
		return nil, err
	}

	if err := e.local.DeleteTrip(ctx, localID); err != nil {
		return nil, err
	}
	s.refs.deleteByLocal(tripcloud.CollectionTrips, localID)
	for _, p := range plans {
		s.refs.deleteByLocal(tripcloud.CollectionPlans, p.ID)
	}
	for _, seg := range segments {
		s.refs.deleteByLocal(tripcloud.CollectionSegments, seg.ID)
	}
	e.updateObs.notify(tripcloud.CollectionTrips)

	tripRemoteID := trip.RemoteID
	fire := func() {
		if tripRemoteID == "" {
			return // never uploaded, nothing remote to delete
		}
		if err := s.deleteRemoteTripCascade(context.Background(), tripRemoteID); err != nil {
			e.logger.Error("failed to issue deferred trip deletion",
				"trip_remote_id", tripRemoteID, "error", err)
		}
	}
	restore := func(ctx context.Context) error {
		return s.restoreTrip(ctx, trip, plans)
	}
	return s.newPendingDelete(fire, restore), nil
}

// restoreTrip re-creates an undone trip and its plans as new records.
// Cached route segments are not restored; they are recomputed on
// demand.
func (s *session) restoreTrip(ctx context.Context, trip *tripstore.Trip, plans []tripstore.Plan) error {
	e := s.engine

	fresh := &tripstore.Trip{
		Title:       trip.Title,
		Destination: trip.Destination,
		StartDate:   trip.StartDate,
		EndDate:     trip.EndDate,
		Notes:       trip.Notes,
		UpdatedAt:   nowMillis(),
	}
	if err := e.local.InsertTrip(ctx, fresh); err != nil {
		return err
	}
	tripRemoteID, err := e.UploadTrip(ctx, fresh)
	if err != nil {
		return err
	}
	if err := e.local.SetTripRemoteID(ctx, fresh.ID, tripRemoteID); err != nil {
		return err
	}

	for i := range plans {
		p := &tripstore.Plan{
			TripID:       fresh.ID,
			TripRemoteID: tripRemoteID,
			Day:          plans[i].Day,
			Title:        plans[i].Title,
			StartTime:    plans[i].StartTime,
			Notes:        plans[i].Notes,
			UpdatedAt:    nowMillis(),
		}
		if err := e.local.InsertPlan(ctx, p); err != nil {
			return err
		}
		planRemoteID, err := e.UploadPlan(ctx, p)
		if err != nil {
			return err
		}
		if err := e.local.SetPlanRemoteID(ctx, p.ID, planRemoteID); err != nil {
			return err
		}
	}

	e.updateObs.notify(tripcloud.CollectionTrips)
	return nil
}

// DeletePlaceWithUndo deletes the place locally and schedules the
// remote deletion after the undo grace window.
func (e *Engine) DeletePlaceWithUndo(ctx context.Context, localID int64) (*PendingDelete, error) {
	s := e.activeSession()
	if s == nil {
		return nil, ErrSessionInactive
	}

	place, err := e.local.GetPlace(ctx, localID)
	if err != nil {
		return nil, err
	}
	if place == nil {
		return nil, ErrNotFound
	}
	if err := e.local.DeletePlace(ctx, localID); err != nil {
		return nil, err
	}
	s.refs.deleteByLocal(tripcloud.CollectionPlaces, localID)
	e.updateObs.notify(tripcloud.CollectionPlaces)

	placeRemoteID := place.RemoteID
	fire := func() {
		if placeRemoteID == "" {
			return
		}
		s.queue.Delete(tripcloud.CollectionPlaces, placeRemoteID, true)
	}
	restore := func(ctx context.Context) error {
		fresh := &tripstore.Place{
			Name:      place.Name,
			Address:   place.Address,
			Latitude:  place.Latitude,
			Longitude: place.Longitude,
			Category:  place.Category,
			Notes:     place.Notes,
			UpdatedAt: nowMillis(),
		}
		if err := e.local.InsertPlace(ctx, fresh); err != nil {
			return err
		}
		remoteID, err := e.UploadPlace(ctx, fresh)
		if err != nil {
			return err
		}
		if err := e.local.SetPlaceRemoteID(ctx, fresh.ID, remoteID); err != nil {
			return err
		}
		e.updateObs.notify(tripcloud.CollectionPlaces)
		return nil
	}
	return s.newPendingDelete(fire, restore), nil
}

func (s *session) trackDeferred(pd *PendingDelete) {
	s.deferredMu.Lock()
	s.deferred[pd] = struct{}{}
	s.deferredMu.Unlock()
}

func (s *session) untrackDeferred(pd *PendingDelete) {
	s.deferredMu.Lock()
	delete(s.deferred, pd)
	s.deferredMu.Unlock()
}

// fireDeferred expires every outstanding deferred deletion now. Called
// on session stop so a scheduled remote deletion is never dropped;
// the remainder of its undo window is forfeited.
func (s *session) fireDeferred() {
	s.deferredMu.Lock()
	pending := make([]*PendingDelete, 0, len(s.deferred))
	for pd := range s.deferred {
		pending = append(pending, pd)
	}
	s.deferredMu.Unlock()

	for _, pd := range pending {
		pd.timer.Stop()
		pd.expire()
	}
}
