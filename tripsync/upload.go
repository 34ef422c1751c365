// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
)

// UploadTrip queues the trip for remote write. A trip without a remote
// id gets a freshly allocated one, returned for the caller to persist
// on the local record. The write is debounced and batched; its echo
// notification is suppressed.
func (e *Engine) UploadTrip(ctx context.Context, t *tripstore.Trip) (string, error) {
	s := e.activeSession()
	if s == nil {
		return "", ErrSessionInactive
	}
	remoteID := t.RemoteID
	if remoteID == "" {
		remoteID = uuid.NewString()
	}
	s.refs.put(tripcloud.CollectionTrips, t.ID, remoteID)
	s.queue.Write(tripcloud.CollectionTrips, remoteID, docFromTrip(t), true)
	return remoteID, nil
}

// UploadPlan queues the plan for remote write. The parent trip must
// already have a remote id (directly on the plan, in the
// cross-reference map, or on the stored trip record).
func (e *Engine) UploadPlan(ctx context.Context, p *tripstore.Plan) (string, error) {
	s := e.activeSession()
	if s == nil {
		return "", ErrSessionInactive
	}
	if err := s.resolveTripRemote(ctx, &p.TripRemoteID, p.TripID); err != nil {
		return "", err
	}
	remoteID := p.RemoteID
	if remoteID == "" {
		remoteID = uuid.NewString()
	}
	s.refs.put(tripcloud.CollectionPlans, p.ID, remoteID)
	s.queue.Write(tripcloud.CollectionPlans, remoteID, docFromPlan(p), true)
	return remoteID, nil
}

// UploadPlace queues the place for remote write.
func (e *Engine) UploadPlace(ctx context.Context, p *tripstore.Place) (string, error) {
	s := e.activeSession()
	if s == nil {
		return "", ErrSessionInactive
	}
	remoteID := p.RemoteID
	if remoteID == "" {
		remoteID = uuid.NewString()
	}
	s.refs.put(tripcloud.CollectionPlaces, p.ID, remoteID)
	s.queue.Write(tripcloud.CollectionPlaces, remoteID, docFromPlace(p), true)
	return remoteID, nil
}

// UploadSegment queues the route segment for remote write.
func (e *Engine) UploadSegment(ctx context.Context, rs *tripstore.RouteSegment) (string, error) {
	s := e.activeSession()
	if s == nil {
		return "", ErrSessionInactive
	}
	if err := s.resolveTripRemote(ctx, &rs.TripRemoteID, rs.TripID); err != nil {
		return "", err
	}
	remoteID := rs.RemoteID
	if remoteID == "" {
		remoteID = uuid.NewString()
	}
	s.refs.put(tripcloud.CollectionSegments, rs.ID, remoteID)
	s.queue.Write(tripcloud.CollectionSegments, remoteID, docFromSegment(rs), true)
	return remoteID, nil
}

// UploadSettings queues the settings singleton for remote write.
func (e *Engine) UploadSettings(ctx context.Context, st *tripstore.Settings) (string, error) {
	s := e.activeSession()
	if s == nil {
		return "", ErrSessionInactive
	}
	s.queue.Write(tripcloud.CollectionSettings, settingsDocID, docFromSettings(st), true)
	return settingsDocID, nil
}

// resolveTripRemote fills an empty parent trip remote id from the
// cross-reference map or the stored trip record.
func (s *session) resolveTripRemote(ctx context.Context, tripRemoteID *string, tripID int64) error {
	if *tripRemoteID != "" {
		return nil
	}
	if rid, ok := s.refs.remoteFor(tripcloud.CollectionTrips, tripID); ok {
		*tripRemoteID = rid
		return nil
	}
	trip, err := s.engine.local.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip == nil || trip.RemoteID == "" {
		return ErrTripNotUploaded
	}
	*tripRemoteID = trip.RemoteID
	return nil
}

// DeleteRemoteTrip queues deletion of a trip document and all remote
// plan and route segment documents referencing it. Every deletion arms
// its own suppression entry; chunking across batches is handled by the
// outbound queue.
func (e *Engine) DeleteRemoteTrip(ctx context.Context, remoteID string) error {
	s := e.activeSession()
	if s == nil {
		return ErrSessionInactive
	}
	return s.deleteRemoteTripCascade(ctx, remoteID)
}

func (s *session) deleteRemoteTripCascade(ctx context.Context, remoteID string) error {
	plans, err := s.store.QueryByField(ctx, tripcloud.CollectionPlans, tripcloud.FieldTripID, remoteID)
	if err != nil {
		return fmt.Errorf("failed to collect plans of trip %s: %w", remoteID, err)
	}
	segments, err := s.store.QueryByField(ctx, tripcloud.CollectionSegments, tripcloud.FieldTripID, remoteID)
	if err != nil {
		return fmt.Errorf("failed to collect route segments of trip %s: %w", remoteID, err)
	}

	for _, doc := range plans {
		s.queue.Delete(tripcloud.CollectionPlans, doc.ID, true)
		s.refs.deleteByRemote(tripcloud.CollectionPlans, doc.ID)
	}
	for _, doc := range segments {
		s.queue.Delete(tripcloud.CollectionSegments, doc.ID, true)
		s.refs.deleteByRemote(tripcloud.CollectionSegments, doc.ID)
	}
	s.queue.Delete(tripcloud.CollectionTrips, remoteID, true)
	s.refs.deleteByRemote(tripcloud.CollectionTrips, remoteID)
	return nil
}

// DeleteRemotePlan queues deletion of a plan document.
func (e *Engine) DeleteRemotePlan(ctx context.Context, remoteID string) error {
	return e.deleteRemote(tripcloud.CollectionPlans, remoteID)
}

// DeleteRemotePlace queues deletion of a place document.
func (e *Engine) DeleteRemotePlace(ctx context.Context, remoteID string) error {
	return e.deleteRemote(tripcloud.CollectionPlaces, remoteID)
}

// DeleteRemoteSegment queues deletion of a route segment document.
func (e *Engine) DeleteRemoteSegment(ctx context.Context, remoteID string) error {
	return e.deleteRemote(tripcloud.CollectionSegments, remoteID)
}

func (e *Engine) deleteRemote(collection, remoteID string) error {
	s := e.activeSession()
	if s == nil {
		return ErrSessionInactive
	}
	s.queue.Delete(collection, remoteID, true)
	s.refs.deleteByRemote(collection, remoteID)
	return nil
}
