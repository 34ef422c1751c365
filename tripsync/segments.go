// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
	"github.com/hersouls/Travel-v4.0-sub000/tripstore"
)

func docFromSegment(rs *tripstore.RouteSegment) map[string]any {
	return map[string]any{
		"tripId":    rs.TripRemoteID,
		"mode":      rs.TravelMode,
		"polyline":  rs.Polyline,
		"distanceM": rs.DistanceM,
		"durationS": rs.DurationS,
		"updatedAt": rs.UpdatedAt,
	}
}

func segmentFromDoc(remoteID string, data map[string]any) (*tripstore.RouteSegment, error) {
	tripRemoteID, err := requireString(data, tripcloud.FieldTripID)
	if err != nil {
		return nil, err
	}
	return &tripstore.RouteSegment{
		RemoteID:     remoteID,
		TripRemoteID: tripRemoteID,
		TravelMode:   docString(data, "mode"),
		Polyline:     docString(data, "polyline"),
		DistanceM:    docFloat(data, "distanceM"),
		DurationS:    docFloat(data, "durationS"),
		UpdatedAt:    docInt64(data, "updatedAt"),
	}, nil
}

func (s *session) applySegment(ctx context.Context, remoteID string, data map[string]any) (bool, error) {
	incoming, err := segmentFromDoc(remoteID, data)
	if err != nil {
		return false, err
	}
	local := s.engine.local

	tripID, ok, err := s.resolveTripLocal(ctx, incoming.TripRemoteID)
	if err != nil {
		return false, err
	}
	if !ok {
		s.engine.logger.Debug("skipping route segment with unknown parent trip",
			"doc_id", remoteID, "trip_remote_id", incoming.TripRemoteID)
		return false, nil
	}
	incoming.TripID = tripID

	existing, err := local.SegmentByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if err := local.InsertSegment(ctx, incoming); err != nil {
			return false, err
		}
		s.refs.put(tripcloud.CollectionSegments, incoming.ID, remoteID)
		return true, nil
	}
	if incoming.UpdatedAt <= existing.UpdatedAt {
		return false, nil
	}
	incoming.ID = existing.ID
	if err := local.UpdateSegment(ctx, incoming); err != nil {
		return false, err
	}
	s.refs.put(tripcloud.CollectionSegments, incoming.ID, remoteID)
	return true, nil
}

func (s *session) removeSegment(ctx context.Context, remoteID string) (bool, error) {
	local := s.engine.local
	existing, err := local.SegmentByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := local.DeleteSegment(ctx, existing.ID); err != nil {
		return false, err
	}
	s.refs.deleteByRemote(tripcloud.CollectionSegments, remoteID)
	return true, nil
}

func (s *session) reconcileSegments(ctx context.Context) error {
	e := s.engine

	var docs []tripcloud.Document
	var locals []tripstore.RouteSegment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if docs, err = s.store.GetAll(gctx, tripcloud.CollectionSegments); err != nil {
			return fmt.Errorf("failed to fetch remote route segments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if locals, err = e.local.ListSegments(gctx); err != nil {
			return fmt.Errorf("failed to list local route segments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	byRemote := make(map[string]*tripstore.RouteSegment, len(locals))
	for i := range locals {
		if locals[i].RemoteID != "" {
			byRemote[locals[i].RemoteID] = &locals[i]
		}
	}

	changed := false
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		seen[doc.ID] = true
		incoming, err := segmentFromDoc(doc.ID, doc.Data)
		if err != nil {
			e.logger.Warn("skipping malformed route segment document", "doc_id", doc.ID, "error", err)
			continue
		}
		tripID, ok, err := s.resolveTripLocal(ctx, incoming.TripRemoteID)
		if err != nil {
			return err
		}
		if !ok {
			e.logger.Warn("skipping route segment with unknown parent trip",
				"doc_id", doc.ID, "trip_remote_id", incoming.TripRemoteID)
			continue
		}
		incoming.TripID = tripID

		if existing, ok := byRemote[doc.ID]; ok {
			incoming.ID = existing.ID
			if err := e.local.UpdateSegment(ctx, incoming); err != nil {
				return err
			}
		} else if err := e.local.InsertSegment(ctx, incoming); err != nil {
			return err
		}
		s.refs.put(tripcloud.CollectionSegments, incoming.ID, doc.ID)
		changed = true
	}

	for i := range locals {
		rs := &locals[i]
		if rs.RemoteID == "" || !seen[rs.RemoteID] {
			if err := e.local.DeleteSegment(ctx, rs.ID); err != nil {
				return err
			}
			s.refs.deleteByLocal(tripcloud.CollectionSegments, rs.ID)
			changed = true
		}
	}

	if changed {
		e.updateObs.notify(tripcloud.CollectionSegments)
	}
	return nil
}
