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

func docFromTrip(t *tripstore.Trip) map[string]any {
	return map[string]any{
		"title":       t.Title,
		"destination": t.Destination,
		"startDate":   t.StartDate,
		"endDate":     t.EndDate,
		"notes":       t.Notes,
		"updatedAt":   t.UpdatedAt,
	}
}

func tripFromDoc(remoteID string, data map[string]any) (*tripstore.Trip, error) {
	title, err := requireString(data, "title")
	if err != nil {
		return nil, err
	}
	return &tripstore.Trip{
		RemoteID:    remoteID,
		Title:       title,
		Destination: docString(data, "destination"),
		StartDate:   docString(data, "startDate"),
		EndDate:     docString(data, "endDate"),
		Notes:       docString(data, "notes"),
		UpdatedAt:   docInt64(data, "updatedAt"),
	}, nil
}

// applyTrip upserts an incoming trip document: insert when unknown,
// overwrite when strictly newer, no-op otherwise.
func (s *session) applyTrip(ctx context.Context, remoteID string, data map[string]any) (bool, error) {
	incoming, err := tripFromDoc(remoteID, data)
	if err != nil {
		return false, err
	}
	local := s.engine.local

	existing, err := local.TripByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if err := local.InsertTrip(ctx, incoming); err != nil {
			return false, err
		}
		s.refs.put(tripcloud.CollectionTrips, incoming.ID, remoteID)
		return true, nil
	}
	if incoming.UpdatedAt <= existing.UpdatedAt {
		// Ties keep the local value; reapplying identical state is
		// wasted work.
		return false, nil
	}
	incoming.ID = existing.ID
	if err := local.UpdateTrip(ctx, incoming); err != nil {
		return false, err
	}
	s.refs.put(tripcloud.CollectionTrips, incoming.ID, remoteID)
	return true, nil
}

// removeTrip deletes the local trip for a remote removal, cascading to
// its plans and route segments.
func (s *session) removeTrip(ctx context.Context, remoteID string) (bool, error) {
	local := s.engine.local
	existing, err := local.TripByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	// Collect dependents first so their cross references can be
	// dropped alongside the rows the FK cascade removes.
	plans, err := local.PlansForTrip(ctx, existing.ID)
	if err != nil {
		return false, err
	}
	segments, err := local.SegmentsForTrip(ctx, existing.ID)
	if err != nil {
		return false, err
	}
	if err := local.DeleteTrip(ctx, existing.ID); err != nil {
		return false, err
	}

	s.refs.deleteByRemote(tripcloud.CollectionTrips, remoteID)
	for _, p := range plans {
		s.refs.deleteByLocal(tripcloud.CollectionPlans, p.ID)
	}
	for _, seg := range segments {
		s.refs.deleteByLocal(tripcloud.CollectionSegments, seg.ID)
	}
	return true, nil
}

// reconcileTrips is the initial-sync pass for the trips collection.
// The remote snapshot is ground truth: remote documents overwrite
// local state unconditionally, and local trips that were never
// uploaded are discarded together with their dependents.
func (s *session) reconcileTrips(ctx context.Context) error {
	e := s.engine

	var docs []tripcloud.Document
	var locals []tripstore.Trip
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if docs, err = s.store.GetAll(gctx, tripcloud.CollectionTrips); err != nil {
			return fmt.Errorf("failed to fetch remote trips: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if locals, err = e.local.ListTrips(gctx); err != nil {
			return fmt.Errorf("failed to list local trips: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	byRemote := make(map[string]*tripstore.Trip, len(locals))
	for i := range locals {
		if locals[i].RemoteID != "" {
			byRemote[locals[i].RemoteID] = &locals[i]
		}
	}

	changed := false
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		seen[doc.ID] = true
		incoming, err := tripFromDoc(doc.ID, doc.Data)
		if err != nil {
			e.logger.Warn("skipping malformed trip document", "doc_id", doc.ID, "error", err)
			continue
		}
		if existing, ok := byRemote[doc.ID]; ok {
			incoming.ID = existing.ID
			if err := e.local.UpdateTrip(ctx, incoming); err != nil {
				return err
			}
		} else if err := e.local.InsertTrip(ctx, incoming); err != nil {
			return err
		}
		s.refs.put(tripcloud.CollectionTrips, incoming.ID, doc.ID)
		changed = true
	}

	for i := range locals {
		t := &locals[i]
		if t.RemoteID == "" || !seen[t.RemoteID] {
			// Never uploaded, or deleted remotely while this device
			// was offline. Either way the trip and its dependents go.
			if err := e.local.DeleteTrip(ctx, t.ID); err != nil {
				return err
			}
			changed = true
		}
	}

	if changed {
		e.updateObs.notify(tripcloud.CollectionTrips)
	}
	return nil
}
