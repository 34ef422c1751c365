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

func docFromPlan(p *tripstore.Plan) map[string]any {
	return map[string]any{
		"tripId":    p.TripRemoteID,
		"day":       p.Day,
		"title":     p.Title,
		"startTime": p.StartTime,
		"notes":     p.Notes,
		"updatedAt": p.UpdatedAt,
	}
}

func planFromDoc(remoteID string, data map[string]any) (*tripstore.Plan, error) {
	title, err := requireString(data, "title")
	if err != nil {
		return nil, err
	}
	tripRemoteID, err := requireString(data, tripcloud.FieldTripID)
	if err != nil {
		return nil, err
	}
	return &tripstore.Plan{
		RemoteID:     remoteID,
		TripRemoteID: tripRemoteID,
		Day:          docInt(data, "day"),
		Title:        title,
		StartTime:    docString(data, "startTime"),
		Notes:        docString(data, "notes"),
		UpdatedAt:    docInt64(data, "updatedAt"),
	}, nil
}

// resolveTripLocal maps a remote trip id to the local trip id, first
// through the cross-reference map, then through the store.
func (s *session) resolveTripLocal(ctx context.Context, tripRemoteID string) (int64, bool, error) {
	if id, ok := s.refs.localFor(tripcloud.CollectionTrips, tripRemoteID); ok {
		return id, true, nil
	}
	trip, err := s.engine.local.TripByRemoteID(ctx, tripRemoteID)
	if err != nil {
		return 0, false, err
	}
	if trip == nil {
		return 0, false, nil
	}
	s.refs.put(tripcloud.CollectionTrips, trip.ID, tripRemoteID)
	return trip.ID, true, nil
}

func (s *session) applyPlan(ctx context.Context, remoteID string, data map[string]any) (bool, error) {
	incoming, err := planFromDoc(remoteID, data)
	if err != nil {
		return false, err
	}
	local := s.engine.local

	tripID, ok, err := s.resolveTripLocal(ctx, incoming.TripRemoteID)
	if err != nil {
		return false, err
	}
	if !ok {
		// Parent trip not present yet. Cross-collection ordering is
		// not guaranteed; a later event or the next full
		// reconciliation heals the gap.
		s.engine.logger.Debug("skipping plan with unknown parent trip",
			"doc_id", remoteID, "trip_remote_id", incoming.TripRemoteID)
		return false, nil
	}
	incoming.TripID = tripID

	existing, err := local.PlanByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if err := local.InsertPlan(ctx, incoming); err != nil {
			return false, err
		}
		s.refs.put(tripcloud.CollectionPlans, incoming.ID, remoteID)
		return true, nil
	}
	if incoming.UpdatedAt <= existing.UpdatedAt {
		return false, nil
	}
	incoming.ID = existing.ID
	if err := local.UpdatePlan(ctx, incoming); err != nil {
		return false, err
	}
	s.refs.put(tripcloud.CollectionPlans, incoming.ID, remoteID)
	return true, nil
}

func (s *session) removePlan(ctx context.Context, remoteID string) (bool, error) {
	local := s.engine.local
	existing, err := local.PlanByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := local.DeletePlan(ctx, existing.ID); err != nil {
		return false, err
	}
	s.refs.deleteByRemote(tripcloud.CollectionPlans, remoteID)
	return true, nil
}

func (s *session) reconcilePlans(ctx context.Context) error {
	e := s.engine

	var docs []tripcloud.Document
	var locals []tripstore.Plan
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if docs, err = s.store.GetAll(gctx, tripcloud.CollectionPlans); err != nil {
			return fmt.Errorf("failed to fetch remote plans: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if locals, err = e.local.ListPlans(gctx); err != nil {
			return fmt.Errorf("failed to list local plans: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	byRemote := make(map[string]*tripstore.Plan, len(locals))
	for i := range locals {
		if locals[i].RemoteID != "" {
			byRemote[locals[i].RemoteID] = &locals[i]
		}
	}

	changed := false
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		seen[doc.ID] = true
		incoming, err := planFromDoc(doc.ID, doc.Data)
		if err != nil {
			e.logger.Warn("skipping malformed plan document", "doc_id", doc.ID, "error", err)
			continue
		}
		tripID, ok, err := s.resolveTripLocal(ctx, incoming.TripRemoteID)
		if err != nil {
			return err
		}
		if !ok {
			e.logger.Warn("skipping plan with unknown parent trip",
				"doc_id", doc.ID, "trip_remote_id", incoming.TripRemoteID)
			continue
		}
		incoming.TripID = tripID

		if existing, ok := byRemote[doc.ID]; ok {
			incoming.ID = existing.ID
			if err := e.local.UpdatePlan(ctx, incoming); err != nil {
				return err
			}
		} else if err := e.local.InsertPlan(ctx, incoming); err != nil {
			return err
		}
		s.refs.put(tripcloud.CollectionPlans, incoming.ID, doc.ID)
		changed = true
	}

	for i := range locals {
		p := &locals[i]
		if p.RemoteID == "" || !seen[p.RemoteID] {
			if err := e.local.DeletePlan(ctx, p.ID); err != nil {
				return err
			}
			s.refs.deleteByLocal(tripcloud.CollectionPlans, p.ID)
			changed = true
		}
	}

	if changed {
		e.updateObs.notify(tripcloud.CollectionPlans)
	}
	return nil
}
