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

func docFromPlace(p *tripstore.Place) map[string]any {
	return map[string]any{
		"name":      p.Name,
		"address":   p.Address,
		"lat":       p.Latitude,
		"lng":       p.Longitude,
		"category":  p.Category,
		"notes":     p.Notes,
		"updatedAt": p.UpdatedAt,
	}
}

func placeFromDoc(remoteID string, data map[string]any) (*tripstore.Place, error) {
	name, err := requireString(data, "name")
	if err != nil {
		return nil, err
	}
	return &tripstore.Place{
		RemoteID:  remoteID,
		Name:      name,
		Address:   docString(data, "address"),
		Latitude:  docFloat(data, "lat"),
		Longitude: docFloat(data, "lng"),
		Category:  docString(data, "category"),
		Notes:     docString(data, "notes"),
		UpdatedAt: docInt64(data, "updatedAt"),
	}, nil
}

func (s *session) applyPlace(ctx context.Context, remoteID string, data map[string]any) (bool, error) {
	incoming, err := placeFromDoc(remoteID, data)
	if err != nil {
		return false, err
	}
	local := s.engine.local

	existing, err := local.PlaceByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if err := local.InsertPlace(ctx, incoming); err != nil {
			return false, err
		}
		s.refs.put(tripcloud.CollectionPlaces, incoming.ID, remoteID)
		return true, nil
	}
	if incoming.UpdatedAt <= existing.UpdatedAt {
		return false, nil
	}
	incoming.ID = existing.ID
	if err := local.UpdatePlace(ctx, incoming); err != nil {
		return false, err
	}
	s.refs.put(tripcloud.CollectionPlaces, incoming.ID, remoteID)
	return true, nil
}

func (s *session) removePlace(ctx context.Context, remoteID string) (bool, error) {
	local := s.engine.local
	existing, err := local.PlaceByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := local.DeletePlace(ctx, existing.ID); err != nil {
		return false, err
	}
	s.refs.deleteByRemote(tripcloud.CollectionPlaces, remoteID)
	return true, nil
}

func (s *session) reconcilePlaces(ctx context.Context) error {
	e := s.engine

	var docs []tripcloud.Document
	var locals []tripstore.Place
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if docs, err = s.store.GetAll(gctx, tripcloud.CollectionPlaces); err != nil {
			return fmt.Errorf("failed to fetch remote places: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if locals, err = e.local.ListPlaces(gctx); err != nil {
			return fmt.Errorf("failed to list local places: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	byRemote := make(map[string]*tripstore.Place, len(locals))
	for i := range locals {
		if locals[i].RemoteID != "" {
			byRemote[locals[i].RemoteID] = &locals[i]
		}
	}

	changed := false
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		seen[doc.ID] = true
		incoming, err := placeFromDoc(doc.ID, doc.Data)
		if err != nil {
			e.logger.Warn("skipping malformed place document", "doc_id", doc.ID, "error", err)
			continue
		}
		if existing, ok := byRemote[doc.ID]; ok {
			incoming.ID = existing.ID
			if err := e.local.UpdatePlace(ctx, incoming); err != nil {
				return err
			}
		} else if err := e.local.InsertPlace(ctx, incoming); err != nil {
			return err
		}
		s.refs.put(tripcloud.CollectionPlaces, incoming.ID, doc.ID)
		changed = true
	}

	for i := range locals {
		p := &locals[i]
		if p.RemoteID == "" || !seen[p.RemoteID] {
			if err := e.local.DeletePlace(ctx, p.ID); err != nil {
				return err
			}
			s.refs.deleteByLocal(tripcloud.CollectionPlaces, p.ID)
			changed = true
		}
	}

	if changed {
		e.updateObs.notify(tripcloud.CollectionPlaces)
	}
	return nil
}
