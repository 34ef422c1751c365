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

func docFromSettings(st *tripstore.Settings) map[string]any {
	return map[string]any{
		"currency":     st.Currency,
		"distanceUnit": st.DistanceUnit,
		"theme":        st.Theme,
		"language":     st.Language,
		"updatedAt":    st.UpdatedAt,
	}
}

func settingsFromDoc(remoteID string, data map[string]any) *tripstore.Settings {
	return &tripstore.Settings{
		RemoteID:     remoteID,
		Currency:     docString(data, "currency"),
		DistanceUnit: docString(data, "distanceUnit"),
		Theme:        docString(data, "theme"),
		Language:     docString(data, "language"),
		UpdatedAt:    docInt64(data, "updatedAt"),
	}
}

func (s *session) applySettings(ctx context.Context, remoteID string, data map[string]any) (bool, error) {
	incoming := settingsFromDoc(remoteID, data)
	existing, err := s.engine.local.GetSettings(ctx)
	if err != nil {
		return false, err
	}
	if existing != nil && incoming.UpdatedAt <= existing.UpdatedAt {
		return false, nil
	}
	if err := s.engine.local.PutSettings(ctx, incoming); err != nil {
		return false, err
	}
	return true, nil
}

// removeSettings ignores remote settings deletions: the singleton is
// re-seeded on the next session start rather than wiped locally.
func (s *session) removeSettings(context.Context, string) (bool, error) {
	return false, nil
}

// reconcileSettings follows the singleton variant: an existing remote
// document wins outright; otherwise local settings seed the remote.
func (s *session) reconcileSettings(ctx context.Context) error {
	e := s.engine

	var docs []tripcloud.Document
	var local *tripstore.Settings
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if docs, err = s.store.GetAll(gctx, tripcloud.CollectionSettings); err != nil {
			return fmt.Errorf("failed to fetch remote settings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if local, err = e.local.GetSettings(gctx); err != nil {
			return fmt.Errorf("failed to get local settings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if len(docs) > 0 {
		doc := docs[0]
		if err := e.local.PutSettings(ctx, settingsFromDoc(doc.ID, doc.Data)); err != nil {
			return err
		}
		e.updateObs.notify(tripcloud.CollectionSettings)
		return nil
	}

	if local != nil {
		local.RemoteID = settingsDocID
		if err := e.local.PutSettings(ctx, local); err != nil {
			return err
		}
		s.queue.Write(tripcloud.CollectionSettings, settingsDocID, docFromSettings(local), true)
	}
	return nil
}
