// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"context"
	"fmt"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
)

// collectionHandler binds one collection name to its apply/remove
// routines. apply upserts an added/modified document with
// last-write-wins; remove handles a remote deletion. Both report
// whether the local store changed.
type collectionHandler struct {
	name   string
	apply  func(ctx context.Context, remoteID string, data map[string]any) (bool, error)
	remove func(ctx context.Context, remoteID string) (bool, error)
}

func (s *session) handlers() []collectionHandler {
	return []collectionHandler{
		{tripcloud.CollectionTrips, s.applyTrip, s.removeTrip},
		{tripcloud.CollectionPlans, s.applyPlan, s.removePlan},
		{tripcloud.CollectionPlaces, s.applyPlace, s.removePlace},
		{tripcloud.CollectionSettings, s.applySettings, s.removeSettings},
		{tripcloud.CollectionSegments, s.applySegment, s.removeSegment},
	}
}

// startListeners opens one live subscription per collection and spawns
// its consumer goroutine.
func (s *session) startListeners() error {
	for _, h := range s.handlers() {
		sub, err := s.store.Subscribe(s.ctx, h.name)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", h.name, err)
		}
		s.subs = append(s.subs, sub)
		s.wg.Add(1)
		go s.listenLoop(h, sub)
	}
	return nil
}

func (s *session) listenLoop(h collectionHandler, sub tripcloud.Subscription) {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			s.dispatch(h, ev)
		case <-s.ctx.Done():
			return
		}
	}
}

// dispatch applies one incoming change event. Dispatch errors never
// stop the listener; they are logged and the loop moves on. Applying
// is idempotent, so duplicate or out-of-order delivery is harmless.
func (s *session) dispatch(h collectionHandler, ev tripcloud.ChangeEvent) {
	e := s.engine

	if s.sup.consume(h.name, ev.ID) {
		// Our own write echoing back.
		e.logger.Debug("suppressed echo event", "collection", h.name, "doc_id", ev.ID)
		return
	}

	var changed bool
	var err error
	switch ev.Type {
	case tripcloud.EventRemoved:
		changed, err = h.remove(s.ctx, ev.ID)
	default:
		changed, err = h.apply(s.ctx, ev.ID, ev.Data)
	}
	if err != nil {
		e.logger.Warn("failed to apply remote change",
			"collection", h.name, "doc_id", ev.ID, "type", string(ev.Type), "error", err)
		return
	}
	if changed {
		e.updateObs.notify(h.name)
	}
}
