// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

// Package tripcloud abstracts the multi-device cloud document store.
// Documents live in per-user collections, are keyed by string ids, and
// every collection exposes a live change-notification subscription.
//
// Two implementations are provided: a Postgres-backed store (JSONB
// documents, LISTEN/NOTIFY change feed) and an in-memory store used by
// tests and the offline demo.
package tripcloud

import (
	"context"
	"errors"
)

// MaxBatchOps is the hard per-batch operation limit of a Commit call.
// Callers must chunk larger operation lists themselves.
const MaxBatchOps = 500

// Collection names used by the travel planner.
const (
	CollectionTrips    = "trips"
	CollectionPlans    = "plans"
	CollectionPlaces   = "places"
	CollectionSettings = "settings"
	CollectionSegments = "route_segments"
)

// FieldTripID is the document field carrying a child document's parent
// trip reference (the trip's remote id).
const FieldTripID = "tripId"

// ErrPermissionDenied is returned when the remote store rejects an
// operation for authorization reasons.
var ErrPermissionDenied = errors.New("tripcloud: permission denied")

// EventType classifies a change notification.
type EventType string

const (
	EventAdded    EventType = "added"
	EventModified EventType = "modified"
	EventRemoved  EventType = "removed"
)

// Document is one remote document.
type Document struct {
	ID   string
	Data map[string]any
}

// ChangeEvent is one entry of a collection's change feed. Data is nil
// for EventRemoved.
type ChangeEvent struct {
	Type EventType
	ID   string
	Data map[string]any
}

// Op is one entry of an atomic batch commit.
type Op struct {
	Collection string
	ID         string
	Data       map[string]any // ignored when Delete is set
	Delete     bool
}

// Subscription is a live change feed for one collection. Events is
// closed after Close returns (or when the subscribe context ends).
type Subscription interface {
	Events() <-chan ChangeEvent
	Close()
}

// Store is the per-user view of the cloud document store.
type Store interface {
	// GetAll returns the full snapshot of a collection.
	GetAll(ctx context.Context, collection string) ([]Document, error)

	// Set creates or overwrites a single document.
	Set(ctx context.Context, collection, id string, data map[string]any) error

	// Delete removes a single document. Deleting an absent document is
	// not an error.
	Delete(ctx context.Context, collection, id string) error

	// Commit applies all ops atomically. len(ops) must not exceed
	// MaxBatchOps.
	Commit(ctx context.Context, ops []Op) error

	// QueryByField returns the documents whose top-level field equals
	// the given string value.
	QueryByField(ctx context.Context, collection, field, value string) ([]Document, error)

	// Subscribe opens a live change feed for a collection. The feed
	// stays open until Close is called or ctx ends.
	Subscribe(ctx context.Context, collection string) (Subscription, error)
}

// Provider scopes Store instances to authenticated users.
type Provider interface {
	ForUser(ctx context.Context, userID string) (Store, error)
}
