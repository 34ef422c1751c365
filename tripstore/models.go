// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripstore

// Trip is a top-level journey. Plans and RouteSegments hang off it.
type Trip struct {
	ID          int64
	RemoteID    string // empty until uploaded
	Title       string
	Destination string
	StartDate   string // ISO date, e.g. "2025-06-01"
	EndDate     string
	Notes       string
	UpdatedAt   int64 // unix millis
}

// Plan is one itinerary entry belonging to a trip. The parent trip is
// referenced in both id spaces.
type Plan struct {
	ID           int64
	RemoteID     string
	TripID       int64
	TripRemoteID string
	Day          int
	Title        string
	StartTime    string // "HH:MM"
	Notes        string
	UpdatedAt    int64
}

// Place is a saved point of interest, independent of any trip.
type Place struct {
	ID        int64
	RemoteID  string
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
	Category  string
	Notes     string
	UpdatedAt int64
}

// RouteSegment is a cached routing result between two stops of a trip.
type RouteSegment struct {
	ID           int64
	RemoteID     string
	TripID       int64
	TripRemoteID string
	TravelMode   string // "walk", "drive", "transit"
	Polyline     string // encoded polyline
	DistanceM    float64
	DurationS    float64
	UpdatedAt    int64
}

// Settings is the per-user singleton preferences record.
type Settings struct {
	RemoteID     string
	Currency     string
	DistanceUnit string
	Theme        string
	Language     string
	UpdatedAt    int64
}
