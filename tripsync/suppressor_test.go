// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripsync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hersouls/Travel-v4.0-sub000/tripcloud"
)

func TestSuppressorMarkersAreOneShot(t *testing.T) {
	sup := newSuppressor()

	sup.arm(tripcloud.CollectionTrips, "t1")
	require.True(t, sup.consume(tripcloud.CollectionTrips, "t1"))
	require.False(t, sup.consume(tripcloud.CollectionTrips, "t1"), "marker must be consumed exactly once")
}

func TestSuppressorKeysAreScopedPerCollection(t *testing.T) {
	sup := newSuppressor()

	sup.arm(tripcloud.CollectionTrips, "x")
	require.False(t, sup.consume(tripcloud.CollectionPlans, "x"))
	require.True(t, sup.consume(tripcloud.CollectionTrips, "x"))
}

func TestSuppressorClear(t *testing.T) {
	sup := newSuppressor()

	sup.arm(tripcloud.CollectionTrips, "t1")
	sup.arm(tripcloud.CollectionPlaces, "p1")
	sup.clear()
	require.False(t, sup.consume(tripcloud.CollectionTrips, "t1"))
	require.False(t, sup.consume(tripcloud.CollectionPlaces, "p1"))
}
