// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextIdentityCarriers(t *testing.T) {
	ctx := context.Background()

	_, ok := UserID(ctx)
	require.False(t, ok)
	_, ok = DeviceID(ctx)
	require.False(t, ok)

	ctx = WithUserID(ctx, "user-1")
	ctx = WithDeviceID(ctx, "device-a")

	userID, ok := UserID(ctx)
	require.True(t, ok)
	require.Equal(t, "user-1", userID)
	deviceID, ok := DeviceID(ctx)
	require.True(t, ok)
	require.Equal(t, "device-a", deviceID)
}
