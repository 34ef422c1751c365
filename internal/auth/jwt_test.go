// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	a := NewTokenAuth("test-secret")

	token, err := a.GenerateToken("user-1", "device-a", time.Hour)
	require.NoError(t, err)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "device-a", claims.DeviceID)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenAuth("right").GenerateToken("user-1", "device-a", time.Hour)
	require.NoError(t, err)

	_, err = NewTokenAuth("wrong").ValidateToken(token)
	require.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	a := NewTokenAuth("test-secret")
	token, err := a.GenerateToken("user-1", "device-a", -time.Minute)
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	require.Error(t, err)
}

func TestTokenRequiresSubject(t *testing.T) {
	a := NewTokenAuth("test-secret")
	token, err := a.GenerateToken("", "device-a", time.Hour)
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	require.Error(t, err)
}
