// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSettings returns the settings singleton, or nil if it was never
// written.
func (s *Store) GetSettings(ctx context.Context) (*Settings, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT remote_id, currency, distance_unit, theme, language, updated_at
		FROM settings WHERE id = 1
	`)
	var st Settings
	var remoteID sql.NullString
	err := row.Scan(&remoteID, &st.Currency, &st.DistanceUnit, &st.Theme, &st.Language, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	st.RemoteID = remoteID.String
	return &st, nil
}

// PutSettings upserts the settings singleton. updated_at never decreases.
func (s *Store) PutSettings(ctx context.Context, st *Settings) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO settings (id, remote_id, currency, distance_unit, theme, language, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id = excluded.remote_id,
			currency = excluded.currency,
			distance_unit = excluded.distance_unit,
			theme = excluded.theme,
			language = excluded.language,
			updated_at = MAX(settings.updated_at, excluded.updated_at)
	`, nullableStr(st.RemoteID), st.Currency, st.DistanceUnit, st.Theme, st.Language, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put settings: %w", err)
	}
	return nil
}
