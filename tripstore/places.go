// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const placeColumns = `id, remote_id, name, address, latitude, longitude, category, notes, updated_at`

func scanPlace(row interface{ Scan(...any) error }) (*Place, error) {
	var p Place
	var remoteID sql.NullString
	err := row.Scan(&p.ID, &remoteID, &p.Name, &p.Address, &p.Latitude, &p.Longitude, &p.Category, &p.Notes, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.RemoteID = remoteID.String
	return &p, nil
}

// InsertPlace inserts a new place and assigns its local id.
func (s *Store) InsertPlace(ctx context.Context, p *Place) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO places (remote_id, name, address, latitude, longitude, category, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullableStr(p.RemoteID), p.Name, p.Address, p.Latitude, p.Longitude, p.Category, p.Notes, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert place: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read place id: %w", err)
	}
	p.ID = id
	return nil
}

// GetPlace returns the place with the given local id, or nil if absent.
func (s *Store) GetPlace(ctx context.Context, id int64) (*Place, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+placeColumns+` FROM places WHERE id = ?`, id)
	p, err := scanPlace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get place: %w", err)
	}
	return p, nil
}

// PlaceByRemoteID returns the place with the given remote id, or nil if absent.
func (s *Store) PlaceByRemoteID(ctx context.Context, remoteID string) (*Place, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+placeColumns+` FROM places WHERE remote_id = ?`, remoteID)
	p, err := scanPlace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get place by remote id: %w", err)
	}
	return p, nil
}

// ListPlaces returns all places ordered by local id.
func (s *Store) ListPlaces(ctx context.Context) ([]Place, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+placeColumns+` FROM places ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list places: %w", err)
	}
	defer rows.Close()

	var places []Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		places = append(places, *p)
	}
	return places, rows.Err()
}

// UpdatePlace overwrites the place's fields. updated_at never decreases.
func (s *Store) UpdatePlace(ctx context.Context, p *Place) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `
		UPDATE places
		SET remote_id = ?, name = ?, address = ?, latitude = ?, longitude = ?, category = ?, notes = ?,
		    updated_at = MAX(updated_at, ?)
		WHERE id = ?
	`, nullableStr(p.RemoteID), p.Name, p.Address, p.Latitude, p.Longitude, p.Category, p.Notes, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update place: %w", err)
	}
	return nil
}

// SetPlaceRemoteID stores the remote document id assigned on upload.
func (s *Store) SetPlaceRemoteID(ctx context.Context, id int64, remoteID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `UPDATE places SET remote_id = ? WHERE id = ?`, nullableStr(remoteID), id)
	if err != nil {
		return fmt.Errorf("failed to set place remote id: %w", err)
	}
	return nil
}

// DeletePlace deletes a place by local id.
func (s *Store) DeletePlace(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete place: %w", err)
	}
	return nil
}
