// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const tripColumns = `id, remote_id, title, destination, start_date, end_date, notes, updated_at`

func scanTrip(row interface{ Scan(...any) error }) (*Trip, error) {
	var t Trip
	var remoteID sql.NullString
	err := row.Scan(&t.ID, &remoteID, &t.Title, &t.Destination, &t.StartDate, &t.EndDate, &t.Notes, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.RemoteID = remoteID.String
	return &t, nil
}

// InsertTrip inserts a new trip and assigns its local id.
func (s *Store) InsertTrip(ctx context.Context, t *Trip) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO trips (remote_id, title, destination, start_date, end_date, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nullableStr(t.RemoteID), t.Title, t.Destination, t.StartDate, t.EndDate, t.Notes, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read trip id: %w", err)
	}
	t.ID = id
	return nil
}

// GetTrip returns the trip with the given local id, or nil if absent.
func (s *Store) GetTrip(ctx context.Context, id int64) (*Trip, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return t, nil
}

// TripByRemoteID returns the trip with the given remote id, or nil if absent.
func (s *Store) TripByRemoteID(ctx context.Context, remoteID string) (*Trip, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE remote_id = ?`, remoteID)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip by remote id: %w", err)
	}
	return t, nil
}

// ListTrips returns all trips ordered by local id.
func (s *Store) ListTrips(ctx context.Context) ([]Trip, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+tripColumns+` FROM trips ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

// UpdateTrip overwrites the trip's fields. updated_at never decreases.
func (s *Store) UpdateTrip(ctx context.Context, t *Trip) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `
		UPDATE trips
		SET remote_id = ?, title = ?, destination = ?, start_date = ?, end_date = ?, notes = ?,
		    updated_at = MAX(updated_at, ?)
		WHERE id = ?
	`, nullableStr(t.RemoteID), t.Title, t.Destination, t.StartDate, t.EndDate, t.Notes, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update trip: %w", err)
	}
	return nil
}

// SetTripRemoteID stores the remote document id assigned on upload.
func (s *Store) SetTripRemoteID(ctx context.Context, id int64, remoteID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `UPDATE trips SET remote_id = ? WHERE id = ?`, nullableStr(remoteID), id)
	if err != nil {
		return fmt.Errorf("failed to set trip remote id: %w", err)
	}
	return nil
}

// DeleteTrip deletes a trip. Plans and route segments cascade via
// foreign keys.
func (s *Store) DeleteTrip(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}
	return nil
}
