// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const segmentColumns = `id, remote_id, trip_id, trip_remote_id, travel_mode, polyline, distance_m, duration_s, updated_at`

func scanSegment(row interface{ Scan(...any) error }) (*RouteSegment, error) {
	var rs RouteSegment
	var remoteID sql.NullString
	err := row.Scan(&rs.ID, &remoteID, &rs.TripID, &rs.TripRemoteID, &rs.TravelMode, &rs.Polyline, &rs.DistanceM, &rs.DurationS, &rs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rs.RemoteID = remoteID.String
	return &rs, nil
}

// InsertSegment inserts a new route segment and assigns its local id.
func (s *Store) InsertSegment(ctx context.Context, rs *RouteSegment) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO route_segments (remote_id, trip_id, trip_remote_id, travel_mode, polyline, distance_m, duration_s, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullableStr(rs.RemoteID), rs.TripID, rs.TripRemoteID, rs.TravelMode, rs.Polyline, rs.DistanceM, rs.DurationS, rs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert route segment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read route segment id: %w", err)
	}
	rs.ID = id
	return nil
}

// GetSegment returns the route segment with the given local id, or nil if absent.
func (s *Store) GetSegment(ctx context.Context, id int64) (*RouteSegment, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM route_segments WHERE id = ?`, id)
	rs, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route segment: %w", err)
	}
	return rs, nil
}

// SegmentByRemoteID returns the route segment with the given remote id, or nil if absent.
func (s *Store) SegmentByRemoteID(ctx context.Context, remoteID string) (*RouteSegment, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM route_segments WHERE remote_id = ?`, remoteID)
	rs, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route segment by remote id: %w", err)
	}
	return rs, nil
}

// ListSegments returns all route segments ordered by local id.
func (s *Store) ListSegments(ctx context.Context) ([]RouteSegment, error) {
	return s.querySegments(ctx, `SELECT `+segmentColumns+` FROM route_segments ORDER BY id`)
}

// SegmentsForTrip returns the cached route segments of a trip.
func (s *Store) SegmentsForTrip(ctx context.Context, tripID int64) ([]RouteSegment, error) {
	return s.querySegments(ctx, `SELECT `+segmentColumns+` FROM route_segments WHERE trip_id = ? ORDER BY id`, tripID)
}

func (s *Store) querySegments(ctx context.Context, query string, args ...any) ([]RouteSegment, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query route segments: %w", err)
	}
	defer rows.Close()

	var segments []RouteSegment
	for rows.Next() {
		rs, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route segment: %w", err)
		}
		segments = append(segments, *rs)
	}
	return segments, rows.Err()
}

// UpdateSegment overwrites the segment's fields. updated_at never decreases.
func (s *Store) UpdateSegment(ctx context.Context, rs *RouteSegment) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `
		UPDATE route_segments
		SET remote_id = ?, trip_id = ?, trip_remote_id = ?, travel_mode = ?, polyline = ?, distance_m = ?, duration_s = ?,
		    updated_at = MAX(updated_at, ?)
		WHERE id = ?
	`, nullableStr(rs.RemoteID), rs.TripID, rs.TripRemoteID, rs.TravelMode, rs.Polyline, rs.DistanceM, rs.DurationS, rs.UpdatedAt, rs.ID)
	if err != nil {
		return fmt.Errorf("failed to update route segment: %w", err)
	}
	return nil
}

// SetSegmentRemoteID stores the remote document id assigned on upload.
func (s *Store) SetSegmentRemoteID(ctx context.Context, id int64, remoteID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `UPDATE route_segments SET remote_id = ? WHERE id = ?`, nullableStr(remoteID), id)
	if err != nil {
		return fmt.Errorf("failed to set route segment remote id: %w", err)
	}
	return nil
}

// DeleteSegment deletes a route segment by local id.
func (s *Store) DeleteSegment(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `DELETE FROM route_segments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete route segment: %w", err)
	}
	return nil
}
