// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const planColumns = `id, remote_id, trip_id, trip_remote_id, day, title, start_time, notes, updated_at`

func scanPlan(row interface{ Scan(...any) error }) (*Plan, error) {
	var p Plan
	var remoteID sql.NullString
	err := row.Scan(&p.ID, &remoteID, &p.TripID, &p.TripRemoteID, &p.Day, &p.Title, &p.StartTime, &p.Notes, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.RemoteID = remoteID.String
	return &p, nil
}

// InsertPlan inserts a new plan and assigns its local id.
func (s *Store) InsertPlan(ctx context.Context, p *Plan) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO plans (remote_id, trip_id, trip_remote_id, day, title, start_time, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullableStr(p.RemoteID), p.TripID, p.TripRemoteID, p.Day, p.Title, p.StartTime, p.Notes, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read plan id: %w", err)
	}
	p.ID = id
	return nil
}

// GetPlan returns the plan with the given local id, or nil if absent.
func (s *Store) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// PlanByRemoteID returns the plan with the given remote id, or nil if absent.
func (s *Store) PlanByRemoteID(ctx context.Context, remoteID string) (*Plan, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE remote_id = ?`, remoteID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan by remote id: %w", err)
	}
	return p, nil
}

// ListPlans returns all plans ordered by local id.
func (s *Store) ListPlans(ctx context.Context) ([]Plan, error) {
	return s.queryPlans(ctx, `SELECT `+planColumns+` FROM plans ORDER BY id`)
}

// PlansForTrip returns the plans belonging to a trip, ordered by day
// and start time.
func (s *Store) PlansForTrip(ctx context.Context, tripID int64) ([]Plan, error) {
	return s.queryPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE trip_id = ? ORDER BY day, start_time`, tripID)
}

func (s *Store) queryPlans(ctx context.Context, query string, args ...any) ([]Plan, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// UpdatePlan overwrites the plan's fields. updated_at never decreases.
func (s *Store) UpdatePlan(ctx context.Context, p *Plan) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `
		UPDATE plans
		SET remote_id = ?, trip_id = ?, trip_remote_id = ?, day = ?, title = ?, start_time = ?, notes = ?,
		    updated_at = MAX(updated_at, ?)
		WHERE id = ?
	`, nullableStr(p.RemoteID), p.TripID, p.TripRemoteID, p.Day, p.Title, p.StartTime, p.Notes, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return nil
}

// SetPlanRemoteID stores the remote document id assigned on upload.
func (s *Store) SetPlanRemoteID(ctx context.Context, id int64, remoteID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `UPDATE plans SET remote_id = ? WHERE id = ?`, nullableStr(remoteID), id)
	if err != nil {
		return fmt.Errorf("failed to set plan remote id: %w", err)
	}
	return nil
}

// DeletePlan deletes a plan by local id.
func (s *Store) DeletePlan(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.DB.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return nil
}
