// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProvider is the production Provider, backed by a JSONB
// document table with a trigger-driven NOTIFY change feed.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresProvider initializes the schema and returns the provider.
func NewPostgresProvider(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initializeSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize tripcloud schema: %w", err)
	}
	return &PostgresProvider{pool: pool, logger: logger}, nil
}

// ForUser implements Provider.
func (p *PostgresProvider) ForUser(_ context.Context, userID string) (Store, error) {
	if userID == "" {
		return nil, fmt.Errorf("tripcloud: user id required")
	}
	return &pgStore{pool: p.pool, userID: userID, logger: p.logger.With("user_id", userID)}, nil
}

type pgStore struct {
	pool   *pgxpool.Pool
	userID string
	logger *slog.Logger
}

// mapPGError translates Postgres authorization failures into the
// package sentinel so callers can classify without importing pgconn.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == "42501" {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, pgErr.Message)
	}
	return err
}

func isRetryablePGError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	default:
		return false
	}
}

func (s *pgStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_id, data FROM travel_sync.documents
		WHERE user_id = $1 AND collection = $2
	`, s.userID, collection)
	if err != nil {
		return nil, mapPGError(fmt.Errorf("failed to list %s: %w", collection, err))
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *pgStore) QueryByField(ctx context.Context, collection, field, value string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_id, data FROM travel_sync.documents
		WHERE user_id = $1 AND collection = $2 AND data->>$3 = $4
	`, s.userID, collection, field, value)
	if err != nil {
		return nil, mapPGError(fmt.Errorf("failed to query %s by %s: %w", collection, field, err))
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func (s *pgStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO travel_sync.documents (user_id, collection, doc_id, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, collection, doc_id) DO UPDATE SET data = EXCLUDED.data
	`, s.userID, collection, id, raw)
	if err != nil {
		return mapPGError(fmt.Errorf("failed to set %s/%s: %w", collection, id, err))
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM travel_sync.documents
		WHERE user_id = $1 AND collection = $2 AND doc_id = $3
	`, s.userID, collection, id)
	if err != nil {
		return mapPGError(fmt.Errorf("failed to delete %s/%s: %w", collection, id, err))
	}
	return nil
}

// Commit applies the batch in one transaction, retrying a few times on
// transient serialization/deadlock failures.
func (s *pgStore) Commit(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("tripcloud: batch of %d exceeds limit of %d", len(ops), MaxBatchOps)
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = s.commitOnce(ctx, ops)
		if err == nil || !isRetryablePGError(err) {
			break
		}
		s.logger.Warn("retrying batch commit", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		return mapPGError(fmt.Errorf("failed to commit batch of %d: %w", len(ops), err))
	}
	return nil
}

func (s *pgStore) commitOnce(ctx context.Context, ops []Op) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, op := range ops {
			if op.Delete {
				if _, err := tx.Exec(ctx, `
					DELETE FROM travel_sync.documents
					WHERE user_id = $1 AND collection = $2 AND doc_id = $3
				`, s.userID, op.Collection, op.ID); err != nil {
					return err
				}
				continue
			}
			raw, err := json.Marshal(op.Data)
			if err != nil {
				return fmt.Errorf("failed to encode document %s: %w", op.ID, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO travel_sync.documents (user_id, collection, doc_id, data)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, collection, doc_id) DO UPDATE SET data = EXCLUDED.data
			`, s.userID, op.Collection, op.ID, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Subscribe implements Store. A dedicated pooled connection LISTENs on
// the shared notify channel; payloads are filtered to this user and
// collection and the document body is re-read on arrival.
func (s *pgStore) Subscribe(ctx context.Context, collection string) (Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, mapPGError(fmt.Errorf("failed to acquire listen connection: %w", err))
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, mapPGError(fmt.Errorf("failed to listen: %w", err))
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &pgSub{
		ch:     make(chan ChangeEvent, 256),
		cancel: cancel,
	}
	go s.listenLoop(subCtx, conn, collection, sub)
	return sub, nil
}

type pgNotifyPayload struct {
	UserID     string `json:"user_id"`
	Collection string `json:"collection"`
	DocID      string `json:"doc_id"`
	Op         string `json:"op"`
}

func (s *pgStore) listenLoop(ctx context.Context, conn *pgxpool.Conn, collection string, sub *pgSub) {
	defer func() {
		conn.Release()
		close(sub.ch)
	}()
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("change feed terminated", "collection", collection, "error", err)
			}
			return
		}
		var payload pgNotifyPayload
		if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
			s.logger.Warn("skipping malformed change notification", "error", err)
			continue
		}
		if payload.UserID != s.userID || payload.Collection != collection {
			continue
		}

		ev := ChangeEvent{ID: payload.DocID}
		switch payload.Op {
		case "INSERT":
			ev.Type = EventAdded
		case "UPDATE":
			ev.Type = EventModified
		case "DELETE":
			ev.Type = EventRemoved
		default:
			continue
		}
		if ev.Type != EventRemoved {
			data, err := s.fetchDocument(ctx, collection, payload.DocID)
			if err != nil {
				s.logger.Warn("failed to read changed document", "collection", collection, "doc_id", payload.DocID, "error", err)
				continue
			}
			if data == nil {
				// Deleted between notify and read; the DELETE
				// notification is still on its way.
				continue
			}
			ev.Data = data
		}

		select {
		case sub.ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *pgStore) fetchDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM travel_sync.documents
		WHERE user_id = $1 AND collection = $2 AND doc_id = $3
	`, s.userID, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapPGError(err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

type pgSub struct {
	ch        chan ChangeEvent
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *pgSub) Events() <-chan ChangeEvent { return s.ch }

func (s *pgSub) Close() {
	s.closeOnce.Do(s.cancel)
}
