// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

package tripcloud

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the Postgres NOTIFY channel carrying document
// change payloads for all users and collections.
const notifyChannel = "travel_sync_changes"

// initializeSchema creates the document table and the change-notify
// trigger if they don't exist.
func initializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		migrations := []string{
			/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS travel_sync`,

			// One row per document, scoped per user and collection.
			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS travel_sync.documents (
				user_id    TEXT  NOT NULL,
				collection TEXT  NOT NULL,
				doc_id     TEXT  NOT NULL,
				data       JSONB NOT NULL,
				PRIMARY KEY (user_id, collection, doc_id)
			)`,

			// Parent lookups for cascade deletes (plans/segments of a trip).
			/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS idx_documents_trip_ref
				ON travel_sync.documents (user_id, collection, (data->>'tripId'))`,

			// Change feed: every row mutation is announced on one NOTIFY
			// channel. Payloads carry only identifiers; listeners re-read
			// the document, which keeps payloads under the NOTIFY size cap.
			/*language=postgresql*/ `CREATE OR REPLACE FUNCTION travel_sync.notify_document_change()
			RETURNS trigger AS $$
			DECLARE
				rec RECORD;
			BEGIN
				IF TG_OP = 'DELETE' THEN
					rec := OLD;
				ELSE
					rec := NEW;
				END IF;
				PERFORM pg_notify('travel_sync_changes', json_build_object(
					'user_id', rec.user_id,
					'collection', rec.collection,
					'doc_id', rec.doc_id,
					'op', TG_OP
				)::text);
				RETURN rec;
			END;
			$$ LANGUAGE plpgsql`,

			/*language=postgresql*/ `DROP TRIGGER IF EXISTS trg_documents_notify ON travel_sync.documents`,
			/*language=postgresql*/ `CREATE TRIGGER trg_documents_notify
				AFTER INSERT OR UPDATE OR DELETE ON travel_sync.documents
				FOR EACH ROW EXECUTE FUNCTION travel_sync.notify_document_change()`,
		}
		for _, stmt := range migrations {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
