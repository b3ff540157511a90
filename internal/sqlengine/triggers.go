package sqlengine

import (
	"context"
	"fmt"
)

// ensureChangeLog creates the shared change-log table once per Engine.
// created_at is populated with SQLite's own julianday-based timestamp so
// ordering survives across process restarts without relying on
// application clocks.
func (e *Engine) ensureChangeLog(ctx context.Context) error {
	if e.changeLogReady {
		return nil
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
			collection          TEXT NOT NULL,
			operation           TEXT NOT NULL,
			document_id         TEXT NOT NULL,
			before_document     TEXT,
			full_document       TEXT,
			update_description  TEXT,
			created_at          REAL NOT NULL DEFAULT (julianday('now'))
		)`, ChangeLogTable)
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlengine: create change log: %w", err)
	}
	e.changeLogReady = true
	return nil
}

// installTriggers wires a collection's AFTER INSERT/UPDATE/DELETE events
// into the shared change log (§4.H). Triggers are dropped and recreated
// so repeated calls are idempotent regardless of schema evolution.
func (e *Engine) installTriggers(ctx context.Context, table string) error {
	statements := []string{
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s`, insertTriggerName(table)),
		fmt.Sprintf(`
			CREATE TRIGGER %s AFTER INSERT ON "%s"
			BEGIN
				INSERT INTO %s (collection, operation, document_id, full_document)
				VALUES ('%s', 'insert', NEW._id, NEW.data);
			END`, insertTriggerName(table), table, ChangeLogTable, table),

		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s`, updateTriggerName(table)),
		fmt.Sprintf(`
			CREATE TRIGGER %s AFTER UPDATE ON "%s"
			BEGIN
				INSERT INTO %s (collection, operation, document_id, before_document, full_document)
				VALUES ('%s', 'update', NEW._id, OLD.data, NEW.data);
			END`, updateTriggerName(table), table, ChangeLogTable, table),

		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s`, deleteTriggerName(table)),
		fmt.Sprintf(`
			CREATE TRIGGER %s AFTER DELETE ON "%s"
			BEGIN
				INSERT INTO %s (collection, operation, document_id, before_document, full_document)
				VALUES ('%s', 'delete', OLD._id, OLD.data, NULL);
			END`, deleteTriggerName(table), table, ChangeLogTable, table),
	}

	for _, stmt := range statements {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlengine: install triggers on %s: %w", table, err)
		}
	}
	return nil
}

func insertTriggerName(table string) string { return table + "_mongolite_insert" }
func updateTriggerName(table string) string { return table + "_mongolite_update" }
func deleteTriggerName(table string) string { return table + "_mongolite_delete" }

// ChangeEvent is one row of the shared change log.
type ChangeEvent struct {
	Seq               int64
	Collection        string
	Operation         string
	DocumentID        string
	BeforeDocument    *string
	FullDocument      *string
	UpdateDescription *string
	CreatedAt         float64
}

// CurrentSeq returns the highest seq currently in the change log, or 0
// if it's empty. A new subscription starts from here so it only
// observes events that happen after it was created (§4.H).
func (e *Engine) CurrentSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := e.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) FROM %s", ChangeLogTable)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sqlengine: current seq: %w", err)
	}
	return seq, nil
}

// ChangesSince returns up to limit change-log rows with seq > afterSeq,
// ordered by seq, optionally restricted to a single collection. The
// change-stream poller calls this on a ticker (§4.H, §5).
func (e *Engine) ChangesSince(ctx context.Context, collection string, afterSeq int64, limit int) ([]ChangeEvent, error) {
	query := fmt.Sprintf(`
		SELECT seq, collection, operation, document_id, before_document, full_document, update_description, created_at
		FROM %s
		WHERE seq > ?`, ChangeLogTable)
	args := []interface{}{afterSeq}
	if collection != "" {
		query += " AND collection = ?"
		args = append(args, collection)
	}
	query += " ORDER BY seq ASC LIMIT ?"
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: changes since %d: %w", afterSeq, err)
	}
	defer rows.Close()

	var events []ChangeEvent
	for rows.Next() {
		var ev ChangeEvent
		if err := rows.Scan(&ev.Seq, &ev.Collection, &ev.Operation, &ev.DocumentID, &ev.BeforeDocument, &ev.FullDocument, &ev.UpdateDescription, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordUpdateDescription backfills the update_description column for
// the most recent 'update' row matching collection/documentID. Called
// right after an update executes so the change-log row carries the
// same diff the caller already computed, instead of recomputing it from
// trigger-only context (§4.C, §4.H).
func (e *Engine) RecordUpdateDescription(ctx context.Context, collection, documentID, updateDescriptionJSON string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET update_description = ?
		WHERE seq = (
			SELECT seq FROM %s
			WHERE collection = ? AND document_id = ? AND operation = 'update'
			ORDER BY seq DESC LIMIT 1
		)`, ChangeLogTable, ChangeLogTable)
	_, err := e.db.ExecContext(ctx, query, updateDescriptionJSON, collection, documentID)
	return err
}

// CompactChangeLog deletes change-log rows older than every currently
// registered poll cursor, i.e. rows no subscriber can still need. The
// caller (the change-stream manager) passes the minimum seq across all
// live subscriptions; a seq of 0 compacts nothing (§4.H "cleanup()").
func (e *Engine) CompactChangeLog(ctx context.Context, minLiveSeq int64) error {
	if minLiveSeq <= 0 {
		return nil
	}
	_, err := e.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE seq < ?", ChangeLogTable), minLiveSeq)
	return err
}
