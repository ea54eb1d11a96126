package state

import (
	"database/sql"
	"fmt"
)

// AppendEvents stores events for a run in one transaction. Event sequence
// numbers continue from the last stored event of the run.
func (s *SQLiteStore) AppendEvents(runID string, events []Event) (err error) {
	if s.db == nil {
		return ErrNotOpen
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var last sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(seq) FROM events WHERE run_id = ?`, runID).Scan(&last); err != nil {
		return fmt.Errorf("failed to read event sequence: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO events (run_id, seq, kind, class, instance, scope, depth, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	seq := int(last.Int64)
	for _, e := range events {
		seq++
		if _, err := stmt.Exec(runID, seq, e.Kind, nullString(e.Class), nullString(e.Instance),
			nullString(e.Scope), e.Depth, nullString(e.Error), e.At.UTC()); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// ListEvents returns the events of a run in sequence order.
func (s *SQLiteStore) ListEvents(runID string) ([]Event, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.Query(
		`SELECT run_id, seq, kind, class, instance, scope, depth, error, at
		 FROM events WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var class, instance, scope, errMsg sql.NullString
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Kind, &class, &instance, &scope, &e.Depth, &errMsg, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Class = class.String
		e.Instance = instance.String
		e.Scope = scope.String
		e.Error = errMsg.String
		events = append(events, e)
	}
	return events, rows.Err()
}
