package store

import (
	"database/sql"
	"fmt"
)

// Session statuses.
const (
	SessionActive   = "active"
	SessionArchived = "archived"
)

// Session is a contiguous conversation period bounded by /new or /reset.
type Session struct {
	ID      int64
	StartTS int64
	EndTS   int64 // zero until archived
	Status  string
}

// CreateSession inserts a new active session and returns its ID.
func (s *Store) CreateSession(startTS int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO sessions (start_ts, status) VALUES (?, 'active')`, startTS)
	if err != nil {
		return 0, fmt.Errorf("%w: create session: %v", ErrStoreUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: session id: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// ActiveSession returns the single active session, or ErrNotFound when
// none exists.
func (s *Store) ActiveSession() (*Session, error) {
	row := s.db.QueryRow(
		`SELECT session_id, start_ts, COALESCE(end_ts, 0), status
		 FROM sessions WHERE status = 'active'
		 ORDER BY session_id DESC LIMIT 1`)

	var sess Session
	err := row.Scan(&sess.ID, &sess.StartTS, &sess.EndTS, &sess.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no active session", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read active session: %v", ErrStoreUnavailable, err)
	}
	return &sess, nil
}

// ArchiveSession marks a session archived and records its end timestamp.
func (s *Store) ArchiveSession(sessionID, endTS int64) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET end_ts = ?, status = 'archived' WHERE session_id = ?`,
		endTS, sessionID)
	if err != nil {
		return fmt.Errorf("%w: archive session %d: %v", ErrStoreUnavailable, sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	return nil
}

// DeleteSession removes a session and everything linked to it: turns,
// summaries, and both vector sidecars. The FTS shadow rows are removed by
// the delete triggers.
func (s *Store) DeleteSession(sessionID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`DELETE FROM vec_turns WHERE turn_id IN
		 (SELECT turn_id FROM turns WHERE session_id = ?)`, sessionID); err != nil {
		return fmt.Errorf("%w: delete turn vectors: %v", ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(
		`DELETE FROM vec_summaries WHERE summary_id IN
		 (SELECT summary_id FROM summaries WHERE session_id = ?)`, sessionID); err != nil {
		return fmt.Errorf("%w: delete summary vectors: %v", ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(`DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("%w: delete turns: %v", ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(`DELETE FROM summaries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("%w: delete summaries: %v", ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", ErrStoreUnavailable, err)
	}

	if s.logger != nil {
		s.logger.Debug("deleted session", "session_id", sessionID)
	}
	return nil
}
