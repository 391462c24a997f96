package store

import (
	"database/sql"
	"fmt"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single user or assistant utterance.
type Turn struct {
	ID        int64
	SessionID int64
	TS        int64
	Role      string
	Text      string
}

// AppendTurn inserts a turn and returns its monotonically increasing ID.
func (s *Store) AppendTurn(sessionID int64, role, text string, ts int64) (int64, error) {
	if text == "" {
		return 0, fmt.Errorf("%w: turn text must be non-empty", ErrConflict)
	}

	res, err := s.db.Exec(
		`INSERT INTO turns (session_id, ts, role, text) VALUES (?, ?, ?, ?)`,
		sessionID, ts, role, text)
	if err != nil {
		return 0, fmt.Errorf("%w: append turn: %v", ErrStoreUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: turn id: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// AttachTurnVector stores a turn's embedding. Dimension-checked (I4).
func (s *Store) AttachTurnVector(turnID int64, vec []float32) error {
	if err := s.checkDimension(vec); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO vec_turns (turn_id, embedding) VALUES (?, ?)`,
		turnID, serializeEmbedding(vec))
	if err != nil {
		return fmt.Errorf("%w: attach turn vector %d: %v", ErrStoreUnavailable, turnID, err)
	}
	return nil
}

// RecentTurns returns the last n turns of a session in ascending ts order.
func (s *Store) RecentTurns(sessionID int64, n int) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT turn_id, session_id, ts, role, text FROM (
			SELECT turn_id, session_id, ts, role, text FROM turns
			WHERE session_id = ?
			ORDER BY turn_id DESC LIMIT ?
		) ORDER BY turn_id ASC`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: recent turns: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// TurnsBySession returns all turns of a session in ascending order.
func (s *Store) TurnsBySession(sessionID int64) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT turn_id, session_id, ts, role, text FROM turns
		 WHERE session_id = ? ORDER BY turn_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: turns by session: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// UnsummarizedTurns returns the turns of a session that postdate its most
// recent summary, in ascending order. With no summaries it returns every
// turn.
func (s *Store) UnsummarizedTurns(sessionID int64) ([]Turn, error) {
	var lastTS sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(last_ts) FROM summaries WHERE session_id = ?`, sessionID).Scan(&lastTS)
	if err != nil {
		return nil, fmt.Errorf("%w: last summary ts: %v", ErrStoreUnavailable, err)
	}

	var rows *sql.Rows
	if lastTS.Valid {
		rows, err = s.db.Query(
			`SELECT turn_id, session_id, ts, role, text FROM turns
			 WHERE session_id = ? AND ts > ? ORDER BY turn_id ASC`,
			sessionID, lastTS.Int64)
	} else {
		rows, err = s.db.Query(
			`SELECT turn_id, session_id, ts, role, text FROM turns
			 WHERE session_id = ? ORDER BY turn_id ASC`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unsummarized turns: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.TS, &t.Role, &t.Text); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", ErrStoreUnavailable, err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate turns: %v", ErrStoreUnavailable, err)
	}
	return turns, nil
}
