package store

import (
	"database/sql"
	"fmt"
)

// Summary is an LLM-produced condensation of a contiguous slice of turns
// within a session. Never mutated in place.
type Summary struct {
	ID        int64
	SessionID int64
	Text      string
	FirstTS   int64
	LastTS    int64
}

// InsertSummary stores a summary and returns its ID.
func (s *Store) InsertSummary(sessionID int64, text string, firstTS, lastTS int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO summaries (session_id, summary, first_ts, last_ts)
		 VALUES (?, ?, ?, ?)`,
		sessionID, text, firstTS, lastTS)
	if err != nil {
		return 0, fmt.Errorf("%w: insert summary: %v", ErrStoreUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: summary id: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// AttachSummaryVector stores a summary's embedding. Dimension-checked (I4).
func (s *Store) AttachSummaryVector(summaryID int64, vec []float32) error {
	if err := s.checkDimension(vec); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO vec_summaries (summary_id, embedding) VALUES (?, ?)`,
		summaryID, serializeEmbedding(vec))
	if err != nil {
		return fmt.Errorf("%w: attach summary vector %d: %v", ErrStoreUnavailable, summaryID, err)
	}
	return nil
}

// SummaryByID fetches a single summary.
func (s *Store) SummaryByID(summaryID int64) (*Summary, error) {
	row := s.db.QueryRow(
		`SELECT summary_id, session_id, summary, first_ts, last_ts
		 FROM summaries WHERE summary_id = ?`, summaryID)

	var sum Summary
	err := row.Scan(&sum.ID, &sum.SessionID, &sum.Text, &sum.FirstTS, &sum.LastTS)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: summary %d", ErrNotFound, summaryID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read summary: %v", ErrStoreUnavailable, err)
	}
	return &sum, nil
}

// SummariesBySession returns a session's summaries ordered most recent
// first (by last_ts).
func (s *Store) SummariesBySession(sessionID int64) ([]Summary, error) {
	rows, err := s.db.Query(
		`SELECT summary_id, session_id, summary, first_ts, last_ts
		 FROM summaries WHERE session_id = ? ORDER BY last_ts DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: summaries by session: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sums []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Text, &sum.FirstTS, &sum.LastTS); err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", ErrStoreUnavailable, err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate summaries: %v", ErrStoreUnavailable, err)
	}
	return sums, nil
}
