package store

import (
	"fmt"
	"regexp"
	"strings"
)

// dateRe matches bare YYYY-MM-DD tokens outside quotes.
var dateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)

// SummaryHit is a summary returned by vector or full-text search. Score
// is the vec0 distance (lower is closer) or the FTS5 rank (lower is
// better) depending on the search that produced it.
type SummaryHit struct {
	Summary
	Score float64
}

// TurnHit is a turn returned by vector or full-text search.
type TurnHit struct {
	Turn
	Score float64
}

// SearchSummaryVectors performs a KNN search over summary embeddings,
// excluding a session and an optional set of summary IDs. Results are
// ordered by ascending distance. Summaries without vectors are simply
// never candidates.
func (s *Store) SearchSummaryVectors(qvec []float32, k int, excludeSession int64, excludeIDs []int64) ([]SummaryHit, error) {
	if err := s.checkDimension(qvec); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	// vec0 applies k before the join filters, so over-fetch to leave room
	// for the exclusions.
	fetch := k + len(excludeIDs) + 8

	query := `
		SELECT s.summary_id, s.session_id, s.summary, s.first_ts, s.last_ts, v.distance
		FROM vec_summaries v
		JOIN summaries s ON s.summary_id = v.summary_id
		WHERE v.embedding MATCH ? AND k = ? AND s.session_id != ?`
	args := []any{serializeEmbedding(qvec), fetch, excludeSession}

	if len(excludeIDs) > 0 {
		query += fmt.Sprintf(" AND s.summary_id NOT IN (%s)", placeholders(len(excludeIDs)))
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY v.distance LIMIT ?"
	args = append(args, k)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: summary vector search: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hits []SummaryHit
	for rows.Next() {
		var h SummaryHit
		if err := rows.Scan(&h.ID, &h.SessionID, &h.Text, &h.FirstTS, &h.LastTS, &h.Score); err != nil {
			return nil, fmt.Errorf("%w: scan summary hit: %v", ErrStoreUnavailable, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchTurnVectors performs a KNN search over turn embeddings restricted
// to a single session. Results are ordered by ascending distance.
func (s *Store) SearchTurnVectors(qvec []float32, k int, sessionID int64) ([]TurnHit, error) {
	if err := s.checkDimension(qvec); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	// The session restriction is applied after the KNN pass, so fetch a
	// wide slice and trim.
	fetch := k*16 + 16
	if fetch > 256 {
		fetch = 256
	}

	rows, err := s.db.Query(`
		SELECT t.turn_id, t.session_id, t.ts, t.role, t.text, v.distance
		FROM vec_turns v
		JOIN turns t ON t.turn_id = v.turn_id
		WHERE v.embedding MATCH ? AND k = ? AND t.session_id = ?
		ORDER BY v.distance LIMIT ?`,
		serializeEmbedding(qvec), fetch, sessionID, k)
	if err != nil {
		return nil, fmt.Errorf("%w: turn vector search: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hits []TurnHit
	for rows.Next() {
		var h TurnHit
		if err := rows.Scan(&h.ID, &h.SessionID, &h.TS, &h.Role, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("%w: scan turn hit: %v", ErrStoreUnavailable, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// TurnSearchFilter restricts a full-text turn search.
type TurnSearchFilter struct {
	ExcludeSession int64  // 0 means no exclusion
	Role           string // "user" or "assistant"; empty for both
	StartTS        int64
	EndTS          int64
}

// SearchTurnsFTS runs a boolean full-text query over turns with optional
// filters. An empty query searches by filters alone, ordered most recent
// first. Malformed queries fail with ErrBadQuery.
func (s *Store) SearchTurnsFTS(query string, f TurnSearchFilter, limit int) ([]TurnHit, error) {
	query = sanitizeFTSQuery(query)
	if err := ValidateFTSQuery(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	var (
		sb   strings.Builder
		args []any
	)

	if query != "" {
		sb.WriteString(`
			SELECT t.turn_id, t.session_id, t.ts, t.role, t.text, fts.rank
			FROM fts_turns fts
			JOIN turns t ON t.turn_id = fts.turn_id
			WHERE fts.text MATCH ?`)
		args = append(args, query)
	} else {
		sb.WriteString(`
			SELECT t.turn_id, t.session_id, t.ts, t.role, t.text, 0.0 AS rank
			FROM turns t
			WHERE 1=1`)
	}

	if f.ExcludeSession != 0 {
		sb.WriteString(" AND t.session_id != ?")
		args = append(args, f.ExcludeSession)
	}
	if f.Role != "" {
		sb.WriteString(" AND t.role = ?")
		args = append(args, f.Role)
	}
	if f.StartTS != 0 {
		sb.WriteString(" AND t.ts >= ?")
		args = append(args, f.StartTS)
	}
	if f.EndTS != 0 {
		sb.WriteString(" AND t.ts <= ?")
		args = append(args, f.EndTS)
	}

	if query != "" {
		sb.WriteString(" ORDER BY fts.rank")
	} else {
		sb.WriteString(" ORDER BY t.ts DESC")
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
		}
		return nil, fmt.Errorf("%w: turn fts search: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hits []TurnHit
	for rows.Next() {
		var h TurnHit
		if err := rows.Scan(&h.ID, &h.SessionID, &h.TS, &h.Role, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("%w: scan turn fts hit: %v", ErrStoreUnavailable, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SummarySearchFilter restricts a full-text summary search. The time
// filters match summaries whose covered range overlaps [StartTS, EndTS].
type SummarySearchFilter struct {
	ExcludeSession int64
	StartTS        int64
	EndTS          int64
}

// SearchSummariesFTS runs a boolean full-text query over summaries.
func (s *Store) SearchSummariesFTS(query string, f SummarySearchFilter, limit int) ([]SummaryHit, error) {
	query = sanitizeFTSQuery(query)
	if err := ValidateFTSQuery(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	var (
		sb   strings.Builder
		args []any
	)

	if query != "" {
		sb.WriteString(`
			SELECT s.summary_id, s.session_id, s.summary, s.first_ts, s.last_ts, fts.rank
			FROM fts_summaries fts
			JOIN summaries s ON s.summary_id = fts.summary_id
			WHERE fts.summary MATCH ?`)
		args = append(args, query)
	} else {
		sb.WriteString(`
			SELECT s.summary_id, s.session_id, s.summary, s.first_ts, s.last_ts, 0.0 AS rank
			FROM summaries s
			WHERE 1=1`)
	}

	if f.ExcludeSession != 0 {
		sb.WriteString(" AND s.session_id != ?")
		args = append(args, f.ExcludeSession)
	}
	if f.StartTS != 0 {
		sb.WriteString(" AND s.last_ts >= ?")
		args = append(args, f.StartTS)
	}
	if f.EndTS != 0 {
		sb.WriteString(" AND s.first_ts <= ?")
		args = append(args, f.EndTS)
	}

	if query != "" {
		sb.WriteString(" ORDER BY fts.rank")
	} else {
		sb.WriteString(" ORDER BY s.last_ts DESC")
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
		}
		return nil, fmt.Errorf("%w: summary fts search: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hits []SummaryHit
	for rows.Next() {
		var h SummaryHit
		if err := rows.Scan(&h.ID, &h.SessionID, &h.Text, &h.FirstTS, &h.LastTS, &h.Score); err != nil {
			return nil, fmt.Errorf("%w: scan summary fts hit: %v", ErrStoreUnavailable, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ValidateFTSQuery checks a boolean FTS5 query for the malformations the
// store rejects up front: unbalanced double quotes, unbalanced
// parentheses, and AND/OR/NOT at either edge. An empty query is valid
// (filter-only search).
func ValidateFTSQuery(query string) error {
	if query == "" {
		return nil
	}

	var problems []string

	if strings.Count(query, `"`)%2 != 0 {
		problems = append(problems, "unmatched quotes")
	}
	if strings.Count(query, "(") != strings.Count(query, ")") {
		problems = append(problems, "unmatched parentheses")
	}

	words := strings.Fields(query)
	if len(words) > 0 {
		if isOperator(words[0]) {
			problems = append(problems, fmt.Sprintf("query cannot start with operator %q", words[0]))
		}
		if last := words[len(words)-1]; isOperator(last) {
			problems = append(problems, fmt.Sprintf("query cannot end with operator %q", last))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrBadQuery, strings.Join(problems, "; "))
	}
	return nil
}

func isOperator(word string) bool {
	return word == "AND" || word == "OR" || word == "NOT"
}

// sanitizeFTSQuery wraps bare YYYY-MM-DD tokens in quotes. Unquoted
// hyphenated dates parse as column filters in FTS5 and fail with
// "no such column".
func sanitizeFTSQuery(query string) string {
	if query == "" || !strings.ContainsRune(query, '-') {
		return query
	}

	parts := strings.Split(query, `"`)
	for i := 0; i < len(parts); i += 2 { // even indices are outside quotes
		parts[i] = dateRe.ReplaceAllString(parts[i], `"$1"`)
	}
	return strings.Join(parts, `"`)
}

// isFTSSyntaxError reports whether a query failure came from the FTS5
// parser rather than the store itself.
func isFTSSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5") || strings.Contains(msg, "syntax") ||
		strings.Contains(msg, "no such column")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
