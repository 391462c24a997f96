// Package store provides the embedded SQLite store for sessions, turns,
// summaries, scheduled tasks, and the aligned vector and full-text
// indices.
//
// This file defines the stable error taxonomy. Callers assert on kind
// with errors.Is rather than matching message text.
package store

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation or a schema/dimension
	// mismatch (e.g. opening a store created with a different embedding
	// dimension).
	ErrConflict = errors.New("conflict")

	// ErrBadQuery indicates a malformed full-text query: unbalanced
	// quotes or parentheses, or a boolean operator at the start or end.
	ErrBadQuery = errors.New("bad query")

	// ErrStoreUnavailable indicates the underlying database failed in a
	// way that is not attributable to the caller's input.
	ErrStoreUnavailable = errors.New("store unavailable")
)
