package store

import (
	"errors"
	"path/filepath"
	"testing"
)

const testDim = 4

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chatbot.db"), testDim, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVec(seed float32) []float32 {
	return []float32{seed, seed + 1, seed + 2, seed + 3}
}

func TestOpenDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatbot.db")

	s, err := Open(path, testDim, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	if _, err := Open(path, testDim+1, nil); !errors.Is(err, ErrConflict) {
		t.Errorf("reopen with different dimension: err = %v, want ErrConflict", err)
	}

	// Same dimension reopens fine.
	s, err = Open(path, testDim, nil)
	if err != nil {
		t.Fatalf("reopen with same dimension: %v", err)
	}
	s.Close()
}

func TestAppendTurnRoundTrip(t *testing.T) {
	s := openTestStore(t)

	sid, err := s.CreateSession(1000)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	id1, err := s.AppendTurn(sid, RoleUser, "hello there", 1001)
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	id2, err := s.AppendTurn(sid, RoleAssistant, "hi!", 1002)
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("turn ids not monotonic: %d then %d", id1, id2)
	}

	turns, err := s.RecentTurns(sid, 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Text != "hello there" || turns[0].Role != RoleUser || turns[0].TS != 1001 {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Text != "hi!" || turns[1].Role != RoleAssistant {
		t.Errorf("second turn = %+v", turns[1])
	}
}

func TestAppendTurnRejectsEmptyText(t *testing.T) {
	s := openTestStore(t)
	sid, _ := s.CreateSession(1000)

	if _, err := s.AppendTurn(sid, RoleUser, "", 1001); !errors.Is(err, ErrConflict) {
		t.Errorf("empty text: err = %v, want ErrConflict", err)
	}
}

func TestAttachVectorDimensionCheck(t *testing.T) {
	s := openTestStore(t)
	sid, _ := s.CreateSession(1000)
	id, _ := s.AppendTurn(sid, RoleUser, "hello", 1001)

	if err := s.AttachTurnVector(id, []float32{1, 2}); !errors.Is(err, ErrConflict) {
		t.Errorf("short vector: err = %v, want ErrConflict", err)
	}
	if err := s.AttachTurnVector(id, testVec(1)); err != nil {
		t.Errorf("correct dimension: %v", err)
	}
}

func TestActiveSessionSingleton(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.ActiveSession(); !errors.Is(err, ErrNotFound) {
		t.Errorf("no sessions: err = %v, want ErrNotFound", err)
	}

	first, _ := s.CreateSession(1000)
	if err := s.ArchiveSession(first, 2000); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	second, _ := s.CreateSession(2000)

	active, err := s.ActiveSession()
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if active.ID != second {
		t.Errorf("active session = %d, want %d", active.ID, second)
	}

	// Exactly one active row (P2).
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE status = 'active'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("active session count = %d, want 1", count)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	s := openTestStore(t)

	sid, _ := s.CreateSession(1000)
	turnID, _ := s.AppendTurn(sid, RoleUser, "delete me", 1001)
	if err := s.AttachTurnVector(turnID, testVec(1)); err != nil {
		t.Fatal(err)
	}
	sumID, _ := s.InsertSummary(sid, "a summary", 1001, 1002)
	if err := s.AttachSummaryVector(sumID, testVec(2)); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteSession(sid); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	for _, q := range []string{
		`SELECT COUNT(*) FROM turns`,
		`SELECT COUNT(*) FROM summaries`,
		`SELECT COUNT(*) FROM vec_turns`,
		`SELECT COUNT(*) FROM vec_summaries`,
		`SELECT COUNT(*) FROM sessions`,
	} {
		var count int
		if err := s.db.QueryRow(q).Scan(&count); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		if count != 0 {
			t.Errorf("%s = %d, want 0", q, count)
		}
	}

	// Vector search after reset returns nothing from the dead session (P12).
	hits, err := s.SearchTurnVectors(testVec(1), 5, sid)
	if err != nil {
		t.Fatalf("SearchTurnVectors: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("search after delete returned %d hits", len(hits))
	}
}

func TestUnsummarizedTurns(t *testing.T) {
	s := openTestStore(t)
	sid, _ := s.CreateSession(1000)

	s.AppendTurn(sid, RoleUser, "one", 1001)
	s.AppendTurn(sid, RoleAssistant, "two", 1002)
	s.AppendTurn(sid, RoleUser, "three", 1003)

	all, err := s.UnsummarizedTurns(sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("no summaries: got %d turns, want 3", len(all))
	}

	if _, err := s.InsertSummary(sid, "covers one and two", 1001, 1002); err != nil {
		t.Fatal(err)
	}

	rest, err := s.UnsummarizedTurns(sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].Text != "three" {
		t.Errorf("after summary: got %+v, want just the third turn", rest)
	}
}

func TestSummariesBySessionOrder(t *testing.T) {
	s := openTestStore(t)
	sid, _ := s.CreateSession(1000)

	s.InsertSummary(sid, "oldest", 1000, 1100)
	s.InsertSummary(sid, "newest", 1400, 1500)
	s.InsertSummary(sid, "middle", 1200, 1300)

	sums, err := s.SummariesBySession(sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 3 {
		t.Fatalf("got %d summaries", len(sums))
	}
	if sums[0].Text != "newest" || sums[2].Text != "oldest" {
		t.Errorf("order = [%s, %s, %s], want newest first", sums[0].Text, sums[1].Text, sums[2].Text)
	}
}
