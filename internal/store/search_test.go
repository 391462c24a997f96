package store

import (
	"errors"
	"testing"
)

func TestValidateFTSQuery(t *testing.T) {
	valid := []string{
		"",
		"coffee",
		"coffee AND morning",
		"tea OR coffee",
		`"morning routine"`,
		"coffee NOT decaf",
		"(tea OR coffee) AND morning",
		"(movie OR music) NOT horror",
		"Anna AND piano",
	}
	for _, q := range valid {
		if err := ValidateFTSQuery(q); err != nil {
			t.Errorf("ValidateFTSQuery(%q) = %v, want nil", q, err)
		}
	}

	invalid := []string{
		`"unbalanced quote`,
		"(unbalanced AND paren",
		"unbalanced) OR paren",
		"AND leading",
		"trailing OR",
		"NOT",
	}
	for _, q := range invalid {
		if err := ValidateFTSQuery(q); !errors.Is(err, ErrBadQuery) {
			t.Errorf("ValidateFTSQuery(%q) = %v, want ErrBadQuery", q, err)
		}
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"coffee", "coffee"},
		{"2024-03-15", `"2024-03-15"`},
		{"meeting AND 2024-03-15", `meeting AND "2024-03-15"`},
		{`"already 2024-03-15 quoted"`, `"already 2024-03-15 quoted"`},
	}
	for _, tt := range tests {
		if got := sanitizeFTSQuery(tt.in); got != tt.want {
			t.Errorf("sanitizeFTSQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchTurnsFTSBoolean(t *testing.T) {
	s := openTestStore(t)
	sid, _ := s.CreateSession(1000)

	for i, text := range []string{"movie night", "music night", "horror movie"} {
		if _, err := s.AppendTurn(sid, RoleUser, text, int64(1001+i)); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := s.SearchTurnsFTS("(movie OR music) NOT horror", TurnSearchFilter{}, 10)
	if err != nil {
		t.Fatalf("SearchTurnsFTS: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	got := map[string]bool{}
	for _, h := range hits {
		got[h.Text] = true
	}
	if !got["movie night"] || !got["music night"] {
		t.Errorf("hits = %v, want movie night and music night", got)
	}
}

func TestSearchTurnsFTSExcludesSession(t *testing.T) {
	s := openTestStore(t)

	// Two archived sessions and an active one, all with the same text.
	arch1, _ := s.CreateSession(1000)
	s.AppendTurn(arch1, RoleUser, "Anna loves piano", 1001)
	s.ArchiveSession(arch1, 1100)

	arch2, _ := s.CreateSession(1100)
	s.AppendTurn(arch2, RoleUser, "Anna loves piano", 1101)
	s.ArchiveSession(arch2, 1200)

	active, _ := s.CreateSession(1200)
	s.AppendTurn(active, RoleUser, "Anna loves piano", 1201)

	hits, err := s.SearchTurnsFTS("Anna AND piano", TurnSearchFilter{ExcludeSession: active}, 10)
	if err != nil {
		t.Fatalf("SearchTurnsFTS: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 archived", len(hits))
	}
	for _, h := range hits {
		if h.SessionID == active {
			t.Errorf("hit from active session %d leaked into results", active)
		}
	}
}

func TestSearchTurnsFTSFilters(t *testing.T) {
	s := openTestStore(t)
	sid, _ := s.CreateSession(1000)

	s.AppendTurn(sid, RoleUser, "coffee in the morning", 1000)
	s.AppendTurn(sid, RoleAssistant, "coffee is ready", 2000)
	s.AppendTurn(sid, RoleUser, "coffee at night", 3000)

	hits, err := s.SearchTurnsFTS("coffee", TurnSearchFilter{Role: RoleUser}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("role filter: got %d hits, want 2", len(hits))
	}

	hits, err = s.SearchTurnsFTS("coffee", TurnSearchFilter{StartTS: 1500, EndTS: 2500}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Text != "coffee is ready" {
		t.Errorf("time filter: got %+v", hits)
	}

	// Filter-only search (no query) returns most recent first.
	hits, err = s.SearchTurnsFTS("", TurnSearchFilter{Role: RoleUser}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Text != "coffee at night" {
		t.Errorf("filter-only search: got %+v", hits)
	}
}

func TestSearchTurnsFTSBadQuery(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.SearchTurnsFTS(`"broken`, TurnSearchFilter{}, 10); !errors.Is(err, ErrBadQuery) {
		t.Errorf("unbalanced quote: err = %v, want ErrBadQuery", err)
	}
	if _, err := s.SearchSummariesFTS("OR what", SummarySearchFilter{}, 10); !errors.Is(err, ErrBadQuery) {
		t.Errorf("leading operator: err = %v, want ErrBadQuery", err)
	}
}

func TestSearchSummaryVectors(t *testing.T) {
	s := openTestStore(t)

	arch, _ := s.CreateSession(1000)
	id1, _ := s.InsertSummary(arch, "talked about pianos", 1000, 1100)
	s.AttachSummaryVector(id1, []float32{1, 0, 0, 0})
	id2, _ := s.InsertSummary(arch, "talked about cooking", 1200, 1300)
	s.AttachSummaryVector(id2, []float32{0, 1, 0, 0})
	s.ArchiveSession(arch, 1400)

	active, _ := s.CreateSession(1400)
	id3, _ := s.InsertSummary(active, "active session summary", 1400, 1500)
	s.AttachSummaryVector(id3, []float32{1, 0, 0, 0})

	hits, err := s.SearchSummaryVectors([]float32{1, 0, 0, 0}, 2, active, nil)
	if err != nil {
		t.Fatalf("SearchSummaryVectors: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].ID != id1 {
		t.Errorf("closest hit = %d, want %d", hits[0].ID, id1)
	}
	for _, h := range hits {
		if h.SessionID == active {
			t.Errorf("active session summary leaked into vector results")
		}
	}

	// Exclusion list removes a candidate.
	hits, err = s.SearchSummaryVectors([]float32{1, 0, 0, 0}, 2, active, []int64{id1})
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.ID == id1 {
			t.Errorf("excluded summary %d returned", id1)
		}
	}
}

func TestSearchTurnVectorsSessionScoped(t *testing.T) {
	s := openTestStore(t)

	s1, _ := s.CreateSession(1000)
	t1, _ := s.AppendTurn(s1, RoleUser, "in session one", 1001)
	s.AttachTurnVector(t1, []float32{1, 0, 0, 0})

	s2, _ := s.CreateSession(2000)
	t2, _ := s.AppendTurn(s2, RoleUser, "in session two", 2001)
	s.AttachTurnVector(t2, []float32{1, 0, 0, 0})

	hits, err := s.SearchTurnVectors([]float32{1, 0, 0, 0}, 5, s1)
	if err != nil {
		t.Fatalf("SearchTurnVectors: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != t1 {
		t.Errorf("session-scoped search got %+v, want only turn %d", hits, t1)
	}
}

func TestRetrievalSkipsTurnsWithoutVectors(t *testing.T) {
	s := openTestStore(t)
	sid, _ := s.CreateSession(1000)

	withVec, _ := s.AppendTurn(sid, RoleUser, "embedded", 1001)
	s.AttachTurnVector(withVec, []float32{1, 0, 0, 0})
	s.AppendTurn(sid, RoleUser, "not embedded", 1002)

	hits, err := s.SearchTurnVectors([]float32{1, 0, 0, 0}, 5, sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != withVec {
		t.Errorf("got %+v, want only the embedded turn", hits)
	}
}
