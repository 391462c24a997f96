package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRerankerDisabledWithoutConfig(t *testing.T) {
	r := NewReranker(RerankerConfig{}, nil)
	if r.Enabled() {
		t.Error("reranker should be disabled with empty config")
	}

	r = NewReranker(RerankerConfig{APIBase: "http://x", APIKey: "k"}, nil)
	if r.Enabled() {
		t.Error("reranker should be disabled without a model")
	}
}

func TestRerankOrdersByScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/rerank" {
			t.Errorf("path = %s, want /rerank", req.URL.Path)
		}
		if auth := req.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %s", auth)
		}

		var body rerankRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Documents) != 3 {
			t.Errorf("got %d documents, want 3", len(body.Documents))
		}

		// Provider returns results out of score order.
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 0, "relevance_score": 0.2},
				{"index": 2, "relevance_score": 0.9},
				{"index": 1, "relevance_score": 0.5},
			},
		})
	}))
	defer srv.Close()

	r := NewReranker(RerankerConfig{APIBase: srv.URL, APIKey: "test-key", Model: "rerank-v2"}, nil)

	ranks, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(ranks) != 2 {
		t.Fatalf("got %d ranks, want 2", len(ranks))
	}
	if ranks[0].Index != 2 || ranks[1].Index != 1 {
		t.Errorf("order = [%d, %d], want [2, 1]", ranks[0].Index, ranks[1].Index)
	}
}

func TestRerankServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewReranker(RerankerConfig{APIBase: srv.URL, APIKey: "k", Model: "m"}, nil)

	_, err := r.Rerank(context.Background(), "q", []string{"a"}, 1)
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("503: err = %v, want ErrUpstream", err)
	}
}

func TestRerankTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	r := NewReranker(RerankerConfig{
		APIBase: srv.URL,
		APIKey:  "k",
		Model:   "m",
		Timeout: 50 * time.Millisecond,
	}, nil)

	_, err := r.Rerank(context.Background(), "q", []string{"a"}, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("slow server: err = %v, want ErrTimeout", err)
	}
}

func TestRerankDropsOutOfRangeIndices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 7, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.4},
			},
		})
	}))
	defer srv.Close()

	r := NewReranker(RerankerConfig{APIBase: srv.URL, APIKey: "k", Model: "m"}, nil)

	ranks, err := r.Rerank(context.Background(), "q", []string{"only"}, 5)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(ranks) != 1 || ranks[0].Index != 0 {
		t.Errorf("ranks = %+v, want only index 0", ranks)
	}
}

func TestEmbeddingCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{1, 2, 3, 4}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	c := NewEmbedding(EmbeddingConfig{
		APIBase:   srv.URL,
		APIKey:    "k",
		Model:     "embed-test",
		Dimension: 4,
	}, nil)

	ctx := context.Background()
	first, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("embedding length = %d", len(first))
	}

	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1 (cache hit expected)", calls)
	}
}

func TestEmbedUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewEmbedding(EmbeddingConfig{APIBase: srv.URL, APIKey: "k", Model: "m", Dimension: 4}, nil)

	_, err := c.Embed(context.Background(), "text")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("500: err = %v, want ErrUpstream", err)
	}
}

func TestEmbedBatchPartialCache(t *testing.T) {
	var lastInputLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		lastInputLen = len(body.Input)

		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			data[i] = map[string]any{"embedding": []float32{float32(i), 0, 0, 0}, "index": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c := NewEmbedding(EmbeddingConfig{APIBase: srv.URL, APIKey: "k", Model: "m", Dimension: 4}, nil)

	ctx := context.Background()
	if _, err := c.Embed(ctx, "cached"); err != nil {
		t.Fatal(err)
	}

	vecs, err := c.EmbedBatch(ctx, []string{"cached", "fresh"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[0] == nil || vecs[1] == nil {
		t.Fatalf("vecs = %+v", vecs)
	}
	if lastInputLen != 1 {
		t.Errorf("batch sent %d inputs upstream, want 1 (one was cached)", lastInputLen)
	}
}
