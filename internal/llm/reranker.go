package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mpetralia/anima/internal/httpkit"
)

// RerankerConfig holds rerank client settings. The reranker is optional:
// with any field empty the client is disabled and Rerank is never called.
type RerankerConfig struct {
	APIBase string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Reranker scores (query, candidate) pairs through a /rerank endpoint.
type Reranker struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	enabled bool
	logger  *slog.Logger
}

// Rank is a reranked candidate: its index in the input slice and the
// relevance score the provider assigned.
type Rank struct {
	Index int
	Score float64
}

// NewReranker creates a rerank client. Missing settings disable it.
func NewReranker(cfg RerankerConfig, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}

	enabled := cfg.APIBase != "" && cfg.APIKey != "" && cfg.Model != ""
	if enabled {
		logger.Info("reranker enabled", "model", cfg.Model)
	} else {
		logger.Info("reranker disabled (missing api_base, api_key, or model)")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Reranker{
		baseURL: strings.TrimSuffix(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  httpkit.NewClient(httpkit.WithTimeout(timeout)),
		enabled: enabled,
		logger:  logger,
	}
}

// Enabled reports whether reranking is configured.
func (r *Reranker) Enabled() bool {
	return r.enabled
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against the query and returns the top n by
// descending relevance. The caller maps indices back to its candidates.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Rank, error) {
	if !r.enabled {
		return nil, fmt.Errorf("reranker is not enabled")
	}
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, wrapUpstream("rerank request", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, upstreamf("rerank returned status %d: %s", resp.StatusCode, errBody)
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, upstreamf("decode rerank response: %v", err)
	}
	if result.Results == nil {
		return nil, upstreamf("unexpected rerank response shape")
	}

	ranks := make([]Rank, 0, len(result.Results))
	for _, item := range result.Results {
		if item.Index < 0 || item.Index >= len(documents) {
			continue
		}
		ranks = append(ranks, Rank{Index: item.Index, Score: item.RelevanceScore})
	}
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].Score > ranks[j].Score })

	if len(ranks) > topN {
		ranks = ranks[:topN]
	}
	return ranks, nil
}
