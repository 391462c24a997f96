// Package retriever implements two-stage recall over past summaries and
// turns: embedding-based candidate gathering, then optional rerank
// pruning. Nothing from the active session is ever returned.
package retriever

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/mpetralia/anima/internal/llm"
	"github.com/mpetralia/anima/internal/store"
	"github.com/mpetralia/anima/internal/timeutil"
)

// Embedder turns text into a query vector. The embedding client caches by
// exact text, which covers the repeated most-recent-assistant query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores candidates against the user input. Satisfied by
// llm.Reranker.
type Reranker interface {
	Enabled() bool
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]llm.Rank, error)
}

// Config holds the recall parameters.
type Config struct {
	SummaryPerQuery int // candidates per query vector
	ConvPerSummary  int // turn candidates per retained summary
	TopSummaries    int // summaries kept after pruning
	TopConvs        int // turns kept after pruning
}

// RetrievedSummary is a recalled summary annotated with a human-readable
// local time range.
type RetrievedSummary struct {
	Text      string
	HumanTime string
}

// RetrievedTurn is a recalled turn annotated with a human-readable local
// timestamp.
type RetrievedTurn struct {
	Role      string
	Text      string
	HumanTime string
}

// Result is the retriever's output for one query.
type Result struct {
	Summaries []RetrievedSummary
	Turns     []RetrievedTurn
}

// Retriever performs the recall. Failures degrade: an embedder error
// yields an empty result, a reranker error falls back to vector-score
// ordering.
type Retriever struct {
	store    *store.Store
	embedder Embedder
	reranker Reranker
	cfg      Config
	tz       *time.Location
	logger   *slog.Logger
}

// New creates a retriever.
func New(st *store.Store, embedder Embedder, reranker Reranker, cfg Config, tz *time.Location, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Retriever{
		store:    st,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		tz:       tz,
		logger:   logger,
	}
}

// Retrieve recalls summaries and turns relevant to the user input and the
// most recent assistant turn. userVec may carry a precomputed embedding
// of userInput to avoid re-embedding; pass nil to embed here.
// excludeSummaryIDs removes summaries already present in the window.
func (r *Retriever) Retrieve(ctx context.Context, userInput string, userVec []float32, lastAssistant string, activeSession int64, excludeSummaryIDs []int64) Result {
	if userVec == nil {
		var err error
		userVec, err = r.embedder.Embed(ctx, userInput)
		if err != nil {
			r.logger.Warn("retrieval skipped: embedding user input failed", "error", err)
			return Result{}
		}
	}

	// Stage 1: summary candidates from both query vectors, deduplicated.
	candidates, err := r.store.SearchSummaryVectors(userVec, r.cfg.SummaryPerQuery, activeSession, excludeSummaryIDs)
	if err != nil {
		r.logger.Warn("summary vector search failed", "error", err)
	}

	if lastAssistant != "" {
		botVec, err := r.embedder.Embed(ctx, lastAssistant)
		if err != nil {
			r.logger.Warn("embedding last assistant turn failed", "error", err)
		} else {
			botHits, err := r.store.SearchSummaryVectors(botVec, r.cfg.SummaryPerQuery, activeSession, excludeSummaryIDs)
			if err != nil {
				r.logger.Warn("summary vector search (assistant query) failed", "error", err)
			} else {
				seen := make(map[int64]bool, len(candidates))
				for _, c := range candidates {
					seen[c.ID] = true
				}
				for _, h := range botHits {
					if !seen[h.ID] {
						candidates = append(candidates, h)
					}
				}
			}
		}
	}

	if len(candidates) == 0 {
		return Result{}
	}

	// Stage 2: turn candidates from each retained summary's session,
	// deduplicated by turn ID.
	var turnCandidates []store.TurnHit
	seenTurns := make(map[int64]bool)
	for _, sum := range candidates {
		hits, err := r.store.SearchTurnVectors(userVec, r.cfg.ConvPerSummary, sum.SessionID)
		if err != nil {
			r.logger.Warn("turn vector search failed", "session_id", sum.SessionID, "error", err)
			continue
		}
		for _, h := range hits {
			if !seenTurns[h.ID] {
				seenTurns[h.ID] = true
				turnCandidates = append(turnCandidates, h)
			}
		}
	}

	summaries := r.pruneSummaries(ctx, userInput, candidates)
	turns := r.pruneTurns(ctx, userInput, turnCandidates)

	r.logger.Debug("retrieval complete",
		"summaries", len(summaries),
		"turns", len(turns),
	)
	return Result{Summaries: summaries, Turns: turns}
}

// pruneSummaries keeps the top summaries by rerank score when a reranker
// is configured, by vector distance otherwise. Equal scores keep the more
// recent item.
func (r *Retriever) pruneSummaries(ctx context.Context, query string, candidates []store.SummaryHit) []RetrievedSummary {
	ordered := candidates

	if r.reranker != nil && r.reranker.Enabled() && len(candidates) > 0 {
		docs := make([]string, len(candidates))
		for i, c := range candidates {
			docs[i] = c.Text
		}
		ranks, err := r.reranker.Rerank(ctx, query, docs, r.cfg.TopSummaries)
		if err != nil {
			r.logger.Warn("summary rerank failed, falling back to vector order", "error", err)
			ordered = sortByScore(candidates)
		} else {
			ordered = applyRanks(candidates, ranks)
		}
	} else {
		ordered = sortByScore(candidates)
	}

	if len(ordered) > r.cfg.TopSummaries {
		ordered = ordered[:r.cfg.TopSummaries]
	}

	out := make([]RetrievedSummary, len(ordered))
	for i, c := range ordered {
		out[i] = RetrievedSummary{
			Text:      c.Text,
			HumanTime: timeutil.FormatRange(c.FirstTS, c.LastTS, r.tz),
		}
	}
	return out
}

func (r *Retriever) pruneTurns(ctx context.Context, query string, candidates []store.TurnHit) []RetrievedTurn {
	ordered := candidates

	if r.reranker != nil && r.reranker.Enabled() && len(candidates) > 0 {
		docs := make([]string, len(candidates))
		for i, c := range candidates {
			docs[i] = c.Text
		}
		ranks, err := r.reranker.Rerank(ctx, query, docs, r.cfg.TopConvs)
		if err != nil {
			r.logger.Warn("turn rerank failed, falling back to vector order", "error", err)
			ordered = sortTurnsByScore(candidates)
		} else {
			ordered = applyTurnRanks(candidates, ranks)
		}
	} else {
		ordered = sortTurnsByScore(candidates)
	}

	if len(ordered) > r.cfg.TopConvs {
		ordered = ordered[:r.cfg.TopConvs]
	}

	out := make([]RetrievedTurn, len(ordered))
	for i, c := range ordered {
		out[i] = RetrievedTurn{
			Role:      c.Role,
			Text:      c.Text,
			HumanTime: timeutil.Format(c.TS, r.tz),
		}
	}
	return out
}

// sortByScore orders summary hits by ascending distance; equal distances
// put the more recent summary first.
func sortByScore(hits []store.SummaryHit) []store.SummaryHit {
	out := make([]store.SummaryHit, len(hits))
	copy(out, hits)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].LastTS > out[j].LastTS
	})
	return out
}

func sortTurnsByScore(hits []store.TurnHit) []store.TurnHit {
	out := make([]store.TurnHit, len(hits))
	copy(out, hits)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].TS > out[j].TS
	})
	return out
}

// applyRanks reorders candidates by rerank result. Equal rerank scores
// keep the more recent item.
func applyRanks(candidates []store.SummaryHit, ranks []llm.Rank) []store.SummaryHit {
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return candidates[ranks[i].Index].LastTS > candidates[ranks[j].Index].LastTS
	})
	out := make([]store.SummaryHit, 0, len(ranks))
	for _, rk := range ranks {
		out = append(out, candidates[rk.Index])
	}
	return out
}

func applyTurnRanks(candidates []store.TurnHit, ranks []llm.Rank) []store.TurnHit {
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return candidates[ranks[i].Index].TS > candidates[ranks[j].Index].TS
	})
	out := make([]store.TurnHit, 0, len(ranks))
	for _, rk := range ranks {
		out = append(out, candidates[rk.Index])
	}
	return out
}
