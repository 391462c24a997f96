package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mpetralia/anima/internal/store"
	"github.com/mpetralia/anima/internal/timeutil"
)

// MemorySearchToolName is the registry name of the built-in memory
// search tool.
const MemorySearchToolName = "search_memories"

// ftsExamples is appended to syntax errors so the model can self-correct.
const ftsExamples = "\n\nValid examples:\n- coffee AND morning\n- tea OR coffee\n- \"exact phrase\"\n- (tea OR coffee) AND morning"

// NewMemorySearchTool builds the search_memories tool. activeSession is
// consulted at call time so the exclusion follows session rotation.
func NewMemorySearchTool(st *store.Store, activeSession func() int64, tz *time.Location) *Tool {
	if tz == nil {
		tz = time.UTC
	}

	return &Tool{
		Name: MemorySearchToolName,
		Description: `Search your long-term memory (conversation history and summaries) using keywords and filters.

WHEN TO USE:
- User asks about past conversations, previous topics, or things mentioned before
- You need to recall specific facts, preferences, or events from history
- User asks "do you remember...", "what did we talk about...", "when did I say..."

QUERY SYNTAX (FTS5):
- Single keyword: coffee
- AND (both required): coffee AND morning
- OR (either acceptable): tea OR coffee
- Exact phrase: "morning routine"
- Exclude: coffee NOT decaf
- Grouping: (tea OR coffee) AND morning

BEST PRACTICES:
1. Use specific keywords relevant to the topic
2. Use the same language as the user's conversation
3. Combine keywords with AND for precise results
4. Use time filters when the timeframe is known
5. Start with broader keywords, then narrow down`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search keywords using FTS5 syntax. Leave empty to search using only filters (role, time range).",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (default: 10).",
				},
				"role": map[string]any{
					"type":        "string",
					"enum":        []string{"user", "assistant"},
					"description": "Filter by speaker role.",
				},
				"time_period": map[string]any{
					"type":        "string",
					"enum":        []string{"last_day", "last_week", "last_month", "last_year"},
					"description": "Quick time filter for vague timeframes like 'recently' or 'the other day'.",
				},
				"start_date": map[string]any{
					"type":        "string",
					"description": "Filter from this date onwards. Format: YYYY-MM-DD or YYYY-MM-DD HH:MM:SS.",
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Filter until this date. Format: YYYY-MM-DD or YYYY-MM-DD HH:MM:SS.",
				},
			},
			"required": []string{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return searchMemories(st, activeSession(), tz, args)
		},
	}
}

func searchMemories(st *store.Store, activeSession int64, tz *time.Location, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	role, _ := args["role"].(string)
	timePeriod, _ := args["time_period"].(string)
	startDate, _ := args["start_date"].(string)
	endDate, _ := args["end_date"].(string)

	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	var startTS, endTS int64
	now := time.Now().In(tz)

	switch timePeriod {
	case "":
	case "last_day":
		startTS = now.AddDate(0, 0, -1).Unix()
	case "last_week":
		startTS = now.AddDate(0, 0, -7).Unix()
	case "last_month":
		startTS = now.AddDate(0, 0, -30).Unix()
	case "last_year":
		startTS = now.AddDate(0, 0, -365).Unix()
	default:
		return fmt.Sprintf("Invalid time_period: %s (use last_day, last_week, last_month, or last_year)", timePeriod), nil
	}

	// Explicit dates override the preset.
	if startDate != "" {
		ts, err := parseDateBound(startDate, tz, false)
		if err != nil {
			return fmt.Sprintf("Invalid start_date format: %s. Use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", startDate), nil
		}
		startTS = ts
	}
	if endDate != "" {
		ts, err := parseDateBound(endDate, tz, true)
		if err != nil {
			return fmt.Sprintf("Invalid end_date format: %s. Use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", endDate), nil
		}
		endTS = ts
	}

	if query == "" && role == "" && startTS == 0 && endTS == 0 {
		return "Please provide at least one search criterion (query, role, or time filter)", nil
	}

	half := limit / 2
	if half < 1 {
		half = 1
	}

	summaryHits, err := st.SearchSummariesFTS(query, store.SummarySearchFilter{
		ExcludeSession: activeSession,
		StartTS:        startTS,
		EndTS:          endTS,
	}, half)
	if err != nil {
		if errors.Is(err, store.ErrBadQuery) {
			return "Invalid query syntax: " + err.Error() + ftsExamples, nil
		}
		return "", err
	}

	turnHits, err := st.SearchTurnsFTS(query, store.TurnSearchFilter{
		ExcludeSession: activeSession,
		Role:           role,
		StartTS:        startTS,
		EndTS:          endTS,
	}, half)
	if err != nil {
		if errors.Is(err, store.ErrBadQuery) {
			return "Invalid query syntax: " + err.Error() + ftsExamples, nil
		}
		return "", err
	}

	var out []string

	var criteria []string
	if query != "" {
		criteria = append(criteria, fmt.Sprintf("keywords: %q", query))
	}
	if role != "" {
		criteria = append(criteria, "role: "+role)
	}
	switch {
	case timePeriod != "":
		criteria = append(criteria, "time: "+timePeriod)
	case startDate != "" && endDate != "":
		criteria = append(criteria, fmt.Sprintf("time: %s to %s", startDate, endDate))
	case startDate != "":
		criteria = append(criteria, "time: from "+startDate)
	case endDate != "":
		criteria = append(criteria, "time: until "+endDate)
	}
	if len(criteria) > 0 {
		out = append(out, "Search criteria: "+strings.Join(criteria, ", ")+"\n")
	}

	if len(summaryHits) > 0 {
		out = append(out, "== Related Summaries ==")
		for _, h := range summaryHits {
			out = append(out, fmt.Sprintf("[%s] %s", timeutil.Format(h.LastTS, tz), h.Text))
		}
	}

	if len(turnHits) > 0 {
		if len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, "== Related Conversations ==")
		for _, h := range turnHits {
			display := "User"
			if h.Role == store.RoleAssistant {
				display = "Assistant"
			}
			out = append(out, fmt.Sprintf("[%s] %s: %s", timeutil.Format(h.TS, tz), display, h.Text))
		}
	}

	if len(summaryHits) == 0 && len(turnHits) == 0 {
		return "No relevant memories found matching the search criteria", nil
	}

	return strings.Join(out, "\n"), nil
}

// parseDateBound parses YYYY-MM-DD or YYYY-MM-DD HH:MM:SS in tz. A
// date-only end bound covers the whole day.
func parseDateBound(s string, tz *time.Location, endOfDay bool) (int64, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, tz); err == nil {
		return t.Unix(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, tz)
	if err != nil {
		return 0, err
	}
	if endOfDay {
		t = t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return t.Unix(), nil
}
