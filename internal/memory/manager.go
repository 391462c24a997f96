package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mpetralia/anima/internal/store"
	"github.com/mpetralia/anima/internal/timeutil"
)

// Embedder turns text into a vector. Satisfied by llm.EmbeddingClient.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Condenser generates a summary for a slice of turns and derives a
// profile update from it. Satisfied by summarizer.Summarizer.
type Condenser interface {
	Summarize(ctx context.Context, msgs []Message) (string, error)
	UpdateProfile(ctx context.Context, msgs []Message, firstTS, lastTS int64) error
}

// Config holds the window parameters.
type Config struct {
	KeepMin            int
	Trigger            int
	RecentSummariesMax int
}

// Manager owns the context window and the active session. All methods
// must be called under the orchestrator's session mutex; the manager
// itself does no locking.
type Manager struct {
	store     *store.Store
	embedder  Embedder
	condenser Condenser
	cfg       Config
	logger    *slog.Logger
	now       func() int64

	window    *Window
	sessionID int64
}

// NewManager creates a manager. now may be nil for the real clock.
func NewManager(st *store.Store, embedder Embedder, condenser Condenser, cfg Config, logger *slog.Logger, now func() int64) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = timeutil.Now
	}
	return &Manager{
		store:     st,
		embedder:  embedder,
		condenser: condenser,
		cfg:       cfg,
		logger:    logger,
		now:       now,
		window:    NewWindow(cfg.RecentSummariesMax),
	}
}

// Start ensures an active session exists, restoring the window from the
// store when one does.
func (m *Manager) Start(ctx context.Context) error {
	sess, err := m.store.ActiveSession()
	if err == nil {
		m.sessionID = sess.ID
		if err := m.restore(ctx); err != nil {
			return fmt.Errorf("restore session %d: %w", sess.ID, err)
		}
		m.logger.Info("restored active session", "session_id", sess.ID)
		return nil
	}

	id, err := m.store.CreateSession(m.now())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	m.sessionID = id
	m.logger.Info("created new active session", "session_id", id)
	return nil
}

// SessionID returns the active session ID.
func (m *Manager) SessionID() int64 {
	return m.sessionID
}

// restore rebuilds the window from the active session: recent summaries
// first, then the unsummarised turns. A backlog past the trigger is
// condensed in keep-sized batches before serving traffic.
func (m *Manager) restore(ctx context.Context) error {
	sums, err := m.store.SummariesBySession(m.sessionID)
	if err != nil {
		return err
	}
	if len(sums) > 0 {
		recent := sums
		if len(recent) > m.cfg.RecentSummariesMax {
			recent = recent[:m.cfg.RecentSummariesMax]
		}
		// SummariesBySession is most-recent-first; add oldest first to
		// keep the window chronological.
		for i := len(recent) - 1; i >= 0; i-- {
			m.window.AddSummary(recent[i].ID, recent[i].Text)
		}
	}

	turns, err := m.store.UnsummarizedTurns(m.sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	if len(turns) <= m.cfg.KeepMin {
		for _, t := range turns {
			m.window.AddMessage(Message{Role: t.Role, Text: t.Text, TS: t.TS})
		}
		return nil
	}

	done := 0
	if len(turns) >= m.cfg.Trigger {
		toCondense := len(turns) - m.cfg.KeepMin
		m.logger.Info("condensing backlog from restored session",
			"unsummarized", len(turns),
			"condensing", toCondense,
		)

		for done < toCondense {
			batch := m.cfg.KeepMin
			if rest := toCondense - done; rest < batch {
				batch = rest
			}
			msgs := turnsToMessages(turns[done : done+batch])
			if err := m.condense(ctx, msgs); err != nil {
				// Leave the rest for the next trigger crossing.
				m.logger.Warn("backlog condensation failed, keeping turns in window", "error", err)
				break
			}
			done += batch
		}
	}

	for _, t := range turns[done:] {
		m.window.AddMessage(Message{Role: t.Role, Text: t.Text, TS: t.TS})
	}
	return nil
}

// AddUserTurn persists a user turn, attaches its embedding, and appends
// it to the window. The embedding is returned for reuse by the retriever;
// it is nil when the embedder failed (the turn is still stored).
func (m *Manager) AddUserTurn(ctx context.Context, text string) (int64, []float32, error) {
	id, vec, err := m.appendTurn(ctx, store.RoleUser, text)
	return id, vec, err
}

// AddAssistantTurn persists an assistant turn and then compacts the
// window if it has reached the trigger. Returns the turn ID and the new
// summary ID (zero when no compaction happened).
func (m *Manager) AddAssistantTurn(ctx context.Context, text string) (int64, int64, error) {
	id, _, err := m.appendTurn(ctx, store.RoleAssistant, text)
	if err != nil {
		return 0, 0, err
	}

	summaryID := m.compactIfNeeded(ctx)
	return id, summaryID, nil
}

func (m *Manager) appendTurn(ctx context.Context, role, text string) (int64, []float32, error) {
	ts := m.now()
	id, err := m.store.AppendTurn(m.sessionID, role, text, ts)
	if err != nil {
		return 0, nil, err
	}

	// Embedding failure must not lose the turn: the vector stays missing
	// and retrieval skips the row.
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.logger.Warn("embedding failed, turn stored without vector",
			"turn_id", id,
			"error", err,
		)
		vec = nil
	} else if err := m.store.AttachTurnVector(id, vec); err != nil {
		m.logger.Warn("attaching turn vector failed", "turn_id", id, "error", err)
	}

	m.window.AddMessage(Message{Role: role, Text: text, TS: ts})
	return id, vec, nil
}

// compactIfNeeded condenses the oldest count−KeepMin turns once the
// window reaches the trigger, leaving exactly KeepMin in the tail. On
// summariser failure the window is left intact for the next crossing.
func (m *Manager) compactIfNeeded(ctx context.Context) int64 {
	count := m.window.Count()
	if count < m.cfg.Trigger {
		return 0
	}

	msgs := m.window.Oldest(count - m.cfg.KeepMin)
	summaryID, err := m.condenseID(ctx, msgs)
	if err != nil {
		m.logger.Warn("compaction failed, keeping window intact", "error", err)
		return 0
	}

	m.window.RemoveOldest(len(msgs))
	m.logger.Info("compacted context window",
		"summary_id", summaryID,
		"condensed", len(msgs),
		"remaining", m.window.Count(),
	)
	return summaryID
}

// condense summarises msgs, persists the summary with its vector, adds it
// to the window, and applies the profile update.
func (m *Manager) condense(ctx context.Context, msgs []Message) error {
	_, err := m.condenseID(ctx, msgs)
	return err
}

func (m *Manager) condenseID(ctx context.Context, msgs []Message) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	text, err := m.condenser.Summarize(ctx, msgs)
	if err != nil {
		return 0, fmt.Errorf("summarize: %w", err)
	}

	firstTS := msgs[0].TS
	lastTS := msgs[len(msgs)-1].TS

	id, err := m.store.InsertSummary(m.sessionID, text, firstTS, lastTS)
	if err != nil {
		return 0, fmt.Errorf("insert summary: %w", err)
	}

	if vec, err := m.embedder.Embed(ctx, text); err != nil {
		m.logger.Warn("summary embedding failed", "summary_id", id, "error", err)
	} else if err := m.store.AttachSummaryVector(id, vec); err != nil {
		m.logger.Warn("attaching summary vector failed", "summary_id", id, "error", err)
	}

	m.window.AddSummary(id, text)

	// Profile update failures never abort the turn.
	if err := m.condenser.UpdateProfile(ctx, msgs, firstTS, lastTS); err != nil {
		m.logger.Warn("profile update failed", "summary_id", id, "error", err)
	}

	return id, nil
}

// NewSession finalises the active session: any remaining window turns are
// condensed into a final summary, the session is archived, and a fresh
// active session replaces it.
func (m *Manager) NewSession(ctx context.Context) (int64, error) {
	if msgs := m.window.Messages(); len(msgs) > 0 {
		if err := m.condense(ctx, msgs); err != nil {
			m.logger.Warn("final summary failed during session rotation", "error", err)
		}
	}

	if err := m.store.ArchiveSession(m.sessionID, m.now()); err != nil {
		return 0, fmt.Errorf("archive session: %w", err)
	}

	id, err := m.store.CreateSession(m.now())
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}

	m.logger.Info("rotated session", "old", m.sessionID, "new", id)
	m.sessionID = id
	m.window.Clear()
	return id, nil
}

// ResetSession hard-deletes the active session and starts a fresh one.
func (m *Manager) ResetSession(ctx context.Context) (int64, error) {
	if err := m.store.DeleteSession(m.sessionID); err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}

	id, err := m.store.CreateSession(m.now())
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}

	m.logger.Info("reset session", "old", m.sessionID, "new", id)
	m.sessionID = id
	m.window.Clear()
	return id, nil
}

// ContextMessages returns the window's turns for prompt assembly.
func (m *Manager) ContextMessages() []Message {
	return m.window.Messages()
}

// RecentSummaries returns the window's summary texts, oldest first.
func (m *Manager) RecentSummaries() []string {
	return m.window.Summaries()
}

// RecentSummaryIDs returns the IDs of the window's summaries, for
// exclusion from retrieval.
func (m *Manager) RecentSummaryIDs() []int64 {
	return m.window.SummaryIDs()
}

// LastAssistantText returns the most recent assistant turn in the window.
func (m *Manager) LastAssistantText() string {
	return m.window.LastAssistantText()
}

func turnsToMessages(turns []store.Turn) []Message {
	out := make([]Message, len(turns))
	for i, t := range turns {
		out[i] = Message{Role: t.Role, Text: t.Text, TS: t.TS}
	}
	return out
}
