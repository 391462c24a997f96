// Package scheduler runs the persistent timer that fires proactive turns
// into the orchestrator. Tasks live in the store; every poll interval the
// scheduler asks for due tasks and fires them in next_run_at order.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mpetralia/anima/internal/store"
	"github.com/mpetralia/anima/internal/timeutil"
)

// FireFunc handles one task firing: it receives the task and the
// synthesised prompt and returns the orchestrator's error, if any.
type FireFunc func(ctx context.Context, task *store.Task, prompt string) error

// Scheduler polls for due tasks and fires them.
type Scheduler struct {
	store        *store.Store
	fire         FireFunc
	tz           *time.Location
	pollInterval time.Duration
	logger       *slog.Logger
	now          func() int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. now may be nil for the real clock.
func New(st *store.Store, fire FireFunc, tz *time.Location, pollInterval time.Duration, logger *slog.Logger, now func() int64) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if tz == nil {
		tz = time.UTC
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if now == nil {
		now = timeutil.Now
	}
	return &Scheduler{
		store:        st,
		fire:         fire,
		tz:           tz,
		pollInterval: pollInterval,
		logger:       logger,
		now:          now,
		done:         make(chan struct{}),
	}
}

// SetFire installs the firing callback. Must be called before Start;
// it exists because the orchestrator and transport are constructed after
// the scheduler they depend on.
func (s *Scheduler) SetFire(fire FireFunc) {
	s.fire = fire
}

// Start begins the polling loop in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer close(s.done)
		s.logger.Info("scheduler started", "poll_interval", s.pollInterval)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		// First check immediately so restarts pick up overdue tasks.
		s.tick(runCtx)

		for {
			select {
			case <-runCtx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// tick fires every due task in next_run_at order. The firing record
// commits before the next task is considered, so a tick that overlaps a
// slow firing can never observe a stale next_run_at.
func (s *Scheduler) tick(ctx context.Context) {
	if s.fire == nil {
		s.logger.Error("scheduler has no fire callback")
		return
	}

	due, err := s.store.DueTasks(s.now())
	if err != nil {
		s.logger.Error("querying due tasks failed", "error", err)
		return
	}

	for _, task := range due {
		if ctx.Err() != nil {
			return
		}

		firedAt := s.now()
		prompt := ComposePrompt(task, firedAt, s.tz)

		s.logger.Info("firing scheduled task",
			"task_id", task.ID,
			"name", task.Name,
			"trigger_type", task.TriggerType,
		)

		fireErr := s.fire(ctx, task, prompt)
		if fireErr != nil {
			// Once tasks still complete: availability traded for
			// predictability, matching the no-refire invariant.
			s.logger.Error("scheduled task firing failed",
				"task_id", task.ID,
				"error", fireErr,
			)
		}

		if err := s.store.RecordFiring(task, s.now()); err != nil {
			s.logger.Error("recording task firing failed",
				"task_id", task.ID,
				"error", err,
			)
		}
	}
}

// ComposePrompt builds the synthetic user-role prompt for a firing.
func ComposePrompt(task *store.Task, firedAt int64, tz *time.Location) string {
	return fmt.Sprintf(
		"[SYSTEM_SCHEDULED_TASK]\nTask Name: %s\nTrigger Time: %s\nTask: %s\n\nPlease respond proactively based on this scheduled task.",
		task.Name, timeutil.Format(firedAt, tz), task.Message)
}

// Create parses the trigger expression and persists a new active task.
func (s *Scheduler) Create(name, triggerType, timeExpr, message string) (*store.Task, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadArgument)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrBadArgument)
	}

	now := s.now()
	task := &store.Task{
		ID:          newTaskID(),
		Name:        name,
		TriggerType: triggerType,
		Message:     message,
		CreatedAt:   now,
		Status:      store.TaskActive,
	}

	switch triggerType {
	case store.TriggerOnce:
		ts, err := ParseOnceTrigger(timeExpr, now, s.tz)
		if err != nil {
			return nil, err
		}
		if ts <= now {
			return nil, fmt.Errorf("%w: trigger time %q is not in the future", ErrBadArgument, timeExpr)
		}
		task.TriggerConfig = store.TriggerConfig{Timestamp: ts}
		task.NextRunAt = ts

	case store.TriggerInterval:
		interval, err := ParseInterval(timeExpr)
		if err != nil {
			return nil, err
		}
		task.TriggerConfig = store.TriggerConfig{Interval: interval}
		task.NextRunAt = now + interval

	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrBadArgument, triggerType)
	}

	if err := s.store.InsertTask(task); err != nil {
		return nil, err
	}

	s.logger.Info("task created",
		"task_id", task.ID,
		"name", task.Name,
		"trigger_type", task.TriggerType,
		"next_run_at", task.NextRunAt,
	)
	return task, nil
}

// Get fetches a task by ID.
func (s *Scheduler) Get(id string) (*store.Task, error) {
	return s.store.TaskByID(id)
}

// List returns tasks, optionally filtered by status.
func (s *Scheduler) List(status string) ([]*store.Task, error) {
	return s.store.Tasks(status)
}

// Pause suspends an active task.
func (s *Scheduler) Pause(id string) error {
	task, err := s.store.TaskByID(id)
	if err != nil {
		return err
	}
	if task.Status != store.TaskActive {
		return fmt.Errorf("%w: task is not active (status %s)", ErrBadArgument, task.Status)
	}
	return s.store.SetTaskStatus(id, store.TaskPaused)
}

// Resume reactivates a paused task.
func (s *Scheduler) Resume(id string) error {
	task, err := s.store.TaskByID(id)
	if err != nil {
		return err
	}
	if task.Status != store.TaskPaused {
		return fmt.Errorf("%w: task is not paused (status %s)", ErrBadArgument, task.Status)
	}
	return s.store.SetTaskStatus(id, store.TaskActive)
}

// Cancel permanently completes a task.
func (s *Scheduler) Cancel(id string) error {
	if _, err := s.store.TaskByID(id); err != nil {
		return err
	}
	return s.store.SetTaskStatus(id, store.TaskCompleted)
}

// Timezone returns the scheduler's display timezone.
func (s *Scheduler) Timezone() *time.Location {
	return s.tz
}

// newTaskID generates a UUIDv7 task ID, falling back to v4.
func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
