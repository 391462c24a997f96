package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpetralia/anima/internal/scheduler"
	"github.com/mpetralia/anima/internal/store"
	"github.com/mpetralia/anima/internal/timeutil"
)

// ScheduledTaskToolName is the registry name of the task-management
// tool. The orchestrator hides it during scheduled turns.
const ScheduledTaskToolName = "scheduled_task"

// NewScheduledTaskTool builds the scheduled_task tool on top of the
// scheduler.
func NewScheduledTaskTool(sched *scheduler.Scheduler) *Tool {
	return &Tool{
		Name: ScheduledTaskToolName,
		Description: `Manage scheduled tasks like reminders and recurring messages.

WHEN TO USE:
- User asks to set a reminder or notification for a future time
- User wants recurring messages (daily, weekly, etc.)
- User asks to cancel, pause, or check existing reminders
- User mentions "remind me", "set a timer", "every day at..."

AVAILABLE ACTIONS:
- create: create a new task (one-time or recurring)
- list: show all active tasks
- get: view details of a specific task
- cancel: end a task permanently (it is marked completed and never fires again)
- pause: temporarily stop a task (can be resumed)
- resume: reactivate a paused task

TIME FORMATS:
- One-time: "in 30 minutes", "tomorrow", "next week", "30m", "2h", an ISO datetime, or epoch seconds
- Recurring: interval like "30s", "5m", "1h", "1d", "1w", or plain seconds`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        []string{"create", "list", "get", "cancel", "pause", "resume"},
					"description": "Action to perform.",
				},
				"task_id": map[string]any{
					"type":        "string",
					"description": "Task identifier. Required for get, cancel, pause, and resume; obtain it from list.",
				},
				"name": map[string]any{
					"type":        "string",
					"description": "Descriptive task name like 'Morning reminder' (required for create).",
				},
				"trigger_type": map[string]any{
					"type":        "string",
					"enum":        []string{"once", "interval"},
					"description": "'once' for a single reminder, 'interval' for recurring. Required for create.",
				},
				"time": map[string]any{
					"type":        "string",
					"description": "When the task should trigger (see TIME FORMATS). Required for create.",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "The reminder message delivered when the task triggers. Required for create.",
				},
			},
			"required": []string{"action"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return runTaskAction(sched, args)
		},
	}
}

func runTaskAction(sched *scheduler.Scheduler, args map[string]any) (string, error) {
	action, _ := args["action"].(string)
	taskID, _ := args["task_id"].(string)

	switch action {
	case "create":
		name, _ := args["name"].(string)
		triggerType, _ := args["trigger_type"].(string)
		timeExpr, _ := args["time"].(string)
		message, _ := args["message"].(string)

		task, err := sched.Create(name, triggerType, timeExpr, message)
		if err != nil {
			if errors.Is(err, scheduler.ErrBadArgument) {
				return "Error: " + err.Error(), nil
			}
			return "", err
		}
		return formatTaskCreated(task, sched), nil

	case "list":
		tasks, err := sched.List(store.TaskActive)
		if err != nil {
			return "", err
		}
		if len(tasks) == 0 {
			return "No active tasks found.", nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Active tasks (%d):\n\n", len(tasks))
		for _, t := range tasks {
			b.WriteString(formatTask(t, sched))
			b.WriteString("\n")
		}
		return strings.TrimSpace(b.String()), nil

	case "get":
		if taskID == "" {
			return "Error: task_id is required", nil
		}
		task, err := sched.Get(taskID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "Task not found: " + taskID, nil
			}
			return "", err
		}
		return strings.TrimSpace(formatTask(task, sched)), nil

	case "cancel":
		return taskTransition(sched, taskID, "cancelled", sched.Cancel)

	case "pause":
		return taskTransition(sched, taskID, "paused", sched.Pause)

	case "resume":
		return taskTransition(sched, taskID, "resumed", sched.Resume)

	default:
		return fmt.Sprintf("Unknown action: %s", action), nil
	}
}

func taskTransition(sched *scheduler.Scheduler, taskID, verb string, op func(string) error) (string, error) {
	if taskID == "" {
		return "Error: task_id is required", nil
	}
	task, err := sched.Get(taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "Task not found: " + taskID, nil
		}
		return "", err
	}
	if err := op(taskID); err != nil {
		if errors.Is(err, scheduler.ErrBadArgument) {
			return "Error: " + err.Error(), nil
		}
		return "", err
	}
	return fmt.Sprintf("Task %s: %s", verb, task.Name), nil
}

func formatTaskCreated(t *store.Task, sched *scheduler.Scheduler) string {
	if t.TriggerType == store.TriggerOnce {
		return fmt.Sprintf("Task created (ID: %s)\nName: %s\nType: One-time\nTrigger at: %s\nMessage: %s",
			t.ID, t.Name, timeutil.Format(t.TriggerConfig.Timestamp, sched.Timezone()), t.Message)
	}
	return fmt.Sprintf("Task created (ID: %s)\nName: %s\nType: Recurring\nInterval: %s\nMessage: %s",
		t.ID, t.Name, scheduler.FormatInterval(t.TriggerConfig.Interval), t.Message)
}

func formatTask(t *store.Task, sched *scheduler.Scheduler) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s\n  ID: %s\n  Type: %s\n  Status: %s\n", t.Name, t.ID, t.TriggerType, t.Status)

	if t.TriggerType == store.TriggerOnce {
		fmt.Fprintf(&b, "  Trigger at: %s\n", timeutil.Format(t.TriggerConfig.Timestamp, sched.Timezone()))
	} else {
		fmt.Fprintf(&b, "  Interval: %s\n  Next run: %s\n",
			scheduler.FormatInterval(t.TriggerConfig.Interval),
			timeutil.Format(t.NextRunAt, sched.Timezone()))
	}
	if t.LastRunAt != 0 {
		fmt.Fprintf(&b, "  Last run: %s\n", timeutil.Format(t.LastRunAt, sched.Timezone()))
	}

	msg := t.Message
	if len(msg) > 50 {
		msg = msg[:50] + "..."
	}
	fmt.Fprintf(&b, "  Message: %s\n", msg)
	return b.String()
}
