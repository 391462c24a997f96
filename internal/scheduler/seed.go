package scheduler

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mpetralia/anima/internal/store"
)

// seedEntry is one preset task from the optional JSON seed file.
type seedEntry struct {
	Name          string              `json:"name"`
	TriggerType   string              `json:"trigger_type"`
	TriggerConfig store.TriggerConfig `json:"trigger_config"`
	Message       string              `json:"message"`
}

// LoadSeedFile merges preset tasks from a JSON file into the store.
// Loading is idempotent on (name, trigger_type, trigger_config): a task
// matching an existing one on that identity is skipped. A missing file
// is not an error. Returns the number of tasks added.
func (s *Scheduler) LoadSeedFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	existing, err := s.store.Tasks("")
	if err != nil {
		return 0, err
	}

	added := 0
	for _, e := range entries {
		if e.Name == "" || e.Message == "" {
			s.logger.Warn("skipping seed task without name or message")
			continue
		}
		if e.TriggerType != store.TriggerOnce && e.TriggerType != store.TriggerInterval {
			s.logger.Warn("skipping seed task with unknown trigger type",
				"name", e.Name,
				"trigger_type", e.TriggerType,
			)
			continue
		}
		if seedExists(existing, e) {
			continue
		}

		now := s.now()
		task := &store.Task{
			ID:            newTaskID(),
			Name:          e.Name,
			TriggerType:   e.TriggerType,
			TriggerConfig: e.TriggerConfig,
			Message:       e.Message,
			CreatedAt:     now,
			Status:        store.TaskActive,
		}
		switch e.TriggerType {
		case store.TriggerOnce:
			task.NextRunAt = e.TriggerConfig.Timestamp
		case store.TriggerInterval:
			if e.TriggerConfig.Interval <= 0 {
				s.logger.Warn("skipping seed task with non-positive interval", "name", e.Name)
				continue
			}
			task.NextRunAt = now + e.TriggerConfig.Interval
		}

		if err := s.store.InsertTask(task); err != nil {
			return added, err
		}
		existing = append(existing, task)
		added++
	}

	if added > 0 {
		s.logger.Info("loaded seed tasks", "path", path, "added", added)
	}
	return added, nil
}

// seedExists matches on the seed identity: name, trigger type, and
// trigger config.
func seedExists(tasks []*store.Task, e seedEntry) bool {
	for _, t := range tasks {
		if t.Name == e.Name && t.TriggerType == e.TriggerType && t.TriggerConfig == e.TriggerConfig {
			return true
		}
	}
	return false
}
