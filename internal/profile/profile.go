// Package profile manages the long-term persona document (seele.json):
// the structured description of the bot persona and the user model that
// is embedded verbatim in every prompt.
//
// The in-memory copy is authoritative. Every successful patch updates the
// cache and the on-disk file in the same call, so the prompt assembler
// never reads the disk.
package profile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

//go:embed template.json
var templateJSON []byte

// maxMemorableEvents caps the memorable_events array; older entries are
// dropped first.
const maxMemorableEvents = 20

// requiredKeys are the top-level fields every valid document carries.
var requiredKeys = []string{"bot", "user", "memorable_events", "commands_and_agreements"}

// Profile is the cached persona document with its on-disk backing file.
type Profile struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	doc []byte // canonical indented JSON
}

// New creates a Profile backed by the file at path. Call Load before use.
func New(path string, logger *slog.Logger) *Profile {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profile{path: path, logger: logger}
}

// Load reads the document from disk into the cache. A missing file is
// seeded from the embedded template.
func (p *Profile) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		p.logger.Info("persona document missing, seeding from template", "path", p.path)
		normalized, vErr := validateAndNormalize(templateJSON)
		if vErr != nil {
			return fmt.Errorf("template document invalid: %w", vErr)
		}
		p.doc = normalized
		return p.persistLocked()
	}
	if err != nil {
		return fmt.Errorf("read persona document: %w", err)
	}

	normalized, err := validateAndNormalize(data)
	if err != nil {
		return fmt.Errorf("persona document %s: %w", p.path, err)
	}
	p.doc = normalized
	return nil
}

// JSON returns the cached document as indented JSON.
func (p *Profile) JSON() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]byte, len(p.doc))
	copy(out, p.doc)
	return out
}

// Snapshot returns a deep copy of the document as a generic map.
func (p *Profile) Snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var m map[string]any
	// The cached document is always valid JSON.
	_ = json.Unmarshal(p.doc, &m)
	return m
}

// BotName returns bot.name from the document, or fallback when empty.
func (p *Profile) BotName(fallback string) string {
	return p.nestedString("bot", "name", fallback)
}

// UserName returns user.name from the document, or fallback when empty.
func (p *Profile) UserName(fallback string) string {
	return p.nestedString("user", "name", fallback)
}

func (p *Profile) nestedString(section, key, fallback string) string {
	snap := p.Snapshot()
	if sec, ok := snap[section].(map[string]any); ok {
		if v, ok := sec[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

// ApplyPatch applies an RFC 6902 JSON Patch to the document. On success
// the cache and the on-disk file are updated atomically; on any failure
// the document is unchanged.
func (p *Profile) ApplyPatch(patchJSON []byte) error {
	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	modified, err := patch.Apply(p.doc)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}

	normalized, err := validateAndNormalize(modified)
	if err != nil {
		return fmt.Errorf("patched document invalid: %w", err)
	}

	p.doc = normalized
	if err := p.persistLocked(); err != nil {
		return err
	}

	p.logger.Info("persona document patched", "operations", len(patch))
	return nil
}

// Replace installs a complete document, used when patch application has
// failed and the summariser regenerated the whole file.
func (p *Profile) Replace(doc []byte) error {
	normalized, err := validateAndNormalize(doc)
	if err != nil {
		return fmt.Errorf("replacement document invalid: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc = normalized
	if err := p.persistLocked(); err != nil {
		return err
	}

	p.logger.Info("persona document replaced")
	return nil
}

// persistLocked writes the cached document to disk via a temp file and
// rename in the same directory, then fsyncs the directory so the rename
// survives a crash. Caller must hold p.mu.
func (p *Profile) persistLocked() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".seele-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(p.doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	// Fsync the directory where supported so the rename is durable.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}

	return nil
}

// validateAndNormalize checks the document shape, truncates
// memorable_events to its cap, and returns canonical indented JSON.
func validateAndNormalize(doc []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}

	for _, key := range requiredKeys {
		if _, ok := m[key]; !ok {
			return nil, fmt.Errorf("missing required field %q", key)
		}
	}

	events, ok := m["memorable_events"].([]any)
	if !ok {
		return nil, fmt.Errorf("memorable_events is not an array")
	}
	if len(events) > maxMemorableEvents {
		m["memorable_events"] = events[len(events)-maxMemorableEvents:]
	}

	if _, ok := m["commands_and_agreements"].([]any); !ok {
		return nil, fmt.Errorf("commands_and_agreements is not an array")
	}

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return out, nil
}
