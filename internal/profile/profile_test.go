package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestProfile(t *testing.T) *Profile {
	t.Helper()
	p := New(filepath.Join(t.TempDir(), "seele.json"), nil)
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

func TestLoadSeedsTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seele.json")
	p := New(path, nil)
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("template was not written to disk: %v", err)
	}

	snap := p.Snapshot()
	for _, key := range []string{"bot", "user", "memorable_events", "commands_and_agreements"} {
		if _, ok := snap[key]; !ok {
			t.Errorf("template missing key %q", key)
		}
	}
}

func TestApplyPatchUpdatesCacheAndDisk(t *testing.T) {
	p := newTestProfile(t)

	patch := []byte(`[{"op": "replace", "path": "/user/name", "value": "Anna"}]`)
	if err := p.ApplyPatch(patch); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}

	// Cache is fresh without re-reading disk (P6).
	if got := p.UserName(""); got != "Anna" {
		t.Errorf("UserName = %q, want Anna", got)
	}

	// Disk matches the cache.
	data, err := os.ReadFile(p.path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	user := m["user"].(map[string]any)
	if user["name"] != "Anna" {
		t.Errorf("on-disk user.name = %v, want Anna", user["name"])
	}
}

func TestApplyPatchRejectsInvalidResult(t *testing.T) {
	p := newTestProfile(t)

	// Removing a required field must be rejected and leave the document
	// unchanged.
	patch := []byte(`[{"op": "remove", "path": "/user"}]`)
	if err := p.ApplyPatch(patch); err == nil {
		t.Fatal("expected error removing required field")
	}

	if _, ok := p.Snapshot()["user"]; !ok {
		t.Error("document mutated despite failed patch")
	}
}

func TestApplyPatchRejectsMalformedPatch(t *testing.T) {
	p := newTestProfile(t)

	if err := p.ApplyPatch([]byte(`{"not": "a patch"}`)); err == nil {
		t.Error("expected error for non-array patch")
	}
	if err := p.ApplyPatch([]byte(`[{"op": "replace", "path": "/missing/deep/path", "value": 1}]`)); err == nil {
		t.Error("expected error for unresolvable path")
	}
}

func TestMemorableEventsTruncated(t *testing.T) {
	p := newTestProfile(t)

	events := make([]map[string]any, 25)
	for i := range events {
		events[i] = map[string]any{"time": "2026-01-01", "details": fmt.Sprintf("event %d", i)}
	}
	patch, _ := json.Marshal([]map[string]any{
		{"op": "replace", "path": "/memorable_events", "value": events},
	})

	if err := p.ApplyPatch(patch); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}

	got := p.Snapshot()["memorable_events"].([]any)
	if len(got) != maxMemorableEvents {
		t.Fatalf("memorable_events length = %d, want %d", len(got), maxMemorableEvents)
	}
	// Oldest entries are dropped first.
	first := got[0].(map[string]any)
	if first["details"] != "event 5" {
		t.Errorf("first retained event = %v, want event 5", first["details"])
	}
}

func TestReplaceValidates(t *testing.T) {
	p := newTestProfile(t)

	if err := p.Replace([]byte(`{"bot": {}}`)); err == nil {
		t.Error("expected error for incomplete document")
	}

	full := []byte(`{
		"bot": {"name": "Mira"},
		"user": {"name": "Sam"},
		"memorable_events": [],
		"commands_and_agreements": []
	}`)
	if err := p.Replace(full); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := p.BotName(""); got != "Mira" {
		t.Errorf("BotName = %q, want Mira", got)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	p := newTestProfile(t)

	snap := p.Snapshot()
	snap["bot"].(map[string]any)["name"] = "mutated"

	if got := p.BotName("unset"); got == "mutated" {
		t.Error("mutating a snapshot leaked into the cached document")
	}
}
