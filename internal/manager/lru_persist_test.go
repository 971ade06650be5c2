package manager

import (
	"path/filepath"
	"testing"
)

func TestLastUsedSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lru.json")

	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	cfg.Tuning.LRUStatePath = path

	m1, _, _, _ := newTestManager(t, cfg)
	makeReady(t, m1, "llama")
	m1.mu.RLock()
	lastUsed := m1.instances["llama"].LastUsed
	m1.mu.RUnlock()
	m1.Close()

	// A fresh manager over the same config reports the stopped model's
	// last-used time from the persisted state.
	m2, _, _, _ := newTestManager(t, cfg)
	st := m2.Status()
	if len(st.Instances) != 1 {
		t.Fatalf("instances = %d, want 1", len(st.Instances))
	}
	if got := st.Instances[0].LastUsed; got != lastUsed.Unix() {
		t.Fatalf("persisted last-used = %d, want %d", got, lastUsed.Unix())
	}
	if st.Instances[0].State != string(StateStopped) {
		t.Fatalf("state = %s, want stopped", st.Instances[0].State)
	}
}

func TestMissingLRUStateIsFine(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	cfg.Tuning.LRUStatePath = filepath.Join(t.TempDir(), "absent.json")
	m, _, _, _ := newTestManager(t, cfg)
	if st := m.Status(); st.Instances[0].LastUsed != 0 {
		t.Fatalf("expected zero last-used without state file")
	}
}
