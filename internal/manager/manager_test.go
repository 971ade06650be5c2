package manager

import (
	"testing"
	"time"
)

func TestModelsReturnsCopy(t *testing.T) {
	cfg := testConfig(t, modelSpec("a", 9001, 8000), modelSpec("b", 9002, 8000))
	m, _, _, _ := newTestManager(t, cfg)

	out := m.Models()
	if len(out) != 2 {
		t.Fatalf("models = %d, want 2", len(out))
	}
	out[0].Name = "mutated"
	if m.Models()[0].Name != "a" {
		t.Fatalf("Models leaked internal slice")
	}
}

func TestCloseStopsInstancesAndFlipsReady(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, l, _, _ := newTestManager(t, cfg)
	makeReady(t, m, "llama")

	if !m.Ready() {
		t.Fatalf("manager not ready before close")
	}
	m.Close()
	m.Close() // idempotent
	if m.Ready() {
		t.Fatalf("manager still ready after close")
	}
	if got := instState(m, "llama"); got != StateStopped {
		t.Fatalf("state after close = %s, want stopped", got)
	}
	if proc := l.lastProc(); proc == nil || !proc.wasSignaled() {
		t.Fatalf("backend not terminated on close")
	}
}

func TestCloseWaitsOutDrainTimeoutWithInflight(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, _, _, _ := newTestManager(t, cfg)
	if _, err := m.Acquire(testCtx(t), "llama"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Never released: Close must still terminate the backend once the
	// 50ms drain timeout passes.
	begin := time.Now()
	m.Close()
	if elapsed := time.Since(begin); elapsed < 40*time.Millisecond {
		t.Fatalf("close did not wait for drain: %v", elapsed)
	}
	if got := instState(m, "llama"); got != StateStopped {
		t.Fatalf("state after close = %s, want stopped", got)
	}
}

func TestAcquireWaitsOutDraining(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, l, _, _ := newTestManager(t, cfg)
	makeReady(t, m, "llama")

	// Simulate an eviction in progress.
	m.mu.Lock()
	m.instances["llama"].State = StateDraining
	m.mu.Unlock()
	go func() {
		time.Sleep(30 * time.Millisecond)
		m.finishStop("llama", "evict")
	}()

	// The acquisition waits for the drain to settle, then triggers a
	// fresh start.
	ep, err := m.Acquire(testCtx(t), "llama")
	if err != nil {
		t.Fatalf("Acquire across drain: %v", err)
	}
	if ep == "" {
		t.Fatalf("empty endpoint")
	}
	if l.launchCount() != 2 {
		t.Fatalf("launches = %d, want 2", l.launchCount())
	}
}
