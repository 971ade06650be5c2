package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inferd/internal/config"
)

func TestAcquireUnknownModel(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, _, _, _ := newTestManager(t, cfg)

	_, err := m.Acquire(testCtx(t), "nope")
	if !IsModelNotFound(err) {
		t.Fatalf("expected model-not-found, got %v", err)
	}
}

func TestAcquireStartsAndReturnsEndpoint(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, l, _, pub := newTestManager(t, cfg)

	ep, err := m.Acquire(testCtx(t), "llama")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ep != "http://127.0.0.1:9001" {
		t.Fatalf("unexpected endpoint %q", ep)
	}
	if got := instState(m, "llama"); got != StateReady {
		t.Fatalf("state = %s, want ready", got)
	}
	if got := instInflight(m, "llama"); got != 1 {
		t.Fatalf("inflight = %d, want 1", got)
	}
	if l.launchCount() != 1 {
		t.Fatalf("launches = %d, want 1", l.launchCount())
	}
	if len(pub.Named("ready")) != 1 {
		t.Fatalf("expected one ready event, got %d", len(pub.Named("ready")))
	}

	// Second acquisition hits the ready instance without a new launch.
	if _, err := m.Acquire(testCtx(t), "llama"); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if l.launchCount() != 1 {
		t.Fatalf("launches after second acquire = %d, want 1", l.launchCount())
	}
	if got := instInflight(m, "llama"); got != 2 {
		t.Fatalf("inflight = %d, want 2", got)
	}
}

func TestConcurrentAcquireSharesOneStart(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, l, _, _ := newTestManager(t, cfg)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	eps := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eps[i], errs[i] = m.Acquire(testCtx(t), "llama")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("acquire %d: %v", i, errs[i])
		}
		if eps[i] != "http://127.0.0.1:9001" {
			t.Fatalf("acquire %d endpoint %q", i, eps[i])
		}
	}
	if l.launchCount() != 1 {
		t.Fatalf("launches = %d, want 1 for %d concurrent acquires", l.launchCount(), n)
	}
	if got := instInflight(m, "llama"); got != n {
		t.Fatalf("inflight = %d, want %d", got, n)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, _, _, _ := newTestManager(t, cfg)

	if _, err := m.Acquire(testCtx(t), "llama"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	m.Release("llama")
	m.Release("llama")
	m.Release("llama")
	if got := instInflight(m, "llama"); got != 0 {
		t.Fatalf("inflight = %d, want 0", got)
	}
	// Release of an unknown model is a no-op.
	m.Release("nope")
}

func TestLastWaiterCancelsStart(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, l, p, _ := newTestManager(t, cfg)
	p.setErr(errors.New("not up yet")) // never becomes ready

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.Acquire(ctx, "llama")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// The lone waiter left, so the attempt is canceled and the half-started
	// process torn down.
	waitFor(t, 2*time.Second, "instance back to stopped", func() bool {
		return instState(m, "llama") == StateStopped
	})
	if proc := l.lastProc(); proc == nil || !proc.wasSignaled() {
		t.Fatalf("expected launched process to be terminated")
	}
	m.mu.RLock()
	reserved := m.reserved["gpu0"] + m.reserved["gpu1"]
	m.mu.RUnlock()
	if reserved != 0 {
		t.Fatalf("reservation leaked: %d MB", reserved)
	}
}

func TestStartTimeout(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	cfg.Tuning.StartTimeout = config.Duration(400 * time.Millisecond)
	m, l, p, pub := newTestManager(t, cfg)
	p.setErr(errors.New("not up yet"))

	_, err := m.Acquire(testCtx(t), "llama")
	if !IsStartTimeout(err) {
		t.Fatalf("expected start timeout, got %v", err)
	}
	if got := instState(m, "llama"); got != StateStopped {
		t.Fatalf("state after timeout = %s, want stopped", got)
	}
	if proc := l.lastProc(); proc == nil || !proc.wasSignaled() {
		t.Fatalf("expected timed-out process to be terminated")
	}
	if len(pub.Named("start_timeout")) != 1 {
		t.Fatalf("expected a start_timeout event")
	}

	// The model is usable again once the backend cooperates.
	p.setErr(nil)
	if _, err := m.Acquire(testCtx(t), "llama"); err != nil {
		t.Fatalf("Acquire after recovery: %v", err)
	}
}

func TestStartFailureOnLaunchError(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, l, _, _ := newTestManager(t, cfg)
	l.err = errors.New("no such binary")

	_, err := m.Acquire(testCtx(t), "llama")
	if !IsStartFailed(err) {
		t.Fatalf("expected start-failed, got %v", err)
	}
	if got := instState(m, "llama"); got != StateStopped {
		t.Fatalf("state = %s, want stopped", got)
	}
}

func TestStartFailureOnEarlyExit(t *testing.T) {
	cfg := testConfig(t, modelSpec("llama", 9001, 8000))
	m, l, p, _ := newTestManager(t, cfg)
	p.setErr(errors.New("not up yet"))

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(testCtx(t), "llama")
		done <- err
	}()
	waitFor(t, 2*time.Second, "process launch", func() bool { return l.lastProc() != nil })
	l.lastProc().exit(errors.New("exit status 1"))

	err := <-done
	if !IsStartFailed(err) {
		t.Fatalf("expected start-failed after early exit, got %v", err)
	}
	if got := instState(m, "llama"); got != StateStopped {
		t.Fatalf("state = %s, want stopped", got)
	}
}
