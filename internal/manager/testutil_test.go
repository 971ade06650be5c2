package manager

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"inferd/internal/config"
	"inferd/internal/gpu"
)

// fakeProc is an in-memory Process. Signal and Kill both make it exit
// immediately so drains never wait out the grace period.
type fakeProc struct {
	pid  int
	done chan error
	once sync.Once

	mu       sync.Mutex
	signaled bool
}

func newFakeProc(pid int) *fakeProc {
	return &fakeProc{pid: pid, done: make(chan error, 1)}
}

func (p *fakeProc) PID() int { return p.pid }

func (p *fakeProc) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signaled = true
	p.mu.Unlock()
	p.exit(nil)
	return nil
}

func (p *fakeProc) Kill() error {
	p.exit(nil)
	return nil
}

func (p *fakeProc) Done() <-chan error { return p.done }

// exit simulates the process exiting with err.
func (p *fakeProc) exit(err error) {
	p.once.Do(func() {
		p.done <- err
		close(p.done)
	})
}

func (p *fakeProc) wasSignaled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaled
}

// fakeLauncher hands out fakeProcs and records every launch.
type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	err      error
	procs    []*fakeProc
	gpuIdx   []int
}

func (l *fakeLauncher) Launch(ctx context.Context, spec config.ModelSpec, gpuIndex int) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.launches++
	p := newFakeProc(1000 + l.launches)
	l.procs = append(l.procs, p)
	l.gpuIdx = append(l.gpuIdx, gpuIndex)
	return p, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *fakeLauncher) lastProc() *fakeProc {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

// fakeProber fails or succeeds according to its current error.
type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (p *fakeProber) Probe(ctx context.Context, endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// fixedSnapshot serves a static GPU snapshot.
type fixedSnapshot struct{ snap gpu.Snapshot }

func (s fixedSnapshot) Snapshot() gpu.Snapshot { return s.snap }

func snapFor(cfg config.Config) fixedSnapshot {
	devs := make(map[string]gpu.Device, len(cfg.GPUs))
	for _, g := range cfg.GPUs {
		devs[g.ID] = gpu.Device{ID: g.ID, TotalMemMB: g.TotalMemMB, Usable: true}
	}
	return fixedSnapshot{snap: gpu.Snapshot{Devices: devs, Taken: time.Now()}}
}

func modelSpec(name string, port, requiredMB int) config.ModelSpec {
	return config.ModelSpec{Name: name, Command: "/bin/true", Port: port, RequiredMemMB: requiredMB}
}

// testConfig builds a validated config over two 24 GB devices with tuning
// shrunk so failure paths resolve in milliseconds.
func testConfig(t *testing.T, models ...config.ModelSpec) config.Config {
	t.Helper()
	cfg := config.Config{
		GPUs: []config.GPUConfig{
			{ID: "gpu0", TotalMemMB: 24000},
			{ID: "gpu1", TotalMemMB: 24000},
		},
		Models: models,
		Tuning: config.Tuning{
			StartTimeout:      config.Duration(2 * time.Second),
			DrainTimeout:      config.Duration(50 * time.Millisecond),
			RestartBackoff:    config.Duration(time.Millisecond),
			RestartBackoffMax: config.Duration(5 * time.Millisecond),
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func newTestManager(t *testing.T, cfg config.Config) (*Manager, *fakeLauncher, *fakeProber, *MemoryPublisher) {
	t.Helper()
	l := &fakeLauncher{}
	p := &fakeProber{}
	pub := NewMemoryPublisher()
	m := New(cfg, snapFor(cfg), WithLauncher(l), WithProber(p), WithPublisher(pub))
	t.Cleanup(m.Close)
	return m, l, p, pub
}

func instState(m *Manager, model string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst := m.instances[model]
	if inst == nil {
		return ""
	}
	return inst.State
}

func instInflight(m *Manager, model string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst := m.instances[model]
	if inst == nil {
		return 0
	}
	return inst.Inflight
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
