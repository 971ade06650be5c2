package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
)

// Manager owns the backend-instance table: placement, starting,
// health-checking, idle eviction and restart-on-failure. It is the only
// component that touches backend process handles.
type Manager struct {
	cfg      config.Config
	gpus     SnapshotSource
	launcher Launcher
	prober   Prober
	pub      EventPublisher
	log      zerolog.Logger

	// gpuIndex maps device id to its inventory position, used for
	// CUDA_VISIBLE_DEVICES when launching.
	gpuIndex map[string]int

	mu        sync.RWMutex
	instances map[string]*Instance
	// reserved tracks MB committed to placed instances per device id.
	// Guarded by mu; the sum for a device never exceeds its capacity.
	reserved map[string]int

	// placeMu serializes placement decisions so two concurrent starts
	// cannot over-commit the same device. Held for the decision only,
	// never across process startup.
	placeMu sync.Mutex

	startsTotal    uint64
	evictionsTotal uint64
	restartsTotal  uint64

	startTime time.Time
	lruMeta   map[string]int64

	healthKick chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
}

// Option tweaks Manager construction; used by cmd wiring and tests.
type Option func(*Manager)

func WithLauncher(l Launcher) Option       { return func(m *Manager) { m.launcher = l } }
func WithProber(p Prober) Option           { return func(m *Manager) { m.prober = p } }
func WithPublisher(p EventPublisher) Option {
	return func(m *Manager) {
		if p == nil {
			p = noopPublisher{}
		}
		m.pub = p
	}
}
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// New constructs a Manager over a validated config and a GPU snapshot
// source. Defaults: exec launcher, HTTP prober, no-op publisher.
func New(cfg config.Config, gpus SnapshotSource, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		gpus:       gpus,
		launcher:   ExecLauncher{},
		prober:     NewHTTPProber(),
		pub:        noopPublisher{},
		log:        zerolog.Nop(),
		gpuIndex:   make(map[string]int, len(cfg.GPUs)),
		instances:  make(map[string]*Instance),
		reserved:   make(map[string]int, len(cfg.GPUs)),
		startTime:  time.Now(),
		healthKick: make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
	for i, g := range cfg.GPUs {
		m.gpuIndex[g.ID] = i
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With().Str("component", "manager").Logger()
	m.loadLRUMetadata()
	return m
}

// Run drives the health-check and idle-sweep loops until ctx is canceled,
// then stops every instance.
func (m *Manager) Run(ctx context.Context) {
	probe := time.NewTicker(m.cfg.Tuning.ProbeInterval.Std())
	sweep := time.NewTicker(m.cfg.Tuning.SweepInterval.Std())
	defer probe.Stop()
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-probe.C:
			m.healthCheck(ctx)
		case <-m.healthKick:
			m.healthCheck(ctx)
		case <-sweep.C:
			m.idleSweep()
		}
	}
}

// Close drains and stops all instances and persists LRU metadata.
// Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.mu.RLock()
		names := make([]string, 0, len(m.instances))
		for name := range m.instances {
			names = append(names, name)
		}
		m.mu.RUnlock()
		for _, name := range names {
			m.stopInstance(name, "shutdown")
		}
		m.saveLRUMetadata()
	})
}

// Models lists the registered model specs.
func (m *Manager) Models() []config.ModelSpec {
	out := make([]config.ModelSpec, len(m.cfg.Models))
	copy(out, m.cfg.Models)
	return out
}

// Ready reports whether the manager can serve: always true once
// constructed, unless shut down. Backends start on demand.
func (m *Manager) Ready() bool {
	select {
	case <-m.closed:
		return false
	default:
		return true
	}
}

// ReportBackendError marks a Ready instance suspect after the proxy saw a
// backend failure mid-request, and kicks the health loop so the next
// probe happens promptly.
func (m *Manager) ReportBackendError(model string) {
	m.mu.Lock()
	inst := m.instances[model]
	if inst != nil && inst.State == StateReady {
		inst.suspect = true
	}
	m.mu.Unlock()
	select {
	case m.healthKick <- struct{}{}:
	default:
	}
}

// Reset returns a Failed or PermanentlyFailed model to Stopped with a
// fresh restart budget. The next acquisition starts it again.
func (m *Manager) Reset(model string) error {
	if _, ok := m.cfg.ModelByName(model); !ok {
		return ErrModelNotFound(model)
	}
	m.mu.Lock()
	inst := m.instances[model]
	if inst != nil {
		switch inst.State {
		case StateFailed, StatePermanentlyFailed, StateStopped:
			inst.State = StateStopped
			inst.Restarts = 0
			inst.probeFails = 0
			inst.suspect = false
		default:
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()
	m.pub.Publish(Event{Name: "reset", Model: model})
	m.log.Info().Str("model", model).Msg("model reset")
	return nil
}

// instanceFor returns the table entry for model, creating a Stopped record
// on first use. Caller must hold mu.
func (m *Manager) instanceFor(model string, spec config.ModelSpec) *Instance {
	inst := m.instances[model]
	if inst == nil {
		inst = &Instance{
			Model:     model,
			Spec:      spec,
			State:     StateStopped,
			CreatedAt: time.Now(),
		}
		if unix, ok := m.lruMeta[model]; ok {
			inst.LastUsed = time.Unix(unix, 0)
		}
		m.instances[model] = inst
	}
	return inst
}
