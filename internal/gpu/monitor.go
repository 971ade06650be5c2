package gpu

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
)

// unusableAfter is the number of consecutive failed polls after which a
// device is excluded from new placements.
const unusableAfter = 3

// Querier reads current memory usage and utilization for all devices in
// one call. Implementations must honor the context deadline.
type Querier interface {
	Query(ctx context.Context) (map[string]Sample, error)
}

// Monitor polls the GPU inventory on a fixed interval and publishes
// immutable snapshots. It owns the device table exclusively; everything
// else reads through Snapshot().
type Monitor struct {
	querier  Querier
	interval time.Duration
	log      zerolog.Logger

	mu       sync.RWMutex
	snap     Snapshot
	failures map[string]int
}

// NewMonitor seeds the first snapshot from the static inventory so
// placement can proceed before the first poll completes.
func NewMonitor(inv []config.GPUConfig, q Querier, interval time.Duration, log zerolog.Logger) *Monitor {
	devices := make(map[string]Device, len(inv))
	now := time.Now()
	for _, g := range inv {
		devices[g.ID] = Device{
			ID:         g.ID,
			TotalMemMB: g.TotalMemMB,
			PolledAt:   now,
			Usable:     true,
		}
	}
	return &Monitor{
		querier:  q,
		interval: interval,
		log:      log.With().Str("component", "gpu").Logger(),
		snap:     Snapshot{Devices: devices, Taken: now},
		failures: make(map[string]int, len(inv)),
	}
}

// Snapshot returns the latest snapshot without blocking on the next poll.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Run polls until ctx is canceled. One immediate poll happens before the
// first tick so fresh readings are available shortly after startup.
func (m *Monitor) Run(ctx context.Context) {
	m.poll(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, m.interval)
	samples, err := m.querier.Query(qctx)
	cancel()

	now := time.Now()
	m.mu.Lock()
	prev := m.snap.Devices
	next := make(map[string]Device, len(prev))
	for id, d := range prev {
		if err == nil {
			if s, ok := samples[id]; ok {
				d.UsedMemMB = s.UsedMemMB
				d.UtilizationPct = s.UtilizationPct
				d.PolledAt = now
				d.Stale = false
				if !d.Usable {
					m.log.Info().Str("gpu", id).Msg("device recovered")
				}
				d.Usable = true
				m.failures[id] = 0
				next[id] = d
				continue
			}
		}
		// Query failed, or this device was missing from the result:
		// keep the previous readings and count the failure.
		d.Stale = true
		m.failures[id]++
		if m.failures[id] == unusableAfter {
			d.Usable = false
			m.log.Warn().Str("gpu", id).Int("failures", m.failures[id]).Msg("device marked unusable")
		} else if m.failures[id] > unusableAfter {
			d.Usable = false
		}
		next[id] = d
	}
	m.snap = Snapshot{Devices: next, Taken: now}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Msg("gpu poll failed")
	}
	m.updateMetrics(next)
}
