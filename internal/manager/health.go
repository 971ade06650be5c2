package manager

import (
	"context"
	"time"
)

// probeTimeout bounds a single liveness probe.
const probeTimeout = 2 * time.Second

// healthCheck probes every Ready instance once. Consecutive failures past
// the configured threshold fail the instance and hand it to the restart
// loop. A timeout on one instance never delays or aborts probes of other
// models.
func (m *Manager) healthCheck(ctx context.Context) {
	type target struct {
		model    string
		endpoint string
	}
	m.mu.RLock()
	targets := make([]target, 0, len(m.instances))
	for name, inst := range m.instances {
		if inst.State == StateReady {
			targets = append(targets, target{model: name, endpoint: inst.endpoint()})
		}
	}
	m.mu.RUnlock()

	for _, t := range targets {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := m.prober.Probe(pctx, t.endpoint)
		cancel()

		m.mu.Lock()
		inst := m.instances[t.model]
		if inst == nil || inst.State != StateReady {
			m.mu.Unlock()
			continue
		}
		if err == nil {
			inst.probeFails = 0
			inst.suspect = false
			m.mu.Unlock()
			continue
		}
		inst.probeFails++
		fails := inst.probeFails
		m.mu.Unlock()

		m.pub.Publish(Event{Name: "probe_fail", Model: t.model, Fields: map[string]any{
			"consecutive": fails, "error": err.Error(),
		}})
		if fails >= m.cfg.Tuning.ProbeFailThreshold {
			m.markFailed(t.model)
		}
	}
}

// markFailed transitions a Ready instance to Failed: the process is
// terminated, its GPU memory reclaimed, and a restart scheduled.
func (m *Manager) markFailed(model string) {
	m.mu.Lock()
	inst := m.instances[model]
	if inst == nil || inst.State != StateReady {
		m.mu.Unlock()
		return
	}
	inst.State = StateFailed
	proc := inst.proc
	inst.proc = nil
	inst.PID = 0
	inst.Port = 0
	m.mu.Unlock()

	stopProcess(proc)
	m.releaseGPU(model)
	m.pub.Publish(Event{Name: "failed", Model: model})
	m.log.Warn().Str("model", model).Msg("backend failed health checks")
	go m.restartLoop(model)
}

// restartLoop retries a Failed instance with exponential backoff until it
// comes back Ready or the attempt budget is spent, at which point the
// model becomes PermanentlyFailed and stays down until Reset.
func (m *Manager) restartLoop(model string) {
	for {
		m.mu.Lock()
		inst := m.instances[model]
		if inst == nil || inst.State != StateFailed {
			m.mu.Unlock()
			return
		}
		if inst.Restarts >= m.cfg.Tuning.MaxRestarts {
			inst.State = StatePermanentlyFailed
			m.mu.Unlock()
			m.pub.Publish(Event{Name: "permanent_failure", Model: model})
			m.log.Error().Str("model", model).Msg("restart attempts exhausted; model requires reset")
			return
		}
		inst.Restarts++
		attempt := inst.Restarts
		m.mu.Unlock()

		backoff := m.backoffFor(attempt)
		select {
		case <-time.After(backoff):
		case <-m.closed:
			return
		}

		m.mu.Lock()
		inst = m.instances[model]
		if inst == nil || inst.State != StateFailed {
			m.mu.Unlock()
			return
		}
		att := &startAttempt{done: make(chan struct{}), waiters: 1}
		startCtx, cancel := context.WithCancel(context.Background())
		att.cancel = cancel
		inst.State = StateStarting
		inst.attempt = att
		m.restartsTotal++
		m.mu.Unlock()

		restartsTotal.Inc()
		m.pub.Publish(Event{Name: "restart", Model: model, Fields: map[string]any{
			"attempt": attempt, "backoff_ms": int(backoff / time.Millisecond),
		}})
		m.runStart(startCtx, model, att)
		cancel()

		if att.err == nil {
			return
		}
		// Start failed; put the instance back into Failed so the next
		// iteration counts it against the budget.
		m.mu.Lock()
		inst = m.instances[model]
		if inst != nil && inst.State == StateStopped {
			inst.State = StateFailed
		}
		m.mu.Unlock()
	}
}

// backoffFor doubles the base backoff per attempt, capped at the
// configured maximum.
func (m *Manager) backoffFor(attempt int) time.Duration {
	d := m.cfg.Tuning.RestartBackoff.Std()
	max := m.cfg.Tuning.RestartBackoffMax.Std()
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		d = max
	}
	return d
}
