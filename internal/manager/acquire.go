package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// readyPollEvery is how often a starting backend's readiness endpoint is
// probed.
const readyPollEvery = 250 * time.Millisecond

// Acquire resolves model to a ready backend endpoint, starting the backend
// if needed. The in-flight count is incremented on success; callers must
// pair every successful Acquire with a Release. Concurrent acquisitions of
// a Stopped model share a single start attempt.
func (m *Manager) Acquire(ctx context.Context, model string) (string, error) {
	spec, ok := m.cfg.ModelByName(model)
	if !ok {
		return "", ErrModelNotFound(model)
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		m.mu.Lock()
		inst := m.instanceFor(model, spec)
		switch inst.State {
		case StateReady:
			inst.Inflight++
			inst.LastUsed = time.Now()
			ep := inst.endpoint()
			m.mu.Unlock()
			return ep, nil

		case StatePermanentlyFailed:
			m.mu.Unlock()
			return "", permanentFailureError{name: model}

		case StateFailed:
			// The restart loop owns recovery; this request fails now.
			m.mu.Unlock()
			return "", crashedError{name: model}

		case StateStarting:
			att := inst.attempt
			att.waiters++
			m.mu.Unlock()
			if err := m.waitAttempt(ctx, model, att); err != nil {
				return "", err
			}
			// Re-check under the lock: the instance may have been
			// evicted between becoming ready and this acquisition.
			continue

		case StateDraining:
			// Eviction or unload in progress; wait for it to settle.
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
			continue

		case StateStopped:
			att := &startAttempt{done: make(chan struct{}), waiters: 1}
			startCtx, cancel := context.WithCancel(context.Background())
			att.cancel = cancel
			inst.State = StateStarting
			inst.attempt = att
			m.mu.Unlock()
			go func() {
				m.runStart(startCtx, model, att)
				cancel()
			}()
			if err := m.waitAttempt(ctx, model, att); err != nil {
				return "", err
			}
			continue
		}
	}
}

// Release decrements the in-flight count after a request completes,
// whether it succeeded, failed or was canceled.
func (m *Manager) Release(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst := m.instances[model]
	if inst == nil {
		return
	}
	if inst.Inflight > 0 {
		inst.Inflight--
	}
	if inst.State == StateReady {
		inst.LastUsed = time.Now()
	}
}

// waitAttempt blocks the caller on the shared start attempt. A caller that
// gives up decrements the waiter count; the launch itself is canceled only
// when the last waiter leaves.
func (m *Manager) waitAttempt(ctx context.Context, model string, att *startAttempt) error {
	pr := pendingRequest{ID: uuid.NewString(), Model: model, EnqueuedAt: time.Now()}
	m.pub.Publish(Event{Name: "queued", Model: model, Fields: map[string]any{"request_id": pr.ID}})
	select {
	case <-att.done:
		m.mu.Lock()
		att.waiters--
		m.mu.Unlock()
		return att.err
	case <-ctx.Done():
		m.mu.Lock()
		att.waiters--
		last := att.waiters == 0
		m.mu.Unlock()
		if last {
			att.cancel()
		}
		m.log.Debug().Str("model", model).Str("request_id", pr.ID).
			Dur("waited", time.Since(pr.EnqueuedAt)).Msg("waiter gave up")
		return ctx.Err()
	}
}

// runStart executes the single start sequence for a model: placement,
// launch, readiness. ctx is the attempt context, canceled when the last
// waiter leaves or at shutdown.
func (m *Manager) runStart(ctx context.Context, model string, att *startAttempt) {
	m.mu.RLock()
	spec := m.instances[model].Spec
	m.mu.RUnlock()

	began := time.Now()
	device, err := m.place(model, spec.RequiredMemMB)
	if err != nil {
		m.finishStart(model, att, "", err)
		return
	}

	m.mu.Lock()
	inst := m.instances[model]
	inst.GPU = device
	m.mu.Unlock()
	m.pub.Publish(Event{Name: "start", Model: model, Fields: map[string]any{"gpu": device}})

	proc, err := m.launcher.Launch(ctx, spec, m.gpuIndex[device])
	if err != nil {
		m.releaseGPU(model)
		m.finishStart(model, att, "", startFailedError{name: model, cause: err})
		return
	}

	endpoint := "http://127.0.0.1:" + itoa(spec.Port)
	deadline := time.NewTimer(m.cfg.Tuning.StartTimeout.Std())
	defer deadline.Stop()
	tick := time.NewTicker(readyPollEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			stopProcess(proc)
			m.releaseGPU(model)
			m.finishStart(model, att, "", ctx.Err())
			return
		case <-m.closed:
			stopProcess(proc)
			m.releaseGPU(model)
			m.finishStart(model, att, "", context.Canceled)
			return
		case werr := <-proc.Done():
			m.releaseGPU(model)
			if werr == nil {
				werr = context.Canceled
			}
			m.pub.Publish(Event{Name: "start_exit_early", Model: model, Fields: map[string]any{"error": werr.Error()}})
			m.finishStart(model, att, "", startFailedError{name: model, cause: werr})
			return
		case <-deadline.C:
			stopProcess(proc)
			m.releaseGPU(model)
			m.pub.Publish(Event{Name: "start_timeout", Model: model})
			m.finishStart(model, att, "", startTimeoutError{name: model})
			return
		case <-tick.C:
			pctx, cancel := context.WithTimeout(ctx, readyPollEvery*4)
			perr := m.prober.Probe(pctx, endpoint)
			cancel()
			if perr != nil {
				continue
			}
			m.mu.Lock()
			inst := m.instances[model]
			inst.State = StateReady
			inst.proc = proc
			inst.PID = proc.PID()
			inst.Port = spec.Port
			inst.LastUsed = time.Now()
			inst.probeFails = 0
			inst.suspect = false
			inst.attempt = nil
			m.startsTotal++
			m.mu.Unlock()
			startsTotal.Inc()
			m.pub.Publish(Event{Name: "ready", Model: model, Fields: map[string]any{
				"gpu": device, "pid": proc.PID(), "port": spec.Port,
				"dur_ms": int(time.Since(began) / time.Millisecond),
			}})
			m.log.Info().Str("model", model).Str("gpu", device).Int("pid", proc.PID()).
				Dur("dur", time.Since(began)).Msg("backend ready")
			m.finishStart(model, att, endpoint, nil)
			return
		}
	}
}

// finishStart publishes the attempt outcome to all waiters. On failure the
// instance returns to Stopped for a future attempt.
func (m *Manager) finishStart(model string, att *startAttempt, endpoint string, err error) {
	m.mu.Lock()
	inst := m.instances[model]
	if err != nil && inst != nil && inst.State == StateStarting {
		inst.State = StateStopped
		inst.attempt = nil
		inst.GPU = ""
	}
	att.endpoint = endpoint
	att.err = err
	m.mu.Unlock()
	close(att.done)
	if err != nil {
		m.log.Warn().Str("model", model).Err(err).Msg("backend start failed")
	}
}

// stopInstance drains and stops a backend: Draining rejects new work, the
// drain waits out in-flight requests, then the process is terminated and
// its GPU memory reclaimed.
func (m *Manager) stopInstance(model, reason string) {
	m.mu.Lock()
	inst := m.instances[model]
	if inst == nil {
		m.mu.Unlock()
		return
	}
	if inst.State == StateStarting && inst.attempt != nil {
		att := inst.attempt
		m.mu.Unlock()
		att.cancel()
		return
	}
	if inst.State != StateReady && inst.State != StateFailed {
		m.mu.Unlock()
		return
	}
	inst.State = StateDraining
	m.mu.Unlock()
	m.finishStop(model, reason)
}

// finishStop completes a stop for an instance already in Draining.
func (m *Manager) finishStop(model, reason string) {
	deadline := time.Now().Add(m.cfg.Tuning.DrainTimeout.Std())
	for {
		m.mu.RLock()
		inst := m.instances[model]
		inflight := 0
		if inst != nil {
			inflight = inst.Inflight
		}
		m.mu.RUnlock()
		if inst == nil {
			return
		}
		if inflight == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.mu.Lock()
	inst := m.instances[model]
	proc := inst.proc
	inst.proc = nil
	m.mu.Unlock()
	stopProcess(proc)

	m.mu.Lock()
	if inst.GPU != "" {
		m.reserved[inst.GPU] -= inst.Spec.RequiredMemMB
		if m.reserved[inst.GPU] < 0 {
			m.reserved[inst.GPU] = 0
		}
	}
	gpuID := inst.GPU
	inst.GPU = ""
	inst.State = StateStopped
	inst.PID = 0
	inst.Port = 0
	inst.probeFails = 0
	inst.suspect = false
	if !inst.LastUsed.IsZero() {
		if m.lruMeta == nil {
			m.lruMeta = make(map[string]int64)
		}
		m.lruMeta[model] = inst.LastUsed.Unix()
	}
	m.mu.Unlock()

	m.pub.Publish(Event{Name: "stop", Model: model, Fields: map[string]any{"reason": reason, "gpu": gpuID}})
	m.log.Info().Str("model", model).Str("reason", reason).Msg("backend stopped")
}

// releaseGPU returns an instance's memory reservation without touching its
// process; used on start failure paths where no process survives.
func (m *Manager) releaseGPU(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst := m.instances[model]
	if inst == nil || inst.GPU == "" {
		return
	}
	m.reserved[inst.GPU] -= inst.Spec.RequiredMemMB
	if m.reserved[inst.GPU] < 0 {
		m.reserved[inst.GPU] = 0
	}
	inst.GPU = ""
}
