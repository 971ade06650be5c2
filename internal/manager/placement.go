package manager

import (
	"inferd/internal/gpu"
)

// place picks a device for a new instance and reserves its memory. The
// whole decision runs under placeMu so concurrent starts cannot
// over-commit a device; if no device fits, LRU idle eviction frees space
// and placement is retried once.
func (m *Manager) place(model string, requiredMB int) (string, error) {
	m.placeMu.Lock()
	defer m.placeMu.Unlock()

	snap := m.gpus.Snapshot()
	if dev, ok := m.pickDevice(snap, requiredMB); ok {
		m.reserve(dev, requiredMB)
		return dev, nil
	}
	if !m.evictForSpace(snap, requiredMB) {
		placementFailures.Inc()
		return "", placementError{name: model}
	}
	if dev, ok := m.pickDevice(snap, requiredMB); ok {
		m.reserve(dev, requiredMB)
		return dev, nil
	}
	placementFailures.Inc()
	return "", placementError{name: model}
}

// pickDevice returns the least-loaded usable device with enough
// unreserved memory: lowest utilization first, most free memory as the
// tie-break.
func (m *Manager) pickDevice(snap gpu.Snapshot, requiredMB int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best := ""
	bestUtil := 0
	bestFree := 0
	for id, d := range snap.Devices {
		if !d.Usable {
			continue
		}
		free := d.TotalMemMB - m.reserved[id]
		if free < requiredMB {
			continue
		}
		if best == "" || d.UtilizationPct < bestUtil ||
			(d.UtilizationPct == bestUtil && free > bestFree) {
			best = id
			bestUtil = d.UtilizationPct
			bestFree = free
		}
	}
	return best, best != ""
}

func (m *Manager) reserve(device string, requiredMB int) {
	m.mu.Lock()
	m.reserved[device] += requiredMB
	m.mu.Unlock()
}

// evictForSpace stops Ready, zero-in-flight instances oldest-last-used
// first until some viable device can host requiredMB. Instances with
// in-flight requests are never touched. Returns true once space exists.
func (m *Manager) evictForSpace(snap gpu.Snapshot, requiredMB int) bool {
	for {
		m.mu.Lock()
		var victim *Instance
		for _, inst := range m.instances {
			if inst.State != StateReady || inst.Inflight != 0 {
				continue
			}
			d, ok := snap.Device(inst.GPU)
			if !ok || !d.Usable || d.TotalMemMB < requiredMB {
				// Freeing this instance could never make its device fit.
				continue
			}
			if victim == nil || inst.LastUsed.Before(victim.LastUsed) {
				victim = inst
			}
		}
		if victim == nil {
			m.mu.Unlock()
			return false
		}
		// Flip to Draining under the lock so no new request lands on it.
		victim.State = StateDraining
		name := victim.Model
		m.evictionsTotal++
		m.mu.Unlock()

		evictionsTotal.Inc()
		m.pub.Publish(Event{Name: "evict", Model: name})
		m.finishStop(name, "evict")

		if _, ok := m.pickDevice(snap, requiredMB); ok {
			return true
		}
	}
}
