package manager

import "time"

// idleSweep inspects Ready, zero-in-flight instances. Instances idle past
// their idle timeout merely become eviction candidates (eviction stays
// lazy, driven by placement pressure); instances idle past the hard
// ceiling are stopped unconditionally to reclaim memory.
func (m *Manager) idleSweep() {
	now := time.Now()
	ceiling := m.cfg.Tuning.HardIdleCeiling.Std()

	m.mu.Lock()
	var hardStops []string
	candidates := 0
	for name, inst := range m.instances {
		if inst.State != StateReady || inst.Inflight != 0 {
			continue
		}
		idle := inst.idleFor(now)
		if idle > ceiling {
			inst.State = StateDraining
			hardStops = append(hardStops, name)
			continue
		}
		if idle > inst.Spec.IdleTimeoutOrDefault() {
			candidates++
		}
	}
	m.mu.Unlock()

	for _, name := range hardStops {
		m.pub.Publish(Event{Name: "idle_ceiling", Model: name})
		m.finishStop(name, "idle_ceiling")
	}
	if candidates > 0 {
		m.log.Debug().Int("candidates", candidates).Msg("idle instances eligible for eviction")
	}
}
