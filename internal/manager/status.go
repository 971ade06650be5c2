package manager

import (
	"sort"
	"time"

	"inferd/pkg/types"
)

// Status builds the /status view: every registered model (live or not),
// the GPU inventory with current readings, and lifetime totals. Stopped
// models report the last-used time persisted across daemon restarts.
func (m *Manager) Status() types.StatusResponse {
	snap := m.gpus.Snapshot()
	now := time.Now()

	m.mu.RLock()
	resp := types.StatusResponse{
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		EvictionsTotal: m.evictionsTotal,
		StartsTotal:    m.startsTotal,
		RestartsTotal:  m.restartsTotal,
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.cfg.Models))
	for _, spec := range m.cfg.Models {
		inst := m.instances[spec.Name]
		if inst == nil {
			st := types.InstanceStatus{
				Model:         spec.Name,
				State:         string(StateStopped),
				RequiredMemMB: spec.RequiredMemMB,
			}
			if unix, ok := m.lruMeta[spec.Name]; ok {
				st.LastUsed = unix
			}
			resp.Instances = append(resp.Instances, st)
			continue
		}
		st := types.InstanceStatus{
			Model:         inst.Model,
			State:         string(inst.State),
			GPU:           inst.GPU,
			RequiredMemMB: spec.RequiredMemMB,
			Inflight:      inst.Inflight,
			Port:          inst.Port,
			PID:           inst.PID,
			Restarts:      inst.Restarts,
		}
		if !inst.LastUsed.IsZero() {
			st.LastUsed = inst.LastUsed.Unix()
		}
		if inst.State == StateReady && inst.Inflight == 0 &&
			inst.idleFor(now) > spec.IdleTimeoutOrDefault() {
			st.IdleEvictable = true
		}
		resp.Instances = append(resp.Instances, st)
	}

	resp.GPUs = make([]types.GPUStatus, 0, len(snap.Devices))
	for id, d := range snap.Devices {
		resp.GPUs = append(resp.GPUs, types.GPUStatus{
			ID:             id,
			TotalMemMB:     d.TotalMemMB,
			UsedMemMB:      d.UsedMemMB,
			ReservedMemMB:  m.reserved[id],
			UtilizationPct: d.UtilizationPct,
			Stale:          d.Stale,
			Usable:         d.Usable,
		})
	}
	m.mu.RUnlock()

	sort.Slice(resp.GPUs, func(i, j int) bool { return resp.GPUs[i].ID < resp.GPUs[j].ID })
	return resp
}
