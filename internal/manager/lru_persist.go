package manager

import (
	"encoding/json"
	"os"
)

// Last-used times survive daemon restarts so /status keeps reporting them
// for stopped models. Best effort on both paths.

func (m *Manager) loadLRUMetadata() {
	path := m.cfg.Tuning.LRUStatePath
	if path == "" {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var data map[string]int64
	if err := json.Unmarshal(b, &data); err == nil {
		m.lruMeta = data
	}
}

func (m *Manager) saveLRUMetadata() {
	path := m.cfg.Tuning.LRUStatePath
	if path == "" {
		return
	}
	m.mu.RLock()
	snap := make(map[string]int64, len(m.lruMeta)+len(m.instances))
	for name, unix := range m.lruMeta {
		snap[name] = unix
	}
	for name, inst := range m.instances {
		if !inst.LastUsed.IsZero() {
			snap[name] = inst.LastUsed.Unix()
		}
	}
	m.mu.RUnlock()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, b, 0o644)
}
