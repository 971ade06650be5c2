package gpu

import "time"

// Sample is one raw reading for a device, as returned by a Querier.
type Sample struct {
	UsedMemMB      int
	UtilizationPct int
}

// Device is the monitor's view of one GPU at a point in time.
type Device struct {
	ID             string
	TotalMemMB     int
	UsedMemMB      int
	UtilizationPct int
	PolledAt       time.Time
	// Stale is set when the last poll for this device failed and the
	// values above are carried over from an earlier cycle.
	Stale bool
	// Usable is cleared after consecutive poll failures; an unusable
	// device is excluded from new placements until it recovers.
	Usable bool
}

// Snapshot is an immutable point-in-time view of all devices. A new value
// is produced on each poll cycle; readers never see partial updates.
type Snapshot struct {
	Devices map[string]Device
	Taken   time.Time
}

// Device returns the entry for id, if present.
func (s Snapshot) Device(id string) (Device, bool) {
	d, ok := s.Devices[id]
	return d, ok
}
