package types

// InstanceStatus summarizes a backend instance for /status.
type InstanceStatus struct {
	// Model served by this instance.
	// example: llama-3.1-8b
	Model string `json:"model" example:"llama-3.1-8b"`
	// Current lifecycle state (stopped, starting, ready, draining, failed, permanently_failed).
	// example: ready
	State string `json:"state" example:"ready"`
	// GPU device hosting the instance.
	// example: gpu-0
	GPU string `json:"gpu,omitempty" example:"gpu-0"`
	// Memory reserved for the instance in MB.
	// example: 20480
	RequiredMemMB int `json:"required_mem_mb" example:"20480"`
	// Last time the instance served a request (unix seconds).
	LastUsed int64 `json:"last_used_unix,omitempty" example:"1700000000"`
	// Number of in-flight requests.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// TCP port of the backend process.
	// example: 30001
	Port int `json:"port,omitempty" example:"30001"`
	// Process ID of the backend process.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Restart attempts consumed since the last clean start.
	Restarts int `json:"restarts,omitempty"`
	// True when the instance is past its idle timeout and evictable.
	IdleEvictable bool `json:"idle_evictable,omitempty"`
}

// GPUStatus summarizes one GPU device for /status.
type GPUStatus struct {
	// Device id from the inventory.
	// example: gpu-0
	ID string `json:"id" example:"gpu-0"`
	// Total device memory in MB.
	// example: 24576
	TotalMemMB int `json:"total_mem_mb" example:"24576"`
	// Used memory in MB as last polled.
	// example: 20990
	UsedMemMB int `json:"used_mem_mb" example:"20990"`
	// Memory reserved by placed instances in MB.
	// example: 20480
	ReservedMemMB int `json:"reserved_mem_mb" example:"20480"`
	// Utilization percentage as last polled.
	// example: 87
	UtilizationPct int `json:"utilization_pct" example:"87"`
	// True when the last poll for this device failed.
	Stale bool `json:"stale,omitempty"`
	// False when the device is excluded from new placements.
	Usable bool `json:"usable"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Managed backend instances.
	Instances []InstanceStatus `json:"instances"`
	// GPU inventory with current readings.
	GPUs []GPUStatus `json:"gpus"`
	// Uptime of the proxy in seconds.
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Total evictions performed to free GPU memory.
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total backend starts.
	StartsTotal uint64 `json:"starts_total" example:"12"`
	// Total automatic restarts after crashes.
	RestartsTotal uint64 `json:"restarts_total" example:"2"`
}
