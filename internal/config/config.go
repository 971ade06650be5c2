package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use Go duration
// strings ("30s", "5m") in YAML, JSON and TOML alike.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// GPUConfig describes one device of the static GPU inventory.
type GPUConfig struct {
	ID         string `json:"id" yaml:"id" toml:"id"`
	TotalMemMB int    `json:"total_mem_mb" yaml:"total_mem_mb" toml:"total_mem_mb"`
}

// ModelSpec is one entry of the model registry. Immutable after Load.
type ModelSpec struct {
	Name          string   `json:"name" yaml:"name" toml:"name"`
	Command       string   `json:"command" yaml:"command" toml:"command"`
	Args          []string `json:"args" yaml:"args" toml:"args"`
	Port          int      `json:"port" yaml:"port" toml:"port"`
	RequiredMemMB int      `json:"required_mem_mb" yaml:"required_mem_mb" toml:"required_mem_mb"`
	IdleTimeout   Duration `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`
}

// Tuning holds the runtime knobs. Zero values mean "unspecified" and are
// replaced by defaults during Validate.
type Tuning struct {
	PollInterval       Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	StartTimeout       Duration `json:"start_timeout" yaml:"start_timeout" toml:"start_timeout"`
	RequestTimeout     Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	ProbeInterval      Duration `json:"probe_interval" yaml:"probe_interval" toml:"probe_interval"`
	ProbeFailThreshold int      `json:"probe_fail_threshold" yaml:"probe_fail_threshold" toml:"probe_fail_threshold"`
	MaxRestarts        int      `json:"max_restarts" yaml:"max_restarts" toml:"max_restarts"`
	RestartBackoff     Duration `json:"restart_backoff" yaml:"restart_backoff" toml:"restart_backoff"`
	RestartBackoffMax  Duration `json:"restart_backoff_max" yaml:"restart_backoff_max" toml:"restart_backoff_max"`
	HardIdleCeiling    Duration `json:"hard_idle_ceiling" yaml:"hard_idle_ceiling" toml:"hard_idle_ceiling"`
	SweepInterval      Duration `json:"sweep_interval" yaml:"sweep_interval" toml:"sweep_interval"`
	DrainTimeout       Duration `json:"drain_timeout" yaml:"drain_timeout" toml:"drain_timeout"`
	LRUStatePath       string   `json:"lru_state_path" yaml:"lru_state_path" toml:"lru_state_path"`
}

// Config is the full static configuration: listen address, GPU inventory,
// model registry and tuning. Validated once at startup and never mutated
// afterwards.
type Config struct {
	Addr   string      `json:"addr" yaml:"addr" toml:"addr"`
	GPUs   []GPUConfig `json:"gpus" yaml:"gpus" toml:"gpus"`
	Models []ModelSpec `json:"models" yaml:"models" toml:"models"`
	Tuning Tuning      `json:"tuning" yaml:"tuning" toml:"tuning"`
}

// Defaults applied by Validate when the corresponding field is unset.
const (
	DefaultAddr               = ":8080"
	DefaultPollInterval       = 3 * time.Second
	DefaultStartTimeout       = 120 * time.Second
	DefaultRequestTimeout     = 300 * time.Second
	DefaultProbeInterval      = 5 * time.Second
	DefaultProbeFailThreshold = 3
	DefaultMaxRestarts        = 3
	DefaultRestartBackoff     = 2 * time.Second
	DefaultRestartBackoffMax  = 60 * time.Second
	DefaultIdleTimeout        = 10 * time.Minute
	DefaultHardIdleCeiling    = 2 * time.Hour
	DefaultSweepInterval      = 30 * time.Second
	DefaultDrainTimeout       = 10 * time.Second
)

// ConfigError is fatal: the daemon refuses to start on any violation.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// IsConfigError reports whether err is a configuration violation.
func IsConfigError(err error) bool {
	_, ok := err.(*ConfigError)
	return ok
}

func (m ModelSpec) IdleTimeoutOrDefault() time.Duration {
	if m.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return m.IdleTimeout.Std()
}

// Validate checks invariants and fills defaults in place. The first
// violation found is returned as a *ConfigError.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if len(c.GPUs) == 0 {
		return &ConfigError{Field: "gpus", Msg: "at least one GPU device is required"}
	}
	if len(c.Models) == 0 {
		return &ConfigError{Field: "models", Msg: "at least one model is required"}
	}
	maxGPU := 0
	seenGPU := make(map[string]bool, len(c.GPUs))
	for i, g := range c.GPUs {
		if g.ID == "" {
			return &ConfigError{Field: fmt.Sprintf("gpus[%d].id", i), Msg: "missing device id"}
		}
		if seenGPU[g.ID] {
			return &ConfigError{Field: "gpus", Msg: "duplicate device id: " + g.ID}
		}
		seenGPU[g.ID] = true
		if g.TotalMemMB <= 0 {
			return &ConfigError{Field: fmt.Sprintf("gpus[%d].total_mem_mb", i), Msg: "must be positive"}
		}
		if g.TotalMemMB > maxGPU {
			maxGPU = g.TotalMemMB
		}
	}
	seenName := make(map[string]bool, len(c.Models))
	seenPort := make(map[int]string, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			return &ConfigError{Field: fmt.Sprintf("models[%d].name", i), Msg: "missing model name"}
		}
		if seenName[m.Name] {
			return &ConfigError{Field: "models", Msg: "duplicate model name: " + m.Name}
		}
		seenName[m.Name] = true
		if m.Command == "" {
			return &ConfigError{Field: fmt.Sprintf("models[%d].command", i), Msg: "missing launch command"}
		}
		if m.Port <= 0 || m.Port > 65535 {
			return &ConfigError{Field: fmt.Sprintf("models[%d].port", i), Msg: "port out of range"}
		}
		if prev, dup := seenPort[m.Port]; dup {
			return &ConfigError{Field: "models", Msg: fmt.Sprintf("port %d used by both %s and %s", m.Port, prev, m.Name)}
		}
		seenPort[m.Port] = m.Name
		if m.RequiredMemMB <= 0 {
			return &ConfigError{Field: fmt.Sprintf("models[%d].required_mem_mb", i), Msg: "must be positive"}
		}
		if m.RequiredMemMB > maxGPU {
			return &ConfigError{
				Field: fmt.Sprintf("models[%d].required_mem_mb", i),
				Msg:   fmt.Sprintf("%d MB exceeds largest GPU capacity %d MB", m.RequiredMemMB, maxGPU),
			}
		}
	}
	t := &c.Tuning
	if t.PollInterval <= 0 {
		t.PollInterval = Duration(DefaultPollInterval)
	}
	if t.StartTimeout <= 0 {
		t.StartTimeout = Duration(DefaultStartTimeout)
	}
	if t.RequestTimeout <= 0 {
		t.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if t.ProbeInterval <= 0 {
		t.ProbeInterval = Duration(DefaultProbeInterval)
	}
	if t.ProbeFailThreshold <= 0 {
		t.ProbeFailThreshold = DefaultProbeFailThreshold
	}
	if t.MaxRestarts <= 0 {
		t.MaxRestarts = DefaultMaxRestarts
	}
	if t.RestartBackoff <= 0 {
		t.RestartBackoff = Duration(DefaultRestartBackoff)
	}
	if t.RestartBackoffMax <= 0 {
		t.RestartBackoffMax = Duration(DefaultRestartBackoffMax)
	}
	if t.HardIdleCeiling <= 0 {
		t.HardIdleCeiling = Duration(DefaultHardIdleCeiling)
	}
	if t.SweepInterval <= 0 {
		t.SweepInterval = Duration(DefaultSweepInterval)
	}
	if t.DrainTimeout <= 0 {
		t.DrainTimeout = Duration(DefaultDrainTimeout)
	}
	return nil
}

// ModelByName returns the spec for name, if registered.
func (c *Config) ModelByName(name string) (ModelSpec, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}
