package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension and validates it.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, &ConfigError{Msg: "empty config path"}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, &ConfigError{Msg: fmt.Sprintf("parse %s: %v", path, err)}
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, &ConfigError{Msg: fmt.Sprintf("parse %s: %v", path, err)}
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, &ConfigError{Msg: fmt.Sprintf("parse %s: %v", path, err)}
		}
	default:
		return cfg, &ConfigError{Msg: "unsupported config extension: " + ext}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
