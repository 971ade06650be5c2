package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("INFERD_TEST_KEY", "")
	if got := envOr("INFERD_TEST_KEY", "fallback"); got != "fallback" {
		t.Fatalf("envOr empty = %q", got)
	}
	t.Setenv("INFERD_TEST_KEY", "set")
	if got := envOr("INFERD_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("envOr set = %q", got)
	}
}

func TestValidateCommand(t *testing.T) {
	p := filepath.Join(t.TempDir(), "inferd.yaml")
	cfgYAML := `
gpus:
  - id: gpu0
    total_mem_mb: 24000
models:
  - name: llama-7b
    command: /opt/llama/server
    port: 9001
    required_mem_mb: 8000
`
	if err := os.WriteFile(p, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := buildRootCmd()
	root.SetArgs([]string{"validate", "--config", p})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "inferd.yaml")
	if err := os.WriteFile(p, []byte("gpus: []\nmodels: []\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	root := buildRootCmd()
	root.SetArgs([]string{"validate", "--config", p})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected validation failure")
	}
}
