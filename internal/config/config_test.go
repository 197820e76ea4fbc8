package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSecondsEnv(t *testing.T) {
	old := env
	defer func() { env = old }()

	vals := map[string]string{}
	env = func(k string) string { return vals[k] }

	if got := secondsEnv("REQUEST_TIMEOUT", 30*time.Second); got != 30*time.Second {
		t.Errorf("default: got %v want 30s", got)
	}
	vals["REQUEST_TIMEOUT"] = "2.5"
	if got := secondsEnv("REQUEST_TIMEOUT", 30*time.Second); got != 2500*time.Millisecond {
		t.Errorf("fractional: got %v want 2.5s", got)
	}
	vals["REQUEST_TIMEOUT"] = "nope"
	if got := secondsEnv("REQUEST_TIMEOUT", 30*time.Second); got != 30*time.Second {
		t.Errorf("invalid falls back to default: got %v", got)
	}
}

func TestSplitComma(t *testing.T) {
	if got := splitComma(""); got != nil {
		t.Errorf("empty input: %v", got)
	}
	got := splitComma("A=1, B=2 ,C=3")
	if len(got) != 3 || got[0] != "A=1" || got[1] != "B=2" || got[2] != "C=3" {
		t.Errorf("split: %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpd.yaml")
	data := []byte("port: 9090\npolicy: per-request\ncommand: [python, server.py]\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Config{Port: 8080, Policy: PolicyPersistent}
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port: got %d want 9090", cfg.Port)
	}
	if cfg.Policy != PolicyPerRequest {
		t.Errorf("policy: got %q want %q", cfg.Policy, PolicyPerRequest)
	}
	if len(cfg.Command) != 2 || cfg.Command[0] != "python" {
		t.Errorf("command: got %v", cfg.Command)
	}

	if err := cfg.LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{Command: []string{"srv"}, Policy: PolicyPersistent, Port: 8080}, false},
		{"no command", Config{Policy: PolicyPersistent, Port: 8080}, true},
		{"bad policy", Config{Command: []string{"srv"}, Policy: "pooled", Port: 8080}, true},
		{"bad port", Config{Command: []string{"srv"}, Policy: PolicyPerRequest, Port: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetCommandArgs(t *testing.T) {
	cfg := Config{Command: []string{"from-env"}}
	cfg.SetCommandArgs(nil)
	if len(cfg.Command) != 1 || cfg.Command[0] != "from-env" {
		t.Errorf("empty args must keep env command: %v", cfg.Command)
	}
	cfg.SetCommandArgs([]string{"npx", "-y", "some-server"})
	if len(cfg.Command) != 3 || cfg.Command[0] != "npx" {
		t.Errorf("positional args must win: %v", cfg.Command)
	}
}
