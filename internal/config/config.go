// Package config binds mcpd settings from environment variables, command
// line flags and an optional YAML file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lifecycle policies for the wrapped subprocess.
const (
	PolicyPersistent = "persistent"
	PolicyPerRequest = "per-request"
)

// Config holds configuration for the mcpd bridge daemon.
type Config struct {
	Host           string
	Port           int
	Command        []string
	WorkDir        string
	Env            []string
	Policy         string
	RequestTimeout time.Duration
	StartupProbe   time.Duration
	StopGrace      time.Duration
	KeepAlive      time.Duration
	SessionTTL     time.Duration
	MaxBodyBytes   int64
	QueueSize      int
	ConfigFile     string
	LogLevel       string
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse(). The subprocess
// command comes from the positional arguments left after flag parsing (see
// SetCommandArgs); MCP_COMMAND provides a fallback.
func (c *Config) BindFlags() {
	c.ConfigFile = getEnv("CONFIG_FILE", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.Host = getEnv("HOST", "127.0.0.1")
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	c.Port = port
	if cmd := getEnv("MCP_COMMAND", ""); cmd != "" {
		c.Command = strings.Fields(cmd)
	}
	c.WorkDir = getEnv("MCP_WORKDIR", "")
	c.Env = splitComma(getEnv("MCP_ENV", ""))
	c.Policy = getEnv("MCP_POLICY", PolicyPersistent)
	c.RequestTimeout = secondsEnv("REQUEST_TIMEOUT", 30*time.Second)
	c.StartupProbe = secondsEnv("STARTUP_PROBE", time.Second)
	c.StopGrace = secondsEnv("STOP_GRACE", 5*time.Second)
	c.KeepAlive = secondsEnv("KEEPALIVE_INTERVAL", 30*time.Second)
	c.SessionTTL = secondsEnv("SESSION_TTL", 5*time.Minute)
	mb, _ := strconv.ParseInt(getEnv("MAX_BODY_BYTES", "4194304"), 10, 64)
	c.MaxBodyBytes = mb
	qs, _ := strconv.Atoi(getEnv("QUEUE_SIZE", "16"))
	c.QueueSize = qs

	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "mcpd config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.StringVar(&c.Host, "host", c.Host, "host to bind; use 0.0.0.0 to allow network access")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	flag.Func("command", "MCP server command line; positional arguments take precedence", func(v string) error {
		c.Command = strings.Fields(v)
		return nil
	})
	flag.StringVar(&c.WorkDir, "workdir", c.WorkDir, "working directory for the MCP server process")
	flag.Func("env", "comma separated KEY=VALUE pairs added to the MCP server environment", func(v string) error {
		c.Env = append(c.Env, splitComma(v)...)
		return nil
	})
	flag.StringVar(&c.Policy, "policy", c.Policy, "subprocess lifecycle policy (persistent or per-request)")
	bindSeconds(&c.RequestTimeout, "request-timeout", "seconds to wait for a subprocess response")
	bindSeconds(&c.StartupProbe, "startup-probe", "seconds to watch a fresh subprocess for immediate exit")
	bindSeconds(&c.StopGrace, "stop-grace", "seconds to wait for graceful subprocess termination before killing")
	bindSeconds(&c.KeepAlive, "keepalive-interval", "seconds between keep-alive frames on idle streams")
	bindSeconds(&c.SessionTTL, "session-ttl", "seconds before an idle session is dropped")
	flag.Int64Var(&c.MaxBodyBytes, "max-body-bytes", c.MaxBodyBytes, "largest accepted request body in bytes")
	flag.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "buffered responses per session stream queue")
}

// SetCommandArgs installs the subprocess command from positional arguments
// when any were given; otherwise the MCP_COMMAND default stands.
func (c *Config) SetCommandArgs(args []string) {
	if len(args) > 0 {
		c.Command = args
	}
}

// LoadFile populates the config from a YAML file. Fields already set remain
// unless overwritten by corresponding entries in the file.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Validate reports configuration the daemon cannot start with.
func (c *Config) Validate() error {
	if len(c.Command) == 0 {
		return fmt.Errorf("no MCP server command provided")
	}
	if c.Policy != PolicyPersistent && c.Policy != PolicyPerRequest {
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func bindSeconds(dst *time.Duration, name, usage string) {
	flag.Func(name, usage, func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = time.Duration(f * float64(time.Second))
		return nil
	})
}

func secondsEnv(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(f * float64(time.Second))
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func getEnv(k, d string) string {
	if v := env(k); v != "" {
		return v
	}
	return d
}

var env = os.Getenv
