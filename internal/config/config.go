// Package config loads the orchestration core's static YAML configuration:
// provider adapters, policy/rate-limit/cache defaults, audit journal
// location, and the auth gate's session/lockout parameters. Mirrors the
// teacher's internal/config struct-of-structs-with-yaml-tags convention,
// scoped to this core's own components instead of the gateway's channel and
// messaging configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level static configuration for one orchestration core
// process.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Policy    PolicyConfig              `yaml:"policy"`
	RateLimit RateLimitConfig           `yaml:"rate_limit"`
	Cache     CacheConfig               `yaml:"cache"`
	Audit     AuditConfig               `yaml:"audit"`
	Auth      AuthConfig                `yaml:"auth"`
}

// ServerConfig configures the serve command's listener metadata (this core
// exposes a Go API + CLI, not an HTTP/gRPC server; Host/Port are carried for
// a host process to bind its own transport against the same config file).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProviderConfig configures one provider adapter (component H).
type ProviderConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Models  []string      `yaml:"models"`
}

// PolicyConfig points at the static tool policy table (component C).
type PolicyConfig struct {
	// RulesFile is a YAML file containing a list of policy.ToolRule.
	RulesFile string `yaml:"rules_file"`
	// WorkspaceRoot bounds ValidatesPath resolution.
	WorkspaceRoot string `yaml:"workspace_root"`
}

// RateLimitConfig sets the default per-tool rate when a ToolRule leaves
// MaxRatePerMinute unset (component B).
type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"default_per_minute"`
}

// CacheConfig tunes the ResponseCache (component F).
type CacheConfig struct {
	MaxEntries           int           `yaml:"max_entries"`
	MaxBytes             int           `yaml:"max_bytes"`
	DefaultTTL           time.Duration `yaml:"default_ttl"`
	DeterminismThreshold float64       `yaml:"determinism_threshold"`
}

// AuditConfig points at the Journal's backing store (component D) and tunes
// the non-tamper-evident diagnostic logger that runs alongside it.
type AuditConfig struct {
	DatabasePath string `yaml:"database_path"`

	// DiagnosticLogging enables the human-readable tool-invocation/
	// completion/denial log stream (distinct from the Journal's hash
	// chain, meant for local debugging rather than compliance).
	DiagnosticLogging bool   `yaml:"diagnostic_logging"`
	DiagnosticOutput  string `yaml:"diagnostic_output"`
}

// AuthConfig tunes the AuthGate (component K).
type AuthConfig struct {
	AccessTTL      time.Duration `yaml:"access_ttl"`
	RefreshTTL     time.Duration `yaml:"refresh_ttl"`
	InactivityTTL  time.Duration `yaml:"inactivity_ttl"`
	MaxFailedLogin int           `yaml:"max_failed_login"`
	LockoutWindow  time.Duration `yaml:"lockout_window"`
}

// Load reads and parses a YAML configuration file, expanding ${VAR}/$VAR
// environment references the same way the teacher's loader does, then
// applies defaults for anything the file leaves zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.RateLimit.DefaultPerMinute == 0 {
		c.RateLimit.DefaultPerMinute = 60
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Cache.MaxBytes == 0 {
		c.Cache.MaxBytes = 64 * 1024 * 1024
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = 5 * time.Minute
	}
	if c.Cache.DeterminismThreshold == 0 {
		c.Cache.DeterminismThreshold = 0.2
	}
	if c.Audit.DatabasePath == "" {
		c.Audit.DatabasePath = "orchestrator-audit.db"
	}
	if c.Audit.DiagnosticOutput == "" {
		c.Audit.DiagnosticOutput = "stdout"
	}
	if c.Auth.AccessTTL == 0 {
		c.Auth.AccessTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTTL == 0 {
		c.Auth.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.Auth.InactivityTTL == 0 {
		c.Auth.InactivityTTL = 15 * time.Minute
	}
	if c.Auth.MaxFailedLogin == 0 {
		c.Auth.MaxFailedLogin = 5
	}
	if c.Auth.LockoutWindow == 0 {
		c.Auth.LockoutWindow = 15 * time.Minute
	}
}

// DefaultPath is the configuration file name the CLI looks for when
// --config is not given, matching the teacher's nexus.yaml convention.
const DefaultPath = "orchestrator-core.yaml"
