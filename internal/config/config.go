package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Runner modes understood by the sandbox package.
const (
	ModeHost   = "host"
	ModeDocker = "docker"
	ModeAuto   = "auto"
)

const (
	DefaultPort           = "3001"
	DefaultPrefix         = "git-sandbox-"
	DefaultCmdTimeout     = 2 * time.Minute
	DefaultReaperInterval = 10 * time.Minute
	DefaultReaperMaxAge   = 24 * time.Hour
)

// DefaultAllowedOrigins are the browser origins the cheat-sheet UI is served from.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"https://git.cicr.in",
}

// DefaultDenyPatterns protect git internals that would let a caller run code
// outside the allow-list (hooks) or rewrite repository wiring.
var DefaultDenyPatterns = []string{
	".git/hooks",
	".git/config",
}

// Config holds the server configuration.
type Config struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	Sandbox        SandboxConfig `yaml:"sandbox"`
	Runner         RunnerConfig  `yaml:"runner"`
	Policy         PolicyConfig  `yaml:"policy"`
	Reaper         ReaperConfig  `yaml:"reaper"`
	State          StateConfig   `yaml:"state"`
	Log            LogConfig     `yaml:"log"`
}

// SandboxConfig controls where sandbox directories are created.
type SandboxConfig struct {
	BaseDir string `yaml:"baseDir"` // empty means os.TempDir()
	Prefix  string `yaml:"prefix"`
	Watch   bool   `yaml:"watch"` // reset state when the directory disappears out of band
}

// RunnerConfig controls how non-git commands are spawned.
type RunnerConfig struct {
	Mode        string        `yaml:"mode"`
	Shell       bool          `yaml:"shell"`   // interpret command lines with the host shell
	Timeout     time.Duration `yaml:"timeout"` // 0 disables the deadline
	DockerImage string        `yaml:"dockerImage"`
}

// PolicyConfig controls argument validation.
type PolicyConfig struct {
	Containment  bool     `yaml:"containment"`
	DenyPatterns []string `yaml:"denyPatterns"`
}

// ReaperConfig controls removal of sandboxes left behind by dead processes.
type ReaperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"maxAge"`
}

// StateConfig controls the sqlite state database (registry and command history).
type StateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
		Sandbox: SandboxConfig{
			Prefix: DefaultPrefix,
			Watch:  true,
		},
		Runner: RunnerConfig{
			Mode:    ModeHost,
			Timeout: DefaultCmdTimeout,
		},
		Policy: PolicyConfig{
			Containment:  true,
			DenyPatterns: append([]string(nil), DefaultDenyPatterns...),
		},
		Reaper: ReaperConfig{
			Enabled:  true,
			Interval: DefaultReaperInterval,
			MaxAge:   DefaultReaperMaxAge,
		},
		State: StateConfig{
			Enabled: true,
			Path:    defaultStatePath(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that order. An empty path falls back to
// SANDBOX_CONFIG; a missing file at that point is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("SANDBOX_CONFIG")
		explicit = path != ""
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("SANDBOX_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("SANDBOX_BASE_DIR"); v != "" {
		c.Sandbox.BaseDir = v
	}
	if v := os.Getenv("SANDBOX_PREFIX"); v != "" {
		c.Sandbox.Prefix = v
	}
	if v := os.Getenv("SANDBOX_MODE"); v != "" {
		c.Runner.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("SANDBOX_DOCKER_IMAGE"); v != "" {
		c.Runner.DockerImage = v
	}
	if v := os.Getenv("SANDBOX_STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("SANDBOX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SANDBOX_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("SANDBOX_DENY_PATTERNS"); v != "" {
		c.Policy.DenyPatterns = splitList(v)
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"SANDBOX_SHELL", &c.Runner.Shell},
		{"SANDBOX_WATCH", &c.Sandbox.Watch},
		{"SANDBOX_CONTAINMENT", &c.Policy.Containment},
		{"SANDBOX_REAPER", &c.Reaper.Enabled},
		{"SANDBOX_STATE", &c.State.Enabled},
	}
	for _, b := range bools {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", b.key, v, err)
		}
		*b.dst = parsed
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SANDBOX_CMD_TIMEOUT", &c.Runner.Timeout},
		{"SANDBOX_REAPER_INTERVAL", &c.Reaper.Interval},
		{"SANDBOX_REAPER_MAX_AGE", &c.Reaper.MaxAge},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	switch c.Runner.Mode {
	case ModeHost, ModeDocker, ModeAuto:
	default:
		return fmt.Errorf("unknown runner mode %q (want host, docker or auto)", c.Runner.Mode)
	}
	if c.Runner.Timeout < 0 {
		return fmt.Errorf("runner timeout must not be negative, got %s", c.Runner.Timeout)
	}
	if c.Sandbox.Prefix == "" {
		return errors.New("sandbox prefix is required")
	}
	if strings.ContainsAny(c.Sandbox.Prefix, `/\`) {
		return fmt.Errorf("sandbox prefix %q must not contain path separators", c.Sandbox.Prefix)
	}
	if c.Reaper.Enabled && c.Reaper.Interval <= 0 {
		return fmt.Errorf("reaper interval must be positive, got %s", c.Reaper.Interval)
	}
	if c.State.Enabled && c.State.Path == "" {
		return errors.New("state path is required when state is enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ReaperInterval returns the sweep interval, capped at half of MaxAge. Each
// sweep refreshes the live sandbox, so it must run well within MaxAge.
func (c *Config) ReaperInterval() time.Duration {
	if c.Reaper.MaxAge > 0 && c.Reaper.Interval >= c.Reaper.MaxAge {
		if half := c.Reaper.MaxAge / 2; half > 0 {
			return half
		}
		return c.Reaper.MaxAge
	}
	return c.Reaper.Interval
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// SandboxBaseDir returns the directory sandboxes are created under.
func (c *Config) SandboxBaseDir() string {
	if c.Sandbox.BaseDir != "" {
		return c.Sandbox.BaseDir
	}
	return os.TempDir()
}

func defaultStatePath() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return filepath.Join(cacheDir, "gitsandbox", "state.db")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
