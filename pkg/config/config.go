// Package config loads and validates the agent configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for configuration fields
const (
	DefaultHeartbeatPeriod        = 200 * time.Millisecond
	DefaultLivelinessThreshold    = 10 * time.Second
	DefaultLivelinessProbe        = 2 * time.Second
	DefaultLivelinessAttempts     = 3
	DefaultRetentionWindow        = 16
	DefaultOutputMTU              = 512
	DefaultMaxClients             = 128
	DefaultMiddlewareKind         = "inproc"
	DefaultTransportKind          = "udp"
	DefaultListenAddress          = "0.0.0.0:2018"
	DefaultMetricsListenAddress   = "127.0.0.1:9100"
	DefaultMetricsNamespace       = "xrce_agent"
	MinimumOutputMTU              = 64
	MaximumRetentionWindow        = 16
)

// Config holds every runtime knob of the agent
type Config struct {
	// Transport to serve clients on : udp, tcp
	Transport string `yaml:"transport"`
	// Bind address of the client transport
	Listen string `yaml:"listen"`
	// Pub/sub backend kind, resolved through the middleware registry
	Middleware string `yaml:"middleware"`
	// Extra arguments handed to the middleware factory
	MiddlewareArgs map[string]string `yaml:"middleware_args"`
	// Path of the INI reference profile file, empty for builtins only
	Profiles string `yaml:"profiles"`
	// Reload the profile file when it changes
	WatchProfiles bool `yaml:"watch_profiles"`

	HeartbeatPeriod          time.Duration `yaml:"heartbeat_period"`
	LivelinessDeadThreshold  time.Duration `yaml:"liveliness_dead_threshold"`
	LivelinessProbeInterval  time.Duration `yaml:"liveliness_probe_interval"`
	LivelinessRemoveAttempts int           `yaml:"liveliness_remove_attempts"`
	RetentionWindow          int           `yaml:"retention_window"`
	OutputMTU                int           `yaml:"output_mtu"`
	MaxClients               int           `yaml:"max_clients"`

	// Prometheus endpoint
	MetricsListen    string `yaml:"metrics_listen"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Default returns a configuration with every field at its default
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills the zero valued fields of cfg
func ApplyDefaults(cfg *Config) {
	if cfg.Transport == "" {
		cfg.Transport = DefaultTransportKind
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListenAddress
	}
	if cfg.Middleware == "" {
		cfg.Middleware = DefaultMiddlewareKind
	}
	if cfg.HeartbeatPeriod == 0 {
		cfg.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if cfg.LivelinessDeadThreshold == 0 {
		cfg.LivelinessDeadThreshold = DefaultLivelinessThreshold
	}
	if cfg.LivelinessProbeInterval == 0 {
		cfg.LivelinessProbeInterval = DefaultLivelinessProbe
	}
	if cfg.LivelinessRemoveAttempts == 0 {
		cfg.LivelinessRemoveAttempts = DefaultLivelinessAttempts
	}
	if cfg.RetentionWindow == 0 {
		cfg.RetentionWindow = DefaultRetentionWindow
	}
	if cfg.OutputMTU == 0 {
		cfg.OutputMTU = DefaultOutputMTU
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.MetricsNamespace == "" {
		cfg.MetricsNamespace = DefaultMetricsNamespace
	}
	if cfg.MetricsListen == "" {
		cfg.MetricsListen = DefaultMetricsListenAddress
	}
}

// Load reads a YAML configuration file, applies defaults and validates
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field bounds
func Validate(cfg *Config) error {
	if cfg.OutputMTU < MinimumOutputMTU {
		return fmt.Errorf("output_mtu %d is below the minimum of %d", cfg.OutputMTU, MinimumOutputMTU)
	}
	if cfg.RetentionWindow < 1 || cfg.RetentionWindow > MaximumRetentionWindow {
		return fmt.Errorf("retention_window %d must be within [1, %d]", cfg.RetentionWindow, MaximumRetentionWindow)
	}
	if cfg.MaxClients < 1 {
		return fmt.Errorf("max_clients %d must be positive", cfg.MaxClients)
	}
	if cfg.LivelinessRemoveAttempts < 1 {
		return fmt.Errorf("liveliness_remove_attempts %d must be positive", cfg.LivelinessRemoveAttempts)
	}
	if cfg.HeartbeatPeriod <= 0 || cfg.LivelinessProbeInterval <= 0 || cfg.LivelinessDeadThreshold <= 0 {
		return fmt.Errorf("timer periods must be positive")
	}
	return nil
}
