package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Loader     LoaderConfig     `yaml:"loader"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Publish    PublishConfig    `yaml:"publish"`
	Optimistic OptimisticConfig `yaml:"optimistic"`
}

// ServerConfig holds http listen and storage path settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoaderConfig tunes the batching loader shared by generated resource APIs.
type LoaderConfig struct {
	Wait         Duration `yaml:"wait"`
	MaxBatchSize int      `yaml:"max_batch_size"`
	DisableCache bool     `yaml:"disable_cache"`
}

// StrategyConfig tunes the update-strategy engine used at the
// subscription wire boundary.
type StrategyConfig struct {
	// Default is the strategy name used when a subscription does not
	// choose one: "auto", "value", "delta" or "patch".
	Default string `yaml:"default"`
	// MaxWirePayload caps a single encoded subscription emission.
	MaxWirePayload SizeBytes `yaml:"max_wire_payload"`
}

// PublishConfig holds per-channel publish rate limiting. Zero RPS
// disables limiting entirely.
type PublishConfig struct {
	RPS    float64 `yaml:"rps"`
	Burst  int     `yaml:"burst"`
	Buffer int     `yaml:"buffer"`
}

// OptimisticConfig holds the speculative-operation lifecycle tunables.
type OptimisticConfig struct {
	OpTimeout     Duration        `yaml:"op_timeout"`
	SweepInterval Duration        `yaml:"sweep_interval"`
	Retention     RetentionConfig `yaml:"retention"`
}

// RetentionConfig configures the cron-scheduled eviction of idle
// optimistic sessions.
type RetentionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Cron       string   `yaml:"cron"`
	IdlePeriod Duration `yaml:"idle_period"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
