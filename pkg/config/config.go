package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the single merged view of flags, env and the
// config file that the rest of the process consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseCommandFlags parses command-line flags and returns them as a Flags
// struct. Flags win over env and file values when explicitly set.
func ParseCommandFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.lensdb", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: set}
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// then LENS_CONFIG, then the default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if p := os.Getenv("LENS_CONFIG"); p != "" {
		return p
	}
	return flagVal
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &c, nil
}

// LoadEffective merges the config file (if present), environment
// overrides and flags into an EffectiveConfigResult. Missing config file
// is not an error; defaults are applied afterwards.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	res := EffectiveConfigResult{Source: "flags"}

	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return res, err
		}
		cfg = &Config{}
	} else {
		res.Source = "config"
	}

	if applyEnv(cfg) && res.Source != "config" {
		res.Source = "env"
	}
	applyDefaults(cfg)

	res.Config = cfg
	res.Addr = cfg.Addr()
	if flags.Set["addr"] {
		res.Addr = flags.Addr
	}
	res.DBPath = cfg.Server.DBPath
	if res.DBPath == "" || flags.Set["db"] {
		res.DBPath = flags.DB
	}
	return res, nil
}

// applyEnv copies LENS_* environment overrides into cfg and reports
// whether any were used.
func applyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("LENS_ADDR"); v != "" {
		cfg.Server.Address = v
		used = true
	}
	if v := os.Getenv("LENS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
			used = true
		}
	}
	if v := os.Getenv("LENS_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
		used = true
	}
	if v := os.Getenv("LENS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		used = true
	}
	return used
}

func applyDefaults(cfg *Config) {
	if cfg.Loader.Wait == 0 {
		cfg.Loader.Wait = Duration(2 * time.Millisecond)
	}
	if cfg.Loader.MaxBatchSize == 0 {
		cfg.Loader.MaxBatchSize = 100
	}
	if cfg.Strategy.Default == "" {
		cfg.Strategy.Default = "auto"
	}
	if cfg.Publish.Buffer == 0 {
		cfg.Publish.Buffer = 64
	}
	if cfg.Optimistic.OpTimeout == 0 {
		cfg.Optimistic.OpTimeout = Duration(10 * time.Second)
	}
	if cfg.Optimistic.SweepInterval == 0 {
		cfg.Optimistic.SweepInterval = Duration(5 * time.Second)
	}
	if cfg.Optimistic.Retention.Cron == "" {
		cfg.Optimistic.Retention.Cron = "0 * * * *"
	}
	if cfg.Optimistic.Retention.IdlePeriod == 0 {
		cfg.Optimistic.Retention.IdlePeriod = Duration(24 * time.Hour)
	}
}
