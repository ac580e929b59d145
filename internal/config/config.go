package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the healing engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detector  DetectorConfig  `yaml:"detector"`
	Healing   HealingConfig   `yaml:"healing"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DetectorConfig tunes the isolation forest and its training gate.
type DetectorConfig struct {
	NumTrees           int     `yaml:"numTrees"`
	SubsampleSize      int     `yaml:"subsampleSize"`
	Contamination      float64 `yaml:"contamination"`
	Seed               int64   `yaml:"seed"`
	MinTrainingSamples int     `yaml:"minTrainingSamples"`
}

// HealingConfig tunes remediation dispatch.
type HealingConfig struct {
	CooldownMinutes    float64          `yaml:"cooldownMinutes"`
	LedgerCapacity     int              `yaml:"ledgerCapacity"`
	CatalogPath        string           `yaml:"catalogPath"`
	AutoRestart        bool             `yaml:"autoRestart"`
	MaxRestartAttempts int              `yaml:"maxRestartAttempts"`
	Thresholds         ThresholdsConfig `yaml:"thresholds"`
}

// ThresholdsConfig holds the critical metric levels that map anomalies
// to remediation actions.
type ThresholdsConfig struct {
	CPUCritical            float64 `yaml:"cpuCritical"`
	MemoryCritical         float64 `yaml:"memoryCritical"`
	ResponseTimeCriticalMs float64 `yaml:"responseTimeCriticalMs"`
}

// MonitorConfig controls the background evaluation loop.
type MonitorConfig struct {
	Interval      time.Duration `yaml:"interval"`
	EventCapacity int           `yaml:"eventCapacity"`
	StartEnabled  bool          `yaml:"startEnabled"`
}

// SimulatorConfig controls the synthetic metric source.
type SimulatorConfig struct {
	Seed            int64        `yaml:"seed"`
	HistoryCapacity int          `yaml:"historyCapacity"`
	Influx          InfluxConfig `yaml:"influx"`
}

// InfluxConfig configures the optional InfluxDB metric sink.
type InfluxConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend string       `yaml:"backend"` // memory, file, sqlite or valkey
	Dir     string       `yaml:"dir"`
	Path    string       `yaml:"path"`
	Valkey  ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig holds connection parameters for the Valkey backend.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// EventsConfig controls the Kafka detection-event publisher.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load initialises Config from a YAML file and optional environment
// overrides. A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("NEUROCLOUD_HEAL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Fall through to defaults.
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Detector: DetectorConfig{
			NumTrees:           100,
			SubsampleSize:      256,
			Contamination:      0.1,
			Seed:               42,
			MinTrainingSamples: 50,
		},
		Healing: HealingConfig{
			CooldownMinutes:    5,
			LedgerCapacity:     500,
			AutoRestart:        true,
			MaxRestartAttempts: 3,
			Thresholds: ThresholdsConfig{
				CPUCritical:            90,
				MemoryCritical:         85,
				ResponseTimeCriticalMs: 5000,
			},
		},
		Monitor: MonitorConfig{
			Interval:      5 * time.Second,
			EventCapacity: 100,
			StartEnabled:  true,
		},
		Simulator: SimulatorConfig{
			Seed:            time.Now().UnixNano(),
			HistoryCapacity: 1000,
			Influx:          InfluxConfig{Database: "neurocloud"},
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     "data",
			Path:    "data/heal.db",
			Valkey: ValkeyConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
			},
		},
		Events: EventsConfig{Topic: "neurocloud.heal.events"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEUROCLOUD_HEAL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_DETECTOR_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Detector.Seed = seed
		}
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_DETECTOR_CONTAMINATION"); v != "" {
		if c, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.Contamination = c
		}
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_COOLDOWN_MINUTES"); v != "" {
		if m, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Healing.CooldownMinutes = m
		}
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_CATALOG_PATH"); v != "" {
		cfg.Healing.CatalogPath = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_VALKEY_ADDR"); v != "" {
		cfg.Store.Valkey.Addr = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_VALKEY_USERNAME"); v != "" {
		cfg.Store.Valkey.Username = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_VALKEY_PASSWORD"); v != "" {
		cfg.Store.Valkey.Password = v
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.Valkey.DB = db
		}
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_VALKEY_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Store.Valkey.TLS = true
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_INFLUX_ADDR"); v != "" {
		cfg.Simulator.Influx.Addr = v
		cfg.Simulator.Influx.Enabled = true
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = strings.Split(v, ",")
		cfg.Events.Enabled = true
	}
	if v := os.Getenv("NEUROCLOUD_HEAL_KAFKA_TOPIC"); v != "" {
		cfg.Events.Topic = v
	}
}

// CooldownDuration converts the configured cooldown minutes, which may be
// fractional.
func (c HealingConfig) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownMinutes * float64(time.Minute))
}
