// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, metrics address, and logging level.
type App struct {
	Name        string `yaml:"name"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Detector groups the tunable knobs of the signal scanner.
type Detector struct {
	SpreadThresholdPct float64 `yaml:"spread_threshold"`
	ScanIntervalMs     int     `yaml:"scan_interval_ms"`
	MinVolume          float64 `yaml:"min_volume"`
	VolatilityFactor   float64 `yaml:"volatility_factor"`
	HistoryWindow      int     `yaml:"history_window"`
	LatencyThresholdMs int     `yaml:"latency_threshold_ms"`
}

// Pipeline configures the bounded hand-off between connectors and the store.
type Pipeline struct {
	QueueSize int `yaml:"queue_size"`
}

// Chainlink configures the on-chain aggregator poller.
type Chainlink struct {
	RPCURL     string `yaml:"rpc_url"`
	Aggregator string `yaml:"aggregator"`
	Asset      string `yaml:"asset"`
	PollMs     int    `yaml:"poll_interval_ms"`
}

// Feeds describes which source connectors to run and what they track.
type Feeds struct {
	Providers []string          `yaml:"providers"`
	Symbols   []string          `yaml:"symbols"`
	AssetMap  map[string]string `yaml:"asset_map"`
	Chainlink Chainlink         `yaml:"chainlink"`
}

// Redis configures the optional tick bus. Empty Addr disables it.
type Redis struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
	DB      int    `yaml:"db"`
}

// Classifier configures the optional confirmation model endpoint.
// Empty URL means confirmation always passes.
type Classifier struct {
	URL       string  `yaml:"url"`
	Cutoff    float64 `yaml:"cutoff"`
	TimeoutMs int     `yaml:"timeout_ms"`
}

// Email configures the SMTP alert sink. Password comes from the
// SMTP_PASSWORD environment variable, never from YAML.
type Email struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Alerts lists the configured signal sinks.
type Alerts struct {
	Log        bool   `yaml:"log"`
	WebhookURL string `yaml:"webhook_url"`
	Email      Email  `yaml:"email"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Detector   Detector   `yaml:"detector"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Feeds      Feeds      `yaml:"feeds"`
	Redis      Redis      `yaml:"redis"`
	Classifier Classifier `yaml:"classifier"`
	Alerts     Alerts     `yaml:"alerts"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		App: App{
			Name:        "arbwatch",
			MetricsAddr: ":9100",
			LogLevel:    "info",
		},
		Detector: Detector{
			SpreadThresholdPct: 1.0,
			ScanIntervalMs:     1000,
			MinVolume:          50,
			VolatilityFactor:   1.5,
			HistoryWindow:      10,
			LatencyThresholdMs: 1000,
		},
		Pipeline:   Pipeline{QueueSize: 1024},
		Redis:      Redis{Channel: "market_data"},
		Classifier: Classifier{Cutoff: 0.7, TimeoutMs: 2000},
		Alerts:     Alerts{Log: true, TimeoutMs: 5000},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct on top
// of the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyFloors()
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyFloors clamps values a misconfigured file could zero out.
func (c *Config) applyFloors() {
	if c.Detector.ScanIntervalMs <= 0 {
		c.Detector.ScanIntervalMs = 1000
	}
	if c.Detector.HistoryWindow <= 0 {
		c.Detector.HistoryWindow = 10
	}
	if c.Detector.VolatilityFactor <= 0 {
		c.Detector.VolatilityFactor = 1.5
	}
	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = 1024
	}
	if c.Classifier.Cutoff <= 0 || c.Classifier.Cutoff > 1 {
		c.Classifier.Cutoff = 0.7
	}
	if c.Classifier.TimeoutMs <= 0 {
		c.Classifier.TimeoutMs = 2000
	}
	if c.Alerts.TimeoutMs <= 0 {
		c.Alerts.TimeoutMs = 5000
	}
}
