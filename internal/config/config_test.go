package config

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "arbwatch-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.LogLevel != "debug" {
		t.Fatalf("unexpected App.LogLevel: %s", cfg.App.LogLevel)
	}
	if cfg.Detector.SpreadThresholdPct != 0.5 {
		t.Fatalf("unexpected spread threshold: %.2f", cfg.Detector.SpreadThresholdPct)
	}
	if cfg.Detector.ScanIntervalMs != 250 {
		t.Fatalf("unexpected scan interval: %d", cfg.Detector.ScanIntervalMs)
	}
	if cfg.Detector.MinVolume != 25 {
		t.Fatalf("unexpected min volume: %.2f", cfg.Detector.MinVolume)
	}
	if cfg.Detector.VolatilityFactor != 2.0 {
		t.Fatalf("unexpected volatility factor: %.2f", cfg.Detector.VolatilityFactor)
	}
	if cfg.Detector.HistoryWindow != 5 {
		t.Fatalf("unexpected history window: %d", cfg.Detector.HistoryWindow)
	}
	if cfg.Pipeline.QueueSize != 64 {
		t.Fatalf("unexpected queue size: %d", cfg.Pipeline.QueueSize)
	}
	if len(cfg.Feeds.Providers) != 2 || cfg.Feeds.Providers[1] != "binance" {
		t.Fatalf("unexpected providers: %+v", cfg.Feeds.Providers)
	}
	if cfg.Feeds.AssetMap["ETHBTC"] != "ETH" {
		t.Fatalf("unexpected asset map: %+v", cfg.Feeds.AssetMap)
	}
	if cfg.Feeds.Chainlink.Aggregator == "" || cfg.Feeds.Chainlink.PollMs != 5000 {
		t.Fatalf("unexpected chainlink config: %+v", cfg.Feeds.Chainlink)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Channel != "market_data" || cfg.Redis.DB != 1 {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Classifier.URL == "" || cfg.Classifier.Cutoff != 0.8 {
		t.Fatalf("unexpected classifier config: %+v", cfg.Classifier)
	}
	if !cfg.Alerts.Log || cfg.Alerts.WebhookURL == "" {
		t.Fatalf("unexpected alerts config: %+v", cfg.Alerts)
	}
	if cfg.Alerts.Email.Host != "smtp.example.com" || cfg.Alerts.Email.Port != 587 {
		t.Fatalf("unexpected email config: %+v", cfg.Alerts.Email)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Detector.SpreadThresholdPct != 1.0 {
		t.Fatalf("unexpected default spread threshold: %.2f", cfg.Detector.SpreadThresholdPct)
	}
	if cfg.Detector.MinVolume != 50 {
		t.Fatalf("unexpected default min volume: %.2f", cfg.Detector.MinVolume)
	}
	if cfg.Detector.VolatilityFactor != 1.5 {
		t.Fatalf("unexpected default volatility factor: %.2f", cfg.Detector.VolatilityFactor)
	}
	if cfg.Detector.HistoryWindow != 10 {
		t.Fatalf("unexpected default history window: %d", cfg.Detector.HistoryWindow)
	}
	if cfg.Classifier.Cutoff != 0.7 {
		t.Fatalf("unexpected default cutoff: %.2f", cfg.Classifier.Cutoff)
	}
}

func TestApplyFloors(t *testing.T) {
	cfg := &Config{}
	cfg.applyFloors()
	if cfg.Detector.ScanIntervalMs != 1000 {
		t.Fatalf("expected scan interval floor, got %d", cfg.Detector.ScanIntervalMs)
	}
	if cfg.Detector.HistoryWindow != 10 {
		t.Fatalf("expected history window floor, got %d", cfg.Detector.HistoryWindow)
	}
	if cfg.Pipeline.QueueSize != 1024 {
		t.Fatalf("expected queue size floor, got %d", cfg.Pipeline.QueueSize)
	}
	if cfg.Classifier.Cutoff != 0.7 {
		t.Fatalf("expected cutoff floor, got %.2f", cfg.Classifier.Cutoff)
	}
}
