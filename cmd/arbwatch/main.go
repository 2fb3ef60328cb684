package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/amirlehmam/flashloan/internal/alert"
	"github.com/amirlehmam/flashloan/internal/bus"
	"github.com/amirlehmam/flashloan/internal/classify"
	"github.com/amirlehmam/flashloan/internal/config"
	"github.com/amirlehmam/flashloan/internal/feed"
	"github.com/amirlehmam/flashloan/internal/ingest"
	"github.com/amirlehmam/flashloan/internal/metrics"
	"github.com/amirlehmam/flashloan/internal/scan"
	"github.com/amirlehmam/flashloan/internal/store"
	"github.com/amirlehmam/flashloan/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/arbwatch.yaml", "path to YAML config")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st := store.New(cfg.Detector.HistoryWindow)
	pipeline := ingest.New(st, cfg.Pipeline.QueueSize, log)

	var producers sync.WaitGroup
	normalizer := feed.DefaultNormalizer().Extend(cfg.Feeds.AssetMap)
	for _, provider := range cfg.Feeds.Providers {
		opts := []feed.Option{feed.WithNormalizer(normalizer)}
		if provider == feed.ProviderChainlink {
			rpcURL := envOr("CHAINLINK_RPC_URL", cfg.Feeds.Chainlink.RPCURL)
			opts = append(opts,
				feed.WithChainlinkConfig(rpcURL, cfg.Feeds.Chainlink.Aggregator, cfg.Feeds.Chainlink.Asset),
				feed.WithPollInterval(time.Duration(cfg.Feeds.Chainlink.PollMs)*time.Millisecond),
			)
		}
		f := feed.NewFeed(provider, cfg.Feeds.Symbols, log, opts...)
		producers.Add(1)
		go func(f *feed.Feed) {
			defer producers.Done()
			if err := f.Run(ctx, pipeline.Out()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("provider", f.Provider()).Msg("feed stopped")
			}
		}(f)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		sub := bus.NewSubscriber(client, cfg.Redis.Channel, log)
		producers.Add(1)
		go func() {
			defer producers.Done()
			if err := sub.Run(ctx, pipeline.Out()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("bus subscriber stopped")
			}
		}()
		log.Info().Str("addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("tick bus subscribed")
	}

	var consumer sync.WaitGroup
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		pipeline.Run(ctx)
	}()

	var classifier classify.Classifier
	if cfg.Classifier.URL != "" {
		classifier = classify.NewHTTPScorer(
			cfg.Classifier.URL,
			cfg.Classifier.Cutoff,
			time.Duration(cfg.Classifier.TimeoutMs)*time.Millisecond,
		)
		log.Info().Str("url", cfg.Classifier.URL).Float64("cutoff", cfg.Classifier.Cutoff).Msg("confirmation model configured")
	}

	var sinks []alert.Sink
	if cfg.Alerts.Log {
		sinks = append(sinks, alert.LogSink{Log: log})
	}
	if url := envOr("WEBHOOK_URL", cfg.Alerts.WebhookURL); url != "" {
		sinks = append(sinks, alert.NewWebhookSink(url))
	}
	if e := cfg.Alerts.Email; e.Host != "" && e.From != "" && e.To != "" {
		sinks = append(sinks, alert.NewEmailSink(e.Host, e.Port, e.From, e.To, os.Getenv("SMTP_PASSWORD")))
	}
	dispatcher := alert.NewDispatcher(sinks, time.Duration(cfg.Alerts.TimeoutMs)*time.Millisecond, log)

	scanner := scan.New(st, classifier, dispatcher, scan.Config{
		SpreadThresholdPct: cfg.Detector.SpreadThresholdPct,
		ScanInterval:       time.Duration(cfg.Detector.ScanIntervalMs) * time.Millisecond,
		MinVolume:          cfg.Detector.MinVolume,
		VolatilityFactor:   cfg.Detector.VolatilityFactor,
		LatencyThreshold:   time.Duration(cfg.Detector.LatencyThresholdMs) * time.Millisecond,
	}, log)

	log.Info().Str("app", cfg.App.Name).Strs("providers", cfg.Feeds.Providers).Msg("engine started")
	scanner.Run(ctx)

	// Scanner returned: shutdown in progress. Producers stop on the
	// same context, the consumer drains the queue, deliveries finish.
	producers.Wait()
	consumer.Wait()
	dispatcher.Wait()
	log.Info().Msg("shutdown complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
