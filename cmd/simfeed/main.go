// simfeed runs the whole detection path against synthetic multi-venue
// ticks with permissive thresholds, printing signals through the log
// sink. With a Redis address configured it also publishes every
// synthetic tick onto the bus for a separately running engine.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amirlehmam/flashloan/internal/alert"
	"github.com/amirlehmam/flashloan/internal/bus"
	"github.com/amirlehmam/flashloan/internal/feed"
	"github.com/amirlehmam/flashloan/internal/ingest"
	"github.com/amirlehmam/flashloan/internal/market"
	"github.com/amirlehmam/flashloan/internal/scan"
	"github.com/amirlehmam/flashloan/internal/store"
	"github.com/amirlehmam/flashloan/internal/util"
)

func main() {
	symbols := flag.String("symbols", "BTC-USD,ETH-USD", "comma-separated symbols to simulate")
	spread := flag.Float64("spread", 0.1, "spread threshold percent")
	redisAddr := flag.String("redis", "", "optional Redis address to publish ticks to")
	flag.Parse()

	log := util.NewLogger("debug")
	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st := store.New(10)
	pipeline := ingest.New(st, 256, log)

	var publisher *bus.Publisher
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		publisher = bus.NewPublisher(client, "market_data")
		log.Info().Str("addr", *redisAddr).Msg("publishing ticks to bus")
	}

	f := feed.NewFeed(feed.ProviderStub, strings.Split(*symbols, ","), log)
	ticks := make(chan market.Tick, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := f.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
		}
	}()

	// Tee the synthetic ticks into the local pipeline and, when
	// configured, onto the bus.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case tk := <-ticks:
				if err := pipeline.Submit(ctx, tk); err != nil {
					return
				}
				if publisher != nil {
					if err := publisher.Publish(ctx, tk); err != nil && ctx.Err() == nil {
						log.Warn().Err(err).Msg("bus publish failed")
					}
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()

	dispatcher := alert.NewDispatcher([]alert.Sink{alert.LogSink{Log: log}}, time.Second, log)
	scanner := scan.New(st, nil, dispatcher, scan.Config{
		SpreadThresholdPct: *spread,
		ScanInterval:       2 * time.Second,
		MinVolume:          0,
		VolatilityFactor:   0.5,
	}, log)

	log.Info().Str("symbols", *symbols).Float64("spread_threshold", *spread).Msg("simulation started")
	scanner.Run(ctx)
	wg.Wait()
	dispatcher.Wait()
}
