// Package alert fans finalized signals out to configured notification
// sinks. Delivery is fire-and-forget from the scanner's perspective.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirlehmam/flashloan/internal/market"
	"github.com/amirlehmam/flashloan/internal/metrics"
)

// Sink delivers one signal to one transport.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, sig market.Signal) error
}

// Dispatcher runs each delivery on its own goroutine with a bounded
// timeout so a slow or failing sink never delays the next scan cycle or
// the other sinks.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher over zero or more sinks.
func NewDispatcher(sinks []Sink, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, log: log}
}

// Dispatch hands the signal to every sink and returns immediately.
func (d *Dispatcher) Dispatch(sig market.Signal) {
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := s.Deliver(ctx, sig); err != nil {
				metrics.AlertsTotal.WithLabelValues(s.Name(), "error").Inc()
				d.log.Warn().Err(err).Str("sink", s.Name()).Str("asset", sig.Asset).Msg("alert delivery failed")
				return
			}
			metrics.AlertsTotal.WithLabelValues(s.Name(), "ok").Inc()
		}(sink)
	}
}

// Wait blocks until in-flight deliveries finish; called on shutdown.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// FormatMessage renders the human-readable alert body shared by the
// webhook and email sinks.
func FormatMessage(sig market.Signal) string {
	vol := "n/a"
	if sig.VolatilityPct != nil {
		vol = fmt.Sprintf("%.2f%%", *sig.VolatilityPct)
	}
	return fmt.Sprintf(
		"Arbitrage signal: %s buy %s @ %.4f, sell %s @ %.4f (spread %.2f%%, volatility %s, latency %.3fs)",
		sig.Asset, sig.BuySource, sig.BuyPrice, sig.SellSource, sig.SellPrice,
		sig.SpreadPct, vol, sig.AvgLatencySeconds,
	)
}

// LogSink records the signal through the process logger.
type LogSink struct {
	Log zerolog.Logger
}

// Name identifies the sink in metrics and logs.
func (LogSink) Name() string { return "log" }

// Deliver writes one structured record per signal.
func (l LogSink) Deliver(_ context.Context, sig market.Signal) error {
	evt := l.Log.Info().
		Str("asset", sig.Asset).
		Str("buy", sig.BuySource).
		Str("sell", sig.SellSource).
		Float64("buy_px", sig.BuyPrice).
		Float64("sell_px", sig.SellPrice).
		Float64("spread_pct", sig.SpreadPct).
		Float64("avg_latency_s", sig.AvgLatencySeconds).
		Time("detected_at", sig.DetectedAt)
	if sig.VolatilityPct != nil {
		evt = evt.Float64("volatility_pct", *sig.VolatilityPct)
	}
	evt.Msg("arbitrage signal")
	return nil
}
