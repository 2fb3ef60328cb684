// Package scan evaluates market-state snapshots on a fixed period and
// emits arbitrage signals that pass the profitability gate.
package scan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirlehmam/flashloan/internal/classify"
	"github.com/amirlehmam/flashloan/internal/market"
	"github.com/amirlehmam/flashloan/internal/metrics"
	"github.com/amirlehmam/flashloan/internal/store"
)

// Dispatcher receives finalized signals. Deliveries must not block the
// caller.
type Dispatcher interface {
	Dispatch(sig market.Signal)
}

// Config carries the detection thresholds.
type Config struct {
	SpreadThresholdPct float64
	ScanInterval       time.Duration
	MinVolume          float64
	VolatilityFactor   float64
	// LatencyThreshold only drives warn logging; stale quotes still
	// feed the spread so benign jitter cannot cause false negatives.
	LatencyThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.SpreadThresholdPct <= 0 {
		c.SpreadThresholdPct = 1.0
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Second
	}
	if c.VolatilityFactor <= 0 {
		c.VolatilityFactor = 1.5
	}
	if c.LatencyThreshold <= 0 {
		c.LatencyThreshold = time.Second
	}
	return c
}

// Scanner periodically snapshots the store and runs detection per
// asset. One scanner instance per process.
type Scanner struct {
	store      *store.Store
	classifier classify.Classifier
	dispatcher Dispatcher
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

// New builds a scanner. A nil classifier fails open via classify.Noop.
func New(st *store.Store, cls classify.Classifier, d Dispatcher, cfg Config, log zerolog.Logger) *Scanner {
	if cls == nil {
		cls = classify.Noop{}
	}
	return &Scanner{
		store:      st,
		classifier: cls,
		dispatcher: d,
		cfg:        cfg.withDefaults(),
		log:        log,
		now:        time.Now,
	}
}

// Run scans on the configured interval until ctx is canceled. A cycle
// in flight when cancellation lands still completes; no signal is
// emitted afterwards.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan runs one detection cycle over a fresh snapshot. At most one
// signal per asset per cycle; a failure evaluating one asset never
// aborts the others.
func (s *Scanner) Scan(ctx context.Context) {
	snapshot := s.store.Snapshot()
	for asset, state := range snapshot {
		// Abandon the in-flight cycle on shutdown; no signal may be
		// emitted once cancellation lands.
		if ctx.Err() != nil {
			return
		}
		sig, err := s.evaluate(ctx, asset, state)
		if err != nil {
			s.log.Warn().Err(err).Str("asset", asset).Msg("asset evaluation failed")
			continue
		}
		if sig == nil {
			continue
		}
		metrics.SignalsTotal.WithLabelValues(asset).Inc()
		s.dispatcher.Dispatch(*sig)
	}
	metrics.ScansTotal.Inc()
}

func (s *Scanner) evaluate(ctx context.Context, asset string, state store.AssetState) (*market.Signal, error) {
	now := s.now()

	eligible := make(map[string]market.Quote, len(state.Quotes))
	for src, q := range state.Quotes {
		if q.Volume >= s.cfg.MinVolume {
			eligible[src] = q
		}
	}
	if len(eligible) < 2 {
		return nil, nil
	}

	buySource, sellSource := extremes(eligible)
	buy, sell := eligible[buySource], eligible[sellSource]
	if buy.Price == 0 {
		return nil, nil
	}
	spreadPct := (sell.Price - buy.Price) / buy.Price * 100

	var volatilityPct *float64
	if cv, ok := coefficientOfVariation(state.History); ok {
		volatilityPct = &cv
	}

	var latencySum, minVolume float64
	first := true
	for src, q := range eligible {
		latency := now.Sub(q.ObservedAt)
		latencySum += latency.Seconds()
		if latency > s.cfg.LatencyThreshold {
			s.log.Warn().Str("asset", asset).Str("source", src).Dur("latency", latency).Msg("stale quote in scan")
		}
		if first || q.Volume < minVolume {
			minVolume = q.Volume
			first = false
		}
	}
	avgLatency := latencySum / float64(len(eligible))

	if spreadPct < s.cfg.SpreadThresholdPct {
		return nil, nil
	}
	if volatilityPct != nil && spreadPct < s.cfg.VolatilityFactor*(*volatilityPct) {
		return nil, nil
	}

	features := market.Features{
		SpreadPct:      spreadPct,
		MinVolume:      minVolume,
		LatencySeconds: avgLatency,
	}
	if volatilityPct != nil {
		features.VolatilityPct = *volatilityPct
	}
	confirmed, err := s.classifier.Score(ctx, features)
	if err != nil {
		// Fail closed for this asset and cycle only.
		metrics.ConfirmRejects.Inc()
		return nil, fmt.Errorf("classifier: %w", err)
	}
	if !confirmed {
		metrics.ConfirmRejects.Inc()
		s.log.Debug().Str("asset", asset).Float64("spread_pct", spreadPct).Msg("signal rejected by classifier")
		return nil, nil
	}

	return &market.Signal{
		Asset:             asset,
		BuySource:         buySource,
		SellSource:        sellSource,
		BuyPrice:          buy.Price,
		SellPrice:         sell.Price,
		SpreadPct:         spreadPct,
		VolatilityPct:     volatilityPct,
		AvgLatencySeconds: avgLatency,
		DetectedAt:        now,
	}, nil
}

// extremes picks the lowest- and highest-priced sources; ties break on
// source name so repeated scans of the same snapshot agree.
func extremes(quotes map[string]market.Quote) (buy, sell string) {
	sources := make([]string, 0, len(quotes))
	for src := range quotes {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	buy, sell = sources[0], sources[0]
	for _, src := range sources[1:] {
		if quotes[src].Price < quotes[buy].Price {
			buy = src
		}
		if quotes[src].Price > quotes[sell].Price {
			sell = src
		}
	}
	return buy, sell
}
