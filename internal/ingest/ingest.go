// Package ingest decouples concurrent source connectors from the single
// state mutation path through a bounded queue.
package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/amirlehmam/flashloan/internal/market"
	"github.com/amirlehmam/flashloan/internal/metrics"
	"github.com/amirlehmam/flashloan/internal/store"
)

// Pipeline funnels ticks from many producers into one consumer that
// applies them to the store. Producers block when the queue is full;
// completeness of the detection input beats producer throughput.
type Pipeline struct {
	queue chan market.Tick
	store *store.Store
	log   zerolog.Logger
}

// New builds a pipeline with the given queue capacity.
func New(st *store.Store, queueSize int, log zerolog.Logger) *Pipeline {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Pipeline{
		queue: make(chan market.Tick, queueSize),
		store: st,
		log:   log,
	}
}

// Submit enqueues one tick, blocking while the queue is full. Returns
// the context error once the caller is canceled.
func (p *Pipeline) Submit(ctx context.Context, tick market.Tick) error {
	select {
	case p.queue <- tick:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Out exposes the queue for connectors that push directly onto a
// channel (Feed.Run takes a chan<- market.Tick).
func (p *Pipeline) Out() chan<- market.Tick { return p.queue }

// Run consumes ticks in FIFO order and applies them to the store until
// ctx is canceled, then drains whatever is already queued. Validation
// failures are counted and logged, never fatal.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case tick := <-p.queue:
			p.apply(tick)
		}
	}
}

func (p *Pipeline) drain() {
	for {
		select {
		case tick := <-p.queue:
			p.apply(tick)
		default:
			metrics.QueueDepth.Set(0)
			return
		}
	}
}

func (p *Pipeline) apply(tick market.Tick) {
	metrics.QueueDepth.Set(float64(len(p.queue)))
	if err := p.store.Apply(tick); err != nil {
		metrics.TicksRejected.WithLabelValues(err.Error()).Inc()
		p.log.Warn().Err(err).Str("source", tick.Source).Str("asset", tick.Asset).Msg("tick rejected")
		return
	}
	metrics.TicksTotal.WithLabelValues(tick.Source).Inc()
}
