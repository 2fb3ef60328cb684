// Package store holds the in-memory market state: the latest quote per
// (asset, source) and a bounded recent-price history per asset.
package store

import (
	"sync"

	"github.com/amirlehmam/flashloan/internal/market"
)

// AssetState is the point-in-time view of one asset returned by Snapshot.
type AssetState struct {
	Quotes  map[string]market.Quote
	History []float64
}

type assetEntry struct {
	mu      sync.RWMutex
	quotes  map[string]market.Quote
	history []float64
}

// Store owns all mutable market state for the process lifetime. Updates
// are atomic per asset; cross-asset atomicity is not provided.
type Store struct {
	window int

	mu     sync.RWMutex
	assets map[string]*assetEntry
}

// New builds a Store keeping at most window prices of history per asset.
func New(window int) *Store {
	if window <= 0 {
		window = 10
	}
	return &Store{
		window: window,
		assets: make(map[string]*assetEntry),
	}
}

// Apply validates the tick, replaces the (asset, source) quote, and
// appends the price to the asset's history, evicting the oldest entry
// when the window is full. Invalid ticks are rejected with the
// validation error and leave the state untouched.
func (s *Store) Apply(tick market.Tick) error {
	if err := tick.Validate(); err != nil {
		return err
	}

	entry := s.entry(tick.Asset)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.quotes[tick.Source] = market.Quote{
		Price:      tick.Price,
		Volume:     tick.Volume,
		ObservedAt: tick.ObservedAt,
	}
	entry.history = append(entry.history, tick.Price)
	if len(entry.history) > s.window {
		entry.history = entry.history[len(entry.history)-s.window:]
	}
	return nil
}

// Snapshot returns a deep copy of every asset's quotes and history.
// Each asset is copied under its own lock, so no quote is ever observed
// mid-update; assets touched while the snapshot walks the registry may
// reflect either side of a concurrent Apply.
func (s *Store) Snapshot() map[string]AssetState {
	s.mu.RLock()
	entries := make(map[string]*assetEntry, len(s.assets))
	for asset, entry := range s.assets {
		entries[asset] = entry
	}
	s.mu.RUnlock()

	out := make(map[string]AssetState, len(entries))
	for asset, entry := range entries {
		entry.mu.RLock()
		quotes := make(map[string]market.Quote, len(entry.quotes))
		for src, q := range entry.quotes {
			quotes[src] = q
		}
		history := make([]float64, len(entry.history))
		copy(history, entry.history)
		entry.mu.RUnlock()
		out[asset] = AssetState{Quotes: quotes, History: history}
	}
	return out
}

// Assets returns the number of distinct assets seen so far.
func (s *Store) Assets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}

func (s *Store) entry(asset string) *assetEntry {
	s.mu.RLock()
	entry := s.assets[asset]
	s.mu.RUnlock()
	if entry != nil {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry = s.assets[asset]; entry == nil {
		entry = &assetEntry{quotes: make(map[string]market.Quote)}
		s.assets[asset] = entry
	}
	return entry
}
