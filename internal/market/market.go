// Package market standardizes payloads shared between source connectors,
// the state store, and the scanner.
package market

import (
	"errors"
	"time"
)

// Validation failures reported by Tick.Validate. The ingestion pipeline
// counts rejects by these reasons.
var (
	ErrMissingSource = errors.New("tick missing source")
	ErrMissingAsset  = errors.New("tick missing asset")
	ErrBadPrice      = errors.New("tick price must be positive")
	ErrBadVolume     = errors.New("tick volume must be non-negative")
	ErrMissingTime   = errors.New("tick missing observation time")
)

// Tick is one normalized price/volume observation for an asset from a
// single source. Connectors map venue-specific symbols to the canonical
// asset before constructing one.
type Tick struct {
	Source     string
	Asset      string
	Price      float64
	Volume     float64
	ObservedAt time.Time
}

// Validate checks the canonical tick contract. A tick failing any rule
// must never reach the state store.
func (t Tick) Validate() error {
	if t.Source == "" {
		return ErrMissingSource
	}
	if t.Asset == "" {
		return ErrMissingAsset
	}
	if t.Price <= 0 {
		return ErrBadPrice
	}
	if t.Volume < 0 {
		return ErrBadVolume
	}
	if t.ObservedAt.IsZero() {
		return ErrMissingTime
	}
	return nil
}

// Quote is the most recent valid observation from one source for one
// asset. Replaced wholesale on every new tick, never field by field.
type Quote struct {
	Price      float64
	Volume     float64
	ObservedAt time.Time
}

// Signal is a detected, gate-passing, confirmed pricing discrepancy.
// VolatilityPct is nil when the asset's history was too short to
// estimate dispersion.
type Signal struct {
	Asset             string
	BuySource         string
	SellSource        string
	BuyPrice          float64
	SellPrice         float64
	SpreadPct         float64
	VolatilityPct     *float64
	AvgLatencySeconds float64
	DetectedAt        time.Time
}

// Features is the fixed-shape vector handed to the confirmation
// classifier. VolatilityPct is zero when volatility was absent.
type Features struct {
	SpreadPct      float64 `json:"spread_percentage"`
	VolatilityPct  float64 `json:"volatility"`
	MinVolume      float64 `json:"volume"`
	LatencySeconds float64 `json:"latency"`
}
