package feed

import "strings"

// Normalizer maps venue-specific symbols to the shared canonical asset
// symbol. The same asset from different venues must normalize to the
// same value or the scanner will never see them as comparable.
type Normalizer struct {
	aliases map[string]string
}

// DefaultNormalizer covers the venue spellings of the assets tracked
// out of the box.
func DefaultNormalizer() *Normalizer {
	return NewNormalizer(map[string]string{
		"BTCUSDT": "BTC",
		"BTC-USD": "BTC",
		"XBT/USD": "BTC",
		"ETHUSDT": "ETH",
		"ETH-USD": "ETH",
		"ETHBTC":  "ETH",
		"ETH/USD": "ETH",
	})
}

// NewNormalizer builds a normalizer over the given alias map; lookups
// are case-insensitive on the venue symbol.
func NewNormalizer(aliases map[string]string) *Normalizer {
	upper := make(map[string]string, len(aliases))
	for from, to := range aliases {
		upper[strings.ToUpper(from)] = to
	}
	return &Normalizer{aliases: upper}
}

// Extend merges additional aliases (config-supplied) over the defaults.
func (n *Normalizer) Extend(aliases map[string]string) *Normalizer {
	for from, to := range aliases {
		if from != "" && to != "" {
			n.aliases[strings.ToUpper(from)] = to
		}
	}
	return n
}

// Canonical returns the canonical asset for a venue symbol, or the
// trimmed upper-cased symbol itself when no alias is known.
func (n *Normalizer) Canonical(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if canonical, ok := n.aliases[sym]; ok {
		return canonical
	}
	return sym
}
