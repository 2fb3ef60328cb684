package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amirlehmam/flashloan/internal/market"
)

func tick(source, asset string, price, volume float64) market.Tick {
	return market.Tick{
		Source:     source,
		Asset:      asset,
		Price:      price,
		Volume:     volume,
		ObservedAt: time.Now(),
	}
}

func TestApplyRejectsInvalid(t *testing.T) {
	s := New(10)
	cases := []market.Tick{
		{Asset: "BTC", Price: 1, Volume: 1, ObservedAt: time.Now()},
		{Source: "binance", Price: 1, Volume: 1, ObservedAt: time.Now()},
		{Source: "binance", Asset: "BTC", Price: 0, Volume: 1, ObservedAt: time.Now()},
		{Source: "binance", Asset: "BTC", Price: 1, Volume: -1, ObservedAt: time.Now()},
		{Source: "binance", Asset: "BTC", Price: 1, Volume: 1},
	}
	for i, tk := range cases {
		if err := s.Apply(tk); err == nil {
			t.Fatalf("case %d: expected rejection", i)
		}
	}
	if s.Assets() != 0 {
		t.Fatalf("rejected ticks must not create assets, got %d", s.Assets())
	}
}

func TestLastWriteWins(t *testing.T) {
	s := New(10)
	if err := s.Apply(tick("binance", "BTC", 50000, 100)); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if err := s.Apply(tick("binance", "BTC", 50100, 150)); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	snap := s.Snapshot()
	quote, ok := snap["BTC"].Quotes["binance"]
	if !ok {
		t.Fatalf("expected binance quote for BTC")
	}
	if quote.Price != 50100 || quote.Volume != 150 {
		t.Fatalf("expected latest tick values, got %+v", quote)
	}
}

func TestBoundedHistory(t *testing.T) {
	const window = 5
	s := New(window)
	for i := 0; i < 12; i++ {
		if err := s.Apply(tick("binance", "ETH", 3000+float64(i), 10)); err != nil {
			t.Fatalf("Apply returned error: %v", err)
		}
	}

	history := s.Snapshot()["ETH"].History
	if len(history) != window {
		t.Fatalf("expected history length %d, got %d", window, len(history))
	}
	for i, px := range history {
		want := 3000 + float64(12-window+i)
		if px != want {
			t.Fatalf("history[%d]: expected %.0f, got %.0f", i, want, px)
		}
	}
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	s := New(10)
	if err := s.Apply(tick("binance", "BTC", 50000, 100)); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	snap := s.Snapshot()
	if err := s.Apply(tick("binance", "BTC", 60000, 100)); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if snap["BTC"].Quotes["binance"].Price != 50000 {
		t.Fatalf("snapshot mutated by later Apply")
	}
	if len(snap["BTC"].History) != 1 {
		t.Fatalf("snapshot history mutated by later Apply")
	}
}

func TestConcurrentApplySnapshotConsistency(t *testing.T) {
	s := New(10)
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Writers encode a per-tick marker into both price and volume so a
	// torn quote is detectable as a mismatch between the two fields.
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			for i := 1; ; i++ {
				select {
				case <-done:
					return
				default:
				}
				marker := float64(i)
				_ = s.Apply(tick(source, "BTC", marker*10, marker))
			}
		}(fmt.Sprintf("venue-%d", w))
	}

	for i := 0; i < 200; i++ {
		snap := s.Snapshot()
		for src, q := range snap["BTC"].Quotes {
			if q.Price != q.Volume*10 {
				close(done)
				wg.Wait()
				t.Fatalf("torn quote from %s: price=%.0f volume=%.0f", src, q.Price, q.Volume)
			}
		}
	}
	close(done)
	wg.Wait()
}
