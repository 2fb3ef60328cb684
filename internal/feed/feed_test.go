package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amirlehmam/flashloan/internal/market"
)

func TestStubFeedEmitsAllVenues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ProviderStub, []string{"BTC-USD"}, zerolog.Nop())
	ticks := make(chan market.Tick, 16)
	go func() {
		_ = f.Run(ctx, ticks)
	}()

	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for len(seen) < len(stubVenues) {
		select {
		case tk := <-ticks:
			if tk.Asset != "BTC" {
				t.Fatalf("expected canonical asset BTC, got %s", tk.Asset)
			}
			if err := tk.Validate(); err != nil {
				t.Fatalf("stub emitted invalid tick: %v", err)
			}
			seen[tk.Source] = true
		case <-deadline:
			t.Fatalf("timed out; venues seen: %v", seen)
		}
	}
}

func TestBinanceStreamDecodesTicker(t *testing.T) {
	upgrader := websocket.Upgrader{}
	payload := `[{"s":"BTCUSDT","c":"50000.5","v":"1234.5","E":1700000000000},` +
		`{"s":"DOGEUSDT","c":"0.1","v":"9","E":1700000000000}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop(), WithWebsocketURL(wsURL))
	ticks := make(chan market.Tick, 4)
	go func() {
		_ = f.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Source != ProviderBinance {
			t.Fatalf("unexpected source %s", tk.Source)
		}
		if tk.Asset != "BTC" {
			t.Fatalf("expected BTC after normalization, got %s", tk.Asset)
		}
		if tk.Price != 50000.5 || tk.Volume != 1234.5 {
			t.Fatalf("unexpected tick values: %+v", tk)
		}
		if tk.ObservedAt.UnixMilli() != 1700000000000 {
			t.Fatalf("expected event time carried over, got %s", tk.ObservedAt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for binance tick")
	}

	// The untracked DOGE ticker must have been filtered out.
	select {
	case tk := <-ticks:
		t.Fatalf("unexpected extra tick: %+v", tk)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCoinbaseStreamDecodesTicker(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Expect the subscribe message first.
		var sub coinbaseSubscribe
		if err := conn.ReadJSON(&sub); err != nil || sub.Type != "subscribe" {
			return
		}
		msg := `{"type":"ticker","product_id":"ETH-USD","price":"3000.25","volume_24h":"500","time":"2024-01-02T15:04:05Z"}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ProviderCoinbase, []string{"ETH-USD"}, zerolog.Nop(), WithWebsocketURL(wsURL))
	ticks := make(chan market.Tick, 4)
	go func() {
		_ = f.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Source != ProviderCoinbase || tk.Asset != "ETH" {
			t.Fatalf("unexpected tick identity: %+v", tk)
		}
		if tk.Price != 3000.25 || tk.Volume != 500 {
			t.Fatalf("unexpected tick values: %+v", tk)
		}
		want, _ := time.Parse(time.RFC3339, "2024-01-02T15:04:05Z")
		if !tk.ObservedAt.Equal(want) {
			t.Fatalf("expected venue timestamp, got %s", tk.ObservedAt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for coinbase tick")
	}
}

func TestChainlinkPollEmitsTick(t *testing.T) {
	// 5 ABI words: roundId=1, answer=3000*1e8, startedAt=0,
	// updatedAt set, answeredInRound=1.
	result := "0x" +
		"0000000000000000000000000000000000000000000000000000000000000001" +
		"00000000000000000000000000000000000000000000000000000045d964b800" +
		"0000000000000000000000000000000000000000000000000000000000000000" +
		"0000000000000000000000000000000000000000000000000000000065524100" +
		"0000000000000000000000000000000000000000000000000000000000000001"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"` + result + `"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeed(ProviderChainlink, nil, zerolog.Nop(),
		WithChainlinkConfig(server.URL, "0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419", "ETH"),
		WithPollInterval(50*time.Millisecond),
	)
	ticks := make(chan market.Tick, 1)
	errCh := make(chan error, 1)
	go func() {
		if err := f.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case tk := <-ticks:
		if tk.Source != ProviderChainlink || tk.Asset != "ETH" {
			t.Fatalf("unexpected tick identity: %+v", tk)
		}
		if tk.Price != 3000 {
			t.Fatalf("expected price 3000, got %f", tk.Price)
		}
		if tk.Volume != 0 {
			t.Fatalf("expected zero volume, got %f", tk.Volume)
		}
		cancel()
	case <-time.After(3 * time.Second):
		cancel()
		t.Fatal("timed out waiting for chainlink tick")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("feed returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("feed did not stop after cancel")
	}
}

func TestChainlinkRequiresConfig(t *testing.T) {
	f := NewFeed(ProviderChainlink, nil, zerolog.Nop())
	if err := f.Run(context.Background(), make(chan market.Tick)); err == nil {
		t.Fatal("expected error without rpc configuration")
	}
}

func TestDecodeLatestRoundData(t *testing.T) {
	if _, _, err := decodeLatestRoundData("0x1234"); err == nil {
		t.Fatal("expected error for short result")
	}
}

func TestNormalizer(t *testing.T) {
	n := DefaultNormalizer()
	cases := map[string]string{
		"BTCUSDT": "BTC",
		"btc-usd": "BTC",
		"ETH-USD": "ETH",
		"XBT/USD": "BTC",
		" SOLUSD": "SOLUSD",
	}
	for in, want := range cases {
		if got := n.Canonical(in); got != want {
			t.Fatalf("Canonical(%q): expected %s, got %s", in, want, got)
		}
	}

	n.Extend(map[string]string{"SOLUSD": "SOL"})
	if got := n.Canonical("solusd"); got != "SOL" {
		t.Fatalf("expected extended alias SOL, got %s", got)
	}
}
