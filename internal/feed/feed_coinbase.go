package feed

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amirlehmam/flashloan/internal/market"
)

const coinbaseFeedURL = "wss://ws-feed.exchange.coinbase.com"

type coinbaseSubscribe struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type coinbaseTicker struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Volume24h string `json:"volume_24h"`
	Time      string `json:"time"` // RFC3339, may be empty
}

func (f *Feed) runCoinbase(ctx context.Context, out chan<- market.Tick) error {
	url := f.wsURL
	if url == "" {
		url = coinbaseFeedURL
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeCoinbaseStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("coinbase feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeCoinbaseStream(ctx context.Context, url string, out chan<- market.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := coinbaseSubscribe{Type: "subscribe", ProductIDs: f.symbols, Channels: []string{"ticker"}}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	f.log.Info().Str("provider", ProviderCoinbase).Strs("products", f.symbols).Msg("connected market data feed")
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var tkr coinbaseTicker
		if err := json.Unmarshal(message, &tkr); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode coinbase message")
			continue
		}
		if tkr.Type != "ticker" || tkr.Price == "" {
			continue
		}

		px, err := strconv.ParseFloat(tkr.Price, 64)
		if err != nil {
			f.log.Warn().Err(err).Str("product", tkr.ProductID).Msg("invalid price from coinbase")
			continue
		}
		vol := 0.0
		if tkr.Volume24h != "" {
			if v, err := strconv.ParseFloat(tkr.Volume24h, 64); err == nil {
				vol = v
			}
		}
		// Best-effort observation time: the venue timestamp when it
		// parses, receipt time otherwise.
		observed := time.Now()
		if tkr.Time != "" {
			if ts, err := time.Parse(time.RFC3339, tkr.Time); err == nil {
				observed = ts
			}
		}

		tick := market.Tick{
			Source:     ProviderCoinbase,
			Asset:      f.normalizer.Canonical(tkr.ProductID),
			Price:      px,
			Volume:     vol,
			ObservedAt: observed,
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
