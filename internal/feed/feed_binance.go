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

const binanceTickerURL = "wss://stream.binance.com:9443/ws/!ticker@arr"

// binanceTicker is one entry of the !ticker@arr payload.
type binanceTicker struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	Volume    string `json:"v"`
	EventTime int64  `json:"E"` // milliseconds
}

func (f *Feed) runBinance(ctx context.Context, out chan<- market.Tick) error {
	url := f.wsURL
	if url == "" {
		url = binanceTickerURL
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("binance feed disconnected, retrying")
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

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- market.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Msg("connected market data feed")

	conn.SetReadLimit(1 << 22)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	tracked := make(map[string]struct{}, len(f.symbols))
	for _, sym := range f.symbols {
		tracked[f.normalizer.Canonical(sym)] = struct{}{}
	}

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

		var tickers []binanceTicker
		if err := json.Unmarshal(message, &tickers); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}

		received := time.Now()
		for _, tkr := range tickers {
			asset := f.normalizer.Canonical(tkr.Symbol)
			if len(tracked) > 0 {
				if _, ok := tracked[asset]; !ok {
					continue
				}
			}
			px, err := strconv.ParseFloat(tkr.LastPrice, 64)
			if err != nil {
				f.log.Warn().Err(err).Str("symbol", tkr.Symbol).Msg("invalid price from binance")
				continue
			}
			vol, err := strconv.ParseFloat(tkr.Volume, 64)
			if err != nil {
				f.log.Warn().Err(err).Str("symbol", tkr.Symbol).Msg("invalid volume from binance")
				continue
			}
			observed := received
			if tkr.EventTime > 0 {
				observed = time.UnixMilli(tkr.EventTime)
			}
			tick := market.Tick{
				Source:     ProviderBinance,
				Asset:      asset,
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
}
