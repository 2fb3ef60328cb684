package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/amirlehmam/flashloan/internal/market"
)

// latestRoundDataSelector is the 4-byte selector of the Chainlink
// aggregator's latestRoundData() view.
const latestRoundDataSelector = "0xfeaf968c"

// chainlinkScale converts the aggregator's int256 answer (scaled by
// 10^8) into a quote-currency price.
const chainlinkScale = 1e8

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *Feed) runChainlink(ctx context.Context, out chan<- market.Tick) error {
	if f.rpcURL == "" || f.aggregator == "" {
		return errors.New("chainlink feed requires rpc url and aggregator address")
	}
	client := &http.Client{Timeout: 10 * time.Second}

	if err := f.pollChainlink(ctx, client, out); err != nil && !errors.Is(err, context.Canceled) {
		f.log.Warn().Err(err).Msg("initial chainlink poll failed")
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.pollChainlink(ctx, client, out); err != nil && !errors.Is(err, context.Canceled) {
				f.log.Warn().Err(err).Msg("chainlink poll failed")
			}
		}
	}
}

func (f *Feed) pollChainlink(ctx context.Context, client *http.Client, out chan<- market.Tick) error {
	price, updatedAt, err := f.fetchLatestRound(ctx, client)
	if err != nil {
		return err
	}

	observed := time.Now()
	if !updatedAt.IsZero() {
		observed = updatedAt
	}
	asset := f.onchainAsset
	if asset == "" && len(f.symbols) > 0 {
		asset = f.normalizer.Canonical(f.symbols[0])
	}

	tick := market.Tick{
		Source:     ProviderChainlink,
		Asset:      asset,
		Price:      price,
		Volume:     0, // aggregators report no trading volume
		ObservedAt: observed,
	}
	select {
	case out <- tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) fetchLatestRound(ctx context.Context, client *http.Client) (float64, time.Time, error) {
	call := map[string]string{"to": f.aggregator, "data": latestRoundDataSelector}
	payload := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_call", Params: []any{call, "latest"}}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.rpcURL, bytes.NewReader(body))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, time.Time{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return 0, time.Time{}, fmt.Errorf("decode response: %w", err)
	}
	if rpc.Error != nil {
		return 0, time.Time{}, fmt.Errorf("rpc error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}
	return decodeLatestRoundData(rpc.Result)
}

// decodeLatestRoundData unpacks the ABI-encoded
// (roundId, answer, startedAt, updatedAt, answeredInRound) tuple.
func decodeLatestRoundData(result string) (float64, time.Time, error) {
	hex := strings.TrimPrefix(result, "0x")
	if len(hex) < 5*64 {
		return 0, time.Time{}, fmt.Errorf("short eth_call result: %d hex chars", len(hex))
	}

	answer, ok := new(big.Int).SetString(hex[64:128], 16)
	if !ok {
		return 0, time.Time{}, errors.New("malformed answer word")
	}
	updated, ok := new(big.Int).SetString(hex[192:256], 16)
	if !ok {
		return 0, time.Time{}, errors.New("malformed updatedAt word")
	}

	price, _ := new(big.Float).Quo(new(big.Float).SetInt(answer), big.NewFloat(chainlinkScale)).Float64()
	if price <= 0 {
		return 0, time.Time{}, fmt.Errorf("non-positive aggregator answer %s", answer)
	}

	var updatedAt time.Time
	if updated.IsInt64() && updated.Int64() > 0 {
		updatedAt = time.Unix(updated.Int64(), 0)
	}
	return price, updatedAt, nil
}
