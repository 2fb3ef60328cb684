// Package classify hosts the optional confirmation model boundary the
// scanner consults before emitting a signal.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amirlehmam/flashloan/internal/market"
)

// Classifier scores a candidate's feature vector. A false result or an
// error both suppress the signal; the scanner distinguishes the two
// only for logging.
type Classifier interface {
	Score(ctx context.Context, features market.Features) (bool, error)
}

// Noop always confirms. Wired when no model endpoint is configured so
// the confirmation step fails open.
type Noop struct{}

// Score confirms unconditionally.
func (Noop) Score(context.Context, market.Features) (bool, error) { return true, nil }

// HTTPScorer confirms a candidate when a model-serving endpoint reports
// a probability at or above the cutoff.
type HTTPScorer struct {
	url    string
	cutoff float64
	client *http.Client
}

// NewHTTPScorer builds a scorer against the given endpoint. A
// non-positive cutoff falls back to 0.7.
func NewHTTPScorer(url string, cutoff float64, timeout time.Duration) *HTTPScorer {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = 0.7
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPScorer{
		url:    url,
		cutoff: cutoff,
		client: &http.Client{Timeout: timeout},
	}
}

type scoreResponse struct {
	Probability float64 `json:"probability"`
}

// Score POSTs the feature vector as JSON and compares the returned
// probability against the cutoff. Any transport or decode failure is
// returned to the caller, which treats it as a rejection.
func (s *HTTPScorer) Score(ctx context.Context, features market.Features) (bool, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return false, fmt.Errorf("encode features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return payload.Probability >= s.cutoff, nil
}
