package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// HTTPSource implements PriceSource against a configured third-party
// property-valuation API, in the same thin-client shape as the aggregator
// and ledger clients.
type HTTPSource struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewHTTPSource builds an HTTPSource. apiKey must be non-empty; callers
// leave the Refresher's source nil instead of constructing one when no
// property-valuation provider is configured.
func NewHTTPSource(baseURL, apiKey string, log zerolog.Logger) *HTTPSource {
	if baseURL == "" {
		baseURL = "https://api.propertyvaluation.example.com"
	}
	return &HTTPSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "property_valuation_source").Logger(),
	}
}

type estimateResponse struct {
	EstimatedValue float64 `json:"estimated_value"`
}

// Estimate looks up the current estimated value of the property at
// address.
func (s *HTTPSource) Estimate(ctx context.Context, address string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/estimate?address=%s", s.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build valuation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("valuation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("valuation provider returned %d", resp.StatusCode)
	}

	var out estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode valuation response: %w", err)
	}
	return out.EstimatedValue, nil
}
