// Package aggregator bridges to the hosted multi-institution bank-sync API
// (§4.4): a delta-sync protocol driven by opaque cursors and a webhook
// channel, sitting behind a thin HTTP client in the teacher's tradernet
// client shape.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a thin HTTP client for the aggregator API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	env          string
	webhookURL   string
	http         *http.Client
	log          zerolog.Logger
}

// NewClient builds an aggregator Client. baseURL defaults to a sandbox host
// when empty, so local/dev environments can run against a stub. webhookURL,
// when set, is attached to every new link token so the aggregator knows
// where to POST transaction/item webhooks for links created through it.
func NewClient(baseURL, clientID, clientSecret, env, webhookURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://sandbox.aggregator.example.com"
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		env:          env,
		webhookURL:   webhookURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log.With().Str("client", "aggregator").Logger(),
	}
}

// Transaction is one entry in a sync page's added/modified/removed lists.
type Transaction struct {
	TransactionID     string   `json:"transaction_id"`
	ExternalAccountID string   `json:"account_id"`
	Amount            float64  `json:"amount"`
	Name              string   `json:"name"`
	Merchant          string   `json:"merchant_name"`
	Categories        []string `json:"categories"`
	Date              string   `json:"date"`
	Pending           bool     `json:"pending"`
}

// RemovedTransaction identifies a transaction to delete.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// SyncPage is one page of transactions/sync.
type SyncPage struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// AccountBalance is one account's current balance snapshot.
type AccountBalance struct {
	ExternalAccountID string   `json:"account_id"`
	Name              string   `json:"name"`
	Current           float64  `json:"current"`
	Available         *float64 `json:"available,omitempty"`
}

// LinkTokenResponse carries the opaque token the client SDK exchanges for a
// public token after the user completes the link flow.
type LinkTokenResponse struct {
	LinkToken string `json:"link_token"`
	Expires   string `json:"expiration"`
}

// ExchangeResponse carries the access token and stable item id returned
// after exchanging a public token.
type ExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// CreateLinkToken starts a new link flow for userID.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (*LinkTokenResponse, error) {
	var out LinkTokenResponse
	body := map[string]string{"client_user_id": userID}
	if c.webhookURL != "" {
		body["webhook"] = c.webhookURL
	}
	if err := c.do(ctx, http.MethodPost, "/link/token/create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangePublicToken swaps a public token for a long-lived access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error) {
	var out ExchangeResponse
	body := map[string]string{"public_token": publicToken}
	if err := c.do(ctx, http.MethodPost, "/item/public_token/exchange", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncTransactions calls transactions/sync once with the given cursor and a
// page size of at most 500, per §4.4 step 2.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error) {
	var out SyncPage
	body := map[string]interface{}{
		"access_token": accessToken,
		"cursor":       cursor,
		"count":        500,
	}
	if err := c.do(ctx, http.MethodPost, "/transactions/sync", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountBalances pulls current balances for every account under an item.
func (c *Client) AccountBalances(ctx context.Context, accessToken string) ([]AccountBalance, error) {
	var out struct {
		Accounts []AccountBalance `json:"accounts"`
	}
	body := map[string]string{"access_token": accessToken}
	if err := c.do(ctx, http.MethodPost, "/accounts/balance/get", body, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// RemoveItem revokes access to a linked item.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	body := map[string]string{"access_token": accessToken}
	return c.do(ctx, http.MethodPost, "/item/remove", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal aggregator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build aggregator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("FINHUB-CLIENT-ID", c.clientID)
	req.Header.Set("FINHUB-CLIENT-SECRET", c.clientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("aggregator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode aggregator response: %w", err)
		}
	}
	return nil
}
