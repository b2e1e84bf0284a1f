// Package ledger bridges imported transactions to an external double-entry
// accounting service (§4.3). The adapter is idempotent: accounts and
// transactions are resolved or created exactly once, with a process-local
// cache and a persistent mapping table as the two layers of deduplication.
package ledger

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

// Client is a thin HTTP client for the external ledger service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a ledger Client.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "ledger").Logger(),
	}
}

// Account is a ledger account as returned by the external service.
type Account struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Balance float64 `json:"balance"`
}

// CreateAccountRequest is the payload for account creation.
type CreateAccountRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
}

// CreateTransactionRequest is the payload for transaction creation.
type CreateTransactionRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// ListAccounts returns every account known to the ledger.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateAccount creates a new ledger account.
func (c *Client) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodPost, "/accounts", req, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// CreateTransaction creates a new ledger transaction. The caller is
// responsible for interpreting duplicate-detection errors returned by the
// ledger service (§4.3.2 treats "duplicate" substring matches specially).
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) error {
	return c.do(ctx, http.MethodPost, "/transactions", req, nil)
}

// UpdateAccountBalance pushes a best-effort balance update.
func (c *Client) UpdateAccountBalance(ctx context.Context, accountID string, balance float64, asOf string) error {
	body := map[string]interface{}{"balance": balance, "as_of": asOf}
	return c.do(ctx, http.MethodPatch, "/accounts/"+accountID+"/balance", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal ledger request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ledger returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode ledger response: %w", err)
		}
	}
	return nil
}
