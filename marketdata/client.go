// Package marketdata is a thin HTTP client for the quote and
// fundamentals endpoints of a market data API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Config configures the API client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client // optional; defaults to a client with a request timeout
}

// Client fetches quotes and fundamentals. It performs no retries;
// transient failures surface to the caller unchanged.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient builds a client for the given API. The base URL is
// required; the API key may be empty for unauthenticated endpoints.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("marketdata: base URL is required")
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   httpc,
	}, nil
}

// Quote is a price snapshot for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PreviousClose float64   `json:"previous_close"`
	Volume        int64     `json:"volume"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// Fundamentals is the reported statement for a symbol's most recent
// period.
type Fundamentals struct {
	Symbol             string  `json:"symbol"`
	Period             string  `json:"period"`
	Currency           string  `json:"currency"`
	Revenue            float64 `json:"revenue"`
	CostOfRevenue      float64 `json:"cost_of_revenue"`
	OperatingIncome    float64 `json:"operating_income"`
	NetIncome          float64 `json:"net_income"`
	InterestExpense    float64 `json:"interest_expense"`
	CurrentAssets      float64 `json:"current_assets"`
	CurrentLiabilities float64 `json:"current_liabilities"`
	Cash               float64 `json:"cash"`
	Inventory          float64 `json:"inventory"`
	TotalAssets        float64 `json:"total_assets"`
	TotalLiabilities   float64 `json:"total_liabilities"`
	TotalDebt          float64 `json:"total_debt"`
	ShareholderEquity  float64 `json:"shareholder_equity"`
	SharesOutstanding  float64 `json:"shares_outstanding"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("marketdata: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("marketdata: %s (status %d)", e.Message, e.StatusCode)
}

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("marketdata: symbol is empty")
	}
	return s, nil
}

// Quote fetches the current quote for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	var q Quote
	if err := c.get(ctx, "/v1/quote/"+url.PathEscape(sym), &q); err != nil {
		return nil, err
	}
	if q.Symbol == "" {
		q.Symbol = sym
	}
	return &q, nil
}

// Fundamentals fetches the most recent reported statement for a symbol.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	var f Fundamentals
	if err := c.get(ctx, "/v1/fundamentals/"+url.PathEscape(sym), &f); err != nil {
		return nil, err
	}
	if f.Symbol == "" {
		f.Symbol = sym
	}
	return &f, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("marketdata: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("marketdata: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("marketdata: decode response: %w", err)
	}
	return nil
}

// apiError reads a failed response's body, preferring the structured
// {"error": "..."} shape and falling back to the raw text.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
