package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	return c
}

func TestQuote(t *testing.T) {
	stamp := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/quote/AAPL", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"symbol": "AAPL", "price": 231.40, "change": -1.25,
			"change_percent": -0.54, "previous_close": 232.65,
			"volume": 48123900, "currency": "USD",
			"timestamp": "2026-03-02T21:00:00Z"
		}`))
	})

	q, err := c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.InDelta(t, 231.40, q.Price, 1e-9)
	assert.InDelta(t, -0.54, q.ChangePercent, 1e-9)
	assert.Equal(t, int64(48123900), q.Volume)
	assert.Equal(t, "USD", q.Currency)
	assert.True(t, q.Timestamp.Equal(stamp))
}

func TestQuoteNormalizesSymbol(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"price": 10}`))
	})

	q, err := c.Quote(context.Background(), "  aapl ")
	require.NoError(t, err)
	assert.Equal(t, "/v1/quote/AAPL", gotPath)
	// The symbol is filled in when the response omits it.
	assert.Equal(t, "AAPL", q.Symbol)
}

func TestQuoteEmptySymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an empty symbol")
	})

	_, err := c.Quote(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol is empty")
}

func TestQuoteAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "unknown symbol ZZZZ"}`))
	})

	_, err := c.Quote(context.Background(), "ZZZZ")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "unknown symbol ZZZZ", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "status 404")
}

func TestQuoteAPIErrorPlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable\n"))
	})

	_, err := c.Quote(context.Background(), "AAPL")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestQuoteDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := c.Quote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestFundamentals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fundamentals/MSFT", r.URL.Path)
		w.Write([]byte(`{
			"symbol": "MSFT", "period": "FY2025", "currency": "USD",
			"revenue": 245122000000, "net_income": 88136000000,
			"total_assets": 512163000000, "shareholder_equity": 268477000000,
			"shares_outstanding": 7433000000
		}`))
	})

	f, err := c.Fundamentals(context.Background(), "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", f.Symbol)
	assert.Equal(t, "FY2025", f.Period)
	assert.InDelta(t, 245122000000, f.Revenue, 1)
	assert.InDelta(t, 268477000000, f.ShareholderEquity, 1)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL is required")
}

func TestClientStripsTrailingSlash(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	_, err = c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "/v1/quote/AAPL", gotPath)
}
