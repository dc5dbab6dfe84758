package fintools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk/fintalk/agentloop"
	"github.com/fintalk/fintalk/marketdata"
)

type fakeMarketData struct {
	quotes       map[string]*marketdata.Quote
	fundamentals map[string]*marketdata.Fundamentals
	quoteErr     error
	fundErr      error
}

func (f *fakeMarketData) Quote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	sym, err := marketdata.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	q, ok := f.quotes[sym]
	if !ok {
		return nil, &marketdata.APIError{StatusCode: 404, Message: "unknown symbol " + sym}
	}
	return q, nil
}

func (f *fakeMarketData) Fundamentals(ctx context.Context, symbol string) (*marketdata.Fundamentals, error) {
	if f.fundErr != nil {
		return nil, f.fundErr
	}
	sym, err := marketdata.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	fn, ok := f.fundamentals[sym]
	if !ok {
		return nil, &marketdata.APIError{StatusCode: 404, Message: "unknown symbol " + sym}
	}
	return fn, nil
}

func sampleFundamentals(symbol string) *marketdata.Fundamentals {
	return &marketdata.Fundamentals{
		Symbol:             symbol,
		Period:             "FY2025",
		Currency:           "USD",
		Revenue:            400_000,
		CostOfRevenue:      220_000,
		OperatingIncome:    120_000,
		NetIncome:          100_000,
		InterestExpense:    4_000,
		CurrentAssets:      150_000,
		CurrentLiabilities: 120_000,
		Cash:               30_000,
		Inventory:          10_000,
		TotalAssets:        360_000,
		TotalLiabilities:   290_000,
		TotalDebt:          110_000,
		ShareholderEquity:  70_000,
		SharesOutstanding:  16_000,
	}
}

func testMarketData() *fakeMarketData {
	return &fakeMarketData{
		quotes: map[string]*marketdata.Quote{
			"AAPL": {
				Symbol:        "AAPL",
				Price:         225,
				Change:        -1.25,
				ChangePercent: -0.54,
				Open:          227.10,
				High:          228.40,
				Low:           224.15,
				PreviousClose: 226.25,
				Volume:        48_123_900,
				Currency:      "USD",
				Timestamp:     time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
			},
		},
		fundamentals: map[string]*marketdata.Fundamentals{
			"AAPL": sampleFundamentals("AAPL"),
		},
	}
}

func invoke(t *testing.T, registry *agentloop.Registry, name string, args map[string]any) (string, error) {
	t.Helper()
	tool := registry.Get(name)
	require.NotNil(t, tool, "tool %q not registered", name)
	return tool.Func(context.Background(), args)
}

func TestRegisterBuiltins(t *testing.T) {
	registry := agentloop.NewRegistry()
	RegisterBuiltins(registry, testMarketData())

	assert.Equal(t, []string{"fundamentals", "quote", "ratio_analysis"}, registry.Names())
	for _, name := range registry.Names() {
		tool := registry.Get(name)
		require.NotNil(t, tool.Schema)
		assert.NotEmpty(t, tool.Description)
		assert.Contains(t, tool.Schema, "required")
	}
}

func TestQuoteTool(t *testing.T) {
	registry := agentloop.NewRegistry()
	RegisterBuiltins(registry, testMarketData())

	out, err := invoke(t, registry, "quote", map[string]any{"symbol": "aapl"})
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL: 225.00 USD (-1.25, -0.54%)")
	assert.Contains(t, out, "open 227.10  high 228.40  low 224.15  prev close 226.25")
	assert.Contains(t, out, "volume 48123900")
	assert.Contains(t, out, "as of 2026-03-02T21:00:00Z")
}

func TestQuoteToolError(t *testing.T) {
	registry := agentloop.NewRegistry()
	md := testMarketData()
	md.quoteErr = errors.New("connection refused")
	RegisterBuiltins(registry, md)

	_, err := invoke(t, registry, "quote", map[string]any{"symbol": "AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFundamentalsTool(t *testing.T) {
	registry := agentloop.NewRegistry()
	RegisterBuiltins(registry, testMarketData())

	out, err := invoke(t, registry, "fundamentals", map[string]any{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL fundamentals (FY2025, USD)")
	assert.Contains(t, out, "Income statement")
	assert.Contains(t, out, "Balance sheet")
	assert.Contains(t, out, "revenue             400.00K")
	assert.Contains(t, out, "shareholder equity  70.00K")
}

func TestRatioAnalysisTool(t *testing.T) {
	registry := agentloop.NewRegistry()
	RegisterBuiltins(registry, testMarketData())

	out, err := invoke(t, registry, "ratio_analysis", map[string]any{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, out, "Ratio analysis for AAPL (FY2025)")
	assert.Contains(t, out, "current ratio")
	// Price 225 against EPS 6.25.
	assert.Contains(t, out, "36.00")
}

func TestRatioAnalysisWithoutQuote(t *testing.T) {
	registry := agentloop.NewRegistry()
	md := testMarketData()
	md.quoteErr = errors.New("quote service down")
	RegisterBuiltins(registry, md)

	out, err := invoke(t, registry, "ratio_analysis", map[string]any{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, out, "Ratio analysis for AAPL")
	assert.Contains(t, out, "n/a (price must be positive)")
}

func TestRatioAnalysisPeers(t *testing.T) {
	registry := agentloop.NewRegistry()
	md := testMarketData()
	md.fundamentals["MSFT"] = sampleFundamentals("MSFT")
	RegisterBuiltins(registry, md)

	out, err := invoke(t, registry, "ratio_analysis", map[string]any{
		"symbol": "AAPL",
		"peers":  []any{"msft", "ZZZZ"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Ratio analysis for AAPL (FY2025)")
	assert.Contains(t, out, "Ratio analysis for MSFT (FY2025)")
	// A failed peer reports its error inline instead of failing the call.
	assert.Contains(t, out, "Ratio analysis for ZZZZ unavailable:")
	assert.Contains(t, out, "unknown symbol ZZZZ")
}

func TestRatioAnalysisPrimaryFailure(t *testing.T) {
	registry := agentloop.NewRegistry()
	RegisterBuiltins(registry, testMarketData())

	_, err := invoke(t, registry, "ratio_analysis", map[string]any{"symbol": "ZZZZ"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown symbol ZZZZ")
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{532, "532.00"},
		{1_234.56, "1.23K"},
		{245_122_000_000, "245.12B"},
		{1.5e12, "1.50T"},
		{-2.5e9, "-2.50B"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAmount(tt.in))
	}
}

func TestMCPToolName(t *testing.T) {
	assert.Equal(t, "screener_top_movers", MCPToolName("screener", "top_movers"))
}
