// Package fintools provides the built-in finance tools and bridges
// external MCP tool servers into an agentloop registry.
package fintools

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fintalk/fintalk/agentloop"
	"github.com/fintalk/fintalk/finance"
	"github.com/fintalk/fintalk/marketdata"
)

// MarketData is the slice of the market data client the tools consume.
// *marketdata.Client satisfies it; tests substitute fakes.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*marketdata.Quote, error)
	Fundamentals(ctx context.Context, symbol string) (*marketdata.Fundamentals, error)
}

// RegisterBuiltins adds the quote, fundamentals and ratio_analysis
// tools, all backed by the given market data client.
func RegisterBuiltins(registry *agentloop.Registry, md MarketData) {
	registry.Register(quoteTool(md))
	registry.Register(fundamentalsTool(md))
	registry.Register(ratioAnalysisTool(md))
}

func symbolSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{
				"type":        "string",
				"description": "Ticker symbol, e.g. AAPL.",
			},
		},
		"required": []string{"symbol"},
	}
}

func quoteTool(md MarketData) agentloop.Tool {
	return agentloop.Tool{
		Name:        "quote",
		Description: "Fetch the current price quote for a ticker symbol.",
		Schema:      symbolSchema(),
		Func: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, _ := agentloop.GetStringArg(args, "symbol")
			q, err := md.Quote(ctx, symbol)
			if err != nil {
				return "", err
			}
			return formatQuote(q), nil
		},
	}
}

func fundamentalsTool(md MarketData) agentloop.Tool {
	return agentloop.Tool{
		Name:        "fundamentals",
		Description: "Fetch the most recent reported income statement and balance sheet figures for a ticker symbol.",
		Schema:      symbolSchema(),
		Func: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, _ := agentloop.GetStringArg(args, "symbol")
			f, err := md.Fundamentals(ctx, symbol)
			if err != nil {
				return "", err
			}
			return formatFundamentals(f), nil
		},
	}
}

func ratioAnalysisTool(md MarketData) agentloop.Tool {
	return agentloop.Tool{
		Name:        "ratio_analysis",
		Description: "Compute liquidity, leverage, profitability, valuation and efficiency ratios for a ticker symbol, optionally alongside peer companies.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Primary ticker symbol.",
				},
				"peers": map[string]any{
					"type":        "array",
					"description": "Optional peer symbols analyzed alongside the primary.",
					"items":       map[string]any{"type": "string"},
				},
			},
			"required": []string{"symbol"},
		},
		Func: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, _ := agentloop.GetStringArg(args, "symbol")
			symbols := []string{symbol}
			if raw, ok := args["peers"].([]any); ok {
				for _, p := range raw {
					if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
						symbols = append(symbols, s)
					}
				}
			}

			reports := make([]string, 0, len(symbols))
			for i, sym := range symbols {
				if len(symbols) > 1 {
					agentloop.ReportProgress(ctx, fmt.Sprintf("analyzing %s (%d/%d)",
						strings.ToUpper(strings.TrimSpace(sym)), i+1, len(symbols)))
				}
				report, err := analyzeSymbol(ctx, md, sym)
				if err != nil {
					// A failed peer does not sink the whole analysis.
					if len(symbols) == 1 {
						return "", err
					}
					reports = append(reports, fmt.Sprintf("Ratio analysis for %s unavailable: %v",
						strings.ToUpper(strings.TrimSpace(sym)), err))
					continue
				}
				reports = append(reports, report)
			}
			return strings.Join(reports, "\n\n"), nil
		},
	}
}

func analyzeSymbol(ctx context.Context, md MarketData, symbol string) (string, error) {
	agentloop.ReportProgress(ctx, "fetching fundamentals for "+strings.ToUpper(strings.TrimSpace(symbol)))
	f, err := md.Fundamentals(ctx, symbol)
	if err != nil {
		return "", err
	}

	// The quote is only needed for the valuation ratios; without it the
	// report renders those lines as unavailable.
	var price float64
	agentloop.ReportProgress(ctx, "fetching quote for "+f.Symbol)
	if q, err := md.Quote(ctx, f.Symbol); err == nil {
		price = q.Price
	}

	return finance.RenderReport(f.Symbol, price, statementFrom(f)), nil
}

func statementFrom(f *marketdata.Fundamentals) finance.Statement {
	return finance.Statement{
		Period:             f.Period,
		Revenue:            f.Revenue,
		CostOfRevenue:      f.CostOfRevenue,
		OperatingIncome:    f.OperatingIncome,
		NetIncome:          f.NetIncome,
		InterestExpense:    f.InterestExpense,
		CurrentAssets:      f.CurrentAssets,
		CurrentLiabilities: f.CurrentLiabilities,
		Cash:               f.Cash,
		Inventory:          f.Inventory,
		TotalAssets:        f.TotalAssets,
		TotalLiabilities:   f.TotalLiabilities,
		TotalDebt:          f.TotalDebt,
		ShareholderEquity:  f.ShareholderEquity,
		SharesOutstanding:  f.SharesOutstanding,
	}
}

func formatQuote(q *marketdata.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %.2f", q.Symbol, q.Price)
	if q.Currency != "" {
		b.WriteString(" " + q.Currency)
	}
	fmt.Fprintf(&b, " (%+.2f, %+.2f%%)", q.Change, q.ChangePercent)
	fmt.Fprintf(&b, "\nopen %.2f  high %.2f  low %.2f  prev close %.2f",
		q.Open, q.High, q.Low, q.PreviousClose)
	if q.Volume > 0 {
		fmt.Fprintf(&b, "\nvolume %d", q.Volume)
	}
	if !q.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\nas of %s", q.Timestamp.Format(time.RFC3339))
	}
	return b.String()
}

func formatFundamentals(f *marketdata.Fundamentals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s fundamentals", f.Symbol)
	switch {
	case f.Period != "" && f.Currency != "":
		fmt.Fprintf(&b, " (%s, %s)", f.Period, f.Currency)
	case f.Period != "":
		fmt.Fprintf(&b, " (%s)", f.Period)
	case f.Currency != "":
		fmt.Fprintf(&b, " (%s)", f.Currency)
	}

	b.WriteString("\n\nIncome statement\n")
	writeAmount(&b, "revenue", f.Revenue)
	writeAmount(&b, "cost of revenue", f.CostOfRevenue)
	writeAmount(&b, "operating income", f.OperatingIncome)
	writeAmount(&b, "net income", f.NetIncome)
	writeAmount(&b, "interest expense", f.InterestExpense)

	b.WriteString("\nBalance sheet\n")
	writeAmount(&b, "current assets", f.CurrentAssets)
	writeAmount(&b, "current liabilities", f.CurrentLiabilities)
	writeAmount(&b, "cash", f.Cash)
	writeAmount(&b, "inventory", f.Inventory)
	writeAmount(&b, "total assets", f.TotalAssets)
	writeAmount(&b, "total liabilities", f.TotalLiabilities)
	writeAmount(&b, "total debt", f.TotalDebt)
	writeAmount(&b, "shareholder equity", f.ShareholderEquity)
	writeAmount(&b, "shares outstanding", f.SharesOutstanding)

	return strings.TrimRight(b.String(), "\n")
}

func writeAmount(b *strings.Builder, label string, v float64) {
	fmt.Fprintf(b, "  %-19s %s\n", label, formatAmount(v))
}

// formatAmount renders large monetary figures with a magnitude suffix
// so statement listings stay readable.
func formatAmount(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
