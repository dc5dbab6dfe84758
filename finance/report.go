package finance

import (
	"errors"
	"fmt"
	"strings"
)

type reportLine struct {
	label   string
	value   float64
	err     error
	percent bool
}

type reportSection struct {
	title string
	lines []reportLine
}

// RenderReport formats the full ratio breakdown for one statement as
// plain text, grouped by category. Ratios that cannot be computed are
// shown as n/a with the reason; a zero price leaves the valuation
// section in that state rather than failing the report.
func RenderReport(symbol string, price float64, s Statement) string {
	line := func(label string, fn func(Statement) (float64, error), percent bool) reportLine {
		v, err := fn(s)
		return reportLine{label: label, value: v, err: err, percent: percent}
	}
	priced := func(label string, fn func(float64, Statement) (float64, error)) reportLine {
		v, err := fn(price, s)
		return reportLine{label: label, value: v, err: err}
	}

	sections := []reportSection{
		{title: "Liquidity", lines: []reportLine{
			line("current ratio", CurrentRatio, false),
			line("quick ratio", QuickRatio, false),
			line("cash ratio", CashRatio, false),
		}},
		{title: "Leverage", lines: []reportLine{
			line("debt-to-equity", DebtToEquity, false),
			line("debt-to-assets", DebtToAssets, false),
			line("interest coverage", InterestCoverage, false),
		}},
		{title: "Profitability", lines: []reportLine{
			line("gross margin", GrossMargin, true),
			line("operating margin", OperatingMargin, true),
			line("net margin", NetMargin, true),
			line("return on equity", ReturnOnEquity, true),
			line("return on assets", ReturnOnAssets, true),
		}},
		{title: "Valuation", lines: []reportLine{
			line("earnings per share", EarningsPerShare, false),
			priced("price-to-earnings", PriceToEarnings),
			priced("price-to-book", PriceToBook),
		}},
		{title: "Efficiency", lines: []reportLine{
			line("asset turnover", AssetTurnover, false),
			{label: "working capital", value: WorkingCapital(s)},
		}},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ratio analysis for %s", symbol)
	if s.Period != "" {
		fmt.Fprintf(&b, " (%s)", s.Period)
	}
	b.WriteString("\n")
	for _, sec := range sections {
		fmt.Fprintf(&b, "\n%s\n", sec.title)
		for _, ln := range sec.lines {
			fmt.Fprintf(&b, "  %-19s %s\n", ln.label, formatValue(ln))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatValue(ln reportLine) string {
	if ln.err != nil {
		var ue *UndefinedError
		if errors.As(ln.err, &ue) {
			return "n/a (" + ue.Reason + ")"
		}
		return "n/a (" + ln.err.Error() + ")"
	}
	if ln.percent {
		return fmt.Sprintf("%.1f%%", ln.value*100)
	}
	return fmt.Sprintf("%.2f", ln.value)
}
