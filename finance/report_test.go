package finance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reportValue scans the rendered report for a labelled line and returns
// the value column.
func reportValue(t *testing.T, report, label string) string {
	t.Helper()
	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, label+" ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, label))
		}
	}
	t.Fatalf("report has no line labelled %q:\n%s", label, report)
	return ""
}

func TestRenderReport(t *testing.T) {
	report := RenderReport("AAPL", 225, sampleStatement())

	require.True(t, strings.HasPrefix(report, "Ratio analysis for AAPL (FY2025)"))
	for _, section := range []string{"Liquidity", "Leverage", "Profitability", "Valuation", "Efficiency"} {
		assert.Contains(t, report, "\n"+section+"\n")
	}

	assert.Equal(t, "1.25", reportValue(t, report, "current ratio"))
	assert.Equal(t, "30.00", reportValue(t, report, "interest coverage"))
	assert.Equal(t, "45.0%", reportValue(t, report, "gross margin"))
	assert.Equal(t, "25.0%", reportValue(t, report, "net margin"))
	assert.Equal(t, "6.25", reportValue(t, report, "earnings per share"))
	assert.Equal(t, "36.00", reportValue(t, report, "price-to-earnings"))
	assert.Equal(t, "30000.00", reportValue(t, report, "working capital"))
}

func TestRenderReportUndefinedRatios(t *testing.T) {
	s := sampleStatement()
	s.NetIncome = -20_000
	s.ShareholderEquity = -5_000

	report := RenderReport("RIVN", 12.50, s)

	assert.Equal(t, "n/a (earnings are not positive)", reportValue(t, report, "price-to-earnings"))
	assert.Equal(t, "n/a (shareholder equity must be positive)", reportValue(t, report, "debt-to-equity"))
	assert.Equal(t, "n/a (shareholder equity must be positive)", reportValue(t, report, "return on equity"))
	// The rest of the report still renders.
	assert.Equal(t, "1.25", reportValue(t, report, "current ratio"))
}

func TestRenderReportWithoutPrice(t *testing.T) {
	report := RenderReport("AAPL", 0, sampleStatement())

	assert.Equal(t, "n/a (price must be positive)", reportValue(t, report, "price-to-earnings"))
	assert.Equal(t, "n/a (price must be positive)", reportValue(t, report, "price-to-book"))
	assert.Equal(t, "6.25", reportValue(t, report, "earnings per share"))
}

func TestRenderReportOmitsEmptyPeriod(t *testing.T) {
	s := sampleStatement()
	s.Period = ""

	report := RenderReport("AAPL", 225, s)
	require.True(t, strings.HasPrefix(report, "Ratio analysis for AAPL\n"))
}
