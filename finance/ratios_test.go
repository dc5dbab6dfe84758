package finance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatement() Statement {
	return Statement{
		Period:             "FY2025",
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

func TestRatios(t *testing.T) {
	s := sampleStatement()

	tests := []struct {
		name string
		got  func() (float64, error)
		want float64
	}{
		{"current ratio", func() (float64, error) { return CurrentRatio(s) }, 1.25},
		{"quick ratio", func() (float64, error) { return QuickRatio(s) }, 140_000.0 / 120_000.0},
		{"cash ratio", func() (float64, error) { return CashRatio(s) }, 0.25},
		{"debt-to-equity", func() (float64, error) { return DebtToEquity(s) }, 110_000.0 / 70_000.0},
		{"debt-to-assets", func() (float64, error) { return DebtToAssets(s) }, 110_000.0 / 360_000.0},
		{"interest coverage", func() (float64, error) { return InterestCoverage(s) }, 30},
		{"gross margin", func() (float64, error) { return GrossMargin(s) }, 0.45},
		{"operating margin", func() (float64, error) { return OperatingMargin(s) }, 0.30},
		{"net margin", func() (float64, error) { return NetMargin(s) }, 0.25},
		{"return on equity", func() (float64, error) { return ReturnOnEquity(s) }, 100_000.0 / 70_000.0},
		{"return on assets", func() (float64, error) { return ReturnOnAssets(s) }, 100_000.0 / 360_000.0},
		{"earnings per share", func() (float64, error) { return EarningsPerShare(s) }, 6.25},
		{"price-to-earnings", func() (float64, error) { return PriceToEarnings(225, s) }, 36},
		{"book value per share", func() (float64, error) { return BookValuePerShare(s) }, 4.375},
		{"price-to-book", func() (float64, error) { return PriceToBook(225, s) }, 225.0 / 4.375},
		{"asset turnover", func() (float64, error) { return AssetTurnover(s) }, 400_000.0 / 360_000.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.got()
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	assert.InDelta(t, 30_000, WorkingCapital(s), 1e-9)
}

func TestRatiosUndefined(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Statement)
		got        func(Statement) (float64, error)
		wantRatio  string
		wantReason string
	}{
		{
			name:       "zero current liabilities",
			mutate:     func(s *Statement) { s.CurrentLiabilities = 0 },
			got:        CurrentRatio,
			wantRatio:  "current ratio",
			wantReason: "current liabilities must be positive",
		},
		{
			name:       "negative equity",
			mutate:     func(s *Statement) { s.ShareholderEquity = -5_000 },
			got:        DebtToEquity,
			wantRatio:  "debt-to-equity",
			wantReason: "shareholder equity must be positive",
		},
		{
			name:       "no interest expense",
			mutate:     func(s *Statement) { s.InterestExpense = 0 },
			got:        InterestCoverage,
			wantRatio:  "interest coverage",
			wantReason: "no interest expense reported",
		},
		{
			name:       "zero revenue",
			mutate:     func(s *Statement) { s.Revenue = 0 },
			got:        NetMargin,
			wantRatio:  "net margin",
			wantReason: "revenue must be positive",
		},
		{
			name:       "zero shares",
			mutate:     func(s *Statement) { s.SharesOutstanding = 0 },
			got:        EarningsPerShare,
			wantRatio:  "earnings per share",
			wantReason: "shares outstanding must be positive",
		},
		{
			name:       "zero assets",
			mutate:     func(s *Statement) { s.TotalAssets = 0 },
			got:        AssetTurnover,
			wantRatio:  "asset turnover",
			wantReason: "total assets must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleStatement()
			tt.mutate(&s)
			_, err := tt.got(s)
			require.Error(t, err)
			var ue *UndefinedError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.wantRatio, ue.Ratio)
			assert.Equal(t, tt.wantReason, ue.Reason)
		})
	}
}

func TestPriceToEarningsNegativeEarnings(t *testing.T) {
	s := sampleStatement()
	s.NetIncome = -20_000

	_, err := PriceToEarnings(225, s)
	require.Error(t, err)
	var ue *UndefinedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "earnings are not positive", ue.Reason)
}

func TestPriceToEarningsZeroPrice(t *testing.T) {
	_, err := PriceToEarnings(0, sampleStatement())
	require.Error(t, err)
	var ue *UndefinedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "price must be positive", ue.Reason)
}
