// Package finance computes standard financial ratios from reported
// statement figures. Every computation returns an explicit error when
// the inputs make the ratio undefined; callers never see NaN or Inf.
package finance

// Statement holds one reporting period of a company's figures. All
// monetary amounts share the statement's reporting currency.
type Statement struct {
	Period string

	// Income statement.
	Revenue         float64
	CostOfRevenue   float64
	OperatingIncome float64
	NetIncome       float64
	InterestExpense float64

	// Balance sheet.
	CurrentAssets      float64
	CurrentLiabilities float64
	Cash               float64
	Inventory          float64
	TotalAssets        float64
	TotalLiabilities   float64
	TotalDebt          float64
	ShareholderEquity  float64
	SharesOutstanding  float64
}

// UndefinedError reports a ratio that cannot be computed from the given
// figures, typically a zero or negative denominator.
type UndefinedError struct {
	Ratio  string
	Reason string
}

func (e *UndefinedError) Error() string {
	return e.Ratio + " undefined: " + e.Reason
}

func undefined(ratio, reason string) error {
	return &UndefinedError{Ratio: ratio, Reason: reason}
}

// CurrentRatio is current assets over current liabilities.
func CurrentRatio(s Statement) (float64, error) {
	if s.CurrentLiabilities <= 0 {
		return 0, undefined("current ratio", "current liabilities must be positive")
	}
	return s.CurrentAssets / s.CurrentLiabilities, nil
}

// QuickRatio excludes inventory from current assets.
func QuickRatio(s Statement) (float64, error) {
	if s.CurrentLiabilities <= 0 {
		return 0, undefined("quick ratio", "current liabilities must be positive")
	}
	return (s.CurrentAssets - s.Inventory) / s.CurrentLiabilities, nil
}

// CashRatio is cash and equivalents over current liabilities.
func CashRatio(s Statement) (float64, error) {
	if s.CurrentLiabilities <= 0 {
		return 0, undefined("cash ratio", "current liabilities must be positive")
	}
	return s.Cash / s.CurrentLiabilities, nil
}

// DebtToEquity is total debt over shareholder equity.
func DebtToEquity(s Statement) (float64, error) {
	if s.ShareholderEquity <= 0 {
		return 0, undefined("debt-to-equity", "shareholder equity must be positive")
	}
	return s.TotalDebt / s.ShareholderEquity, nil
}

// DebtToAssets is total debt over total assets.
func DebtToAssets(s Statement) (float64, error) {
	if s.TotalAssets <= 0 {
		return 0, undefined("debt-to-assets", "total assets must be positive")
	}
	return s.TotalDebt / s.TotalAssets, nil
}

// InterestCoverage is operating income over interest expense.
func InterestCoverage(s Statement) (float64, error) {
	if s.InterestExpense <= 0 {
		return 0, undefined("interest coverage", "no interest expense reported")
	}
	return s.OperatingIncome / s.InterestExpense, nil
}

// GrossMargin is gross profit over revenue.
func GrossMargin(s Statement) (float64, error) {
	if s.Revenue <= 0 {
		return 0, undefined("gross margin", "revenue must be positive")
	}
	return (s.Revenue - s.CostOfRevenue) / s.Revenue, nil
}

// OperatingMargin is operating income over revenue.
func OperatingMargin(s Statement) (float64, error) {
	if s.Revenue <= 0 {
		return 0, undefined("operating margin", "revenue must be positive")
	}
	return s.OperatingIncome / s.Revenue, nil
}

// NetMargin is net income over revenue.
func NetMargin(s Statement) (float64, error) {
	if s.Revenue <= 0 {
		return 0, undefined("net margin", "revenue must be positive")
	}
	return s.NetIncome / s.Revenue, nil
}

// ReturnOnEquity is net income over shareholder equity.
func ReturnOnEquity(s Statement) (float64, error) {
	if s.ShareholderEquity <= 0 {
		return 0, undefined("return on equity", "shareholder equity must be positive")
	}
	return s.NetIncome / s.ShareholderEquity, nil
}

// ReturnOnAssets is net income over total assets.
func ReturnOnAssets(s Statement) (float64, error) {
	if s.TotalAssets <= 0 {
		return 0, undefined("return on assets", "total assets must be positive")
	}
	return s.NetIncome / s.TotalAssets, nil
}

// EarningsPerShare is net income over shares outstanding.
func EarningsPerShare(s Statement) (float64, error) {
	if s.SharesOutstanding <= 0 {
		return 0, undefined("earnings per share", "shares outstanding must be positive")
	}
	return s.NetIncome / s.SharesOutstanding, nil
}

// PriceToEarnings divides the share price by earnings per share. A
// company with zero or negative earnings has no meaningful P/E.
func PriceToEarnings(price float64, s Statement) (float64, error) {
	if price <= 0 {
		return 0, undefined("price-to-earnings", "price must be positive")
	}
	eps, err := EarningsPerShare(s)
	if err != nil {
		return 0, err
	}
	if eps <= 0 {
		return 0, undefined("price-to-earnings", "earnings are not positive")
	}
	return price / eps, nil
}

// BookValuePerShare is shareholder equity over shares outstanding.
func BookValuePerShare(s Statement) (float64, error) {
	if s.SharesOutstanding <= 0 {
		return 0, undefined("book value per share", "shares outstanding must be positive")
	}
	return s.ShareholderEquity / s.SharesOutstanding, nil
}

// PriceToBook divides the share price by book value per share.
func PriceToBook(price float64, s Statement) (float64, error) {
	if price <= 0 {
		return 0, undefined("price-to-book", "price must be positive")
	}
	bvps, err := BookValuePerShare(s)
	if err != nil {
		return 0, err
	}
	if bvps <= 0 {
		return 0, undefined("price-to-book", "book value is not positive")
	}
	return price / bvps, nil
}

// AssetTurnover is revenue over total assets.
func AssetTurnover(s Statement) (float64, error) {
	if s.TotalAssets <= 0 {
		return 0, undefined("asset turnover", "total assets must be positive")
	}
	return s.Revenue / s.TotalAssets, nil
}

// WorkingCapital is current assets minus current liabilities. It is a
// difference, not a ratio, so it is always defined.
func WorkingCapital(s Statement) float64 {
	return s.CurrentAssets - s.CurrentLiabilities
}
