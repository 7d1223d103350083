package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SummaryData holds the running aggregates of one class of stocks
type SummaryData struct {
	TotalStockCount  decimal.Decimal `json:"totalStockCount"`
	TotalMarketValue decimal.Decimal `json:"totalMarketValue"`
	TotalStockWeight decimal.Decimal `json:"totalStockWeight"`
}

// HasStock reports whether any stock has been folded into the summary
func (s SummaryData) HasStock() bool {
	return s.TotalStockCount.IsPositive() || !s.TotalMarketValue.IsZero()
}

// Equal compares two summaries numerically
func (s SummaryData) Equal(other SummaryData) bool {
	return s.TotalStockCount.Equal(other.TotalStockCount) &&
		s.TotalMarketValue.Equal(other.TotalMarketValue) &&
		s.TotalStockWeight.Equal(other.TotalStockWeight)
}

// FundSummaryData is the portfolio summary broken down by class
type FundSummaryData struct {
	Equity    SummaryData `json:"equity"`
	Bond      SummaryData `json:"bond"`
	All       SummaryData `json:"all"`
	UpdatedAt time.Time   `json:"updatedAt,omitempty"`
}

// IsEmpty reports whether nothing has been folded into the portfolio yet
func (f FundSummaryData) IsEmpty() bool {
	return !f.All.HasStock() && !f.Equity.HasStock() && !f.Bond.HasStock()
}

// Class returns the summary for the given stock type
func (f FundSummaryData) Class(t StockType) SummaryData {
	if t == StockTypeBond {
		return f.Bond
	}
	return f.Equity
}

// WithClass returns a copy of the summary with the class replaced
func (f FundSummaryData) WithClass(t StockType, s SummaryData) FundSummaryData {
	switch t {
	case StockTypeEquity:
		f.Equity = s
	case StockTypeBond:
		f.Bond = s
	}
	return f
}
