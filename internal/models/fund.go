package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockType identifies the asset class of a stock
type StockType string

const (
	StockTypeEquity StockType = "Equity"
	StockTypeBond   StockType = "Bond"
)

// StockTypes lists the supported asset classes in reporting order
var StockTypes = []StockType{StockTypeEquity, StockTypeBond}

// ParseStockType converts a raw type name into a StockType
func ParseStockType(raw string) (StockType, error) {
	switch StockType(raw) {
	case StockTypeEquity, StockTypeBond:
		return StockType(raw), nil
	default:
		return "", fmt.Errorf("unknown stock type %q", raw)
	}
}

// Fund is a single stock holding tracked by the fund manager
type Fund struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	StockInfo Stock     `json:"stockInfo"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Stock describes what was bought and what it is worth
type Stock struct {
	PurchaseInfo PurchaseInfo `json:"purchaseInfo"`
	ValueInfo    ValueInfo    `json:"valueInfo"`
	Type         StockType    `json:"type" validate:"required,oneof=Equity Bond"`
}

// PurchaseInfo holds the purchase side of a stock
type PurchaseInfo struct {
	UnitPrice         decimal.Decimal `json:"unitPrice" validate:"gt=0"`
	QuantityPurchased decimal.Decimal `json:"purchasedQ" validate:"gt=0"`
}

// ValueInfo holds the computed valuation of a stock
type ValueInfo struct {
	MarketValue     decimal.Decimal `json:"marketValue"`
	TransactionCost decimal.Decimal `json:"transactionCost"`
	StockWeight     decimal.Decimal `json:"stockWeight"`
}

// DownloadFundsRequest asks the backend for up to DatasetSize funds
type DownloadFundsRequest struct {
	DatasetSize int `json:"datasetSize" validate:"gte=0,lte=1000"`
}

const (
	DefaultDatasetSize = 100
	MaxDatasetSize     = 1000
)

// Size returns the effective number of funds to load
func (r DownloadFundsRequest) Size() int {
	switch {
	case r.DatasetSize <= 0:
		return DefaultDatasetSize
	case r.DatasetSize > MaxDatasetSize:
		return MaxDatasetSize
	default:
		return r.DatasetSize
	}
}
