package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fund-manager/internal/models"
)

var transactionCostRates = map[models.StockType]decimal.Decimal{
	models.StockTypeEquity: decimal.NewFromFloat(0.005),
	models.StockTypeBond:   decimal.NewFromFloat(0.02),
}

// MarketValue is unit price times quantity purchased
func MarketValue(purchase models.PurchaseInfo) decimal.Decimal {
	return Round(purchase.UnitPrice.Mul(purchase.QuantityPurchased))
}

// TransactionCost applies the per-class cost rate to a market value
func TransactionCost(stockType models.StockType, marketValue decimal.Decimal) (decimal.Decimal, error) {
	rate, ok := transactionCostRates[stockType]
	if !ok {
		return decimal.Zero, fmt.Errorf("no transaction cost rate for stock type %q", stockType)
	}
	return Round(marketValue.Mul(rate)), nil
}

// Value fills in market value and transaction cost. Stock weight is left for
// the aggregation fold.
func Value(stock models.Stock) (models.Stock, error) {
	marketValue := MarketValue(stock.PurchaseInfo)
	cost, err := TransactionCost(stock.Type, marketValue)
	if err != nil {
		return stock, err
	}
	stock.ValueInfo.MarketValue = marketValue
	stock.ValueInfo.TransactionCost = cost
	return stock, nil
}

// FundName builds the display name from the class and its 1-based index
func FundName(stockType models.StockType, index int) string {
	return fmt.Sprintf("%s%d", stockType, index)
}
