package calculator

import (
	"github.com/shopspring/decimal"

	"fund-manager/internal/models"
)

// Precision is the number of decimal places kept for values and weights
const Precision int32 = 3

var (
	hundred = decimal.NewFromInt(100)

	// UndefinedWeight marks a weight computed against an empty portfolio
	UndefinedWeight = decimal.NewFromInt(-1)
)

// StockCalculator folds a newly added stock into a portfolio summary.
//
// Calculate never mutates its arguments. When the stock does not belong to the
// calculator's class it returns the summary untouched, a nil stock and false so
// the caller can try the next calculator.
type StockCalculator interface {
	StockType() models.StockType
	Calculate(summary models.FundSummaryData, stock models.Stock) (models.FundSummaryData, *models.Stock, bool)
}

// classCalculator implements the fold for one stock class
type classCalculator struct {
	stockType models.StockType
}

// NewEquityCalculator returns the calculator for equity stocks
func NewEquityCalculator() StockCalculator {
	return classCalculator{stockType: models.StockTypeEquity}
}

// NewBondCalculator returns the calculator for bond stocks
func NewBondCalculator() StockCalculator {
	return classCalculator{stockType: models.StockTypeBond}
}

// DefaultCalculators returns one calculator per supported class
func DefaultCalculators() []StockCalculator {
	return []StockCalculator{NewEquityCalculator(), NewBondCalculator()}
}

func (c classCalculator) StockType() models.StockType {
	return c.stockType
}

func (c classCalculator) Calculate(summary models.FundSummaryData, stock models.Stock) (models.FundSummaryData, *models.Stock, bool) {
	if stock.Type != c.stockType {
		return summary, nil, false
	}

	quantity := stock.PurchaseInfo.QuantityPurchased
	marketValue := Round(stock.ValueInfo.MarketValue)
	stock.ValueInfo.MarketValue = marketValue

	if summary.IsEmpty() {
		class := models.SummaryData{
			TotalStockCount:  quantity,
			TotalMarketValue: marketValue,
			TotalStockWeight: hundred,
		}
		next := models.FundSummaryData{All: class}.WithClass(c.stockType, class)
		stock.ValueInfo.StockWeight = hundred
		return next, &stock, true
	}

	all := summary.All
	all.TotalStockCount = all.TotalStockCount.Add(quantity)
	all.TotalMarketValue = Round(all.TotalMarketValue.Add(marketValue))
	all.TotalStockWeight = hundred

	stock.ValueInfo.StockWeight = Weight(marketValue, all.TotalMarketValue)

	class := summary.Class(c.stockType)
	if class.HasStock() {
		class.TotalStockCount = class.TotalStockCount.Add(quantity)
		class.TotalMarketValue = Round(class.TotalMarketValue.Add(marketValue))
		class.TotalStockWeight = Weight(class.TotalMarketValue, all.TotalMarketValue)
	} else {
		// first stock of this class; the other class keeps its weight
		class = models.SummaryData{
			TotalStockCount:  quantity,
			TotalMarketValue: marketValue,
			TotalStockWeight: stock.ValueInfo.StockWeight,
		}
	}

	next := summary.WithClass(c.stockType, class)
	next.All = all
	return next, &stock, true
}

// Fold runs the stock through the calculators until one accepts it
func Fold(summary models.FundSummaryData, stock models.Stock, calculators ...StockCalculator) (models.FundSummaryData, *models.Stock, bool) {
	if len(calculators) == 0 {
		calculators = DefaultCalculators()
	}
	for _, calc := range calculators {
		if next, updated, ok := calc.Calculate(summary, stock); ok {
			return next, updated, true
		}
	}
	return summary, nil, false
}

// Weight returns value as a percentage of total, rounded to Precision
func Weight(value, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return UndefinedWeight
	}
	return Round(value.Div(total).Mul(hundred))
}

// Round rounds to Precision decimal places
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}
