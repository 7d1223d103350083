package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockValidate(t *testing.T) {
	valid := Stock{
		PurchaseInfo: PurchaseInfo{
			UnitPrice:         decimal.NewFromInt(10),
			QuantityPurchased: decimal.NewFromInt(3),
		},
		Type: StockTypeEquity,
	}

	t.Run("valid stock", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		s := valid
		s.Type = "Option"
		assert.Error(t, s.Validate())
	})

	t.Run("zero quantity", func(t *testing.T) {
		s := valid
		s.PurchaseInfo.QuantityPurchased = decimal.Zero
		assert.Error(t, s.Validate())
	})

	t.Run("negative price", func(t *testing.T) {
		s := valid
		s.PurchaseInfo.UnitPrice = decimal.NewFromInt(-1)
		assert.Error(t, s.Validate())
	})
}

func TestDownloadFundsRequestSize(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"default when unset", 0, DefaultDatasetSize},
		{"default when negative", -5, DefaultDatasetSize},
		{"explicit", 25, 25},
		{"capped", 5000, MaxDatasetSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DownloadFundsRequest{DatasetSize: tt.size}.Size())
		})
	}

	assert.Error(t, DownloadFundsRequest{DatasetSize: 5000}.Validate())
	assert.NoError(t, DownloadFundsRequest{DatasetSize: 100}.Validate())
}

func TestFundJSONFieldNames(t *testing.T) {
	fund := Fund{
		ID:   "abc",
		Name: "Bond1",
		StockInfo: Stock{
			PurchaseInfo: PurchaseInfo{UnitPrice: decimal.NewFromInt(2), QuantityPurchased: decimal.NewFromInt(5)},
			Type:         StockTypeBond,
		},
	}

	raw, err := json.Marshal(fund)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "id")
	assert.Contains(t, fields, "name")
	require.Contains(t, fields, "stockInfo")

	stock := fields["stockInfo"].(map[string]interface{})
	assert.Equal(t, "Bond", stock["type"])
	purchase := stock["purchaseInfo"].(map[string]interface{})
	assert.Contains(t, purchase, "unitPrice")
	assert.Contains(t, purchase, "purchasedQ")
}

func TestFundSummaryDataIsEmpty(t *testing.T) {
	var summary FundSummaryData
	assert.True(t, summary.IsEmpty())

	summary.All.TotalStockCount = decimal.NewFromInt(1)
	assert.False(t, summary.IsEmpty())
}

func TestParseStockType(t *testing.T) {
	st, err := ParseStockType("Equity")
	require.NoError(t, err)
	assert.Equal(t, StockTypeEquity, st)

	_, err = ParseStockType("equity")
	assert.Error(t, err)
}
