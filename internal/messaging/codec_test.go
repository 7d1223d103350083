package messaging

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund-manager/internal/models"
)

func sampleFund() models.Fund {
	return models.Fund{
		ID:   "65f0c0ffee",
		Name: "Equity1",
		StockInfo: models.Stock{
			PurchaseInfo: models.PurchaseInfo{
				UnitPrice:         decimal.RequireFromString("12.5"),
				QuantityPurchased: decimal.NewFromInt(8),
			},
			ValueInfo: models.ValueInfo{
				MarketValue:     decimal.NewFromInt(100),
				TransactionCost: decimal.RequireFromString("0.5"),
				StockWeight:     decimal.NewFromInt(100),
			},
			Type: models.StockTypeEquity,
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Run("stock", func(t *testing.T) {
		stock := sampleFund().StockInfo
		body, err := Encode(stock)
		require.NoError(t, err)

		decoded := Decode[models.Stock](body)
		assert.Equal(t, stock.Type, decoded.Type)
		assert.True(t, stock.PurchaseInfo.UnitPrice.Equal(decoded.PurchaseInfo.UnitPrice))
		assert.True(t, stock.ValueInfo.TransactionCost.Equal(decoded.ValueInfo.TransactionCost))
	})

	t.Run("download request", func(t *testing.T) {
		body, err := Encode(models.DownloadFundsRequest{DatasetSize: 42})
		require.NoError(t, err)
		assert.Equal(t, 42, Decode[models.DownloadFundsRequest](body).DatasetSize)
	})

	t.Run("envelope", func(t *testing.T) {
		msg, err := NewFundMessage(DownloadFund, []models.Fund{sampleFund()})
		require.NoError(t, err)
		msg.ContinuationToken = "next"

		body, err := Encode(msg)
		require.NoError(t, err)

		decoded := Decode[FundMessage](body)
		assert.Equal(t, DownloadFund, decoded.Action)
		assert.Equal(t, "next", decoded.ContinuationToken)

		funds, err := decoded.DownloadedFunds()
		require.NoError(t, err)
		require.Len(t, funds, 1)
		assert.Equal(t, "65f0c0ffee", funds[0].ID)
	})
}

func TestDecodeMalformedYieldsZeroValue(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"not json", []byte("definitely not json")},
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}},
		{"wrong shape", []byte(`["a","b"]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, models.DownloadFundsRequest{}, Decode[models.DownloadFundsRequest](tt.body))
			assert.Equal(t, FundMessage{}, Decode[FundMessage](tt.body))
		})
	}
}

func TestDecodeStrictReportsErrors(t *testing.T) {
	_, err := DecodeStrict[models.Fund]([]byte("{"))
	assert.Error(t, err)
}
