package mongo

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"fund-manager/internal/models"
	"fund-manager/internal/repositories"
)

func storedFund(stockType models.StockType, qty, marketValue string) bson.D {
	return bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "type", Value: string(stockType)},
		{Key: "unit_price", Value: "1"},
		{Key: "quantity_purchased", Value: qty},
		{Key: "market_value", Value: marketValue},
		{Key: "transaction_cost", Value: "0"},
		{Key: "stock_weight", Value: "0"},
	}
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func fundNames(funds []models.Fund) []string {
	names := make([]string, 0, len(funds))
	for _, f := range funds {
		names = append(names, f.Name)
	}
	return names
}

func TestFundRepositoryGetAll(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("equities before bonds", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		ns := namespace(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				storedFund(models.StockTypeEquity, "8", "100"),
				storedFund(models.StockTypeEquity, "2", "20"),
			),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				storedFund(models.StockTypeBond, "5", "300"),
			),
		)

		funds, err := repo.GetAll(context.Background(), 10)
		require.NoError(mt, err)
		assert.Equal(mt, []string{"Equity1", "Equity2", "Bond1"}, fundNames(funds))
		assert.Equal(mt, models.StockTypeBond, funds[2].StockInfo.Type)
		assert.Equal(mt, "300", funds[2].StockInfo.ValueInfo.MarketValue.String())
	})

	mt.Run("limit reached by equities", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		// a bond query would fail for lack of a queued response
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
				storedFund(models.StockTypeEquity, "8", "100"),
				storedFund(models.StockTypeEquity, "2", "20"),
			),
		)

		funds, err := repo.GetAll(context.Background(), 2)
		require.NoError(mt, err)
		assert.Equal(mt, []string{"Equity1", "Equity2"}, fundNames(funds))
	})

	mt.Run("non-positive max", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}

		funds, err := repo.GetAll(context.Background(), 0)
		require.NoError(mt, err)
		assert.NotNil(mt, funds)
		assert.Empty(mt, funds)
	})

	mt.Run("query failure", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad query",
		}))

		_, err := repo.GetAll(context.Background(), 5)
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "failed to list Equity funds")
	})
}

func TestFundRepositoryGetItem(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("named by position", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		doc := storedFund(models.StockTypeBond, "5", "300")
		ns := namespace(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, doc),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: 1},
				{Key: "n", Value: int32(3)},
			}),
		)

		id := doc[0].Value.(primitive.ObjectID).Hex()
		fund, err := repo.GetItem(context.Background(), id)
		require.NoError(mt, err)
		assert.Equal(mt, id, fund.ID)
		assert.Equal(mt, "Bond3", fund.Name)
	})

	mt.Run("missing", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := repo.GetItem(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, repositories.ErrFundNotFound)
	})
}

func TestFundRepositoryNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	fund := &models.Fund{StockInfo: models.Stock{
		Type: models.StockTypeEquity,
		PurchaseInfo: models.PurchaseInfo{
			UnitPrice:         decimal.NewFromInt(10),
			QuantityPurchased: decimal.NewFromInt(2),
		},
	}}

	mt.Run("update", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		_, err := repo.UpdateItem(context.Background(), primitive.NewObjectID().Hex(), fund)
		assert.ErrorIs(mt, err, repositories.ErrFundNotFound)
	})

	mt.Run("delete", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := repo.DeleteItem(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, repositories.ErrFundNotFound)
	})

	mt.Run("delete existing", func(mt *mtest.T) {
		repo := &MongoFundRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		err := repo.DeleteItem(context.Background(), primitive.NewObjectID().Hex())
		assert.NoError(mt, err)
	})
}
