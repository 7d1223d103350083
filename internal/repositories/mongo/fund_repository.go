package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fund-manager/internal/calculator"
	"fund-manager/internal/models"
	"fund-manager/internal/repositories"
	"fund-manager/pkg/database"
)

// MongoFundRepository implements FundRepository using MongoDB
type MongoFundRepository struct {
	collection *mongo.Collection
}

// NewFundRepository creates a new MongoDB fund repository
func NewFundRepository(db *mongo.Database) repositories.FundRepository {
	return &MongoFundRepository{
		collection: db.Collection(database.FundsCollection),
	}
}

// fundDocument is the stored shape of a fund. Decimals are kept as strings so
// no precision is lost in BSON doubles.
type fundDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Type              string             `bson:"type"`
	UnitPrice         string             `bson:"unit_price"`
	QuantityPurchased string             `bson:"quantity_purchased"`
	MarketValue       string             `bson:"market_value"`
	TransactionCost   string             `bson:"transaction_cost"`
	StockWeight       string             `bson:"stock_weight"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

func toDocument(fund *models.Fund) (*fundDocument, error) {
	stock, err := calculator.Value(fund.StockInfo)
	if err != nil {
		return nil, err
	}

	return &fundDocument{
		Type:              string(stock.Type),
		UnitPrice:         stock.PurchaseInfo.UnitPrice.String(),
		QuantityPurchased: stock.PurchaseInfo.QuantityPurchased.String(),
		MarketValue:       stock.ValueInfo.MarketValue.String(),
		TransactionCost:   stock.ValueInfo.TransactionCost.String(),
		StockWeight:       stock.ValueInfo.StockWeight.String(),
	}, nil
}

// toFund converts a stored document back to a fund named with its 1-based
// position among funds of the same type
func toFund(doc *fundDocument, index int) models.Fund {
	stockType := models.StockType(doc.Type)
	return models.Fund{
		ID:   doc.ID.Hex(),
		Name: calculator.FundName(stockType, index),
		StockInfo: models.Stock{
			PurchaseInfo: models.PurchaseInfo{
				UnitPrice:         parseDecimal(doc.UnitPrice),
				QuantityPurchased: parseDecimal(doc.QuantityPurchased),
			},
			ValueInfo: models.ValueInfo{
				MarketValue:     parseDecimal(doc.MarketValue),
				TransactionCost: parseDecimal(doc.TransactionCost),
				StockWeight:     parseDecimal(doc.StockWeight),
			},
			Type: stockType,
		},
		CreatedAt: doc.CreatedAt,
	}
}

func parseDecimal(s string) decimal.Decimal {
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}
	return decimal.Zero
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid id %q", repositories.ErrFundNotFound, id)
	}
	return oid, nil
}

// CreateItem values and stores a fund, then reads it back
func (r *MongoFundRepository) CreateItem(ctx context.Context, fund *models.Fund) (*models.Fund, error) {
	doc, err := toDocument(fund)
	if err != nil {
		return nil, fmt.Errorf("failed to value fund: %w", err)
	}
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create fund: %w", err)
	}

	return r.GetItem(ctx, doc.ID.Hex())
}

// GetItem retrieves a fund by its id
func (r *MongoFundRepository) GetItem(ctx context.Context, id string) (*models.Fund, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var doc fundDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrFundNotFound
		}
		return nil, fmt.Errorf("failed to get fund: %w", err)
	}

	index, err := r.collection.CountDocuments(ctx, bson.M{
		"type": doc.Type,
		"_id":  bson.M{"$lte": oid},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count funds: %w", err)
	}

	fund := toFund(&doc, int(index))
	return &fund, nil
}

// GetAll returns up to max funds, equities first then bonds
func (r *MongoFundRepository) GetAll(ctx context.Context, max int) ([]models.Fund, error) {
	funds := make([]models.Fund, 0)
	if max <= 0 {
		return funds, nil
	}

	for _, stockType := range models.StockTypes {
		remaining := max - len(funds)
		if remaining <= 0 {
			break
		}

		docs, err := r.findByType(ctx, stockType, remaining)
		if err != nil {
			return nil, err
		}
		for i := range docs {
			funds = append(funds, toFund(&docs[i], i+1))
		}
	}

	return funds, nil
}

func (r *MongoFundRepository) findByType(ctx context.Context, stockType models.StockType, limit int) ([]fundDocument, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"type": string(stockType)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s funds: %w", stockType, err)
	}
	defer cursor.Close(ctx)

	var docs []fundDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode funds: %w", err)
	}
	return docs, nil
}

// UpdateItem revalues the fund's stock and replaces the stored one
func (r *MongoFundRepository) UpdateItem(ctx context.Context, id string, fund *models.Fund) (*models.Fund, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	doc, err := toDocument(fund)
	if err != nil {
		return nil, fmt.Errorf("failed to value fund: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"type":               doc.Type,
			"unit_price":         doc.UnitPrice,
			"quantity_purchased": doc.QuantityPurchased,
			"market_value":       doc.MarketValue,
			"transaction_cost":   doc.TransactionCost,
			"stock_weight":       doc.StockWeight,
			"updated_at":         time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update fund: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, repositories.ErrFundNotFound
	}

	return r.GetItem(ctx, id)
}

// DeleteItem deletes a fund by its id
func (r *MongoFundRepository) DeleteItem(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete fund: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrFundNotFound
	}
	return nil
}
