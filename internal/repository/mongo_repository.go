package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/domain"
)

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
	}
}

// cartDoc is the stored shape of a cart. Money amounts are kept as decimal
// strings so no precision is lost in BSON.
type cartDoc struct {
	ID                string     `bson:"_id"`
	SessionID         string     `bson:"session_id"`
	Items             []itemDoc  `bson:"items"`
	TotalPrice        string     `bson:"total_price"`
	LastInteractionAt time.Time  `bson:"last_interaction_at"`
	AbandonedAt       *time.Time `bson:"abandoned_at"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

type itemDoc struct {
	ProductID   int64     `bson:"product_id"`
	ProductName string    `bson:"product_name"`
	Quantity    int       `bson:"quantity"`
	UnitPrice   string    `bson:"unit_price"`
	AddedAt     time.Time `bson:"added_at"`
}

func (m mongoRepository) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return m.findOne(ctx, bson.M{"_id": cartID})
}

func (m mongoRepository) FindBySession(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return m.findOne(ctx, bson.M{"session_id": sessionID})
}

func (m mongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.Cart, error) {
	var doc cartDoc
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart, err := mapDocToDomain(doc)
	if err != nil {
		return nil, fmt.Errorf("mapDocToDomain: %w", err)
	}

	return cart, nil
}

func (m mongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	doc := mapDomainToDoc(cart)

	filter := bson.M{"_id": cart.ID}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	_, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

// DeleteCart removes the cart document; the items live inside it, so the
// delete cascades by construction.
func (m mongoRepository) DeleteCart(ctx context.Context, cartID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": cartID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m mongoRepository) FindStaleActive(ctx context.Context, before time.Time, limit int) ([]*domain.Cart, error) {
	filter := bson.M{
		"abandoned_at":        nil,
		"last_interaction_at": bson.M{"$lt": before},
	}
	return m.findBatch(ctx, filter, "last_interaction_at", limit)
}

func (m mongoRepository) FindExpiredAbandoned(ctx context.Context, before time.Time, limit int) ([]*domain.Cart, error) {
	filter := bson.M{
		"abandoned_at": bson.M{"$ne": nil, "$lt": before},
	}
	return m.findBatch(ctx, filter, "abandoned_at", limit)
}

func (m mongoRepository) findBatch(ctx context.Context, filter bson.M, sortField string, limit int) ([]*domain.Cart, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}
	defer cursor.Close(ctx)

	var carts []*domain.Cart
	for cursor.Next(ctx) {
		var doc cartDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode cart: %w", err)
		}

		cart, err := mapDocToDomain(doc)
		if err != nil {
			return nil, fmt.Errorf("mapDocToDomain: %w", err)
		}
		carts = append(carts, cart)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration error: %w", err)
	}

	return carts, nil
}

// EnsureIndexes creates the session uniqueness index and the range-query
// indexes the sweep depends on. Called once at startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "last_interaction_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "abandoned_at", Value: 1}},
		},
	}

	_, err := db.Collection("carts").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func mapDomainToDoc(cart *domain.Cart) cartDoc {
	items := make([]itemDoc, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = itemDoc{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			AddedAt:     item.AddedAt,
		}
	}

	return cartDoc{
		ID:                cart.ID,
		SessionID:         cart.SessionID,
		Items:             items,
		TotalPrice:        cart.TotalPrice.String(),
		LastInteractionAt: cart.LastInteractionAt,
		AbandonedAt:       cart.AbandonedAt,
		CreatedAt:         cart.CreatedAt,
		UpdatedAt:         cart.UpdatedAt,
	}
}

func mapDocToDomain(doc cartDoc) (*domain.Cart, error) {
	total, err := decimal.NewFromString(doc.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("total_price[%s] is not a valid decimal: %w", doc.TotalPrice, err)
	}

	items := make([]domain.CartItem, len(doc.Items))
	for i, item := range doc.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("unit_price[%s] is not a valid decimal: %w", item.UnitPrice, err)
		}

		items[i] = domain.CartItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			AddedAt:     item.AddedAt,
		}
	}

	return &domain.Cart{
		ID:                doc.ID,
		SessionID:         doc.SessionID,
		Items:             items,
		TotalPrice:        total,
		LastInteractionAt: doc.LastInteractionAt,
		AbandonedAt:       doc.AbandonedAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}, nil
}
