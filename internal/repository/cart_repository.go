package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&cart)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *MongoCartRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}

	if cart.Version == 0 {
		// First write for this user. A concurrent first write trips the
		// unique user_id index and surfaces as a version conflict.
		doc := *cart
		doc.ID = primitive.NewObjectID().Hex()
		doc.Version = 1
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if _, err := m.collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to create cart: %w", err)
		}
		*cart = doc
		return nil
	}

	filter := bson.M{"user_id": cart.UserID, "version": cart.Version}
	update := bson.M{
		"$set": bson.M{"items": cart.Items, "updated_at": now},
		"$inc": bson.M{"version": 1},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}

	cart.Version++
	cart.UpdatedAt = now
	return nil
}

// ClearItems empties the cart whatever its version and returns the new one.
func (m *MongoCartRepository) ClearItems(ctx context.Context, userID string) (int64, error) {
	version, err := m.updateItems(ctx, bson.M{"user_id": userID}, bson.M{
		"$set": bson.M{"items": []domain.CartItem{}, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrCartNotFound
	}
	return version, err
}

// ClaimItems empties the cart only if it is still at version. Checkout uses it
// so lines added after the cart was read are never dropped.
func (m *MongoCartRepository) ClaimItems(ctx context.Context, userID string, version int64) (int64, error) {
	next, err := m.updateItems(ctx, bson.M{"user_id": userID, "version": version}, bson.M{
		"$set": bson.M{"items": []domain.CartItem{}, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrVersionConflict
	}
	return next, err
}

// RestoreItems appends lines back to the cart after a failed checkout.
func (m *MongoCartRepository) RestoreItems(ctx context.Context, userID string, items []domain.CartItem) (int64, error) {
	version, err := m.updateItems(ctx, bson.M{"user_id": userID}, bson.M{
		"$push": bson.M{"items": bson.M{"$each": items}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
		"$inc":  bson.M{"version": 1},
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrCartNotFound
	}
	return version, err
}

func (m *MongoCartRepository) updateItems(ctx context.Context, filter, update bson.M) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"version": 1})

	var out struct {
		Version int64 `bson:"version"`
	}
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update cart items: %w", err)
	}
	return out.Version, nil
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	return nil
}
