package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// EnsureIndexes creates the cart, product and order indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if err := NewCartRepository(db).CreateIndexes(ctx); err != nil {
		return err
	}
	if err := NewProductRepository(db).CreateIndexes(ctx); err != nil {
		return err
	}
	return NewOrderRepository(db).CreateIndexes(ctx)
}
