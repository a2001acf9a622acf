package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/jewel_cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoUserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{
		collection: db.Collection("users"),
	}
}

var userProjection = bson.M{"name": 1, "email": 1, "phone": 1, "role": 1}

func (m *MongoUserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	opts := options.FindOne().SetProjection(userProjection)
	err := m.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (m *MongoUserRepository) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(userProjection)
	cursor, err := m.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}

	var users []domain.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// UpsertUser is used by tooling and tests; user accounts are otherwise owned
// by the auth service.
func (m *MongoUserRepository) UpsertUser(ctx context.Context, u *domain.User) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, opts); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
