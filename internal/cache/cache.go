package cache

import (
	"context"
	"errors"

	"github.com/fjod/jewel_cart/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	// Invalidate drops the cached cart and rejects older versions for a while.
	Invalidate(ctx context.Context, userID string, version int64) error
}

var ErrCacheMiss = errors.New("cache miss")
