package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/jewel_cart/internal/cache"
	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// errUnchanged lets a cart mutation report success without a write.
var errUnchanged = errors.New("cart unchanged")

type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	cache    cache.CartCache
	log      *logger.Logger
	retries  int
	sfg      singleflight.Group // Prevents cache stampede
	now      func() time.Time
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository, cartCache cache.CartCache, log *logger.Logger, retries int) *CartService {
	if retries <= 0 {
		retries = 3
	}
	return &CartService{
		carts:    carts,
		products: products,
		cache:    cartCache,
		log:      log.With("component", "CartService"),
		retries:  retries,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type AddItemInput struct {
	ProductID      string
	Quantity       int
	Variation      *domain.Variation
	Customizations map[string]string
}

// GetCart returns the user's cart, or an empty one if none was created yet.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", "user_id", userID, "error", err)
		}

		cart, err = s.carts.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := s.now()
			return &domain.Cart{UserID: userID, Items: []domain.CartItem{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(setCtx, userID, cart); err != nil {
				s.log.Warn("cache set error", "user_id", userID, "error", err)
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *CartService) AddItem(ctx context.Context, userID string, in AddItemInput) (*domain.Cart, error) {
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, fmt.Errorf("%w: productId is required", ErrValidation)
	}
	if in.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if in.Variation != nil && strings.TrimSpace(in.Variation.Type) == "" {
		in.Variation = nil
	}

	product, err := s.products.GetProduct(ctx, in.ProductID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, fmt.Errorf("product %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if product.Stock < in.Quantity {
		return nil, ErrInsufficientStock
	}

	price, ok := product.ResolvePrice(in.Variation)
	if !ok {
		return nil, ErrInvalidProduct
	}

	return s.mutate(ctx, userID, true, func(cart *domain.Cart) error {
		if idx := cart.FindLine(in.ProductID, in.Variation); idx >= 0 {
			cart.Items[idx].Quantity += in.Quantity
			return nil
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:                uuid.NewString(),
			ProductID:         in.ProductID,
			Quantity:          in.Quantity,
			SelectedVariation: in.Variation,
			Customizations:    in.Customizations,
			UnitPrice:         price,
			AddedAt:           s.now(),
		})
		return nil
	})
}

// UpdateItem sets a line's quantity. A quantity of zero or less removes the
// line. ringSize, when given, is merged into the line's customizations.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, quantity int, ringSize *string) (*domain.Cart, error) {
	return s.mutate(ctx, userID, false, func(cart *domain.Cart) error {
		idx := cart.FindItem(itemID)
		if idx < 0 {
			return fmt.Errorf("item %w in cart", ErrNotFound)
		}
		if quantity <= 0 {
			cart.RemoveItem(itemID)
			return nil
		}

		item := &cart.Items[idx]
		product, err := s.products.GetProduct(ctx, item.ProductID)
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			// delisted products are caught at checkout
		case err != nil:
			return err
		case product.Stock < quantity:
			return ErrInsufficientStock
		}

		item.Quantity = quantity
		if ringSize != nil {
			if item.Customizations == nil {
				item.Customizations = map[string]string{}
			}
			item.Customizations["ringSize"] = *ringSize
		}
		return nil
	})
}

// RemoveItem is idempotent: removing an unknown line returns the cart as is.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*domain.Cart, error) {
	return s.mutate(ctx, userID, false, func(cart *domain.Cart) error {
		if !cart.RemoveItem(itemID) {
			return errUnchanged
		}
		return nil
	})
}

func (s *CartService) ClearCart(ctx context.Context, userID string) (*domain.Cart, error) {
	version, err := s.carts.ClearItems(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, fmt.Errorf("cart %w", ErrNotFound)
	}
	if err != nil {
		s.log.Error("repo clear cart error", "user_id", userID, "error", err)
		return nil, err
	}

	invalidateCache(s.cache, s.log, userID, version)
	return &domain.Cart{UserID: userID, Items: []domain.CartItem{}, Version: version}, nil
}

// mutate runs a read-modify-write cycle against the versioned cart and retries
// when another writer got there first.
func (s *CartService) mutate(ctx context.Context, userID string, create bool, apply func(*domain.Cart) error) (*domain.Cart, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		cart, err := s.carts.GetCart(ctx, userID)
		switch {
		case errors.Is(err, repository.ErrCartNotFound) && create:
			cart = &domain.Cart{UserID: userID}
		case errors.Is(err, repository.ErrCartNotFound):
			return nil, fmt.Errorf("cart %w", ErrNotFound)
		case err != nil:
			return nil, err
		}

		if err := apply(cart); err != nil {
			if errors.Is(err, errUnchanged) {
				return cart, nil
			}
			return nil, err
		}

		err = s.carts.SaveCart(ctx, cart)
		if err == nil {
			invalidateCache(s.cache, s.log, userID, cart.Version)
			return cart, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			s.log.Error("repo save cart error", "user_id", userID, "error", err)
			return nil, err
		}
		s.log.Warn("cart version conflict", "user_id", userID, "attempt", attempt)
	}
	return nil, ErrConflict
}

// invalidateCache tombstones the entry at the version just written.
func invalidateCache(c cache.CartCache, log *logger.Logger, userID string, version int64) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Invalidate(ctx, userID, version); err != nil {
		log.Warn("cache invalidate error", "user_id", userID, "error", err)
	}
}
