package repository

import (
	"context"
	"errors"

	"github.com/fjod/jewel_cart/internal/domain"
)

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrVersionConflict   = errors.New("cart was modified concurrently")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrStatusConflict    = errors.New("order status changed concurrently")
	ErrUserNotFound      = errors.New("user not found")
)

// CartRepository defines the interface for cart data operations
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// SaveCart writes the cart only if its stored version still equals
	// cart.Version, then bumps the version. A zero version inserts.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	ClearItems(ctx context.Context, userID string) (int64, error)
	// ClaimItems empties the cart only if its stored version still equals
	// version. A mismatch is ErrVersionConflict.
	ClaimItems(ctx context.Context, userID string, version int64) (int64, error)
	RestoreItems(ctx context.Context, userID string, items []domain.CartItem) (int64, error)
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	// DecrementStock removes qty units only if at least qty are on hand.
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
	UpsertProduct(ctx context.Context, p *domain.Product) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	// UpdateStatus is a compare-and-set from the expected current status.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
	SetNotificationFlags(ctx context.Context, id string, flags domain.NotificationFlags) error
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error)
}
