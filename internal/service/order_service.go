package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/jewel_cart/internal/cache"
	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/repository"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ordersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jewel_orders_placed_total",
	Help: "Checkout attempts by outcome.",
}, []string{"result"})

// OrderNotifier fans order events out to the notification sinks.
type OrderNotifier interface {
	OrderPlaced(ctx context.Context, order *domain.Order) []domain.Delivery
	StatusChanged(ctx context.Context, order *domain.Order, previous domain.OrderStatus) []domain.Delivery
}

// DeliveryLog reads back recorded notification outcomes.
type DeliveryLog interface {
	ListDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, error)
}

type OrderConfig struct {
	Timeout        time.Duration
	NotifyTimeout  time.Duration
	Currency       string
	OrderPrefix    string
	DefaultPayment string
	// CartRetries bounds checkout attempts when the cart changes underneath it.
	CartRetries   int
	StatusRetries int
}

type OrderDeps struct {
	Carts      repository.CartRepository
	Products   repository.ProductRepository
	Orders     repository.OrderRepository
	Users      repository.UserRepository
	Cache      cache.CartCache
	Notifier   OrderNotifier
	Deliveries DeliveryLog
}

type OrderService struct {
	deps   OrderDeps
	cfg    OrderConfig
	log    *logger.Logger
	tracer trace.Tracer
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewOrderService(deps OrderDeps, cfg OrderConfig, log *logger.Logger) *OrderService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.OrderPrefix == "" {
		cfg.OrderPrefix = "YJ"
	}
	if cfg.DefaultPayment == "" {
		cfg.DefaultPayment = "Cash on Delivery"
	}
	if cfg.CartRetries <= 0 {
		cfg.CartRetries = 3
	}
	if cfg.StatusRetries <= 0 {
		cfg.StatusRetries = 3
	}
	return &OrderService{
		deps:   deps,
		cfg:    cfg,
		log:    log.With("component", "OrderService"),
		tracer: otel.Tracer("github.com/fjod/jewel_cart/internal/service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type PlaceOrderInput struct {
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	OrderNotes      string
}

type reservation struct {
	productID string
	qty       int
}

// CreateOrder turns the user's cart into a pending order. Stock is reserved
// with conditional decrements before the order is written; any failure after
// a reservation gives the stock back. Notifications run in the background and
// never affect the result.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, in PlaceOrderInput) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	order, err := s.createOrder(ctx, userID, in)
	if err != nil {
		ordersPlaced.WithLabelValues(resultLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	ordersPlaced.WithLabelValues("placed").Inc()
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, userID string, in PlaceOrderInput) (*domain.Order, error) {
	addr := in.ShippingAddress
	if missing := addr.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: all shipping address fields are required (missing %s)", ErrValidation, strings.Join(missing, ", "))
	}
	if strings.TrimSpace(addr.Country) == "" {
		addr.Country = "India"
	}
	in.ShippingAddress = addr

	for attempt := 1; attempt <= s.cfg.CartRetries; attempt++ {
		order, err := s.placeOrder(ctx, userID, in)
		if !errors.Is(err, errCartChanged) {
			return order, err
		}
		s.log.Warn("cart changed during checkout", "user_id", userID, "attempt", attempt)
	}
	return nil, ErrConflict
}

// errCartChanged means the cart moved past the version the checkout read.
var errCartChanged = errors.New("cart changed during checkout")

// placeOrder is one checkout attempt against a single cart version. Stock is
// reserved first, then the cart is claimed at the version read, then the
// order is written. Each failure undoes the steps before it.
func (s *OrderService) placeOrder(ctx context.Context, userID string, in PlaceOrderInput) (*domain.Order, error) {
	cart, err := s.deps.Carts.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	items, wanted, err := s.snapshotItems(ctx, cart)
	if err != nil {
		return nil, err
	}

	reserved, err := s.reserveStock(ctx, wanted, items)
	if err != nil {
		return nil, err
	}

	cartVersion, err := s.deps.Carts.ClaimItems(ctx, userID, cart.Version)
	if err != nil {
		s.releaseStock(ctx, reserved)
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, errCartChanged
		}
		return nil, fmt.Errorf("claim cart: %w", err)
	}

	now := s.now()
	paymentMethod := strings.TrimSpace(in.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = s.cfg.DefaultPayment
	}
	order := &domain.Order{
		ID:              uuid.NewString(),
		OrderNumber:     s.orderNumber(now),
		UserID:          userID,
		Items:           items,
		TotalAmount:     cart.TotalAmount(),
		Currency:        s.cfg.Currency,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   paymentMethod,
		OrderNotes:      strings.TrimSpace(in.OrderNotes),
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.deps.Orders.CreateOrder(ctx, order); err != nil {
		s.releaseStock(ctx, reserved)
		cartVersion = s.restoreCart(ctx, userID, cart.Items, cartVersion)
		invalidateCache(s.deps.Cache, s.log, userID, cartVersion)
		return nil, fmt.Errorf("create order: %w", err)
	}
	invalidateCache(s.deps.Cache, s.log, userID, cartVersion)

	s.log.Info("order placed", "order_number", order.OrderNumber, "user_id", userID, "total", order.TotalAmount.String(), "items", len(items))

	s.notifyAsync(ctx, *order, func(nctx context.Context, o *domain.Order) []domain.Delivery {
		return s.deps.Notifier.OrderPlaced(nctx, o)
	})
	return order, nil
}

// restoreCart puts claimed lines back after the order write failed.
func (s *OrderService) restoreCart(ctx context.Context, userID string, items []domain.CartItem, version int64) int64 {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	restored, err := s.deps.Carts.RestoreItems(rctx, userID, items)
	if err != nil {
		s.log.Error("failed to restore cart after checkout failure", "user_id", userID, "items", len(items), "error", err)
		return version
	}
	return restored
}

// snapshotItems re-checks stock for every line against the live catalog and
// copies price and product details into order lines. wanted keeps the
// per-product totals in cart order.
func (s *OrderService) snapshotItems(ctx context.Context, cart *domain.Cart) ([]domain.OrderItem, []reservation, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.deps.Products.GetProducts(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load products: %w", err)
	}

	totals := cart.QuantityByProduct()
	wanted := make([]reservation, 0, len(totals))
	items := make([]domain.OrderItem, 0, len(cart.Items))
	seen := make(map[string]bool, len(totals))

	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("product %s %w", item.ProductID, ErrNotFound)
		}
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			if product.Stock < totals[item.ProductID] {
				return nil, nil, fmt.Errorf("%w for %s", ErrInsufficientStock, product.Name)
			}
			wanted = append(wanted, reservation{productID: item.ProductID, qty: totals[item.ProductID]})
		}

		items = append(items, domain.OrderItem{
			ProductID:         item.ProductID,
			ProductName:       product.Name,
			SKU:               product.SKU,
			CategoryName:      product.CategoryName,
			ImageURL:          product.PrimaryImage(),
			Quantity:          item.Quantity,
			SelectedVariation: item.SelectedVariation,
			Customizations:    item.Customizations,
			UnitPrice:         item.UnitPrice,
			LineTotal:         item.LineTotal(),
		})
	}
	return items, wanted, nil
}

func (s *OrderService) reserveStock(ctx context.Context, wanted []reservation, items []domain.OrderItem) ([]reservation, error) {
	reserved := make([]reservation, 0, len(wanted))
	for _, r := range wanted {
		err := s.deps.Products.DecrementStock(ctx, r.productID, r.qty)
		if err == nil {
			reserved = append(reserved, r)
			continue
		}

		s.releaseStock(ctx, reserved)
		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			return nil, fmt.Errorf("%w for %s", ErrInsufficientStock, productName(items, r.productID))
		case errors.Is(err, repository.ErrProductNotFound):
			return nil, fmt.Errorf("product %s %w", r.productID, ErrNotFound)
		default:
			return nil, fmt.Errorf("reserve stock: %w", err)
		}
	}
	return reserved, nil
}

// releaseStock returns reserved units. It runs on a detached context because
// the request context may already be done.
func (s *OrderService) releaseStock(ctx context.Context, reserved []reservation) {
	if len(reserved) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, r := range reserved {
		if err := s.deps.Products.IncrementStock(rctx, r.productID, r.qty); err != nil {
			s.log.Error("failed to release reserved stock", "product_id", r.productID, "qty", r.qty, "error", err)
		}
	}
}

func (s *OrderService) notifyAsync(ctx context.Context, order domain.Order, send func(context.Context, *domain.Order) []domain.Delivery) {
	if s.deps.Notifier == nil {
		return
	}
	parent := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("notification fan-out panicked", "order_number", order.OrderNumber, "panic", r)
			}
		}()

		nctx, cancel := context.WithTimeout(parent, s.cfg.NotifyTimeout)
		defer cancel()

		deliveries := send(nctx, &order)
		flags := domain.FlagsFromDeliveries(deliveries)
		if flags == order.Notifications || (!flags.EmailSent && !flags.WhatsappSent) {
			return
		}
		if err := s.deps.Orders.SetNotificationFlags(nctx, order.ID, flags); err != nil {
			s.log.Warn("failed to update notification flags", "order_number", order.OrderNumber, "error", err)
		}
	}()
}

// Wait blocks until background notifications have finished.
func (s *OrderService) Wait() {
	s.wg.Wait()
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.deps.Orders.ListByUser(ctx, userID)
}

// GetOrder returns the order only to its owner. Admins use ListAllOrders.
func (s *OrderService) GetOrder(ctx context.Context, caller *domain.User, orderID string) (*domain.Order, error) {
	order, err := s.deps.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("order %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.ID {
		return nil, ErrForbidden
	}
	return order, nil
}

// UpdateStatus moves an order along the lifecycle. Setting the current status
// again is a no-op.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	next, ok := domain.ParseOrderStatus(strings.TrimSpace(status))
	if !ok {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}

	for attempt := 1; attempt <= s.cfg.StatusRetries; attempt++ {
		order, err := s.deps.Orders.GetOrder(ctx, orderID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("order %w", ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if order.Status == next {
			return order, nil
		}
		if !order.Status.CanTransitionTo(next) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, next)
		}

		updated, err := s.deps.Orders.UpdateStatus(ctx, orderID, order.Status, next)
		if errors.Is(err, repository.ErrStatusConflict) {
			s.log.Warn("order status changed concurrently", "order_id", orderID, "attempt", attempt)
			continue
		}
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("order %w", ErrNotFound)
		}
		if err != nil {
			return nil, err
		}

		s.log.Info("order status updated", "order_number", updated.OrderNumber, "from", order.Status, "to", next)
		previous := order.Status
		s.notifyAsync(ctx, *updated, func(nctx context.Context, o *domain.Order) []domain.Delivery {
			return s.deps.Notifier.StatusChanged(nctx, o, previous)
		})
		return updated, nil
	}
	return nil, ErrConflict
}

// ListAllOrders returns every order, newest first, with the owner attached.
func (s *OrderService) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.deps.Orders.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(orders))
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			ids = append(ids, o.UserID)
		}
	}
	users, err := s.deps.Users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load order owners: %w", err)
	}
	for i := range orders {
		if u, ok := users[orders[i].UserID]; ok {
			orders[i].User = u.Summary()
		}
	}
	return orders, nil
}

// ListDeliveries returns the notification outcomes recorded for an order.
func (s *OrderService) ListDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, error) {
	if _, err := s.deps.Orders.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("order %w", ErrNotFound)
		}
		return nil, err
	}
	if s.deps.Deliveries == nil {
		return []domain.Delivery{}, nil
	}
	return s.deps.Deliveries.ListDeliveries(ctx, orderID)
}

func (s *OrderService) orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", s.cfg.OrderPrefix, now.Format("20060102"), suffix)
}

func productName(items []domain.OrderItem, productID string) string {
	for _, it := range items {
		if it.ProductID == productID {
			return it.ProductName
		}
	}
	return productID
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInsufficientStock):
		return "out_of_stock"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
