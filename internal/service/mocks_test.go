package service

import (
	"context"
	"sync"

	"github.com/fjod/jewel_cart/internal/cache"
	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/repository"
)

func copyCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = make([]domain.CartItem, len(c.Items))
	for i, item := range c.Items {
		if item.Customizations != nil {
			cust := make(map[string]string, len(item.Customizations))
			for k, v := range item.Customizations {
				cust[k] = v
			}
			item.Customizations = cust
		}
		out.Items[i] = item
	}
	return &out
}

// mockCartRepository keeps carts in memory with the same version semantics
// as the Mongo implementation.
type mockCartRepository struct {
	m         sync.Mutex
	carts     map[string]*domain.Cart
	getErr    error
	saveErr   error
	clearErr  error
	conflicts int // number of SaveCart calls to reject before accepting
	saves     int
}

func newMockCartRepository(carts ...*domain.Cart) *mockCartRepository {
	repo := &mockCartRepository{carts: map[string]*domain.Cart{}}
	for _, c := range carts {
		if c.Version == 0 {
			c.Version = 1
		}
		repo.carts[c.UserID] = copyCart(c)
	}
	return repo
}

func (m *mockCartRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *mockCartRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		// simulate another writer bumping the version
		if stored, ok := m.carts[cart.UserID]; ok {
			stored.Version++
		}
		return repository.ErrVersionConflict
	}

	stored, ok := m.carts[cart.UserID]
	switch {
	case cart.Version == 0 && ok:
		return repository.ErrVersionConflict
	case cart.Version != 0 && (!ok || stored.Version != cart.Version):
		return repository.ErrVersionConflict
	}
	cart.Version++
	m.carts[cart.UserID] = copyCart(cart)
	m.saves++
	return nil
}

func (m *mockCartRepository) ClearItems(_ context.Context, userID string) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.clearErr != nil {
		return 0, m.clearErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return 0, repository.ErrCartNotFound
	}
	c.Items = []domain.CartItem{}
	c.Version++
	return c.Version, nil
}

func (m *mockCartRepository) ClaimItems(_ context.Context, userID string, version int64) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.clearErr != nil {
		return 0, m.clearErr
	}
	c, ok := m.carts[userID]
	if !ok || c.Version != version {
		return 0, repository.ErrVersionConflict
	}
	c.Items = []domain.CartItem{}
	c.Version++
	return c.Version, nil
}

func (m *mockCartRepository) RestoreItems(_ context.Context, userID string, items []domain.CartItem) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return 0, repository.ErrCartNotFound
	}
	c.Items = append(c.Items, copyCart(&domain.Cart{Items: items}).Items...)
	c.Version++
	return c.Version, nil
}

func (m *mockCartRepository) stored(userID string) *domain.Cart {
	m.m.Lock()
	defer m.m.Unlock()
	if c, ok := m.carts[userID]; ok {
		return copyCart(c)
	}
	return nil
}

type mockProductRepository struct {
	m            sync.Mutex
	products     map[string]*domain.Product
	decrementErr map[string]error
	incrementErr error
	increments   map[string]int
	// onDecrement runs before each DecrementStock, outside the lock
	onDecrement func(id string)
}

func newMockProductRepository(products ...*domain.Product) *mockProductRepository {
	repo := &mockProductRepository{
		products:     map[string]*domain.Product{},
		decrementErr: map[string]error{},
		increments:   map[string]int{},
	}
	for _, p := range products {
		cp := *p
		repo.products[p.ID] = &cp
	}
	return repo
}

func (m *mockProductRepository) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) GetProducts(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := map[string]*domain.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *mockProductRepository) DecrementStock(_ context.Context, id string, qty int) error {
	if m.onDecrement != nil {
		m.onDecrement(id)
	}
	m.m.Lock()
	defer m.m.Unlock()
	if err := m.decrementErr[id]; err != nil {
		return err
	}
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	if p.Stock < qty {
		return repository.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func (m *mockProductRepository) IncrementStock(_ context.Context, id string, qty int) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Stock += qty
	m.increments[id] += qty
	return nil
}

func (m *mockProductRepository) UpsertProduct(_ context.Context, p *domain.Product) error {
	m.m.Lock()
	defer m.m.Unlock()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockProductRepository) stock(id string) int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.products[id].Stock
}

func (m *mockProductRepository) setPrice(id string, regular string) {
	m.m.Lock()
	defer m.m.Unlock()
	m.products[id].RegularPrice = price(regular)
	m.products[id].SalePrice = nil
}

type mockOrderRepository struct {
	m         sync.Mutex
	orders    map[string]*domain.Order
	createErr error
	flagsErr  error
	// statusConflicts rejects that many UpdateStatus calls with a conflict
	statusConflicts int
	flagCalls       int
}

func newMockOrderRepository(orders ...*domain.Order) *mockOrderRepository {
	repo := &mockOrderRepository{orders: map[string]*domain.Order{}}
	for _, o := range orders {
		cp := *o
		repo.orders[o.ID] = &cp
	}
	return repo
}

func (m *mockOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *mockOrderRepository) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepository) ListAll(_ context.Context) ([]domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := []domain.Order{}
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepository) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if m.statusConflicts > 0 {
		m.statusConflicts--
		return nil, repository.ErrStatusConflict
	}
	if o.Status != from {
		return nil, repository.ErrStatusConflict
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepository) SetNotificationFlags(_ context.Context, id string, flags domain.NotificationFlags) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.flagCalls++
	if m.flagsErr != nil {
		return m.flagsErr
	}
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Notifications = flags
	return nil
}

func (m *mockOrderRepository) count() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.orders)
}

type mockUserRepository struct {
	users map[string]*domain.User
}

func (m *mockUserRepository) GetUser(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) GetUsers(_ context.Context, ids []string) (map[string]*domain.User, error) {
	out := map[string]*domain.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type mockCache struct {
	m             sync.Mutex
	carts         map[string]*domain.Cart
	getErr        error
	invalidations []int64
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return copyCart(c), nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.carts[userID] = copyCart(cart)
	return nil
}

func (m *mockCache) Invalidate(_ context.Context, userID string, version int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, userID)
	m.invalidations = append(m.invalidations, version)
	return nil
}

func (m *mockCache) has(userID string) bool {
	m.m.Lock()
	defer m.m.Unlock()
	_, ok := m.carts[userID]
	return ok
}

type mockNotifier struct {
	m          sync.Mutex
	placed     []string
	changed    []string
	deliveries []domain.Delivery
	block      chan struct{}
	panics     bool
}

func (m *mockNotifier) OrderPlaced(ctx context.Context, order *domain.Order) []domain.Delivery {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
		}
	}
	if m.panics {
		panic("transport exploded")
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.placed = append(m.placed, order.OrderNumber)
	return m.deliveries
}

func (m *mockNotifier) StatusChanged(_ context.Context, order *domain.Order, previous domain.OrderStatus) []domain.Delivery {
	m.m.Lock()
	defer m.m.Unlock()
	m.changed = append(m.changed, string(previous)+"->"+string(order.Status))
	return nil
}

func (m *mockNotifier) placedCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.placed)
}

type mockDeliveryLog struct {
	deliveries []domain.Delivery
}

func (m *mockDeliveryLog) ListDeliveries(_ context.Context, orderID string) ([]domain.Delivery, error) {
	out := []domain.Delivery{}
	for _, d := range m.deliveries {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out, nil
}
