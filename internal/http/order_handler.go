package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/service"
	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID string, in service.PlaceOrderInput) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	GetOrder(ctx context.Context, caller *domain.User, orderID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error)
	ListAllOrders(ctx context.Context) ([]domain.Order, error)
	ListDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, error)
}

type OrderHandler struct {
	orders  OrderService
	timeout time.Duration
	log     *logger.Logger
}

func NewOrderHandler(orders OrderService, timeout time.Duration, log *logger.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, timeout: timeout, log: log}
}

type CreateOrderRequestDTO struct {
	ShippingAddress *domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                  `json:"paymentMethod"`
	OrderNotes      string                  `json:"orderNotes"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	// the service applies its own checkout deadline
	ctx := r.Context()
	user := userFromContext(ctx)

	var req CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ShippingAddress == nil {
		respondError(w, http.StatusBadRequest, "All shipping address fields are required")
		return
	}

	order, err := h.orders.CreateOrder(ctx, user.ID, service.PlaceOrderInput{
		ShippingAddress: *req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		OrderNotes:      req.OrderNotes,
	})
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to create order")
		return
	}
	respondSuccess(w, http.StatusCreated, "Order placed successfully", order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, userFromContext(r.Context()).ID)
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to fetch orders")
		return
	}
	respondSuccess(w, http.StatusOK, "", nonNil(orders))
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, userFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to fetch order")
		return
	}
	respondSuccess(w, http.StatusOK, "", order)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	order, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to update order status")
		return
	}
	respondSuccess(w, http.StatusOK, "Order status updated", order)
}

func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListAllOrders(ctx)
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to fetch orders")
		return
	}
	respondSuccess(w, http.StatusOK, "", nonNil(orders))
}

func (h *OrderHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deliveries, err := h.orders.ListDeliveries(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to fetch notifications")
		return
	}
	respondSuccess(w, http.StatusOK, "", nonNil(deliveries))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
