package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxQuantity = 99

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, in service.AddItemInput) (*domain.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID string, quantity int, ringSize *string) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) (*domain.Cart, error)
}

// ProductLookup resolves the products referenced by cart lines in one query.
type ProductLookup interface {
	GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error)
}

type CartHandler struct {
	carts    CartService
	products ProductLookup
	timeout  time.Duration
	log      *logger.Logger
}

// NewCartHandler builds the cart endpoints. products may be nil, in which case
// lines are returned without product details.
func NewCartHandler(carts CartService, products ProductLookup, timeout time.Duration, log *logger.Logger) *CartHandler {
	return &CartHandler{carts: carts, products: products, timeout: timeout, log: log}
}

type AddItemRequestDTO struct {
	ProductID              string            `json:"productId"`
	Quantity               *int              `json:"quantity"`
	SelectedMetalVariation *domain.Variation `json:"selectedMetalVariation"`
	Customizations         map[string]string `json:"customizations"`
}

type UpdateItemRequestDTO struct {
	Quantity *int    `json:"quantity"`
	RingSize *string `json:"ringSize"`
}

type ProductSummaryDTO struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	SKU          string         `json:"sku"`
	CategoryName string         `json:"categoryName,omitempty"`
	Stock        int            `json:"stock"`
	Images       []domain.Image `json:"images"`
}

type CartItemDTO struct {
	domain.CartItem
	Product *ProductSummaryDTO `json:"product"`
}

type CartDTO struct {
	Items       []CartItemDTO   `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// cartDTO attaches product details to each line. A failed lookup or a product
// that no longer exists leaves product null; the cart itself is still returned.
func (h *CartHandler) cartDTO(ctx context.Context, c *domain.Cart) CartDTO {
	items := make([]CartItemDTO, len(c.Items))
	for i, it := range c.Items {
		items[i] = CartItemDTO{CartItem: it}
	}

	if h.products != nil && len(c.Items) > 0 {
		ids := make([]string, 0, len(c.Items))
		seen := make(map[string]bool, len(c.Items))
		for _, it := range c.Items {
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				ids = append(ids, it.ProductID)
			}
		}

		products, err := h.products.GetProducts(ctx, ids)
		if err != nil {
			h.log.Warn("cart product lookup failed", "user_id", c.UserID, "error", err)
		}
		for i := range items {
			if p, ok := products[items[i].ProductID]; ok && p != nil {
				items[i].Product = productSummary(p)
			}
		}
	}

	return CartDTO{Items: items, TotalAmount: c.TotalAmount()}
}

func productSummary(p *domain.Product) *ProductSummaryDTO {
	images := p.Images
	if images == nil {
		images = []domain.Image{}
	}
	return &ProductSummaryDTO{
		ID:           p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		CategoryName: p.CategoryName,
		Stock:        p.Stock,
		Images:       images,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())
	cart, err := h.carts.GetCart(ctx, user.ID)
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to fetch cart")
		return
	}
	respondSuccess(w, http.StatusOK, "", h.cartDTO(ctx, cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		respondError(w, http.StatusBadRequest, "productId is required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty <= 0 || qty > maxQuantity {
		respondError(w, http.StatusBadRequest, "Quantity must be between 1 and 99")
		return
	}

	cart, err := h.carts.AddItem(ctx, user.ID, service.AddItemInput{
		ProductID:      strings.TrimSpace(req.ProductID),
		Quantity:       qty,
		Variation:      req.SelectedMetalVariation,
		Customizations: req.Customizations,
	})
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to add item to cart")
		return
	}
	respondSuccess(w, http.StatusOK, "Item added to cart", h.cartDTO(ctx, cart))
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())
	itemID := chi.URLParam(r, "itemId")

	var req UpdateItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	if *req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "Quantity must be between 1 and 99")
		return
	}

	cart, err := h.carts.UpdateItem(ctx, user.ID, itemID, *req.Quantity, req.RingSize)
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to update cart item")
		return
	}
	msg := "Cart item updated"
	if *req.Quantity <= 0 {
		msg = "Item removed from cart"
	}
	respondSuccess(w, http.StatusOK, msg, h.cartDTO(ctx, cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())
	cart, err := h.carts.RemoveItem(ctx, user.ID, chi.URLParam(r, "itemId"))
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to remove item from cart")
		return
	}
	respondSuccess(w, http.StatusOK, "Item removed from cart", h.cartDTO(ctx, cart))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := userFromContext(r.Context())
	cart, err := h.carts.ClearCart(ctx, user.ID)
	if err != nil {
		handleServiceError(w, h.log, err, "Failed to clear cart")
		return
	}
	respondSuccess(w, http.StatusOK, "Cart cleared", h.cartDTO(ctx, cart))
}
