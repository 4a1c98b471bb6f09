package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harshees/storefront/internal/domain"
	"github.com/harshees/storefront/internal/pricing"
)

// CartStore is the cart API the handler serves.
type CartStore interface {
	Get(ctx context.Context, sessionKey string) (domain.Cart, error)
	Dispatch(ctx context.Context, sessionKey string, action domain.Action) (domain.Cart, error)
	AddProduct(ctx context.Context, sessionKey, productID, size string, qty int) (domain.Cart, error)
	Quote(cart domain.Cart) (pricing.Breakdown, error)
}

type CartHandler struct {
	responder
	carts   CartStore
	timeout time.Duration
}

func NewCartHandler(carts CartStore, timeout time.Duration, maxBodySize int64, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		responder: responder{logger: logger, maxBodySize: maxBodySize},
		carts:     carts,
		timeout:   timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ReplaceCartRequestDTO struct {
	Items []domain.LineItem `json:"items"`
}

type CartResponseDTO struct {
	Items      []domain.LineItem `json:"items"`
	TotalItems int               `json:"total_items"`
	Pricing    pricing.Breakdown `json:"pricing"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.Get(ctx, caller.UserID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity < 0 || req.Quantity > domain.MaxLineQuantity {
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	cart, err := h.carts.AddProduct(ctx, caller.UserID, req.ProductID, req.Size, req.Quantity)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondCart(w, http.StatusCreated, cart)
}

// PUT /api/v1/cart/items/{product_id}/{size}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req UpdateQuantityRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity > domain.MaxLineQuantity {
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must not exceed 99")
		return
	}

	cart, err := h.carts.Dispatch(ctx, caller.UserID, domain.SetQuantity{
		ProductID: chi.URLParam(r, "product_id"),
		Size:      chi.URLParam(r, "size"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

// DELETE /api/v1/cart/items/{product_id}/{size}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.Dispatch(ctx, caller.UserID, domain.RemoveItem{
		ProductID: chi.URLParam(r, "product_id"),
		Size:      chi.URLParam(r, "size"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

// PUT /api/v1/cart
func (h *CartHandler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ReplaceCartRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	cart, err := h.carts.Dispatch(ctx, caller.UserID, domain.Load{Items: req.Items})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.Dispatch(ctx, caller.UserID, domain.Clear{})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

func (h *CartHandler) respondCart(w http.ResponseWriter, status int, cart domain.Cart) {
	quote, err := h.carts.Quote(cart)
	if err != nil {
		h.logger.Error("cart pricing failed", "session_key", cart.SessionKey, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	items := cart.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	h.respondJSON(w, status, CartResponseDTO{
		Items:      items,
		TotalItems: cart.TotalItems(),
		Pricing:    quote,
		UpdatedAt:  cart.UpdatedAt,
	})
}
