package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/harshees/storefront/internal/domain"
	"github.com/harshees/storefront/internal/service"
)

// OrderDesk is the order API the handler serves.
type OrderDesk interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, caller service.Caller, orderID uuid.UUID) (*domain.Order, error)
	ListMyOrders(ctx context.Context, userID string, page, limit int) (*service.OrderPage, error)
	Advance(ctx context.Context, orderID uuid.UUID, req service.AdvanceRequest) (*domain.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID, amountMinor int64, reason string) (*domain.Order, error)
}

type OrdersHandler struct {
	responder
	orders  OrderDesk
	timeout time.Duration
}

func NewOrdersHandler(orders OrderDesk, timeout time.Duration, maxBodySize int64, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		responder: responder{logger: logger, maxBodySize: maxBodySize},
		orders:    orders,
		timeout:   timeout,
	}
}

type OrderItemDTO struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequestDTO struct {
	Items           []OrderItemDTO         `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	CouponCode      string                 `json:"coupon_code"`
	OrderNotes      string                 `json:"order_notes"`
}

type UpdateStatusRequestDTO struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	TrackingNumber string `json:"tracking_number"`
	CourierService string `json:"courier_service"`
	PaymentStatus  string `json:"payment_status"`
}

type RefundRequestDTO struct {
	AmountMinor int64  `json:"amount_minor"`
	Reason      string `json:"reason"`
}

// POST /api/v1/orders
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req PlaceOrderRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.LineItem{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, service.PlaceOrderRequest{
		UserID:          caller.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		OrderNotes:      req.OrderNotes,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, order)
}

// GET /api/v1/orders/my
func (h *OrdersHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	page, ok := h.queryInt(w, r, "page")
	if !ok {
		return
	}
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}

	result, err := h.orders.ListMyOrders(ctx, caller.UserID, page, limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, caller, orderID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.Advance(ctx, orderID, service.AdvanceRequest{
		Status:         req.Status,
		Note:           req.Note,
		TrackingNumber: req.TrackingNumber,
		CourierService: req.CourierService,
		PaymentStatus:  req.PaymentStatus,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{order_id}/refund
func (h *OrdersHandler) Refund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req RefundRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.Refund(ctx, orderID, req.AmountMinor, req.Reason)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an optional positive integer query parameter; absent is 0.
func (h *OrdersHandler) queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}
