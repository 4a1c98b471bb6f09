package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harshees/storefront/internal/domain"
	"github.com/harshees/storefront/internal/repository"
)

const (
	RoleAdmin = "admin"

	defaultPageSize = 10
	maxPageSize     = 100
)

// Caller is the pre-verified identity a request acts as.
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// TransitionPolicy decides whether an order may move between two statuses.
type TransitionPolicy interface {
	Allow(from, to domain.OrderStatus) error
}

// PermissivePolicy accepts any enumerated status.
type PermissivePolicy struct{}

func (PermissivePolicy) Allow(_, _ domain.OrderStatus) error {
	return nil
}

// ForwardOnlyPolicy rejects moving backwards on the fulfillment line and
// leaving a terminal status. Repeating the current status is allowed.
type ForwardOnlyPolicy struct{}

func (ForwardOnlyPolicy) Allow(from, to domain.OrderStatus) error {
	if from == to || to.IsForwardOf(from) {
		return nil
	}
	return fmt.Errorf("cannot move order from %s to %s", from, to)
}

type AdvanceRequest struct {
	Status         string
	Note           string
	TrackingNumber string
	CourierService string
	// PaymentStatus is optional.
	PaymentStatus string
}

type OrderPage struct {
	Orders      []*domain.Order `json:"orders"`
	CurrentPage int             `json:"current_page"`
	TotalPages  int             `json:"total_pages"`
	TotalOrders int             `json:"total_orders"`
}

// GetOrder returns the order if caller owns it or is an admin.
func (s *OrderService) GetOrder(ctx context.Context, caller Caller, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, &OrderError{Kind: KindForbidden, Message: "not authorized to view this order"}
	}
	return order, nil
}

// ListMyOrders pages through userID's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, userID string, page, limit int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	listCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistenceTimeout)
	defer cancel()

	orders, total, err := s.orders.ListOrders(listCtx, userID, page, limit)
	if err != nil {
		return nil, persistenceFailure("list orders", err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return &OrderPage{
		Orders:      orders,
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalOrders: total,
	}, nil
}

// Advance moves an order to req.Status and appends a history entry.
// Delivering sets the delivery flag and timestamp once; repeating it only
// adds another history entry.
func (s *OrderService) Advance(ctx context.Context, orderID uuid.UUID, req AdvanceRequest) (*domain.Order, error) {
	to, err := domain.ParseOrderStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return nil, fromValidation(err)
	}

	patch := domain.OrderPatch{OrderStatus: &to}
	if ps := strings.TrimSpace(req.PaymentStatus); ps != "" {
		paymentStatus, err := domain.ParsePaymentStatus(ps)
		if err != nil {
			return nil, fromValidation(err)
		}
		patch.PaymentStatus = &paymentStatus
	}

	current, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Allow(current.OrderStatus, to); err != nil {
		return nil, fromValidation(&domain.ValidationError{Field: "status", Reason: err.Error()})
	}

	now := s.now()
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = fmt.Sprintf("Order %s by admin", to)
	}
	patch.AppendHistory = &domain.StatusEntry{Status: to, Timestamp: now, Note: note}

	if tracking := strings.TrimSpace(req.TrackingNumber); tracking != "" {
		patch.TrackingNumber = &tracking
	}
	if courier := strings.TrimSpace(req.CourierService); courier != "" {
		patch.CourierService = &courier
	}
	switch to {
	case domain.OrderStatusDelivered:
		patch.MarkDelivered = true
		patch.DeliveredAt = now
	case domain.OrderStatusCancelled:
		if reason := strings.TrimSpace(req.Note); reason != "" {
			patch.CancelReason = &reason
		}
	}

	order, err := s.updateOrder(ctx, orderID, patch)
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	s.logger.Info("order status changed",
		"order_number", order.OrderNumber,
		"from", current.OrderStatus.String(),
		"to", to.String())
	return order, nil
}

// Refund marks the order and its payment refunded. amountMinor may not
// exceed the order total.
func (s *OrderService) Refund(ctx context.Context, orderID uuid.UUID, amountMinor int64, reason string) (*domain.Order, error) {
	if amountMinor <= 0 {
		return nil, validationFailed("refund_amount_minor", "must be positive")
	}

	current, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if amountMinor > current.Pricing.TotalMinor {
		return nil, validationFailed("refund_amount_minor", "exceeds the order total")
	}
	refunded := domain.OrderStatusRefunded
	if err := s.policy.Allow(current.OrderStatus, refunded); err != nil {
		return nil, fromValidation(&domain.ValidationError{Field: "status", Reason: err.Error()})
	}

	reason = strings.TrimSpace(reason)
	note := fmt.Sprintf("Refunded %d", amountMinor)
	if reason != "" {
		note += ": " + reason
	}
	paymentRefunded := domain.PaymentStatusRefunded
	patch := domain.OrderPatch{
		OrderStatus:       &refunded,
		PaymentStatus:     &paymentRefunded,
		RefundAmountMinor: &amountMinor,
		RefundReason:      &reason,
		AppendHistory:     &domain.StatusEntry{Status: refunded, Timestamp: s.now(), Note: note},
	}

	order, err := s.updateOrder(ctx, orderID, patch)
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(refunded)).Inc()
	s.logger.Info("order refunded", "order_number", order.OrderNumber, "amount_minor", amountMinor)
	return order, nil
}

func (s *OrderService) findOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	findCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistenceTimeout)
	defer cancel()

	order, err := s.orders.FindOrder(findCtx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, &OrderError{Kind: KindOrderNotFound, Message: "order not found"}
	}
	if err != nil {
		return nil, persistenceFailure("find order", err)
	}
	return order, nil
}

func (s *OrderService) updateOrder(ctx context.Context, orderID uuid.UUID, patch domain.OrderPatch) (*domain.Order, error) {
	updateCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistenceTimeout)
	defer cancel()

	order, err := s.orders.UpdateOrder(updateCtx, orderID, patch)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, &OrderError{Kind: KindOrderNotFound, Message: "order not found"}
	}
	if err != nil {
		return nil, persistenceFailure("update order", err)
	}
	return order, nil
}
