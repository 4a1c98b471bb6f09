package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harshees/storefront/internal/domain"
	"github.com/harshees/storefront/internal/metrics"
	"github.com/harshees/storefront/internal/pricing"
	"github.com/harshees/storefront/internal/repository"
)

const (
	maxOrderNumberAttempts = 3
	defaultCurrency        = "INR"
	defaultCatalogTimeout  = 3 * time.Second
	defaultPersistTimeout  = 5 * time.Second
	cartClearTimeout       = 2 * time.Second
)

// CartClearer empties a user's cart after a successful order.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

type OrderServiceConfig struct {
	Currency           string
	CatalogTimeout     time.Duration
	PersistenceTimeout time.Duration
}

type OrderService struct {
	catalog repository.ProductRepository
	orders  repository.OrderRepository
	engine  *pricing.Engine
	coupons CouponResolver
	clearer CartClearer
	numbers *OrderNumberGenerator
	policy  TransitionPolicy
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     OrderServiceConfig
	now     func() time.Time
}

type OrderServiceDeps struct {
	Catalog repository.ProductRepository
	Orders  repository.OrderRepository
	Engine  *pricing.Engine
	// Coupons, Clearer and Policy are optional.
	Coupons CouponResolver
	Clearer CartClearer
	Policy  TransitionPolicy
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func NewOrderService(deps OrderServiceDeps, cfg OrderServiceConfig) *OrderService {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = defaultCatalogTimeout
	}
	if cfg.PersistenceTimeout <= 0 {
		cfg.PersistenceTimeout = defaultPersistTimeout
	}
	policy := deps.Policy
	if policy == nil {
		policy = PermissivePolicy{}
	}
	return &OrderService{
		catalog: deps.Catalog,
		orders:  deps.Orders,
		engine:  deps.Engine,
		coupons: deps.Coupons,
		clearer: deps.Clearer,
		numbers: NewOrderNumberGenerator(),
		policy:  policy,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type PlaceOrderRequest struct {
	UserID string
	// Items carry product, size and quantity. Any client-side name or price
	// is ignored.
	Items           []domain.LineItem
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	CouponCode      string
	OrderNotes      string
}

// PlaceOrder validates the request against the catalog, prices it, records
// the order and then takes the stock. If any stock decrement fails after the
// order was recorded, the decrements already made are restored and the order
// is cancelled before the error is returned.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	order, err := s.placeOrder(ctx, req)
	if err != nil {
		s.metrics.OrderFailures.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}
	s.metrics.OrdersPlaced.Inc()
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	lines, address, method, discount, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.snapshotLines(ctx, lines)
	if err != nil {
		return nil, err
	}

	var breakdown pricing.Breakdown
	if discount != nil {
		breakdown, err = s.engine.QuoteWithDiscount(snapshot, *discount)
	} else {
		breakdown, err = s.engine.Quote(snapshot)
	}
	if err != nil {
		s.logger.Error("pricing failed for order", "user_id", req.UserID, "error", err)
		return nil, &OrderError{Kind: KindConsistencyViolation, Message: "pricing failed", Err: err}
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Items:           snapshot,
		ShippingAddress: address,
		PaymentMethod:   method,
		CouponCode:      normalizeCoupon(req.CouponCode),
		Pricing:         breakdown.Pricing(),
		Currency:        s.cfg.Currency,
		OrderStatus:     domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderNotes:      strings.TrimSpace(req.OrderNotes),
		StatusHistory: []domain.StatusEntry{
			{Status: domain.OrderStatusPending, Timestamp: now, Note: "Order placed"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !order.Pricing.Reconciles() || order.Pricing.SubtotalMinor != order.ItemsSubtotalMinor() {
		s.logger.Error("order pricing does not reconcile", "user_id", req.UserID, "pricing", order.Pricing)
		return nil, consistencyViolation("order total does not reconcile")
	}

	if err := s.saveWithNumber(ctx, order); err != nil {
		return nil, err
	}

	if err := s.takeStock(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total_minor", order.Pricing.TotalMinor,
		"items", order.TotalItems())

	s.clearCart(ctx, order)
	return order, nil
}

func (s *OrderService) validate(req PlaceOrderRequest) ([]domain.LineItem, domain.ShippingAddress, domain.PaymentMethod, *pricing.DiscountRule, error) {
	fail := func(err *OrderError) ([]domain.LineItem, domain.ShippingAddress, domain.PaymentMethod, *pricing.DiscountRule, error) {
		return nil, domain.ShippingAddress{}, "", nil, err
	}

	if strings.TrimSpace(req.UserID) == "" {
		return fail(validationFailed("user_id", "is required"))
	}
	if len(req.Items) == 0 {
		return fail(validationFailed("items", "must not be empty"))
	}
	lines := make([]domain.LineItem, 0, len(req.Items))
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fail(validationFailed(fmt.Sprintf("items[%d].product_id", i), "is required"))
		}
		if item.Quantity < 1 {
			return fail(validationFailed(fmt.Sprintf("items[%d].quantity", i), "must be at least 1"))
		}
		lines = append(lines, domain.LineItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Size:      strings.TrimSpace(item.Size),
			Quantity:  item.Quantity,
		})
	}
	lines = domain.NormalizeItems(lines)

	address := req.ShippingAddress.Normalize()
	if err := address.Validate(); err != nil {
		return fail(fromValidation(err))
	}

	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return fail(fromValidation(err))
	}

	var discount *pricing.DiscountRule
	if code := normalizeCoupon(req.CouponCode); code != "" {
		if s.coupons == nil {
			return fail(validationFailed("coupon_code", "is not valid"))
		}
		rule, ok := s.coupons.Resolve(code)
		if !ok {
			return fail(validationFailed("coupon_code", "is not valid"))
		}
		discount = &rule
	}
	return lines, address, method, discount, nil
}

// snapshotLines re-reads every product and captures the authoritative price.
func (s *OrderService) snapshotLines(ctx context.Context, lines []domain.LineItem) ([]domain.LineItem, error) {
	snapshot := make([]domain.LineItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.getProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}

		line.Name = product.Name
		line.UnitPriceMinor = product.PriceMinor
		line.ImageRef = product.PrimaryImage()

		stock, offered := product.StockFor(line.Size)
		if !offered || stock < line.Quantity {
			return nil, insufficientStock(line, stock)
		}
		snapshot = append(snapshot, line)
	}
	return snapshot, nil
}

func (s *OrderService) getProduct(ctx context.Context, id string) (*domain.Product, error) {
	catalogCtx, cancel := context.WithTimeout(ctx, s.cfg.CatalogTimeout)
	defer cancel()

	product, err := s.catalog.GetProduct(catalogCtx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, productNotFound(id)
	}
	if err != nil {
		return nil, persistenceFailure("get product", err)
	}
	return product, nil
}

// saveWithNumber persists the order, drawing a fresh number on collisions.
func (s *OrderService) saveWithNumber(ctx context.Context, order *domain.Order) error {
	var err error
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = s.numbers.Next()

		saveCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistenceTimeout)
		err = s.orders.SaveOrder(saveCtx, order)
		cancel()

		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
			return persistenceFailure("save order", err)
		}
		s.logger.Warn("order number collision, retrying", "order_number", order.OrderNumber, "attempt", attempt+1)
	}
	return persistenceFailure("save order", err)
}

// takeStock decrements stock line by line. The first failure rolls back the
// lines already taken and cancels the order.
func (s *OrderService) takeStock(ctx context.Context, order *domain.Order) error {
	taken := make([]domain.LineItem, 0, len(order.Items))
	for _, line := range order.Items {
		stockCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistenceTimeout)
		err := s.catalog.DecrementStock(stockCtx, line.ProductID, line.Size, line.Quantity)
		cancel()

		if err == nil {
			taken = append(taken, line)
			continue
		}

		var failure *OrderError
		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			failure = insufficientStock(line, -1)
		case errors.Is(err, repository.ErrProductNotFound):
			failure = productNotFound(line.ProductID)
		default:
			failure = persistenceFailure("decrement stock", err)
		}
		s.compensate(ctx, order, taken, failure)
		return failure
	}
	return nil
}

// compensate restores taken stock and cancels the order. It runs detached
// from ctx so that a cancelled request still rolls back.
func (s *OrderService) compensate(ctx context.Context, order *domain.Order, taken []domain.LineItem, cause *OrderError) {
	detached := context.WithoutCancel(ctx)

	for _, line := range taken {
		restoreCtx, cancel := context.WithTimeout(detached, s.cfg.PersistenceTimeout)
		err := s.catalog.RestoreStock(restoreCtx, line.ProductID, line.Size, line.Quantity)
		cancel()

		s.metrics.StockCompensations.Inc()
		if err != nil {
			s.logger.Error("failed to restore stock during compensation",
				"order_number", order.OrderNumber,
				"product_id", line.ProductID,
				"size", line.Size,
				"quantity", line.Quantity,
				"error", err)
		}
	}

	cancelled := domain.OrderStatusCancelled
	reason := cause.Detail()
	patch := domain.OrderPatch{
		OrderStatus:  &cancelled,
		CancelReason: &reason,
		AppendHistory: &domain.StatusEntry{
			Status:    cancelled,
			Timestamp: s.now(),
			Note:      "Cancelled automatically: " + reason,
		},
	}

	updateCtx, cancel := context.WithTimeout(detached, s.cfg.PersistenceTimeout)
	defer cancel()
	if _, err := s.orders.UpdateOrder(updateCtx, order.ID, patch); err != nil {
		s.logger.Error("failed to cancel order after stock failure",
			"order_number", order.OrderNumber,
			"cause", cause.Error(),
			"error", err)
		return
	}
	s.logger.Warn("order cancelled after stock failure",
		"order_number", order.OrderNumber,
		"product_id", cause.ProductID,
		"size", cause.Size,
		"cause", cause.Error())
}

func (s *OrderService) clearCart(ctx context.Context, order *domain.Order) {
	if s.clearer == nil {
		return
	}
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cartClearTimeout)
	defer cancel()
	if err := s.clearer.ClearCart(clearCtx, order.UserID); err != nil {
		s.logger.Warn("failed to clear cart after order", "order_number", order.OrderNumber, "user_id", order.UserID, "error", err)
	}
}
