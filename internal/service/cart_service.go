package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harshees/storefront/internal/cache"
	"github.com/harshees/storefront/internal/domain"
	"github.com/harshees/storefront/internal/metrics"
	"github.com/harshees/storefront/internal/pricing"
	"github.com/harshees/storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCartWriteTimeout = 3 * time.Second
	minJanitorInterval      = time.Second
)

type CartServiceConfig struct {
	// IdleTTL evicts in-memory sessions untouched for this long. Zero keeps
	// sessions until Close.
	IdleTTL      time.Duration
	WriteTimeout time.Duration
}

// CartService keeps one authoritative in-memory cart per session and writes
// every transition through to the cache and the cart repository in the
// background. Persistence failures are logged, never returned.
type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog repository.ProductRepository
	engine  *pricing.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     CartServiceConfig

	sfg singleflight.Group // Prevents cache stampede

	mu       sync.Mutex
	sessions map[string]*session

	closed      atomic.Bool
	stopCleanup chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

type session struct {
	mu         sync.Mutex
	cart       domain.Cart
	version    uint64
	lastAccess time.Time

	saveMu       sync.Mutex
	savedVersion uint64
}

// NewCartService wires the store. cartCache may be nil.
func NewCartService(
	repo repository.CartRepository,
	cartCache cache.CartCache,
	catalog repository.ProductRepository,
	engine *pricing.Engine,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg CartServiceConfig,
) *CartService {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultCartWriteTimeout
	}
	s := &CartService{
		repo:        repo,
		cache:       cartCache,
		catalog:     catalog,
		engine:      engine,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		sessions:    make(map[string]*session),
		stopCleanup: make(chan struct{}),
	}

	if cfg.IdleTTL > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}
	return s
}

// Get returns the session's cart, loading it from cache or repository on
// first access.
func (s *CartService) Get(ctx context.Context, sessionKey string) (domain.Cart, error) {
	sess, err := s.session(ctx, sessionKey)
	if err != nil {
		return domain.Cart{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastAccess = time.Now()
	return snapshot(sess.cart), nil
}

// Dispatch applies action to the session's cart and schedules the write-through.
func (s *CartService) Dispatch(ctx context.Context, sessionKey string, action domain.Action) (domain.Cart, error) {
	sess, err := s.session(ctx, sessionKey)
	if err != nil {
		return domain.Cart{}, err
	}

	sess.mu.Lock()
	sess.cart = domain.Apply(sess.cart, action)
	sess.cart.UpdatedAt = time.Now().UTC()
	sess.lastAccess = time.Now()
	sess.version++
	version := sess.version
	cart := snapshot(sess.cart)
	sess.mu.Unlock()

	s.metrics.CartTransitions.WithLabelValues(action.Name()).Inc()
	s.persist(sessionKey, sess, cart.Items, version)
	return cart, nil
}

// AddProduct resolves display data from the catalog and adds the product.
// Stock is not checked here.
func (s *CartService) AddProduct(ctx context.Context, sessionKey, productID, size string, qty int) (domain.Cart, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return domain.Cart{}, productNotFound(productID)
	}
	if err != nil {
		return domain.Cart{}, persistenceFailure("get product", err)
	}

	return s.Dispatch(ctx, sessionKey, domain.AddItem{
		Product:  product.Ref(),
		Size:     size,
		Quantity: qty,
	})
}

// ClearCart empties the cart of userID. It is the in-process CartClearer.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	_, err := s.Dispatch(ctx, userID, domain.Clear{})
	return err
}

// Quote prices the cart for display.
func (s *CartService) Quote(cart domain.Cart) (pricing.Breakdown, error) {
	return s.engine.Quote(cart.Items)
}

// Close stops the janitor and waits for pending writes.
func (s *CartService) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCleanup)
	})
	s.wg.Wait()
	return nil
}

func (s *CartService) session(ctx context.Context, sessionKey string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionKey]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	v, err, _ := s.sfg.Do(sessionKey, func() (interface{}, error) {
		return s.loadItems(ctx, sessionKey)
	})
	if err != nil {
		return nil, persistenceFailure("load cart", err)
	}
	items := v.([]domain.LineItem)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionKey]; ok {
		return sess, nil
	}
	sess = &session{
		cart:       domain.Apply(domain.Cart{SessionKey: sessionKey}, domain.Load{Items: items}),
		lastAccess: time.Now(),
	}
	s.sessions[sessionKey] = sess
	return sess, nil
}

func (s *CartService) loadItems(ctx context.Context, sessionKey string) ([]domain.LineItem, error) {
	if s.cache != nil {
		items, err := s.cache.Get(ctx, sessionKey)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cart cache get failed", "session_key", sessionKey, "error", err)
		}
	}

	items, err := s.repo.LoadCart(ctx, sessionKey)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		return []domain.LineItem{}, nil
	case errors.Is(err, repository.ErrMalformedCart):
		s.logger.Warn("persisted cart is malformed, starting empty", "session_key", sessionKey, "error", err)
		return []domain.LineItem{}, nil
	case err != nil:
		return nil, err
	}

	// filled before the session exists so it cannot overwrite a newer write-through
	if s.cache != nil {
		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, sessionKey, items); err != nil {
			s.logger.Warn("cart cache set failed", "session_key", sessionKey, "error", err)
		}
	}
	return items, nil
}

// persist writes version of the cart unless a newer version already landed.
// An empty cart is deleted from storage. savedVersion only advances once the
// repository accepted the write, so a failed session is never evicted.
func (s *CartService) persist(sessionKey string, sess *session, items []domain.LineItem, version uint64) {
	s.background(func() {
		sess.saveMu.Lock()
		defer sess.saveMu.Unlock()
		if version <= sess.savedVersion {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()

		if err := s.writeRepo(ctx, sessionKey, items); err != nil {
			s.metrics.CartWriteFailures.Inc()
			s.logger.Warn("cart write-through failed", "session_key", sessionKey, "version", version, "error", err)
			return
		}
		if err := s.writeCache(ctx, sessionKey, items); err != nil {
			s.logger.Warn("cart cache write failed", "session_key", sessionKey, "error", err)
		}
		sess.savedVersion = version
	})
}

func (s *CartService) writeRepo(ctx context.Context, sessionKey string, items []domain.LineItem) error {
	if len(items) > 0 {
		return s.repo.SaveCart(ctx, sessionKey, items)
	}
	if err := s.repo.DeleteCart(ctx, sessionKey); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	return nil
}

func (s *CartService) writeCache(ctx context.Context, sessionKey string, items []domain.LineItem) error {
	if s.cache == nil {
		return nil
	}
	if len(items) == 0 {
		return s.cache.Delete(ctx, sessionKey)
	}
	return s.cache.Set(ctx, sessionKey, items)
}

// background runs fn on a tracked goroutine, or inline once closed.
func (s *CartService) background(fn func()) {
	if s.closed.Load() {
		fn()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *CartService) cleanupLoop() {
	defer s.wg.Done()

	interval := s.cfg.IdleTTL / 2
	if interval < minJanitorInterval {
		interval = minJanitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// evictIdle drops sessions idle past IdleTTL whose latest version is persisted.
// Idle sessions with an unpersisted version get their write-through retried.
func (s *CartService) evictIdle(now time.Time) int {
	type retry struct {
		key     string
		sess    *session
		items   []domain.LineItem
		version uint64
	}
	var retries []retry

	s.mu.Lock()
	evicted := 0
	for key, sess := range s.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastAccess) >= s.cfg.IdleTTL
		version := sess.version
		items := snapshot(sess.cart).Items
		sess.mu.Unlock()
		if !idle {
			continue
		}

		sess.saveMu.Lock()
		flushed := sess.savedVersion >= version
		sess.saveMu.Unlock()
		if !flushed {
			retries = append(retries, retry{key: key, sess: sess, items: items, version: version})
			continue
		}
		delete(s.sessions, key)
		evicted++
	}
	s.mu.Unlock()

	for _, r := range retries {
		s.logger.Debug("retrying cart write-through", "session_key", r.key, "version", r.version)
		s.persist(r.key, r.sess, r.items, r.version)
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle cart sessions", "count", evicted)
	}
	return evicted
}

func (s *CartService) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func snapshot(c domain.Cart) domain.Cart {
	items := make([]domain.LineItem, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}
