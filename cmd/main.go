package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harshees/storefront/internal/cache"
	"github.com/harshees/storefront/internal/config"
	h "github.com/harshees/storefront/internal/http"
	"github.com/harshees/storefront/internal/logger"
	"github.com/harshees/storefront/internal/metrics"
	"github.com/harshees/storefront/internal/poller"
	"github.com/harshees/storefront/internal/pricing"
	"github.com/harshees/storefront/internal/publisher"
	"github.com/harshees/storefront/internal/repository"
	"github.com/harshees/storefront/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("storefront stopped with error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("storefront starting...")
	ctx := context.Background()
	var wg sync.WaitGroup

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// MongoDB: carts and catalog
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		MaxPoolSize:    cfg.Mongo.MaxPoolSize,
		MinPoolSize:    cfg.Mongo.MinPoolSize,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}()
	cartRepo := repository.NewMongoCartRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}
	productRepo := repository.NewMongoProductRepository(mongoDB)
	logger.Info("connected to MongoDB", "database", cfg.Mongo.Database)

	// Redis cart cache, optional
	var cartCache cache.CartCache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, cart cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cartCache = cache.NewRedisCache(redisClient, cfg.Redis.CacheTTL)
			logger.Info("redis ping succeeded", "addr", cfg.Redis.Addr)
		}
	}

	// Postgres order ledger
	creds := &repository.Credentials{
		Host:              cfg.Postgres.Host,
		Port:              cfg.Postgres.Port,
		User:              cfg.Postgres.User,
		Password:          cfg.Postgres.Password,
		DBName:            cfg.Postgres.DBName,
		MigrationsDirPath: cfg.Postgres.MigrationsPath,
	}
	orderRepo, err := repository.NewPostgresOrderRepository(creds)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(creds); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	rules, err := cfg.PricingRules()
	if err != nil {
		return err
	}
	engine, err := pricing.NewEngine(rules)
	if err != nil {
		return err
	}
	coupons, err := cfg.CouponRules()
	if err != nil {
		return err
	}

	catalog := service.NewBreakerCatalog(productRepo, service.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	}, logger)

	carts := service.NewCartService(cartRepo, cartCache, catalog, engine, m, logger, service.CartServiceConfig{
		IdleTTL:      cfg.Cart.IdleTTL,
		WriteTimeout: cfg.Cart.WriteTimeout,
	})

	// Cart clearing goes through Kafka when brokers are configured.
	var clearer service.CartClearer = carts
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()
	var cartPoller *poller.Poller
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		pub := publisher.NewCartClearPublisher(cfg.Kafka.CartClearTopic, logger, brokers...)
		defer pub.Close()
		clearer = pub

		cartPoller = poller.NewPoller(carts, cfg.Kafka.CartClearTopic, cfg.Kafka.GroupID, logger, brokers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cartPoller.Run(pollerCtx)
		}()
		logger.Info("cart clearing via kafka", "topic", cfg.Kafka.CartClearTopic, "brokers", brokers)
	}

	var policy service.TransitionPolicy = service.PermissivePolicy{}
	if cfg.Orders.StrictTransitions {
		policy = service.ForwardOnlyPolicy{}
	}
	orders := service.NewOrderService(service.OrderServiceDeps{
		Catalog: catalog,
		Orders:  orderRepo,
		Engine:  engine,
		Coupons: service.StaticCoupons(coupons),
		Clearer: clearer,
		Policy:  policy,
		Metrics: m,
		Logger:  logger,
	}, service.OrderServiceConfig{
		Currency:           cfg.Orders.Currency,
		CatalogTimeout:     cfg.Orders.CatalogTimeout,
		PersistenceTimeout: cfg.Orders.PersistenceTimeout,
	})

	router := h.NewRouter(h.RouterConfig{
		Carts:          carts,
		Orders:         orders,
		Metrics:        m,
		Logger:         logger,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodySize:    cfg.HTTP.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("storefront listening", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down storefront...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	pollerCancel()
	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()
	select {
	case <-doneChan:
	case <-shutdownCtx.Done():
		logger.Warn("cart poller didn't stop in time")
	}
	if cartPoller != nil {
		cartPoller.Close()
	}

	// flush pending cart write-throughs
	if err := carts.Close(); err != nil {
		logger.Warn("cart store close failed", "error", err)
	}
	logger.Info("storefront stopped")
	return nil
}
