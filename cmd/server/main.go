package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shopcore/checkout/internal/cart"
	"github.com/shopcore/checkout/internal/catalog"
	"github.com/shopcore/checkout/internal/identity"
	"github.com/shopcore/checkout/internal/notification"
	"github.com/shopcore/checkout/internal/order"
	"github.com/shopcore/checkout/internal/payment"
	"github.com/shopcore/checkout/internal/scheduler"
)

func main() {
	cfg := loadConfig()

	tp, err := initTracer()
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	mp, err := initMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter: %v", err)
		}
	}()

	if err := runMigrations(cfg.DatabaseDSN, cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	dbPool, err := initDB(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbPool.Close()

	var cartCache cart.Cache = cart.NoopCache{}
	if cfg.RedisAddr != "" {
		cartCache = cart.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.CartCacheTTL)
	}

	var notifier notification.Notifier
	var alerter notification.Alerter
	if len(cfg.KafkaBrokers) > 0 {
		publisher := notification.NewKafkaPublisher(cfg.KafkaBrokers, "storefront-notifications", "storefront-alerts")
		defer publisher.Close()
		notifier, alerter = publisher, publisher
	} else {
		fallback := notification.LogPublisher{}
		notifier, alerter = fallback, fallback
	}

	// Repositories and use cases.
	catalogRepo := catalog.NewRepository(dbPool)
	cartRepo := cart.NewRepository(dbPool)
	orderRepo := order.NewRepository(dbPool)
	directory := identity.NewDirectory(dbPool)

	cartUseCase := cart.NewUseCase(cartRepo, catalogRepo, cartCache, cart.Config{
		ReservationTTL: cfg.CartReservationTTL,
		InactivityTTL:  cfg.CartInactivityTTL,
		MaxLines:       cfg.CartMaxLines,
		SweepBatch:     cfg.CartSweepBatch,
	})
	orderUseCase := order.NewUseCase(orderRepo, catalogRepo, cartRepo, cartCache, notifier, alerter, order.Config{
		CheckoutTTL:       cfg.CheckoutTTL,
		SweepBatch:        cfg.CheckoutSweepBatch,
		FlatShippingCents: cfg.FlatShippingCents,
	})

	gateway := payment.NewRestGateway(payment.GatewayConfig{
		BaseURL:  cfg.ProviderBaseURL,
		APIKey:   cfg.ProviderAPIKey,
		Provider: cfg.ProviderName,
		Timeout:  cfg.ProviderTimeout,
	})
	checkoutService := payment.NewCheckoutService(orderUseCase, gateway, cfg.ProviderName, payment.CheckoutConfig{
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
		Currency:   cfg.Currency,
	})
	reconciler := payment.NewReconciler(orderUseCase, gateway)

	// Background expiry sweeps.
	sweeps := scheduler.New(cartUseCase, orderUseCase, cfg.CartSweepInterval, cfg.CheckoutSweepInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeps.Start(ctx)
	defer sweeps.Stop()

	// Router.
	r := gin.Default()
	r.Use(otelgin.Middleware(getEnv("SERVICE_NAME", "checkout-service")))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "checkout-service"})
	})

	payment.NewWebhookHandler(reconciler, []byte(cfg.WebhookSecret)).Register(r)

	api := r.Group("/api", identity.RequireUser(directory))
	cart.NewHandler(cartUseCase).Register(api)
	order.NewHandler(orderUseCase).Register(api)
	payment.NewHandler(checkoutService, reconciler).Register(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("🚀 Checkout service listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

func initDB(dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Println("✅ Connected to storefront database with connection pool")
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}

func runMigrations(dsn, sourceURL string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("could not open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	log.Println("✅ Database migrations applied")
	return nil
}
