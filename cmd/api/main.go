package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aguardi/storefront-backend/api/routes"
	authsvc "github.com/aguardi/storefront-backend/internal/auth"
	"github.com/aguardi/storefront-backend/internal/catalog"
	checkoutsvc "github.com/aguardi/storefront-backend/internal/checkout"
	"github.com/aguardi/storefront-backend/internal/inventory"
	ordersvc "github.com/aguardi/storefront-backend/internal/orders"
	paymentsvc "github.com/aguardi/storefront-backend/internal/payments"
	"github.com/aguardi/storefront-backend/internal/users"
	mpwebhook "github.com/aguardi/storefront-backend/internal/webhooks/mercadopago"
	"github.com/aguardi/storefront-backend/pkg/config"
	"github.com/aguardi/storefront-backend/pkg/db"
	"github.com/aguardi/storefront-backend/pkg/logger"
	"github.com/aguardi/storefront-backend/pkg/mercadopago"
	"github.com/aguardi/storefront-backend/pkg/metrics"
	"github.com/aguardi/storefront-backend/pkg/migrate"
	"github.com/aguardi/storefront-backend/pkg/outbox"
	"github.com/aguardi/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mpClient, err := mercadopago.NewClient(
		cfg.MercadoPago.AccessToken,
		mercadopago.WithBaseURL(cfg.MercadoPago.BaseURL),
		mercadopago.WithTimeout(cfg.MercadoPago.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create mercadopago client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := inventory.NewLedger()

	catalogRepo := catalog.NewRepository(dbClient.DB())
	orderRepo := ordersvc.NewRepository(dbClient.DB())
	paymentRepo := paymentsvc.NewRepository(dbClient.DB())
	userRepo := users.NewRepository(dbClient.DB())

	authService, err := authsvc.NewService(authsvc.ServiceParams{
		UserRepo:       userRepo,
		TxRunner:       dbClient,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	orderService, err := ordersvc.NewService(ordersvc.ServiceParams{
		Repo:      orderRepo,
		TxRunner:  dbClient,
		Inventory: ledger,
		Outbox:    outboxService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentService, err := paymentsvc.NewService(paymentsvc.ServiceParams{
		PaymentRepo: paymentRepo,
		OrderRepo:   orderRepo,
		TxRunner:    dbClient,
		Gateway:     mpClient,
		Outbox:      outboxService,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		CatalogRepo: catalogRepo,
		OrderRepo:   orderRepo,
		PaymentRepo: paymentRepo,
		UserRepo:    userRepo,
		Inventory:   ledger,
		TxRunner:    dbClient,
		Gateway:     mpClient,
		Outbox:      outboxService,
		Logger:      logg,
		Shipping:    cfg.Shipping,
		MercadoPago: cfg.MercadoPago,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	reconciler, err := mpwebhook.NewReconciler(mpwebhook.ReconcilerParams{
		Logs:        mpwebhook.NewLogRepository(dbClient.DB()),
		PaymentRepo: paymentRepo,
		OrderRepo:   orderRepo,
		Applier:     paymentService,
		Gateway:     mpClient,
		Guard:       redisClient,
		Metrics:     webhookMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook reconciler", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Registry:  registry,
			Auth:      authService,
			Catalog:   catalogService,
			Orders:    orderService,
			Payments:  paymentService,
			Checkout:  checkoutService,
			MPWebhook: reconciler,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
