// Checkout Gateways Service
//
// This is the main entry point for the checkout gateway service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/config"
	"github.com/fitstack/checkout-gateways/internal/adapters/eventhook"
	"github.com/fitstack/checkout-gateways/internal/adapters/memstore"
	"github.com/fitstack/checkout-gateways/internal/adapters/mongostore"
	"github.com/fitstack/checkout-gateways/internal/adapters/registry"
	"github.com/fitstack/checkout-gateways/internal/api"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	"github.com/fitstack/checkout-gateways/internal/core/service"
	"github.com/fitstack/checkout-gateways/internal/ledger"
	"github.com/fitstack/checkout-gateways/internal/settings"
	"github.com/fitstack/checkout-gateways/internal/tracing"
	"github.com/fitstack/checkout-gateways/internal/transport"
	"github.com/fitstack/checkout-gateways/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHECKOUT_CONFIG"), "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	lg, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("starting checkout gateways",
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Store.Driver),
		zap.String("transport", cfg.Transport.Kind),
	)

	if cfg.Tracing.Enabled {
		traceProvider, err := tracing.InitTracing(ctx, cfg.Tracing.CollectorHost, cfg.Tracing.ServiceName)
		if err != nil {
			lg.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				if err := traceProvider.Shutdown(context.Background()); err != nil {
					lg.Warn("tracer shutdown", zap.Error(err))
				}
			}()
		}
	}

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	orders, options, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	tr, err := transport.New(cfg.Transport, lg)
	if err != nil {
		return err
	}

	if err := registry.Seed(ctx, options, cfg.Gateways.General, cfg.Gateways.Providers, cfg.Gateways.Instances); err != nil {
		return err
	}
	loader := settings.NewLoader(options, settings.NewResolver(lg))
	gateways, err := registry.Build(ctx, cfg.Gateways.EnabledInstances(), tr, loader, lg)
	if err != nil {
		return err
	}
	if len(gateways.IDs()) == 0 {
		lg.Warn("no gateway instance is enabled")
	}

	var events ports.EventPublisher
	if cfg.Events.URL != "" {
		events = eventhook.NewClient(cfg.Events.URL, cfg.Events.Secret, tr)
	}

	// Service Layer
	l := ledger.New(orders, lg)
	checkout := service.NewCheckoutService(gateways, l, events, cfg.Checkout, lg)
	dispatcher := service.NewNotificationDispatcher(gateways, l, events, lg)

	// API Layer
	handler := api.NewHandler(checkout, dispatcher, gateways, options, lg)
	router := api.SetupRouter(handler, api.RouterConfig{
		GinMode:     cfg.Server.GinMode,
		AdminAPIKey: cfg.Server.AdminAPIKey,
	}, lg)
	if cfg.Server.AdminAPIKey == "" {
		lg.Warn("server.admin_api_key not set, admin routes are open")
	}

	var h http.Handler = router
	if cfg.Tracing.Enabled {
		h = otelhttp.NewHandler(router, cfg.Tracing.ServiceName)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr), zap.Strings("gateways", gateways.IDs()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	lg.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config) (ports.OrderStore, ports.OptionsStore, func(), error) {
	if cfg.Store.Driver != config.DriverMongo {
		return memstore.NewOrderStore(), memstore.NewOptionsStore(nil), func() {}, nil
	}

	db, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Client().Disconnect(ctx)
	}

	orders := mongostore.NewOrderStore(db)
	if err := orders.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return orders, mongostore.NewOptionsStore(db), closeFn, nil
}
