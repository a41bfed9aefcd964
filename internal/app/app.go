package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart/internal/catalog"
	"github.com/xenking/kart/internal/domain/auth"
	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/domain/coupon"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/order"
	"github.com/xenking/kart/internal/domain/stock"
	"github.com/xenking/kart/internal/handler"
	"github.com/xenking/kart/internal/orderid"
	"github.com/xenking/kart/internal/storage/keyspace"
	"github.com/xenking/kart/pkg/health"
	"github.com/xenking/kart/pkg/httpmiddleware"
)

const (
	sessionHeader = "X-Session-ID"
	sessionCookie = "kart_session"

	// orderIDCapacity sizes the bloom filter guarding issued order ids.
	orderIDCapacity = 1_000_000
	orderIDFPR      = 0.001
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)
	ctx = zctx.Base(ctx, lg)

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Error("Close store", zap.Error(err))
		}
	}()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("store", 5*time.Second, health.PingCheck(cfg.Storage.Driver, store))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	products := catalog.Default()
	cartRepo := keyspace.NewCartRepository(store)
	orderRepo := keyspace.NewOrderRepository(store)
	stockRepo := keyspace.NewStockRepository(store)
	apikeyRepo := keyspace.NewAPIKeyRepository(store)

	// Stock ledger: shard files when configured, then the catalog defaults.
	sources := make([]stock.Source, 0, 2)
	if cfg.StockDir != "" {
		sources = append(sources, catalog.NewFileSource(cfg.StockDir))
	}
	sources = append(sources, products.StockSource())

	stockSvc := stock.NewService(stockRepo)
	source, err := stockSvc.Initialize(ctx, sources...)
	if err != nil {
		return errors.Wrap(err, "initialize stock")
	}
	if source == "" {
		lg.Info("Stock ledger already seeded")
	}

	// Order ids: remember every stored id so restarts never reissue one.
	existing, err := orderRepo.All(ctx)
	if err != nil {
		return errors.Wrap(err, "load orders")
	}
	ids := orderid.New(orderIDCapacity, orderIDFPR)
	for _, o := range existing {
		ids.Seed(o.ID)
	}
	lg.Info("Order ids seeded", zap.Int("orders", len(existing)))

	accrual, err := cfg.Shop.Accrual()
	if err != nil {
		return err
	}
	metrics, err := NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	// Domain services.
	identitySvc := identity.NewService(keyspace.NewUserRepository(store), keyspace.NewSessionRepository(store))
	cartSvc := cart.NewService(cartRepo, products, stockSvc, identitySvc, coupon.DefaultTable(), cart.Policy{
		FreeShippingThreshold: cfg.Shop.FreeShippingThreshold,
		ShippingFee:           cfg.Shop.ShippingFee,
	})
	orderSvc := order.NewService(orderRepo, cartSvc, stockSvc, identitySvc, ids,
		order.WithAccrualRate(accrual),
		order.WithRecorder(metrics),
	)

	// Sessions: clients without an id get a fresh one, never the shared default.
	sessions := httpmiddleware.SessionConfig{
		Header:  sessionHeader,
		Cookie:  sessionCookie,
		Default: identity.DefaultSession,
		Mint:    uuid.NewString,
	}

	// HTTP handlers.
	h := handler.NewHandler(handler.HandlerConfig{
		StockSources: sources,
		Session:      sessions,
	}, handler.Services{
		Products: products,
		Carts:    cartSvc,
		Orders:   orderSvc,
		Identity: identitySvc,
		Stock:    stockSvc,
		Auth:     auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	})

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, sessionHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, sessionHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Session(sessions),
			httpmiddleware.Instrument("kart-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
