// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fbccsz/yshpics/internal/domain/charge"
	"github.com/fbccsz/yshpics/internal/domain/download"
	"github.com/fbccsz/yshpics/internal/domain/order"
	"github.com/fbccsz/yshpics/internal/handler"
	"github.com/fbccsz/yshpics/internal/identity"
	"github.com/fbccsz/yshpics/internal/mercadopago"
	"github.com/fbccsz/yshpics/internal/storage/assets"
	"github.com/fbccsz/yshpics/internal/storage/postgres"
	"github.com/fbccsz/yshpics/internal/txindex"
	"github.com/fbccsz/yshpics/pkg/health"
	"github.com/fbccsz/yshpics/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	files, err := assets.Open(cfg.Assets.PublicDir, cfg.Assets.PrivateDir)
	if err != nil {
		return errors.Wrap(err, "open asset store")
	}
	defer func() { _ = files.Close() }()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("assets", time.Second, health.ProbeCheck(files))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	store := postgres.NewStore(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	sellerRepo := postgres.NewSellerRepository(pool)
	buyerRepo := postgres.NewBuyerRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	index := txindex.New(1_000_000, 0.001)
	n, err := index.Warm(ctx, orderRepo)
	if err != nil {
		return errors.Wrap(err, "warm transaction index")
	}
	lg.Info("Transaction index warmed", zap.Int("transactions", n))

	// Payment processor.
	processor := mercadopago.NewClient(cfg.Payments.BaseURL, &http.Client{
		Timeout: cfg.Payments.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	})
	generator := charge.NewGenerator(processor, charge.FabricatedCPF{}, charge.Config{
		TTL:         cfg.Payments.ChargeTTL,
		Description: cfg.Payments.Description,
	}, m.TracerProvider())

	// Domain services.
	policy, err := cfg.Payments.CommissionPolicy()
	if err != nil {
		return err
	}
	orderService, err := order.NewService(order.Deps{
		Catalog:  catalogRepo,
		Sellers:  sellerRepo,
		Buyers:   buyerRepo,
		Orders:   orderRepo,
		Tx:       store,
		Charges:  generator,
		Payments: processor,
		Index:    index,
		Meter:    m.MeterProvider().Meter("yshpics"),
	}, order.Config{
		Commission:      policy,
		ChargeTTL:       cfg.Payments.ChargeTTL,
		ChargeTimeout:   cfg.Payments.Timeout,
		NotificationURL: cfg.NotificationURL(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	gate := download.NewGate(orderRepo, catalogRepo, files, download.Config{
		Window:      cfg.Downloads.Window,
		Concurrency: cfg.Downloads.Concurrency,
	})

	// HTTP handlers.
	h := handler.New(handler.Config{
		PublicBaseURL: cfg.PublicBaseURL,
		OwnerEmail:    cfg.OwnerEmail,
	}, handler.Deps{
		Orders:    orderService,
		Downloads: gate,
		Albums:    catalogRepo,
		Sellers:   sellerRepo,
		Sessions:  identity.NewSessions([]byte(cfg.SessionSecret)),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MuxRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Archives of originals take a while to stream.
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				ExposeHeaders:    []string{"Content-Disposition", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   handler.IsWebhook,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("yshpics-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
		),
	}
	healthSvc.SetReady(true)

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
