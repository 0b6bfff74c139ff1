package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tmachado/agendly/libs/config"
	"github.com/tmachado/agendly/libs/db"
	"github.com/tmachado/agendly/libs/httpx"
	"github.com/tmachado/agendly/libs/kafkax"
	otelx "github.com/tmachado/agendly/libs/otel"
	"github.com/tmachado/agendly/libs/runtime"
	"github.com/tmachado/agendly/services/tenant-service/internal/handlers"
	"github.com/tmachado/agendly/services/tenant-service/internal/outbox"
	"github.com/tmachado/agendly/services/tenant-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "tenant-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	h := handlers.New(repo, outboxRepo, logger, handlers.Config{
		JWTSecret:                     jwtSecret,
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
	})

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)

	// Signup and the billing webhook are the only unauthenticated routes.
	mux.HandleFunc("/api/v1/tenants", h.Signup)
	mux.HandleFunc("/api/v1/billing/webhooks/stripe", h.StripeWebhook)

	mux.HandleFunc("/api/v1/tenant/profile", h.RequireOwner(h.Profile))
	mux.HandleFunc("/api/v1/tenant/hours", h.RequireOwner(h.WorkingHours))
	mux.HandleFunc("/api/v1/tenant/services", h.RequireOwner(h.Services))
	mux.HandleFunc("/api/v1/tenant/services/deactivate", h.RequireOwner(h.DeleteService))
	mux.HandleFunc("/api/v1/tenant/staff", h.RequireOwner(h.Staff))
	mux.HandleFunc("/api/v1/tenant/staff/deactivate", h.RequireOwner(h.DeactivateStaff))
	mux.HandleFunc("/api/v1/tenant/analytics/dashboard", h.RequireAuth(h.Dashboard))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "tenant")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, repo); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
