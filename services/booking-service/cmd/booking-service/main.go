package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tmachado/agendly/libs/config"
	"github.com/tmachado/agendly/libs/db"
	"github.com/tmachado/agendly/libs/httpx"
	"github.com/tmachado/agendly/libs/kafkax"
	otelx "github.com/tmachado/agendly/libs/otel"
	"github.com/tmachado/agendly/libs/runtime"
	"github.com/tmachado/agendly/services/booking-service/internal/booking"
	"github.com/tmachado/agendly/services/booking-service/internal/catalog"
	"github.com/tmachado/agendly/services/booking-service/internal/consumer"
	"github.com/tmachado/agendly/services/booking-service/internal/handlers"
	"github.com/tmachado/agendly/services/booking-service/internal/inbox"
	"github.com/tmachado/agendly/services/booking-service/internal/outbox"
	"github.com/tmachado/agendly/services/booking-service/internal/reservation"
	"github.com/tmachado/agendly/services/booking-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8082")
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

	holdWindow := config.Minutes("BOOKING_HOLD_WINDOW_MINUTES", reservation.DefaultHoldWindow)
	cancelCutoff := config.Minutes("BOOKING_CANCEL_CUTOFF_MINUTES", reservation.DefaultCancelCutoff)

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo, holdWindow)
	machine := reservation.NewMachine(repo, holdWindow, cancelCutoff)

	cat, err := catalog.NewProvider(logger, pool, config.String("TENANT_SERVICE_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("catalog setup failed", "err", err)
		panic(err)
	}

	svc := booking.NewService(cat, machine, repo, logger)
	h := handlers.NewBookingHandler(svc, logger, jwtSecret)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	if kafkaBrokers != "" {
		planConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: kafkaBrokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   "tenant.plan.changed.v1",
		}, consumer.PlanChangedHandler(repo, logger))
		go planConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)

	// Public booking surface gets rate limited; staff endpoints sit behind JWT.
	publicLimit := publicRateLimiter(logger)
	public := func(fn http.HandlerFunc) http.Handler {
		return publicLimit(fn)
	}
	mux.Handle("/api/v1/public/slots", public(h.Slots))
	mux.Handle("/api/v1/public/book", public(h.Book(holdWindow)))
	mux.Handle("/api/v1/public/confirm", public(h.Confirm))
	mux.Handle("/api/v1/public/cancel", public(h.PublicCancel))

	mux.HandleFunc("/api/v1/appointments", h.RequireAuth(h.List))
	mux.HandleFunc("/api/v1/appointments/cancel", h.RequireAuth(h.Cancel))
	mux.HandleFunc("/api/v1/appointments/complete", h.RequireAuth(h.Complete))
	mux.HandleFunc("/api/v1/appointments/no-show", h.RequireAuth(h.NoShow))

	// The public surface is called from tenant booking pages in the browser.
	cors := httpx.WithCORS(httpx.CORSPolicy{
		AllowedOrigins: splitOrigins(config.String("CORS_ALLOWED_ORIGINS", "")),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         10 * time.Minute,
	})
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		cors,
	)
	handler = otelhttp.NewHandler(handler, "booking")
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

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// publicRateLimiter protects the unauthenticated booking surface. Redis keeps
// multiple instances honest; a single instance falls back to in-memory.
func publicRateLimiter(logger *slog.Logger) httpx.Middleware {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if perMinute <= 0 {
		perMinute = 60
	}

	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "booking"))
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute, "redis_addr", addr)
		return rl.Middleware(logger, true)
	}

	rl := httpx.NewRateLimiter(perMinute, time.Minute)
	logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
	return rl.Middleware()
}
