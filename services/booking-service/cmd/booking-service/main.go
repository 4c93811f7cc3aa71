package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avelinov/salonbook/libs/config"
	"github.com/avelinov/salonbook/libs/db"
	"github.com/avelinov/salonbook/libs/httpx"
	"github.com/avelinov/salonbook/libs/kafkax"
	"github.com/avelinov/salonbook/libs/metrics"
	otelx "github.com/avelinov/salonbook/libs/otel"
	"github.com/avelinov/salonbook/libs/runtime"
	"github.com/avelinov/salonbook/services/booking-service/internal/availability"
	"github.com/avelinov/salonbook/services/booking-service/internal/booking"
	"github.com/avelinov/salonbook/services/booking-service/internal/handlers"
	"github.com/avelinov/salonbook/services/booking-service/internal/outbox"
	"github.com/avelinov/salonbook/services/booking-service/internal/slots"
	"github.com/avelinov/salonbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func scheduleFromEnv() slots.Schedule {
	openH, openM := config.TimeOfDay("SCHEDULE_OPEN", "10:00")
	lastH, lastM := config.TimeOfDay("SCHEDULE_LAST", "17:30")
	return slots.Schedule{
		Open:        time.Duration(openH)*time.Hour + time.Duration(openM)*time.Minute,
		Last:        time.Duration(lastH)*time.Hour + time.Duration(lastM)*time.Minute,
		Spacing:     config.Duration("SCHEDULE_SPACING", 90*time.Minute),
		HorizonDays: config.Int("SCHEDULE_HORIZON_DAYS", 14),
	}
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Error("migration failed", "err", err)
		panic(err)
	}

	outboxRepo := outbox.NewRepository()
	catalog := storage.NewCatalogRepository(pool)
	appts := storage.NewAppointmentRepository(pool, outboxRepo)
	reviews := storage.NewReviewRepository(pool, outboxRepo)

	if config.Bool("SEED_CATALOG", true) {
		if err := catalog.Seed(ctx); err != nil {
			logger.Error("catalog seed failed", "err", err)
			panic(err)
		}
	}
	if chatID := int64(config.Int("ADMIN_CHAT_ID", 0)); chatID != 0 {
		username := config.String("ADMIN_USERNAME", "")
		name := config.String("ADMIN_NAME", "Admin")
		if err := catalog.EnsureAdmin(ctx, chatID, username, name); err != nil {
			logger.Error("admin bootstrap failed", "err", err)
		}
	}

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
	}
	counters := metrics.NewCounters(rdb, config.String("METRICS_PREFIX", "salonbook"), logger)

	engine := booking.NewEngine(catalog, appts, reviews, counters, logger)
	checker := availability.NewChecker(scheduleFromEnv(), appts, nil)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: metrics.ReadyCheck(rdb)})
	}
	mux := runtime.NewBaseMux(readyChecks...)
	handlers.New(engine, checker, catalog, appts, logger).Register(mux)

	var rateLimitMW httpx.Middleware
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
