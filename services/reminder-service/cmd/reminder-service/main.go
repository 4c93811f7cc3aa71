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
	"github.com/avelinov/salonbook/services/reminder-service/internal/jobs"
	"github.com/avelinov/salonbook/services/reminder-service/internal/outbox"
	"github.com/avelinov/salonbook/services/reminder-service/internal/storage"
	"github.com/avelinov/salonbook/services/reminder-service/internal/sweep"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8084")
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

	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	reportHour, reportMinute := config.TimeOfDay("DAILY_REPORT_TIME", "20:00")
	sweeper := sweep.New(pool, storage.NewRepository(), jobs.NewRepository(), outboxRepo, counters, logger, sweep.Config{
		Interval:     config.Duration("SWEEP_INTERVAL", time.Minute),
		BatchSize:    config.Int("SWEEP_BATCH_SIZE", 100),
		Backoff:      config.Duration("JOB_BACKOFF", time.Minute),
		EnableDay:    config.Bool("REMINDER_DAY_ENABLED", true),
		EnableHour:   config.Bool("REMINDER_HOUR_ENABLED", true),
		EnableAdmin:  config.Bool("REMINDER_ADMIN_ENABLED", true),
		ReportHour:   reportHour,
		ReportMinute: reportMinute,
	})
	go sweeper.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: metrics.ReadyCheck(rdb)})
	}
	mux := runtime.NewBaseMux(readyChecks...)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reminder")
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
