package main

import (
	"context"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/avelinov/salonbook/libs/config"
	"github.com/avelinov/salonbook/libs/db"
	"github.com/avelinov/salonbook/libs/httpx"
	"github.com/avelinov/salonbook/libs/kafkax"
	otelx "github.com/avelinov/salonbook/libs/otel"
	"github.com/avelinov/salonbook/libs/runtime"
	"github.com/avelinov/salonbook/services/notification-service/internal/consumer"
	"github.com/avelinov/salonbook/services/notification-service/internal/dispatch"
	"github.com/avelinov/salonbook/services/notification-service/internal/inbox"
	"github.com/avelinov/salonbook/services/notification-service/internal/render"
	"github.com/avelinov/salonbook/services/notification-service/internal/storage"
	"github.com/avelinov/salonbook/services/notification-service/internal/telegram"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	var sender telegram.Sender
	if token := config.String("TELEGRAM_BOT_TOKEN", ""); token != "" {
		sender = telegram.NewBotAPISender(config.String("TELEGRAM_API_BASE", ""), token)
	} else {
		logger.Warn("no telegram token configured, using noop sender")
		sender = telegram.NewNoopSender()
	}

	dispatcher := dispatch.New(sender, storage.NewRepository(pool), logger)
	inboxRepo := inbox.NewRepository(pool)

	topics := []string{
		render.TopicAppointmentBooked,
		render.TopicAppointmentCancelled,
		render.TopicReviewCreated,
		render.TopicReminderDue,
		render.TopicReviewRequested,
		render.TopicDailyReport,
	}
	for _, topic := range topics {
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			meta := kafkax.ExtractEventMeta(msg)
			return dispatcher.Handle(ctx, msg.Topic, meta.EventID, msg.Value)
		})
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
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
