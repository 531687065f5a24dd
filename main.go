package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hydro-cloud/internal/config"
	"hydro-cloud/internal/observability/metrics"
	"hydro-cloud/internal/readings/application"
	"hydro-cloud/internal/readings/infrastructure/influx"
	"hydro-cloud/internal/readings/infrastructure/memory"
	readingspostgres "hydro-cloud/internal/readings/infrastructure/postgres"
	readingshttp "hydro-cloud/internal/readings/interfaces/http"
	readingsmqtt "hydro-cloud/internal/readings/interfaces/mqtt"
	"hydro-cloud/internal/readings/notify"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init(logger)
	store := memory.NewStore(memory.WithMaxPerUnit(cfg.MaxReadingsPerUnit))
	metrics.RegisterUnitsGauge(func() float64 { return float64(store.UnitCount()) })

	broker := readingshttp.NewSSEBroker(logger)
	notifiers := []application.AlertNotifier{broker}
	if cfg.Notify.WebhookURL != "" {
		webhook, err := buildWebhookNotifier(cfg.Notify, logger)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		notifiers = append(notifiers, webhook)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Fatalf("kafka publisher error: %v", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	serviceOpts := []application.ServiceOption{
		application.WithNotifier(notify.NewMultiNotifier(notifiers...)),
		application.WithLogger(logger),
		application.WithQueryWindow(cfg.QueryWindow),
		application.WithArchiveTimeout(cfg.Archive.Timeout),
	}
	if cfg.Archive.PostgresDSN != "" {
		db, repo, err := openPostgresArchive(ctx, cfg.Archive)
		if err != nil {
			logger.Fatalf("postgres archive error: %v", err)
		}
		defer db.Close()
		serviceOpts = append(serviceOpts, application.WithArchive("postgres", repo))
	}
	if cfg.Archive.Influx.Enabled() {
		sink, err := influx.NewSink(influx.Config{
			URL:         cfg.Archive.Influx.URL,
			Token:       cfg.Archive.Influx.Token,
			Org:         cfg.Archive.Influx.Org,
			Bucket:      cfg.Archive.Influx.Bucket,
			Measurement: cfg.Archive.Influx.Measurement,
		})
		if err != nil {
			logger.Fatalf("influx archive error: %v", err)
		}
		defer sink.Close()
		serviceOpts = append(serviceOpts, application.WithArchive("influx", sink))
	}

	service, err := application.NewService(store, serviceOpts...)
	if err != nil {
		logger.Fatalf("readings service error: %v", err)
	}
	defer service.Wait()

	var mqttDone <-chan struct{}
	if cfg.MQTT.Broker != "" {
		mqttDone, err = startMQTT(ctx, cfg.MQTT, service, logger)
		if err != nil {
			logger.Fatalf("mqtt error: %v", err)
		}
	}

	handler, err := readingshttp.NewHandler(service, logger)
	if err != nil {
		logger.Fatalf("readings handler error: %v", err)
	}
	router := readingshttp.NewRouter(handler, readingshttp.NewStreamHandler(broker), logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(router, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
	if mqttDone != nil {
		<-mqttDone
	}
	logger.Printf("shutting down")
}

func buildWebhookNotifier(cfg config.NotifyConfig, logger *log.Logger) (*notify.Notifier, error) {
	webhook, err := notify.NewWebhookChannel(cfg.WebhookURL, notify.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}
	channel, err := notify.NewBreakerChannel("alert-webhook", webhook, cfg.BreakerFailures, cfg.BreakerOpenFor)
	if err != nil {
		return nil, err
	}
	tpl, err := notify.NewTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}
	return notify.NewNotifier(channel, tpl,
		notify.WithName("webhook"),
		notify.WithLogger(logger),
		notify.WithCooldown(cfg.Cooldown),
		notify.WithDedupeWindow(cfg.DedupeWindow),
	)
}

func openPostgresArchive(ctx context.Context, cfg config.ArchiveConfig) (*sql.DB, *readingspostgres.ArchiveRepository, error) {
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	repo, err := readingspostgres.NewArchiveRepository(db, readingspostgres.WithTable(cfg.PostgresTable))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, repo, nil
}

// startMQTT connects and subscribes. The returned channel closes once the
// subscriber has stopped feeding the service, which happens after ctx is done.
func startMQTT(ctx context.Context, cfg config.MQTTConfig, service *application.Service, logger *log.Logger) (<-chan struct{}, error) {
	subscriber, err := readingsmqtt.NewSubscriber(service, cfg.Topic,
		readingsmqtt.WithQoS(cfg.QoS),
		readingsmqtt.WithDeduper(readingsmqtt.NewDeduper(cfg.DedupeTTL, cfg.DedupeMax)),
		readingsmqtt.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	client, err := readingsmqtt.Connect(ctx, readingsmqtt.ClientConfig{
		Broker:    cfg.Broker,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		OnConnect: subscriber.OnConnect,
	}, logger)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := subscriber.Start(ctx, client); err != nil {
			logger.Printf("mqtt subscriber stopped: %v", err)
		}
	}()
	return done, nil
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the alert stream working behind the access log.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
