// Package app wires configuration, broker, storage and HTTP into the
// streamsink server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/adapters/kafka"
	"github.com/coregx/streamsink/adapters/memory"
	"github.com/coregx/streamsink/adapters/relica"
	"github.com/coregx/streamsink/cmd/streamsink/internal/api"
	"github.com/coregx/streamsink/cmd/streamsink/internal/config"
	"github.com/coregx/streamsink/logging"
	"github.com/coregx/streamsink/metrics"
)

// Version is reported as the service.version metric resource attribute.
var Version = "dev"

// repositories is the storage view the server needs, satisfied by both the
// relica and the in-memory adapters.
type repositories struct {
	User         streamsink.UserRepository
	Order        streamsink.OrderRepository
	Notification streamsink.NotificationRepository
	Event        streamsink.EventRepository
	DeadLetter   streamsink.DeadLetterRepository
}

// App is a fully wired server.
type App struct {
	cfg    *config.Config
	logger *logging.ZapLogger

	db       *sql.DB
	repos    repositories
	producer streamsink.Producer
	source   streamsink.StreamSource
	metrics  *metrics.Provider

	publisher *streamsink.Publisher
	consumer  *streamsink.Consumer
	router    *gin.Engine

	closers []func() error
}

// New builds every component from cfg. Call Close when done, also after Run.
func New(ctx context.Context, cfg *config.Config, logger *logging.ZapLogger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	steps := []func(context.Context) error{
		a.initMetrics,
		a.initStorage,
		a.initBroker,
		a.initServices,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) initMetrics(ctx context.Context) error {
	opts := []metrics.Option{
		metrics.WithServiceName("streamsink"),
		metrics.WithServiceVersion(Version),
	}
	if a.cfg.Metrics.OTLPEndpoint != "" {
		opts = append(opts, metrics.WithOTLPGRPCEndpoint(a.cfg.Metrics.OTLPEndpoint))
	}

	p, err := metrics.NewProvider(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	a.metrics = p
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.Shutdown(shutdownCtx)
	})
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	dbCfg := a.cfg.Database
	if dbCfg.Driver == config.DriverMemory {
		repos := memory.NewRepositories()
		a.repos = repositories{
			User:         repos.User,
			Order:        repos.Order,
			Notification: repos.Notification,
			Event:        repos.Event,
			DeadLetter:   repos.DeadLetter,
		}
		a.logger.Info("Using in-memory repositories")
		return nil
	}

	if dbCfg.AutoMigrate {
		if err := relica.MigrateUp(dbCfg.Driver, dbCfg.GetDSN()); err != nil {
			return err
		}
		a.logger.Infof("Database schema migrated (%s)", dbCfg.Driver)
	}

	db, err := sql.Open(dbCfg.Driver, dbCfg.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if dbCfg.Driver == "sqlite3" {
		// SQLite allows one writer; partition workers queue on a single connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db

	repos := relica.NewRepositories(db, dbCfg.Driver)
	a.repos = repositories{
		User:         repos.User,
		Order:        repos.Order,
		Notification: repos.Notification,
		Event:        repos.Event,
		DeadLetter:   repos.DeadLetter,
	}
	a.logger.Infof("Database connection established (%s, %s:%d)", dbCfg.Driver, dbCfg.Host, dbCfg.Port)
	return nil
}

func (a *App) initBroker(_ context.Context) error {
	topics := a.cfg.Topics.All()

	if a.cfg.Broker.Kind == config.BrokerMemory {
		broker := memory.NewBroker(a.cfg.Broker.Partitions)
		broker.EnsureStreams(topics...)
		a.producer = broker
		a.source = broker
		a.closers = append(a.closers, broker.Close)
		a.logger.Infof("Using in-memory broker with streams %v", topics)
		return nil
	}

	kcfg := a.cfg.KafkaConfig()
	if a.cfg.Broker.ProvisionTopics {
		if _, err := kafka.EnsureTopics(kcfg, topics, a.logger); err != nil {
			return err
		}
	}

	producer, err := kafka.NewProducer(kcfg)
	if err != nil {
		return err
	}
	a.producer = producer
	a.closers = append(a.closers, producer.Close)

	source, err := kafka.NewSource(kcfg, a.logger)
	if err != nil {
		return err
	}
	a.source = source
	a.closers = append(a.closers, source.Close)

	a.logger.Infof("Connected to Kafka %v (group=%s)", kcfg.Brokers, kcfg.GroupID)
	return nil
}

func (a *App) initServices(_ context.Context) error {
	notifier, err := metrics.NewNotifier(a.metrics.Meter())
	if err != nil {
		return err
	}
	notifications := streamsink.MultiNotificationService{
		streamsink.NewLoggingNotificationService(a.logger),
		notifier,
	}

	dispatcher, err := streamsink.NewDispatcher(
		streamsink.WithProducer(a.producer),
		streamsink.WithLogger(a.logger),
		streamsink.WithRetryStrategy(a.cfg.RetryStrategy()),
		streamsink.WithDeadLetterStream(a.cfg.Topics.DeadLetter),
		streamsink.WithNotifications(notifications),
	)
	if err != nil {
		return err
	}

	a.publisher, err = streamsink.NewPublisher(
		streamsink.WithPublisherProducer(a.producer),
		streamsink.WithPublisherLogger(a.logger),
		streamsink.WithPublisherTopics(a.cfg.Topics),
	)
	if err != nil {
		return err
	}

	topics := a.cfg.Topics
	opts := []streamsink.ConsumerOption{
		streamsink.WithConsumerSource(a.source),
		streamsink.WithConsumerDispatcher(dispatcher),
		streamsink.WithConsumerLogger(a.logger),
		streamsink.WithHandler(topics.Users, streamsink.NewUserSink(a.repos.User, a.logger)),
		streamsink.WithHandler(topics.Orders, streamsink.NewOrderSink(a.repos.Order, a.logger)),
		streamsink.WithHandler(topics.Notifications, streamsink.NewNotificationSink(a.repos.Notification, a.logger)),
		streamsink.WithHandler(topics.Events, streamsink.NewEventSink(a.repos.Event, a.logger)),
	}
	archive := streamsink.NewDeadLetterArchiveSink(a.repos.DeadLetter, a.logger)
	opts = append(opts, lo.Map(topics.DeadLetterStreams(), func(stream string, _ int) streamsink.ConsumerOption {
		return streamsink.WithHandler(stream, archive)
	})...)

	a.consumer, err = streamsink.NewConsumer(opts...)
	if err != nil {
		return err
	}

	stores := api.Stores{
		Users:       a.repos.User,
		Orders:      a.repos.Order,
		DeadLetters: a.repos.DeadLetter,
	}
	if a.db != nil {
		stores.Ping = a.db.PingContext
	}
	a.router = api.NewRouter(api.NewHandler(a.publisher, stores, a.logger), a.logger.Zap())
	return nil
}

// Handler returns the HTTP handler of the server.
func (a *App) Handler() http.Handler {
	return a.router
}

// Publisher returns the message publisher.
func (a *App) Publisher() *streamsink.Publisher {
	return a.publisher
}

// RunConsumer consumes every configured stream until ctx is canceled.
func (a *App) RunConsumer(ctx context.Context) error {
	return a.consumer.Run(ctx)
}

// Run serves HTTP and consumes until ctx is canceled or either side fails,
// then shuts both down. In-flight handler attempts finish before Run returns.
func (a *App) Run(ctx context.Context) error {
	addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
	server := &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.consumer.Run(consumerCtx); err != nil {
			errCh <- fmt.Errorf("consumer: %w", err)
		}
	}()

	go func() {
		a.logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case runErr = <-errCh:
		a.logger.Errorf("Shutting down after failure: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnf("HTTP server forced to shutdown: %v", err)
	}

	stopConsumer()
	wg.Wait()
	a.logger.Info("Server stopped gracefully")
	return runErr
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Provision creates the broker topics for cfg and returns the created ones.
func Provision(cfg *config.Config, logger streamsink.Logger) ([]string, error) {
	if cfg.Broker.Kind != config.BrokerKafka {
		return nil, fmt.Errorf("provisioning requires BROKER=kafka, got %q", cfg.Broker.Kind)
	}
	return kafka.EnsureTopics(cfg.KafkaConfig(), cfg.Topics.All(), logger)
}
