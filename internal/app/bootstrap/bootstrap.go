package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	ordersservice "checkout/contexts/order-management/orders-service"
	orderspg "checkout/contexts/order-management/orders-service/adapters/postgres"
	ordersworkers "checkout/contexts/order-management/orders-service/application/workers"
	paymentsservice "checkout/contexts/payment-settlement/payments-service"
	paymentspg "checkout/contexts/payment-settlement/payments-service/adapters/postgres"
	paymentsworkers "checkout/contexts/payment-settlement/payments-service/application/workers"
	"checkout/internal/platform/config"
	"checkout/internal/platform/db"
	"checkout/internal/platform/httpserver"
	"checkout/internal/platform/messaging"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
	outboxpg "checkout/internal/shared/outbox/postgres"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

// eventTransport is whichever broker the worker publishes through and the
// consumers subscribe on: in-process bus locally, RabbitMQ when configured.
type eventTransport interface {
	Publish(ctx context.Context, messageType string, event events.Event) error
	Subscribe(ctx context.Context, messageType, consumerGroup string, handler func(context.Context, events.Event) error) error
}

type APIApp struct {
	server           *httpserver.Server
	ordersPostgres   *db.Postgres
	paymentsPostgres *db.Postgres
	logger           *slog.Logger
}

type WorkerApp struct {
	ordersPostgres   *db.Postgres
	paymentsPostgres *db.Postgres
	rabbit           *messaging.Rabbit

	ordersDispatcher   outbox.Dispatcher
	paymentsDispatcher outbox.Dispatcher
	paymentResults     ordersworkers.PaymentResultConsumer
	orderCreated       paymentsworkers.OrderCreatedConsumer

	logger *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	ordersPG, paymentsPG, err := connectDatabases(cfg)
	if err != nil {
		return nil, err
	}

	ordersRepo := orderspg.NewRepository(ordersPG.DB, logger)
	ordersModule := ordersservice.NewModule(ordersservice.Dependencies{
		Orders:      ordersRepo,
		Clock:       orderspg.SystemClock{},
		IDGenerator: orderspg.UUIDGenerator{},
		Logger:      logger,
	})

	paymentsRepo := paymentspg.NewRepository(paymentsPG.DB, logger)
	paymentsModule := paymentsservice.NewModule(paymentsservice.Dependencies{
		Accounts:    paymentsRepo,
		Clock:       paymentspg.SystemClock{},
		IDGenerator: paymentspg.UUIDGenerator{},
		Logger:      logger,
	})

	server := httpserver.New(ordersModule, paymentsModule, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:           server,
		ordersPostgres:   ordersPG,
		paymentsPostgres: paymentsPG,
		logger:           logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	ordersPG, paymentsPG, err := connectDatabases(cfg)
	if err != nil {
		return nil, err
	}

	registry := events.DefaultRegistry()
	app := &WorkerApp{
		ordersPostgres:   ordersPG,
		paymentsPostgres: paymentsPG,
		logger:           logger,
	}

	var transport eventTransport
	if strings.TrimSpace(cfg.RabbitURL) != "" {
		rabbit, err := messaging.NewRabbit(cfg.RabbitURL, registry, logger)
		if err != nil {
			_ = ordersPG.Close()
			_ = paymentsPG.Close()
			return nil, err
		}
		app.rabbit = rabbit
		transport = rabbit
	} else {
		transport = messaging.NewBus(logger)
	}

	outboxCfg := outbox.Config{
		PollInterval:   cfg.OutboxPollInterval,
		BatchSize:      cfg.OutboxBatchSize,
		LeaseDuration:  cfg.OutboxLeaseDuration,
		MaxErrorLength: cfg.OutboxMaxErrorLength,
		MaxAttempts:    cfg.OutboxMaxAttempts,
	}
	instanceID := outbox.NewInstanceID()

	app.ordersDispatcher = outbox.Dispatcher{
		Store:      outboxpg.NewStore(ordersPG.DB, logger),
		Publisher:  transport,
		Registry:   registry,
		InstanceID: instanceID + "-orders",
		Config:     outboxCfg,
		Logger:     logger,
	}
	app.paymentsDispatcher = outbox.Dispatcher{
		Store:      outboxpg.NewStore(paymentsPG.DB, logger),
		Publisher:  transport,
		Registry:   registry,
		InstanceID: instanceID + "-payments",
		Config:     outboxCfg,
		Logger:     logger,
	}

	ordersRepo := orderspg.NewRepository(ordersPG.DB, logger)
	app.paymentResults = ordersworkers.PaymentResultConsumer{
		Subscriber: transport,
		Orders:     ordersRepo,
		Clock:      orderspg.SystemClock{},
		Disabled:   !cfg.EnablePaymentResultConsumer,
		Logger:     logger,
	}

	paymentsRepo := paymentspg.NewRepository(paymentsPG.DB, logger)
	app.orderCreated = paymentsworkers.OrderCreatedConsumer{
		Subscriber: transport,
		Store:      paymentsRepo,
		Clock:      paymentspg.SystemClock{},
		IDGen:      paymentspg.UUIDGenerator{},
		Disabled:   !cfg.EnableOrderCreatedConsumer,
		Logger:     logger,
	}
	return app, nil
}

func connectDatabases(cfg config.Config) (*db.Postgres, *db.Postgres, error) {
	if strings.TrimSpace(cfg.OrdersPostgresDSN) == "" {
		return nil, nil, errors.New("ORDERS_POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.PaymentsPostgresDSN) == "" {
		return nil, nil, errors.New("PAYMENTS_POSTGRES_DSN is required")
	}

	ordersPG, err := db.Connect(cfg.OrdersPostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	paymentsPG, err := db.Connect(cfg.PaymentsPostgresDSN)
	if err != nil {
		_ = ordersPG.Close()
		return nil, nil, err
	}

	if err := orderspg.Migrate(ordersPG.DB); err != nil {
		_ = ordersPG.Close()
		_ = paymentsPG.Close()
		return nil, nil, err
	}
	if err := paymentspg.Migrate(paymentsPG.DB); err != nil {
		_ = ordersPG.Close()
		_ = paymentsPG.Close()
		return nil, nil, err
	}
	return ordersPG, paymentsPG, nil
}

func (a *APIApp) Run(_ context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	return a.server.Start()
}

func (a *APIApp) Close() error {
	var errs []error
	if a.ordersPostgres != nil {
		errs = append(errs, a.ordersPostgres.Close())
	}
	if a.paymentsPostgres != nil {
		errs = append(errs, a.paymentsPostgres.Close())
	}
	return errors.Join(errs...)
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.paymentResults.Start(ctx); err != nil {
		return err
	}
	if err := w.orderCreated.Start(ctx); err != nil {
		return err
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for _, dispatcher := range []outbox.Dispatcher{w.ordersDispatcher, w.paymentsDispatcher} {
		wg.Add(1)
		go func(d outbox.Dispatcher) {
			defer wg.Done()
			if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(dispatcher)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.rabbit != nil {
		errs = append(errs, w.rabbit.Close())
	}
	if w.ordersPostgres != nil {
		errs = append(errs, w.ordersPostgres.Close())
	}
	if w.paymentsPostgres != nil {
		errs = append(errs, w.paymentsPostgres.Close())
	}
	return errors.Join(errs...)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
