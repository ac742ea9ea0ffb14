package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/cx-tal-miterani/flight-reservation/internal/checkout"
	"github.com/cx-tal-miterani/flight-reservation/internal/config"
	"github.com/cx-tal-miterani/flight-reservation/internal/consistency"
	"github.com/cx-tal-miterani/flight-reservation/internal/database"
	"github.com/cx-tal-miterani/flight-reservation/internal/gateway"
	"github.com/cx-tal-miterani/flight-reservation/internal/handlers"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/metrics"
	"github.com/cx-tal-miterani/flight-reservation/internal/notify"
	"github.com/cx-tal-miterani/flight-reservation/internal/refund"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
	"github.com/cx-tal-miterani/flight-reservation/internal/router"
	"github.com/cx-tal-miterani/flight-reservation/internal/service"
	"github.com/cx-tal-miterani/flight-reservation/internal/storage/sqlite"
	"github.com/cx-tal-miterani/flight-reservation/internal/telemetry"
	"github.com/cx-tal-miterani/flight-reservation/internal/temporal"
	"github.com/cx-tal-miterani/flight-reservation/internal/temporal/activities"
	"github.com/cx-tal-miterani/flight-reservation/internal/websocket"
)

const (
	sessionSweepInterval = 5 * time.Second
	paymentSweepInterval = 30 * time.Second
	gatewayLatency       = 200 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}

func run(cfg *config.Config, log *logger.ZapLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	m := metrics.NewMetrics()

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	inv, store, closeStore, err := openStorage(ctx, cfg, hub, log)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	gw := gateway.NewSimulated(cfg.GatewayDeclineRate, gatewayLatency, log)

	sessions := reservation.NewManager(inv,
		reservation.WithTTL(cfg.SeatHoldDuration),
		reservation.WithLogger(log),
		reservation.WithMetrics(m),
		reservation.WithExpiryListener(hub.BroadcastSessionExpired),
	)
	l := ledger.New(store, inv,
		ledger.WithNotifier(notifier),
		ledger.WithLogger(log),
		ledger.WithMetrics(m),
	)
	checkoutSvc := checkout.NewService(sessions, inv, l, gw, cfg.PaymentTimeout, log)
	checker := consistency.NewChecker(l, log, m)
	refunds := refund.NewProcessor(l, gw, refund.Policy{StandardPercent: cfg.StandardRefundPercent}, log, m)

	bookingService := service.NewBookingService(service.Deps{
		Inventory: inv,
		Sessions:  sessions,
		Ledger:    l,
		Checkout:  checkoutSvc,
		Checker:   checker,
		Refunds:   refunds,
	})
	if err := bookingService.SeedDemoFlights(ctx, time.Now()); err != nil {
		return fmt.Errorf("failed to seed flights: %w", err)
	}

	if cfg.TemporalHost != "" {
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalHost,
			Namespace: cfg.TemporalNamespace,
			Logger:    log,
		})
		if err != nil {
			return fmt.Errorf("failed to create Temporal client: %w", err)
		}
		defer temporalClient.Close()

		scheduler := temporal.NewScheduler(temporalClient, cfg.TaskQueue)
		sessions.SetScheduler(scheduler)
		checkoutSvc.SetScheduler(scheduler)

		w := temporal.NewWorker(temporalClient, cfg.TaskQueue, activities.NewActivities(sessions, checkoutSvc))
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start Temporal worker: %w", err)
		}
		defer w.Stop()
		log.Info("Connected to Temporal", "host", cfg.TemporalHost, "taskQueue", cfg.TaskQueue)
	} else {
		log.Info("Temporal not configured, expiring holds with in-process sweepers")
		go sessions.RunSweeper(ctx, sessionSweepInterval)
		go checkoutSvc.RunSweeper(ctx, paymentSweepInterval)
	}

	h := handlers.NewHandler(bookingService, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.SetupRouter(h, hub.ServeWS, m.Handler()),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", "port", cfg.Port, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, publisher inventory.Publisher, log logger.Logger) (inventory.Inventory, ledger.Store, func(), error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("Connected to database")
		return database.NewInventory(pool, publisher), database.NewLedgerStore(pool), pool.Close, nil

	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				log.Error("Failed to close sqlite store", "error", err)
			}
		}
		return inventory.NewMemory(publisher), store, closeStore, nil
	}

	return inventory.NewMemory(publisher), ledger.NewMemoryStore(), func() {}, nil
}

func newNotifier(cfg *config.Config, log logger.Logger) (notify.Notifier, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NewLogNotifier(log), func() {}, nil
	}
	n, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		return nil, nil, err
	}
	return n, func() {
		if err := n.Close(); err != nil {
			log.Error("Failed to close kafka producer", "error", err)
		}
	}, nil
}
