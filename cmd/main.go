package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cantina-pos/internal/catalog"
	"cantina-pos/internal/config"
	"cantina-pos/internal/database"
	"cantina-pos/internal/logger"
	"cantina-pos/internal/messaging"
	"cantina-pos/internal/services/api"
	"cantina-pos/internal/services/cashier"
	"cantina-pos/internal/services/inventory"
	"cantina-pos/internal/services/kitchen"
	"cantina-pos/internal/services/ledger"
	"cantina-pos/internal/services/settlement"
	"cantina-pos/internal/services/tables"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (pos-service, inventory-relay, kitchen-display)")
		port       = flag.Int("port", 3000, "HTTP port for pos-service")
		station    = flag.String("station", "kitchen", "Station for kitchen-display mode (kitchen, bar)")
		prefetch   = flag.Int("prefetch", 1, "RabbitMQ prefetch count for consumer modes")
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": *port,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "pos-service":
		err = runPOSService(ctx, cfg, log, *port)
	case "inventory-relay":
		err = runInventoryRelay(ctx, cfg, log, *prefetch)
	case "kitchen-display":
		err = runKitchenDisplay(ctx, cfg, log, *station, *prefetch)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runPOSService runs the HTTP API for the staff terminals
func runPOSService(ctx context.Context, cfg *config.Config, log *logger.Logger, port int) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)

	cat := catalog.New(db)
	tableSvc := tables.NewService(db, cfg.Business, log)
	ledgerSvc := ledger.NewService(db, cat, tableSvc, publisher, cfg.Business, log)
	settlementSvc := settlement.NewService(db, tableSvc, cfg.Business, log)
	cashierSvc := cashier.NewService(db, cfg.Business, log)

	handler := api.NewHandler(ledgerSvc, settlementSvc, cashierSvc, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.SetupRoutes(),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("service_started", fmt.Sprintf("POS service listening on port %d", port), requestID, map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// runInventoryRelay runs the stock deduction consumer
func runInventoryRelay(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.InventoryQueue, "inventory-relay", prefetch)
	worker := inventory.NewWorker(db, consumer, log)

	return worker.Start(ctx)
}

// runKitchenDisplay runs the preparation ticket display for one station
func runKitchenDisplay(ctx context.Context, cfg *config.Config, log *logger.Logger, station string, prefetch int) error {
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	queue := messaging.KitchenQueue
	if station == "bar" {
		queue = messaging.BarQueue
	}

	consumer := messaging.NewConsumer(conn, log, queue, fmt.Sprintf("%s-display", station), prefetch)
	subscriber := kitchen.NewSubscriber(consumer, log)

	return subscriber.Start(ctx)
}
