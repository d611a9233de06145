package trackingservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/postgres"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/software/tracking/handler"
	"ride-dispatch/internal/software/tracking/service"
	"ride-dispatch/internal/tracking"
	"ride-dispatch/internal/tracking/broadcast"
)

// Run wires and starts the tracking service, blocking until ctx is
// cancelled or a component fails.
func Run(ctx context.Context, maxConcurrent int) error {
	log := logger.New("tracking-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("./config/config.yaml")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewMQPublisher(rmq)

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	rideDir := postgres.NewRideDirectory(pool)
	quoteDir := postgres.NewQuoteDirectory(pool)

	store := tracking.NewStore(tracking.Options{
		MinInterval:   cfg.Tracking.MinUpdateInterval,
		Expiry:        cfg.Tracking.Expiry,
		SweepInterval: cfg.Tracking.SweepInterval,
		QueueSize:     cfg.Tracking.QueueSize,
	}, log)

	registry := websocket.NewRegistry(log)
	coordinator := broadcast.NewCoordinator(log, store.Events(), registry, rideDir, pub)

	svc := service.NewTrackingService(log, store, rideDir, quoteDir, coordinator)

	wsHandler := websocket.NewHandler(log, jwtManager, registry, rideDir)

	mux := http.NewServeMux()
	httpHandler := handler.NewTrackingHTTPHandler(svc, log, jwtManager, wsHandler)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	log.Info(ctx, "service_started",
		fmt.Sprintf("Tracking Service started on port %d", cfg.HTTP.Port),
		map[string]any{"port": cfg.HTTP.Port, "max_concurrent": maxConcurrent},
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		store.RunSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		// returns nil when the store closed its channel on shutdown
		if err := coordinator.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(ctx, "service_failed", "Tracking service terminated with error", err, map[string]any{"port": cfg.HTTP.Port})
		return err
	}
	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
