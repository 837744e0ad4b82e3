package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/safaricrafts/order-core/internal/cart"
	"github.com/safaricrafts/order-core/internal/checkout"
	"github.com/safaricrafts/order-core/internal/httpx"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/payment"
	"github.com/safaricrafts/order-core/internal/payment/azampay"
	"github.com/safaricrafts/order-core/internal/pkg/cache"
	"github.com/safaricrafts/order-core/internal/pkg/locks"
	"github.com/safaricrafts/order-core/internal/pkg/telemetry"
	"github.com/safaricrafts/order-core/internal/shipping"
	"github.com/safaricrafts/order-core/internal/storage/sqlite"
)

const serviceName = "order-core"

func main() {
	telemetry.InitLogger(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", serviceName))
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	store, err := sqlite.Open(getEnv("SQLITE_PATH", "order-core.db"))
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	redisCache := cache.NewRedisCache(getEnv("REDIS_ADDR", "redis-cache:6379"), serviceName)

	gateway := azampay.New(azampay.Config{
		AuthURL:      getEnv("AZAMPAY_AUTH_URL", "https://authenticator-sandbox.azampay.co.tz"),
		CheckoutURL:  getEnv("AZAMPAY_CHECKOUT_URL", "https://sandbox.azampay.co.tz"),
		AppName:      os.Getenv("AZAMPAY_APP_NAME"),
		ClientID:     os.Getenv("AZAMPAY_CLIENT_ID"),
		ClientSecret: os.Getenv("AZAMPAY_CLIENT_SECRET"),
	})

	// One keyed-lock scope shared by the state machine and the payment
	// reconciler so transitions on the same order serialize across both.
	orderLocks := locks.NewKeyed()

	stateMachine := order.NewStateMachine(store, orderLocks)
	cartService := cart.NewService(store.Carts(), store)
	shippingService := shipping.NewService(store, stateMachine)
	checkoutService := checkout.NewService(store.Carts(), store, shippingService, store)
	paymentService := payment.NewService(store, stateMachine, gateway, orderLocks)

	go paymentService.RunSweeper(ctx,
		getDuration("SWEEP_INTERVAL", time.Minute),
		getInt("SWEEP_MAX_ATTEMPTS", 5),
		getInt("SWEEP_BATCH_SIZE", 50),
	)

	handler := httpx.NewHandler(cartService, checkoutService, stateMachine, paymentService, shippingService, redisCache)

	srv := &http.Server{
		Addr:              ":" + getEnv("PORT", "8080"),
		Handler:           httpx.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("order core running", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
