package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cipherclients/internal/observability/logging"
	"cipherclients/internal/observability/metrics"
	"cipherclients/internal/relay"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("RELAY_ADDR", ":8080"), "listen address")
	level := flag.String("log-level", envOr("RELAY_LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.Parse()

	log := logging.New(logging.Config{
		Component:   "relay",
		Environment: envOr("RELAY_ENV", "dev"),
		Level:       *level,
		JSON:        os.Getenv("RELAY_LOG_FORMAT") == "json",
	})
	metrics.MustRegister("relay")

	srv := &http.Server{
		Addr:              *addr,
		Handler:           relay.NewServer(log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "relay listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "relay stopped", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown", "err", err)
		os.Exit(1)
	}
	log.Info(shutdownCtx, "relay stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
