package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/wpplink/internal/logging"
	"github.com/matheus3301/wpplink/internal/metrics"
	"github.com/matheus3301/wpplink/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", ":8480", "listen address")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address")
	redisPassword := flag.String("redis-password", os.Getenv("WPPLINK_REDIS_PASSWORD"), "redis password")
	rpm := flag.Int("rpm", relay.DefaultConfig().RequestsPerMinute, "per-account requests per minute")
	debug := flag.Bool("debug", false, "log every request")
	flag.Parse()

	logger := logging.NewConsole("relayd", *debug)
	defer func() { _ = logger.Sync() }()

	if err := run(*addr, *redisAddr, *redisPassword, *rpm, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, redisAddr, redisPassword string, rpm int, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	reg := prometheus.NewRegistry()
	cfg := relay.DefaultConfig()
	cfg.RequestsPerMinute = rpm
	srv := relay.NewServer(rdb, cfg, logger, metrics.New(reg))

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", srv.Handler())

	httpSrv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", zap.String("addr", addr), zap.String("redis", redisAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
