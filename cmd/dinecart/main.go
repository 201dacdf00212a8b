package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/dinecart/internal/config"
	"github.com/fjod/dinecart/internal/graphql"
	h "github.com/fjod/dinecart/internal/http"
	"github.com/fjod/dinecart/internal/orderevents"
	"github.com/fjod/dinecart/internal/querycache"
	"github.com/fjod/dinecart/internal/workspace"
	"github.com/fjod/dinecart/pkg/circuitbreaker"
	"github.com/fjod/dinecart/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(log)

	// prices go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	client, err := graphql.NewClient(graphql.Options{
		Endpoint: cfg.GraphQLURL,
		Timeout:  cfg.RequestTimeout,
		Breaker: circuitbreaker.Settings{
			Name:        "graphql",
			MaxFailures: cfg.BreakerMaxFailures,
			OpenTimeout: cfg.BreakerOpenTimeout,
			Logger:      log,
		},
		Logger: log,
	})
	if err != nil {
		log.Error("failed to create graphql client", "error", err)
		os.Exit(1)
	}

	cache, closeCache := newQueryCache(cfg, log)
	defer closeCache()

	registry := workspace.NewRegistry(client, cache, workspace.Options{
		RefetchAfterMutation: cfg.RefetchAfterMutation,
		RefetchTimeout:       cfg.RequestTimeout,
		NoticeLimit:          50,
		TokenSecret:          cfg.JWTSecret,
	}, log)
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, new tokens are confirmed with the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OrderEventsEnabled() {
		consumer := orderevents.NewConsumer(registry, orderevents.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.OrderEventsTopic,
			GroupID: cfg.OrderEventsGroup,
		}, log)
		defer consumer.Close()
		go consumer.Run(ctx)
		log.Info("order events consumer started", "topic", cfg.OrderEventsTopic)
	}

	router := h.NewRouter(h.RouterConfig{
		Client:             client,
		Registry:           registry,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Logger:             log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "dinecart"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("dinecart starting", "port", cfg.HTTPPort, "graphql_url", cfg.GraphQLURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	if err := registry.Close(shutdownCtx); err != nil {
		log.Warn("background refetches still running", "error", err)
	}

	log.Info("server exited")
}

func newQueryCache(cfg *config.Config, log *slog.Logger) (querycache.Cache, func()) {
	if cfg.RedisAddr == "" {
		log.Info("using in-memory query cache", "ttl", cfg.QueryCacheTTL)
		return newMemoryCache(cfg.QueryCacheTTL)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// fall back to a per-process cache
		log.Warn("redis unavailable, using in-memory query cache", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return newMemoryCache(cfg.QueryCacheTTL)
	}

	log.Info("using redis query cache", "addr", cfg.RedisAddr)
	return querycache.NewRedisCache(rdb, cfg.QueryCacheTTL), func() {
		if err := rdb.Close(); err != nil {
			log.Error("error closing redis client", "error", err)
		}
	}
}

func newMemoryCache(ttl time.Duration) (querycache.Cache, func()) {
	c := querycache.NewMemoryCache(ttl)
	c.StartCleanup(time.Minute)
	return c, c.Close
}
