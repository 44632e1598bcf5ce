package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "gamereview/searchservice/internal/api/http"
	"gamereview/searchservice/internal/app"
	catalogmongo "gamereview/searchservice/internal/catalog/mongo"
	"gamereview/searchservice/internal/metrics"
	"gamereview/searchservice/internal/providers/igdb"
	"gamereview/searchservice/internal/search"
	"gamereview/searchservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "game-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "game-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("mongoDatabase", cfg.MongoDatabase),
		slog.String("mongoCollection", cfg.MongoCollection),
		slog.Bool("hasIGDBCredentials", cfg.IGDBClientID != "" && cfg.IGDBToken != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("externalTimeout", cfg.ExternalTimeout),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelConnect()
	mongoClient, err := catalogmongo.Connect(connectCtx, cfg.MongoURI,
		options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	repository := catalogmongo.NewRepository(mongoClient, cfg.MongoDatabase, cfg.MongoCollection)
	if err := repository.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("catalog index setup failed", slog.String("error", err.Error()))
	}

	redisClient := buildRedisClient(cfg, logger)

	serviceOpts := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithCacheTTL(cfg.CacheTTL),
		search.WithCacheMaxEntries(cfg.CacheMaxEntries),
		search.WithCacheDisabled(cfg.CacheDisabled),
		search.WithExternalTimeout(cfg.ExternalTimeout),
		search.WithCatalogStaleness(cfg.StalenessWindow),
		search.WithRefreshChance(cfg.RefreshChance),
		search.WithWriteBackBatchSize(cfg.WriteBackBatch),
	}
	if redisClient != nil {
		serviceOpts = append(serviceOpts,
			search.WithRedisCache(search.NewRedisCacheBackend(redisClient)),
			search.WithRedisTTL(cfg.LongCacheTTL),
		)
	}

	igdbClient := igdb.NewClient(igdb.Config{
		Endpoint: cfg.IGDBEndpoint,
		ClientID: cfg.IGDBClientID,
		Token:    cfg.IGDBToken,
		Client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Redis: redisClient,
	})
	if igdbClient.Enabled() {
		serviceOpts = append(serviceOpts, search.WithProvider(igdbClient))
	} else {
		logger.Info("igdb credentials not configured, serving catalog only")
	}

	searchService := search.NewService(repository, serviceOpts...)

	handler := apihttp.NewServer(searchService, apihttp.WithLogger(logger)).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	searchService.StartBackground(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("game search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("externalTimeout", cfg.ExternalTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("game search service stopped")
}

func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
