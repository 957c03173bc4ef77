package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gateway/internal/config"
	"gateway/internal/interface/connection"
	"gateway/internal/interface/dispatch"
	"gateway/internal/interface/handler"
	"gateway/internal/interface/repository/cache"
	"gateway/internal/interface/repository/logger"
	"gateway/internal/interface/repository/metrics"
	"gateway/internal/interface/repository/sentiment"
	"gateway/internal/interface/repository/upstream"
	"gateway/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("host", "localhost", "Host to bind to")
	f.Int("port", 8080, "Gateway port")
	f.Int("metrics-port", 8081, "Metrics server port")
	f.String("strategy", "pool", "Dispatch strategy: spawn, pool or pipeline")
	f.Int("workers", 16, "Number of pool workers")
	f.Int("queue-size", 64, "Pool queue capacity")
	f.String("overflow", "block", "Pool overflow policy: block or reject")
	f.String("locking", "singleflight", "Cache locking policy: singleflight or global")
	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.String("log-format", "console", "Log format: console or json")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	// ロガーの初期化
	loggerRepo, err := logger.New(logger.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Dir:      cfg.Logging.Dir,
		Filename: cfg.Logging.Filename,
		Rotation: logger.DefaultRotationConfig(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer loggerRepo.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Metrics.File), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if cfg.Weather.APIKey == "" {
		loggerRepo.Info("Weather API key is not set; upstream will reject proxy requests", map[string]interface{}{
			"env": config.EnvPrefix + "_WEATHER_API_KEY",
		})
	}

	cacheRepo := cache.New(
		cache.WithShards(cfg.Cache.Shards),
		cache.WithCompressThreshold(cfg.Cache.CompressThreshold),
	)
	metricsRepo := metrics.New(cfg.Metrics.File)

	// 上流クライアントは全リクエストで共有する. タイムアウトは呼び出しごとに設定する.
	client := upstream.NewHTTPClient(0)
	weather := upstream.NewWeatherFetcher(client, upstream.WeatherConfig{
		BaseURL: cfg.Weather.BaseURL,
		APIKey:  cfg.Weather.APIKey,
		Timeout: cfg.Weather.Timeout,
	})
	github := upstream.NewGitHubSource(client, upstream.GitHubConfig{
		BaseURL:   cfg.GitHub.BaseURL,
		Token:     cfg.GitHub.Token,
		UserAgent: cfg.GitHub.UserAgent,
		Timeout:   cfg.GitHub.Timeout,
	})

	gatewayUseCase, err := usecase.NewGatewayUseCase(
		cacheRepo,             // domain.CacheManager
		weather,               // domain.Fetcher
		github,                // domain.CommentSource
		sentiment.New(),       // domain.Scorer
		handler.NewHTMLReport, // domain.ReportFactory
		metricsRepo,           // domain.MetricsCollector
		loggerRepo,            // domain.Logger
		usecase.GatewayConfig{
			LockPolicy:     cfg.Cache.Locking,
			PipelineBuffer: cfg.GitHub.CommentBuffer,
		},
	)
	if err != nil {
		return err
	}

	metricsUseCase := usecase.NewMetricsUseCase(metricsRepo, loggerRepo, usecase.MetricsConfig{
		SaveInterval: cfg.Metrics.SaveInterval,
	})

	gatewayHandler := handler.Chain(
		handler.NewGatewayHandler(gatewayUseCase, metricsRepo, loggerRepo),
		handler.RequestID(),
		handler.Logging(loggerRepo),
		handler.Recovery(loggerRepo, metricsRepo),
	)
	connServer := connection.NewServer(gatewayHandler, connection.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		RetryAfter:   cfg.Server.RetryAfter,
	}, metricsRepo, loggerRepo)

	dispatcher, err := dispatch.New(cfg.Dispatch.Strategy, connServer, dispatch.Options{
		Workers:        cfg.Dispatch.Workers,
		QueueSize:      cfg.Dispatch.QueueSize,
		Overflow:       cfg.Dispatch.Overflow,
		PipelineBuffer: cfg.Dispatch.PipelineBuffer,
	}, metricsRepo, loggerRepo)
	if err != nil {
		return err
	}

	metricsHandler := handler.NewMetricsHandler(metricsUseCase, metricsRepo.Registry(), dispatcher, loggerRepo)
	metricsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.MetricsPort)),
		Handler:           metricsHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if err := metricsUseCase.Start(); err != nil {
		ln.Close()
		return err
	}
	defer func() {
		if err := metricsUseCase.Stop(); err != nil {
			loggerRepo.Error("Failed to save final metrics", err, nil)
		}
	}()

	// シャットダウンハンドラの設定
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 2)
	go func() {
		loggerRepo.Info("Starting gateway", map[string]interface{}{
			"addr":     addr,
			"strategy": dispatcher.Name(),
			"locking":  cfg.Cache.Locking,
		})
		if err := dispatcher.Serve(ln); err != nil {
			serverErr <- fmt.Errorf("gateway: %w", err)
		}
	}()
	go func() {
		loggerRepo.Info("Starting metrics server", map[string]interface{}{"addr": metricsServer.Addr})
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// シグナル待機
	var runErr error
	select {
	case <-ctx.Done():
		loggerRepo.Info("Shutdown signal received", nil)
	case runErr = <-serverErr:
		loggerRepo.Error("Server error", runErr, nil)
	}

	// グレースフルシャットダウン
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		loggerRepo.Error("Error shutting down gateway", err, nil)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		loggerRepo.Error("Error shutting down metrics server", err, nil)
	}

	loggerRepo.Info("Shutdown complete", map[string]interface{}{
		"cached_entries": cacheRepo.Len(),
		"cached_bytes":   cacheRepo.Size(),
	})
	return runErr
}
