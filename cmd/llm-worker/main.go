package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/config"
	"github.com/aescanero/dago-node-llmworker/internal/eval/cel"
	"github.com/aescanero/dago-node-llmworker/internal/eval/template"
	"github.com/aescanero/dago-node-llmworker/internal/processor"
	"github.com/aescanero/dago-node-llmworker/internal/provider"
	"github.com/aescanero/dago-node-llmworker/internal/results"
	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/aescanero/dago-node-llmworker/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting llm worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	// Load the model registry once; it is never modified afterwards
	registry, err := initRegistry(cfg)
	if err != nil {
		logger.Fatal("failed to load model registry", zap.Error(err))
	}
	logger.Info("model registry loaded", zap.Strings("models", registry.Names()))

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	b := broker.NewRedis(redisClient, logger)

	// Test Redis connection. The worker retries on its own, so a failure
	// here is only reported.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Ping(ctx); err != nil {
		logger.Warn("redis not reachable yet", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Initialize processors
	deps := processor.Deps{
		Router:    router.NewRouter(registry, logger),
		Factory:   provider.NewLangChainFactory(logger),
		Evaluator: cel.NewEvaluator(),
		Engine:    template.NewEngine(),
		Logger:    logger,
	}
	opts := processor.Options{
		Timeout:            cfg.LLMTimeout,
		DefaultModel:       cfg.DefaultModel,
		DefaultTemperature: cfg.DefaultTemperature,
		AdmissionRule:      cfg.AdmissionRule,
	}

	summary, err := processor.NewSummaryProcessor(deps, opts)
	if err != nil {
		logger.Fatal("failed to create summary processor", zap.Error(err))
	}
	question, err := processor.NewQuestionProcessor(deps, opts)
	if err != nil {
		logger.Fatal("failed to create question processor", zap.Error(err))
	}

	dispatcher := worker.NewDispatcher(map[string]processor.Processor{
		cfg.SummaryStream:  summary,
		cfg.QuestionStream: question,
	}, logger)
	sink := results.NewSink(b, cfg.ResultStream, logger, results.WithMaxLen(cfg.ResultMaxLen))

	// Initialize worker
	w := worker.NewWorker(cfg, b, dispatcher, sink, logger)
	logger.Info("worker initialized", zap.String("worker_id", w.ID()))

	// Start worker
	if err := w.Start(); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	// Start health server
	healthServer := worker.NewHealthServer(cfg.HealthPort, b, w, logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("llm worker running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping worker")

	// Stop health server
	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	// Stop worker, letting the in-flight batch finish
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := w.Stop(); err != nil {
			logger.Error("failed to stop worker", zap.Error(err))
		}
	}()

	select {
	case <-stopped:
		logger.Info("worker stopped gracefully")
	case <-time.After(cfg.LLMTimeout + 10*time.Second):
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis connection", zap.Error(err))
	}
}

// initRegistry loads the registry file when configured, else the built-in one
func initRegistry(cfg *config.Config) (*router.Registry, error) {
	if cfg.ModelRegistryFile == "" {
		return router.DefaultRegistry(), nil
	}
	return router.LoadRegistry(cfg.ModelRegistryFile)
}

// initLogger initializes the logger
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
