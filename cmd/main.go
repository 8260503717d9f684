package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ironmanme/poem-gateway/config"
	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/backend"
	"github.com/ironmanme/poem-gateway/internal/circuitbreaker"
	"github.com/ironmanme/poem-gateway/internal/handler"
	"github.com/ironmanme/poem-gateway/internal/healthcheck"
	"github.com/ironmanme/poem-gateway/internal/httpserver"
	"github.com/ironmanme/poem-gateway/internal/loadbalancer"
	"github.com/ironmanme/poem-gateway/internal/metrics"
	"github.com/ironmanme/poem-gateway/internal/strategy"
	"github.com/ironmanme/poem-gateway/pkg/logger"
)

var errNoUpstreams = errors.New("no upstream nodes configured")

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := initializeUpstreams(cfg)
	if err != nil {
		log.Error("Failed to initialize upstreams", slog.Any("err", err))
		os.Exit(1)
	}

	strat, err := createStrategy(log, cfg.Strategy.Type, cfg.Strategy.VirtualNodes)
	if err != nil {
		log.Error("Failed to create strategy",
			slog.String("strategy", cfg.Strategy.Type),
			slog.Any("err", err))
		os.Exit(1)
	}

	hcConfig, err := cfg.HealthCheckSettings()
	if err != nil {
		log.Error("Invalid health check settings", slog.Any("err", err))
		os.Exit(1)
	}

	prom := metrics.NewPrometheus()
	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log, prom)
	collector.Start(ctx)

	checker := healthcheck.New(ctx, pool.Authorities(), hcConfig,
		healthcheck.WithLogger(log.With(slog.String("component", "healthcheck"))),
		healthcheck.WithSweepListener(collector.ObserveSweep))
	defer checker.Close()

	breakers := circuitbreaker.NewRegistry(cfg.CircuitBreaker.Threshold, cfg.BreakerResetTimeout(), nil)
	lb := loadbalancer.NewLoadBalancer(checker, pool, strat, breakers, cfg.QueryTimeout())

	loadBalancerHandler := handler.NewLoadBalancerHandler(log, lb, breakers, collector)
	statusHandler := handler.NewStatusHandler(log, checker, breakers, cfg.QueryTimeout())

	router := setupRouter(loadBalancerHandler, statusHandler, collector, prom, cfg.Strategy.Type)

	srv, err := httpserver.New(cfg.Server.Address, router, log)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case <-checker.Done():
		log.Error("Health checker exited unexpectedly")
		_ = srv.Shutdown(context.Background())
		os.Exit(1)
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func initializeUpstreams(cfg *config.Config) (*backend.Pool, error) {
	backends := make([]*backend.Backend, 0, len(cfg.Upstream.Nodes))

	for _, node := range cfg.Upstream.Nodes {
		a, err := authority.Parse(node.Authority)
		if err != nil {
			return nil, err
		}
		backends = append(backends, backend.New(cfg.Upstream.Scheme, a, node.Weight))
	}

	pool := backend.NewPool(backends...)
	if pool.Len() == 0 {
		return nil, errNoUpstreams
	}

	return pool, nil
}

func createStrategy(logger *slog.Logger, strategyType string, virtualNodes int) (strategy.Strategy, error) {
	switch strategyType {
	case config.StrategyRoundRobin:
		return strategy.NewRoundRobinStrategy(), nil
	case config.StrategyRandom:
		return strategy.NewRandomStrategy(), nil
	case config.StrategyLeastConn:
		return strategy.NewLeastConnStrategy(), nil
	case config.StrategyLeastResponse:
		return strategy.NewLeastResponseStrategy(), nil
	case config.StrategyConsistentHash:
		return strategy.NewConsistentHashStrategy(virtualNodes), nil
	case config.StrategyWeightedRoundRobin:
		return strategy.NewWeightedRoundRobinStrategy(), nil
	default:
		logger.Warn("Unknown strategy, defaulting to round-robin", slog.String("requested", strategyType))
		return strategy.NewRoundRobinStrategy(), nil
	}
}
