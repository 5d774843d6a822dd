package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/liftcord/liftcord/eventbus"
	"github.com/liftcord/liftcord/ginsrv"
	"github.com/liftcord/liftcord/observability"
	"github.com/liftcord/liftcord/policy"
	"github.com/liftcord/liftcord/reconnect"
	"github.com/liftcord/liftcord/wp"
)

type serveOptions struct {
	failRate float64
	lifetime time.Duration
}

func newServeMetricsCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Run demo reconnect sessions and expose their metrics",
		Long: `Run demo reconnect sessions and expose their metrics.

One session per configured shard dials a synthetic gateway. /metrics serves
the Prometheus metrics and /healthz reports liveness. Session events are
logged, or published to NATS (events.nats_url) or Redis (events.redis_addr).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serveMetrics(ctx, opts)
		},
	}

	cmd.Flags().Float64Var(&opts.failRate, "fail-rate", 1, "probability that a demo dial fails")
	cmd.Flags().DurationVar(&opts.lifetime, "lifetime", time.Minute, "maximum lifetime of a demo connection")

	return cmd
}

func (a *app) serveMetrics(ctx context.Context, opts serveOptions) error {
	cfg, logger := a.cfg, a.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetricsCollector(registry)

	bus, closeBus, err := a.eventBus()
	if err != nil {
		return err
	}
	defer closeBus()

	policies := append([]policy.Policy{
		policy.NewInstrumentationPolicy(otel.GetTracerProvider(), "dial"),
		policy.NewMetricsPolicy(metrics),
		policy.NewCircuitBreakerPolicy(policy.CircuitBreakerConfig{Metrics: metrics, Logger: logger}),
	}, cfg.Retry.Policies(cfg.Backoff, metrics, logger)...)

	manager := reconnect.NewManager(ctx, reconnect.Config{
		Base:     cfg.Backoff.Base,
		Integral: cfg.Backoff.Integral,
		Policies: policies,
		Bus:      bus,
		Topic:    cfg.Events.Topic,
		Metrics:  metrics,
		Logger:   logger,
	})
	defer manager.Close()

	for i := 0; i < cfg.Reconnect.Shards; i++ {
		dialer := &demoDialer{
			failRate: opts.failRate,
			lifetime: opts.lifetime,
			rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		}
		if _, err := manager.Start(fmt.Sprintf("shard-%d", i), dialer.Dial); err != nil {
			return err
		}
	}

	router := ginsrv.SetupRouter([]ginsrv.Route{
		ginsrv.HealthRoute(manager.Check),
		ginsrv.MetricsRoute(registry),
	}, ginsrv.LoggerMiddleware(logger), ginsrv.ErrorFormatterMiddleware())

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", srv.Addr), zap.Int("shards", cfg.Reconnect.Shards))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// eventBus returns the configured external bus, or an in-process bus that
// logs events.
func (a *app) eventBus() (eventbus.Bus, func(), error) {
	cfg, logger := a.cfg, a.logger

	if cfg.Events.NatsURL != "" {
		bus, err := eventbus.NewNatsBus[reconnect.Event](cfg.Events.NatsURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { _ = bus.Close() }, nil
	}

	if cfg.Events.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
		bus := eventbus.NewRedisBus[reconnect.Event](client, logger)
		return bus, func() {
			_ = bus.Close()
			_ = client.Close()
		}, nil
	}

	pool := wp.NewPool(cfg.Events.Workers, 64, wp.WithLogger(logger))
	bus := eventbus.NewInMemBus(eventbus.WithPool(pool))
	err := bus.Subscribe(cfg.Events.Topic, eventbus.ReceiverFunc(func(_ context.Context, msg eventbus.Message) {
		ev, ok := msg.(reconnect.Event)
		if !ok {
			return
		}
		logger.Debug("session event",
			zap.String("key", ev.SessionKey),
			zap.String("kind", string(ev.Kind)),
			zap.Int("attempt", ev.Attempt),
			zap.Duration("delay", ev.Delay),
		)
	}))
	if err != nil {
		return nil, nil, err
	}

	return bus, func() {
		_ = bus.Close()
		pool.Stop()
	}, nil
}
