// Package app собирает зависимости магазина и управляет жизненным циклом серверов.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/integration/crm"
	"github.com/vladislavdragonenkov/storefront/internal/integration/notify"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/journal"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/transport/rest"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// ErrJWTSecretRequired — без секрета нельзя проверять токены.
var ErrJWTSecretRequired = errors.New("jwt secret is required")

// components — собранные сервисы и фоновые воркеры.
type components struct {
	api     *rest.Server
	relay   *outbox.Relay
	sweeper *idempotency.Sweeper
	health  *healthcheck.Handler
}

type collectors struct {
	shop    *metrics.ShopMetrics
	workers *metrics.WorkerMetrics
	http    *metrics.HTTPMetrics
}

func newCollectors(registerer prometheus.Registerer) collectors {
	return collectors{
		shop:    metrics.NewShopMetricsWithRegisterer(registerer),
		workers: metrics.NewWorkerMetricsWithRegisterer(registerer),
		http:    metrics.NewHTTPMetricsWithRegisterer(registerer),
	}
}

func buildComponents(cfg Config, deps *runtimeDependencies, msg messaging, m collectors, logger *log.Entry) *components {
	notifier := notify.New(logger.WithField("component", "notify"), m.shop)
	j := journal.New(notifier, logger.WithField("component", "journal"), m.shop)

	cartSvc := cart.NewService(deps.store, j, logger.WithField("component", "cart-service"), m.shop)
	orderSvc := order.NewService(deps.store, j, logger.WithField("component", "order-service"), m.shop)
	crmClient := crm.New(cfg.CRMEndpoint,
		crm.WithTimeout(cfg.CRMTimeout),
		crm.WithLogger(logger.WithField("component", "crm")),
		crm.WithMetrics(m.shop),
	)
	paymentSvc := payment.NewService(deps.store, orderSvc, deps.gateway, deps.verifier,
		payment.WithCRM(crmClient),
		payment.WithJournal(j),
		payment.WithCurrency(cfg.PaymentCurrency),
		payment.WithLogger(logger.WithField("component", "payment-service")),
		payment.WithMetrics(m.shop),
	)

	guard := idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL)
	api := rest.NewServer(cartSvc, orderSvc, paymentSvc, rest.NewAuthenticator(cfg.JWTSecret),
		rest.WithIdempotency(guard),
		rest.WithLogger(logger.WithField("component", "http")),
		rest.WithMetrics(m.http),
	)

	relay := outbox.NewRelay(deps.outboxRepo, msg.publisher, outbox.Config{
		PollInterval:   cfg.OutboxPollInterval,
		BatchSize:      cfg.OutboxBatchSize,
		MaxAttempts:    cfg.OutboxMaxAttempts,
		RetryBaseDelay: cfg.OutboxRetryDelay,
	},
		outbox.WithLogger(logger.WithField("component", "outbox-relay")),
		outbox.WithDeadLetter(msg.deadLetter),
		outbox.WithMetrics(m.workers),
	)
	sweeper := idempotency.NewSweeper(deps.idempotencyRepo, cfg.IdempotencyCleanupInterval, cfg.IdempotencyCleanupBatchSize,
		logger.WithField("component", "idempotency-sweeper"), m.workers)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", deps.ping))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.outboxRepo, cfg.OutboxMaxPendingAge))

	return &components{api: api, relay: relay, sweeper: sweeper, health: healthHandler}
}

// Run поднимает REST API, gRPC health, метрики и фоновые воркеры до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if cfg.JWTSecret == "" {
		return ErrJWTSecretRequired
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	m := newCollectors(prometheus.DefaultRegisterer)
	deps, err := initRuntimeDependencies(ctx, cfg, logger, m.shop)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	msg := initMessaging(cfg, logger)
	defer msg.closeKafka(logger)

	c := buildComponents(cfg, deps, msg, m, logger)

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		c.relay.Run(workersCtx)
	}()
	go func() {
		defer workers.Done()
		c.sweeper.Run(workersCtx)
	}()
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, c.health)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger, cfg.ShutdownTimeout)
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(httpSrv, logger, cfg.ShutdownTimeout)
	stopGRPC(grpcServer, logger, cfg.ShutdownTimeout)
	shutdownHTTP(metricsSrv, logger, cfg.ShutdownTimeout)
	return runErr
}

func stopGRPC(srv *grpc.Server, logger *log.Entry, timeout time.Duration) {
	stoppedCh := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// metricsMux — /metrics и пробы здоровья.
func metricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: metricsMux(healthHandler), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger, DefaultConfig().ShutdownTimeout)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
