// Package app собирает витрину: хранилище, сервисы, фоновые воркеры и серверы.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/admin"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/transport/grpcapi"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	shutdownTimeout = 5 * time.Second
	drainTimeout    = 5 * time.Second

	paymentBreakerFailures = 5
	paymentBreakerReset    = 30 * time.Second
)

// services: собранные доменные сервисы витрины.
type services struct {
	catalog  *catalog.Service
	sessions *cart.Sessions
	carts    *cart.Service
	auth     *auth.Service
	checkout *checkout.Service
	admin    *admin.Service
}

func buildServices(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) (*services, error) {
	m := metrics.NewStorefrontMetrics()
	if err := prometheus.Register(version.Collector()); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			logger.WithError(err).Warn("failed to register build info metric")
		}
	}

	catalogSvc := catalog.NewService(deps.catalogRepo, logger.WithField("layer", "catalog"))
	if cfg.SeedCatalog {
		seeded, err := catalogSvc.Seed(ctx, catalog.SampleItems())
		if err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		if seeded > 0 {
			logger.WithField("items", seeded).Info("sample catalog loaded")
		}
	}

	sessions := cart.NewSessions(deps.cartRepo,
		cart.WithLogger(logger.WithField("layer", "cart-sessions")),
		cart.WithMetrics(m),
		cart.WithIdleTTL(cfg.CartIdleTTL),
	)

	secret := cfg.JWTSecret
	if secret == "" {
		secret = defaultJWTSecret
	}
	if secret == defaultJWTSecret {
		logger.Warn("using the built-in demo JWT secret")
	}
	directory, err := auth.NewDirectory(auth.DemoCredentials(), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("build account directory: %w", err)
	}
	tokens, err := auth.NewTokens(secret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("build token issuer: %w", err)
	}

	checkoutSvc := checkout.NewService(
		sessions,
		deps.orderRepo,
		inventory.NewCatalogService(deps.catalogRepo, logger.WithField("layer", "inventory")),
		payment.NewResilientService(
			payment.NewDemoService(),
			payment.DefaultRetryConfig(),
			payment.NewCircuitBreaker(paymentBreakerFailures, paymentBreakerReset, logger.WithField("layer", "payment")),
			logger.WithField("layer", "payment"),
		),
		checkout.WithOutbox(deps.outboxRepo),
		checkout.WithTimeline(deps.timelineRepo),
		checkout.WithIdempotency(deps.idempotencyRepo),
		checkout.WithMetrics(m),
		checkout.WithLogger(logger.WithField("layer", "checkout")),
	)

	return &services{
		catalog:  catalogSvc,
		sessions: sessions,
		carts:    cart.NewService(sessions, catalogSvc, m, logger.WithField("layer", "cart")),
		auth:     auth.NewService(directory, tokens, logger.WithField("layer", "auth")),
		checkout: checkoutSvc,
		admin:    admin.NewService(deps.orderRepo, deps.timelineRepo, logger.WithField("layer", "admin")),
	}, nil
}

// Run запускает витрину и блокируется до отмены ctx или падения сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	svc, err := buildServices(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}

	bus := connectMessaging(cfg.KafkaBrokers, logger)
	workers := startBackground(cfg, deps, svc, bus, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	healthHandler.RegisterOptional("outbox", outboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending))
	if bus.configured() {
		healthHandler.RegisterOptional("kafka", bus.checker())
	}

	grpcServer, healthServer := newGRPCServer(svc, logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		workers.stop(logger)
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		workers.stop(logger)
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	apiServer := &http.Server{
		Handler: httpapi.NewServer(httpapi.Dependencies{
			Catalog:  svc.catalog,
			Carts:    svc.carts,
			Auth:     svc.auth,
			Checkout: svc.checkout,
			Admin:    svc.admin,
		},
			httpapi.WithLogger(logger.WithField("layer", "http")),
			httpapi.WithSecureCookies(cfg.SecureCookies),
		).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := apiServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	stopGRPC(grpcServer, logger)
	shutdownHTTP(apiServer, logger)
	shutdownHTTP(metricsSrv, logger)
	workers.stop(logger)

	return runErr
}

func newGRPCServer(svc *services, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
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

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcapi.UnaryLoggingInterceptor(logger.WithField("layer", "grpc")),
	))
	grpcapi.RegisterCartServiceServer(grpcServer, grpcapi.NewService(
		svc.carts,
		svc.auth,
		svc.checkout,
		logger.WithField("layer", "grpc"),
	))
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// newOpsHandler собирает служебные эндпоинты: метрики, пробы и версию сборки.
func newOpsHandler(healthHandler *healthcheck.Handler, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.Handle("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/livez", healthcheck.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", healthHandler.ReadinessHandler).Methods(http.MethodGet)
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(version.Get())
	}).Methods(http.MethodGet)
	return r
}

// startMetricsServer поднимает служебный listener и гасит его вместе с ctx.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newOpsHandler(healthHandler, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("служебные эндпоинты на %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	context.AfterFunc(ctx, func() { shutdownHTTP(srv, logger) })
	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
