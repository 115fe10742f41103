package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bridge/internal/api/http"
	"github.com/spec-kit/ticket-bridge/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bridge/internal/auth"
	"github.com/spec-kit/ticket-bridge/internal/clients/connectwise"
	"github.com/spec-kit/ticket-bridge/internal/clients/slack"
	"github.com/spec-kit/ticket-bridge/internal/config"
	"github.com/spec-kit/ticket-bridge/internal/events"
	"github.com/spec-kit/ticket-bridge/internal/observability"
	"github.com/spec-kit/ticket-bridge/internal/persistence"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	"github.com/spec-kit/ticket-bridge/internal/routing"
	"github.com/spec-kit/ticket-bridge/internal/service"
	"github.com/spec-kit/ticket-bridge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conns, err := persistence.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open sync state store", zap.Error(err))
	}
	defer conns.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewAuditService(dispatcher, logger, metrics).RegisterHandlers()
	runner := worker.NewRunner(logger)

	tenantRepo := repository.NewTenantRepository(conns.Store)
	recordRepo := repository.NewSyncRecordRepository(conns.Store)

	tickets := connectwise.NewClient(cfg.Connectwise, nil, logger)
	chat := slack.NewClient(cfg.Slack, nil, logger)

	coordinator := service.NewSyncCoordinator(service.CoordinatorDependencies{
		Records:    recordRepo,
		Chat:       chat,
		Tickets:    tickets,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		Tickets:      tickets,
		Scheduler:    runner,
		Dispatcher:   dispatcher,
		Logger:       logger,
		RecheckDelay: cfg.Bridge.AssignmentRecheckDelay,
	})
	bridge := service.NewBridgeService(service.BridgeDependencies{
		Tenants:     tenantRepo,
		Tickets:     tickets,
		Resolver:    routing.NewResolver(tenantRepo, logger),
		Coordinator: coordinator,
		Assignments: assignments,
		Dispatcher:  dispatcher,
		Logger:      logger,
		RunTimeout:  cfg.Bridge.TicketRunTimeout,
	})
	tenantService := service.NewTenantService(tenantRepo)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
		// handler strings outlive requests in background relays and store keys
		Immutable: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, cfg.Store.Backend, conns.Store, metrics, runner),
		Connectwise:    handlers.NewConnectwiseHandler(bridge, logger),
		Slack:          handlers.NewSlackHandler(tenantRepo, bridge, runner, logger),
		Tenants:        handlers.NewTenantHandler(tenantService, bridge),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, cfg.Bridge.ShutdownGrace)
	defer drainCancel()
	if err := runner.Shutdown(drainCtx); err != nil {
		logger.Warn("background tasks did not finish", zap.Error(err), zap.Int("pending", runner.Pending()))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
