package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/mesaservicio/ticket-engine/internal/api/http"
	"github.com/mesaservicio/ticket-engine/internal/api/http/handlers"
	"github.com/mesaservicio/ticket-engine/internal/auth"
	"github.com/mesaservicio/ticket-engine/internal/config"
	"github.com/mesaservicio/ticket-engine/internal/events"
	"github.com/mesaservicio/ticket-engine/internal/observability"
	"github.com/mesaservicio/ticket-engine/internal/persistence"
	"github.com/mesaservicio/ticket-engine/internal/repository"
	"github.com/mesaservicio/ticket-engine/internal/service"
	"github.com/mesaservicio/ticket-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	contractRepo := repository.NewCompanyContractRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	viewCache := service.NewViewCache(redis.ClientHandle(), cfg.SLA.ViewCacheTTL(), logger)
	policyResolver := service.NewPolicyResolver(contractRepo)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      ticketRepo,
		AuditRepo:       auditRepo,
		Policy:          policyResolver,
		Dispatcher:      dispatcher,
		Cache:           viewCache,
		HistoryTailSize: cfg.SLA.HistoryTailSize,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	tokenVerifier := auth.NewTokenVerifier(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokenVerifier)

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	ticketsHandler := handlers.NewTicketsHandler(ticketService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Tickets:        ticketsHandler,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
