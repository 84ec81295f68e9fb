package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/notaflow/notaflow/internal/api"
	v1 "github.com/notaflow/notaflow/internal/api/v1"
	"github.com/notaflow/notaflow/internal/authority"
	"github.com/notaflow/notaflow/internal/cache"
	"github.com/notaflow/notaflow/internal/config"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/migrations"
	"github.com/notaflow/notaflow/internal/postgres"
	"github.com/notaflow/notaflow/internal/repository"
	"github.com/notaflow/notaflow/internal/sentry"
	"github.com/notaflow/notaflow/internal/service"
	"github.com/notaflow/notaflow/internal/signer"
	"github.com/notaflow/notaflow/internal/validator"
	"go.uber.org/fx"
)

// @title NotaFlow API
// @version 1.0
// @description Fiscal service-invoice (NFSe) lifecycle service
// @BasePath /v1
// @schemes http https

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			validator.NewValidator,
			config.NewConfig,
			provideLogger,
			sentry.NewSentryService,
			cache.NewInMemoryCache,

			postgres.NewDB,
			postgres.NewClient,

			repository.NewDocumentRepository,
			repository.NewIssuerRepository,

			signer.NewRemoteSigner,
			authority.NewClient,

			service.NewServiceParams,
			service.NewDocumentService,
			service.NewEmissionService,
			service.NewCancellationService,
			service.NewIssuerService,

			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			runMigrations,
			startServer,
		),
	)
	app.Run()
}

func provideLogger(cfg *config.Configuration) (*logger.Logger, error) {
	return logger.NewLogger(cfg.Logging.Level)
}

func provideHandlers(
	log *logger.Logger,
	documentService service.DocumentService,
	emissionService service.EmissionService,
	cancellationService service.CancellationService,
	issuerService service.IssuerService,
) api.Handlers {
	return api.Handlers{
		Health:   v1.NewHealthHandler(log),
		Document: v1.NewDocumentHandler(documentService, emissionService, cancellationService, log),
		Issuer:   v1.NewIssuerHandler(issuerService, log),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, log)
}

func runMigrations(cfg *config.Configuration, db *sqlx.DB, log *logger.Logger) error {
	if !cfg.Postgres.AutoMigrate {
		return nil
	}
	log.Info("Applying database migrations")
	return migrations.Up(db.DB)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *sqlx.DB,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server")
			return db.Close()
		},
	})
}
