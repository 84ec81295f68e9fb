package api

import (
	"github.com/gin-gonic/gin"
	_ "github.com/notaflow/notaflow/docs/swagger"
	v1 "github.com/notaflow/notaflow/internal/api/v1"
	"github.com/notaflow/notaflow/internal/config"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/rest/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Health   *v1.HealthHandler
	Document *v1.DocumentHandler
	Issuer   *v1.IssuerHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(),
	)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", handlers.Health.Health)

	// v1 routes
	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	documents := router.Group("/documents")
	{
		documents.POST("", handlers.Document.CreateDocument)
		documents.GET("", handlers.Document.ListDocuments)
		documents.GET("/:id", handlers.Document.GetDocument)
		documents.GET("/:id/xml", handlers.Document.GetDocumentXML)
		documents.POST("/:id/emit", handlers.Document.EmitDocument)
		documents.POST("/:id/cancel", handlers.Document.CancelDocument)
	}

	issuers := router.Group("/issuers")
	{
		issuers.POST("", handlers.Issuer.CreateIssuer)
		issuers.GET("", handlers.Issuer.ListIssuers)
		issuers.GET("/:id", handlers.Issuer.GetIssuer)
		issuers.PUT("/:id", handlers.Issuer.UpdateIssuer)
	}
}
