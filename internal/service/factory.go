package service

import (
	"github.com/notaflow/notaflow/internal/authority"
	"github.com/notaflow/notaflow/internal/cache"
	"github.com/notaflow/notaflow/internal/config"
	"github.com/notaflow/notaflow/internal/domain/document"
	"github.com/notaflow/notaflow/internal/domain/issuer"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/postgres"
	"github.com/notaflow/notaflow/internal/signer"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	DocumentRepo document.Repository
	IssuerRepo   issuer.Repository

	// Collaborators
	Signer          signer.Signer
	AuthorityClient authority.Client
	Cache           cache.Cache
}

// NewServiceParams assembles the common service dependencies for fx
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	documentRepo document.Repository,
	issuerRepo issuer.Repository,
	sgn signer.Signer,
	authorityClient authority.Client,
	c cache.Cache,
) ServiceParams {
	return ServiceParams{
		Logger:          logger,
		Config:          config,
		DB:              db,
		DocumentRepo:    documentRepo,
		IssuerRepo:      issuerRepo,
		Signer:          sgn,
		AuthorityClient: authorityClient,
		Cache:           c,
	}
}
