package repository

import (
	"github.com/notaflow/notaflow/internal/domain/document"
	"github.com/notaflow/notaflow/internal/domain/issuer"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/postgres"
	postgresRepo "github.com/notaflow/notaflow/internal/repository/postgres"
)

func NewDocumentRepository(client postgres.IClient, logger *logger.Logger) document.Repository {
	return postgresRepo.NewDocumentRepository(client, logger)
}

func NewIssuerRepository(client postgres.IClient, logger *logger.Logger) issuer.Repository {
	return postgresRepo.NewIssuerRepository(client, logger)
}
