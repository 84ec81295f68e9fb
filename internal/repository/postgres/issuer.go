package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	domainIssuer "github.com/notaflow/notaflow/internal/domain/issuer"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/postgres"
	"github.com/notaflow/notaflow/internal/types"
)

type issuerRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewIssuerRepository(client postgres.IClient, logger *logger.Logger) domainIssuer.Repository {
	return &issuerRepository{
		client: client,
		logger: logger,
	}
}

const issuerColumns = `
	id, name, cnpj, municipal_registration, series, next_number,
	certificate_id, environment,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *issuerRepository) Create(ctx context.Context, iss *domainIssuer.Issuer) error {
	query := `
		INSERT INTO issuers (` + issuerColumns + `)
		VALUES (
			:id, :name, :cnpj, :municipal_registration, :series, :next_number,
			:certificate_id, :environment,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.client.Querier(ctx), query, iss); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("An issuer with the same CNPJ already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Issuer creation failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *issuerRepository) Get(ctx context.Context, id string) (*domainIssuer.Issuer, error) {
	var iss domainIssuer.Issuer
	query := `SELECT ` + issuerColumns + ` FROM issuers WHERE id = $1 AND tenant_id = $2`

	err := sqlx.GetContext(ctx, r.client.Querier(ctx), &iss, query, id, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewErrorf("issuer %s not found", id).
				WithHint("The issuer does not exist").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Issuer lookup failed").
			Mark(ierr.ErrDatabase)
	}
	return &iss, nil
}

// Update writes the issuer's registration data. The sequence counter is
// deliberately not part of the statement; only the allocation transaction
// may touch it.
func (r *issuerRepository) Update(ctx context.Context, iss *domainIssuer.Issuer) error {
	query := `
		UPDATE issuers SET
			name = :name,
			cnpj = :cnpj,
			municipal_registration = :municipal_registration,
			series = :series,
			certificate_id = :certificate_id,
			environment = :environment,
			status = :status,
			updated_at = CURRENT_TIMESTAMP,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	result, err := sqlx.NamedExecContext(ctx, r.client.Querier(ctx), query, iss)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Issuer update failed").
			Mark(ierr.ErrDatabase)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ierr.NewErrorf("issuer %s not found", iss.ID).
			WithHint("The issuer does not exist").
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *issuerRepository) List(ctx context.Context) ([]*domainIssuer.Issuer, error) {
	issuers := make([]*domainIssuer.Issuer, 0)
	query := `SELECT ` + issuerColumns + ` FROM issuers WHERE tenant_id = $1 AND status = $2 ORDER BY created_at DESC`

	err := sqlx.SelectContext(ctx, r.client.Querier(ctx), &issuers, query,
		types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Issuer listing failed").
			Mark(ierr.ErrDatabase)
	}
	return issuers, nil
}
