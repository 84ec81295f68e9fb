package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	domainDocument "github.com/notaflow/notaflow/internal/domain/document"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/postgres"
	"github.com/notaflow/notaflow/internal/types"
)

type documentRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewDocumentRepository(client postgres.IClient, logger *logger.Logger) domainDocument.Repository {
	return &documentRepository{
		client: client,
		logger: logger,
	}
}

const documentColumns = `
	id, issuer_id, customer_id, service_id, number, series, document_status,
	access_key, protocol, service_amount, iss_amount, draft_xml, signed_xml,
	authority_response, cancellation_event_xml, idempotency_key,
	sent_at, received_at, cancelled_at,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

func (r *documentRepository) Create(ctx context.Context, doc *domainDocument.FiscalDocument) error {
	r.logger.Debugw("creating fiscal document",
		"id", doc.ID,
		"issuer_id", doc.IssuerID)

	query := `
		INSERT INTO fiscal_documents (` + documentColumns + `)
		VALUES (
			:id, :issuer_id, :customer_id, :service_id, :number, :series, :document_status,
			:access_key, :protocol, :service_amount, :iss_amount, :draft_xml, :signed_xml,
			:authority_response, :cancellation_event_xml, :idempotency_key,
			:sent_at, :received_at, :cancelled_at,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.client.Querier(ctx), query, doc); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A document with the same idempotency key already exists").
				WithReportableDetails(map[string]any{
					"document_id": doc.ID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Document creation failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id string) (*domainDocument.FiscalDocument, error) {
	var doc domainDocument.FiscalDocument
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents WHERE id = $1 AND tenant_id = $2`

	err := sqlx.GetContext(ctx, r.client.Querier(ctx), &doc, query, id, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(domainDocument.ErrDocumentNotFound).
				WithHintf("Document %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Document lookup failed").
			Mark(ierr.ErrDatabase)
	}
	return &doc, nil
}

func (r *documentRepository) Update(ctx context.Context, doc *domainDocument.FiscalDocument) error {
	query := `
		UPDATE fiscal_documents SET
			number = :number,
			series = :series,
			document_status = :document_status,
			access_key = :access_key,
			protocol = :protocol,
			service_amount = :service_amount,
			iss_amount = :iss_amount,
			draft_xml = :draft_xml,
			signed_xml = :signed_xml,
			authority_response = :authority_response,
			cancellation_event_xml = :cancellation_event_xml,
			sent_at = :sent_at,
			received_at = :received_at,
			cancelled_at = :cancelled_at,
			status = :status,
			updated_at = CURRENT_TIMESTAMP,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	result, err := sqlx.NamedExecContext(ctx, r.client.Querier(ctx), query, doc)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Document update failed").
			WithReportableDetails(map[string]any{
				"document_id": doc.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ierr.WithError(domainDocument.ErrDocumentNotFound).
			WithHintf("Document %s was not found", doc.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *documentRepository) List(ctx context.Context, filter *types.DocumentFilter) ([]*domainDocument.FiscalDocument, error) {
	query, args, err := r.buildListQuery(ctx, `SELECT `+documentColumns+` FROM fiscal_documents`, filter, true)
	if err != nil {
		return nil, err
	}

	docs := make([]*domainDocument.FiscalDocument, 0)
	if err := sqlx.SelectContext(ctx, r.client.Querier(ctx), &docs, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Document listing failed").
			Mark(ierr.ErrDatabase)
	}
	return docs, nil
}

func (r *documentRepository) Count(ctx context.Context, filter *types.DocumentFilter) (int, error) {
	query, args, err := r.buildListQuery(ctx, `SELECT COUNT(*) FROM fiscal_documents`, filter, false)
	if err != nil {
		return 0, err
	}

	var count int
	if err := sqlx.GetContext(ctx, r.client.Querier(ctx), &count, query, args...); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Document count failed").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *documentRepository) GetByAccessKey(ctx context.Context, accessKey string) (*domainDocument.FiscalDocument, error) {
	var doc domainDocument.FiscalDocument
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents WHERE access_key = $1 AND tenant_id = $2`

	err := sqlx.GetContext(ctx, r.client.Querier(ctx), &doc, query, accessKey, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(domainDocument.ErrDocumentNotFound).
				WithHint("No document matches the access key").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Document lookup by access key failed").
			Mark(ierr.ErrDatabase)
	}
	return &doc, nil
}

func (r *documentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domainDocument.FiscalDocument, error) {
	var doc domainDocument.FiscalDocument
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents WHERE idempotency_key = $1 AND tenant_id = $2`

	err := sqlx.GetContext(ctx, r.client.Querier(ctx), &doc, query, key, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(domainDocument.ErrDocumentNotFound).
				WithHint("No document matches the idempotency key").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Document lookup by idempotency key failed").
			Mark(ierr.ErrDatabase)
	}
	return &doc, nil
}

func (r *documentRepository) SearchByXMLFragment(ctx context.Context, fragment string) (*domainDocument.FiscalDocument, error) {
	var doc domainDocument.FiscalDocument
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents
		WHERE signed_xml LIKE '%' || $1 || '%' AND tenant_id = $2
		ORDER BY created_at DESC LIMIT 1`

	err := sqlx.GetContext(ctx, r.client.Querier(ctx), &doc, query, fragment, types.GetTenantID(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(domainDocument.ErrDocumentNotFound).
				WithHint("No document XML contains the fragment").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Document search failed").
			Mark(ierr.ErrDatabase)
	}
	return &doc, nil
}

// AllocateAndAuthorize is the only code path that advances an issuer's
// sequence counter. The whole operation runs in one transaction:
//
//  1. lock the document row; if it is already AUTHORIZED, return the number
//     allocated the first time (duplicate authorization callback)
//  2. atomically increment the issuer's counter; the row lock taken by
//     UPDATE ... RETURNING serializes concurrent allocations per issuer
//  3. stamp the number, status and authority artifacts onto the document
//
// A failure at any step rolls everything back, so a number is never
// allocated without the matching status change and vice versa.
func (r *documentRepository) AllocateAndAuthorize(ctx context.Context, docID string, issuerID string, artifacts *domainDocument.AuthorityArtifacts) (int64, error) {
	var number int64

	err := r.client.WithTx(ctx, func(ctx context.Context) error {
		q := r.client.Querier(ctx)

		var current struct {
			DocumentStatus types.DocumentStatus `db:"document_status"`
			Number         *int64               `db:"number"`
		}
		err := sqlx.GetContext(ctx, q, &current,
			`SELECT document_status, number FROM fiscal_documents WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
			docID, types.GetTenantID(ctx))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ierr.WithError(domainDocument.ErrDocumentNotFound).
					WithHintf("Document %s was not found", docID).
					Mark(ierr.ErrNotFound)
			}
			return ierr.WithError(err).
				WithHint("Document lookup failed").
				Mark(ierr.ErrDatabase)
		}

		if current.DocumentStatus == types.DocumentStatusAuthorized {
			if current.Number == nil {
				return ierr.NewError("authorized document has no number").
					WithHint("Document record is inconsistent").
					Mark(ierr.ErrDatabase)
			}
			number = *current.Number
			return nil
		}

		if !current.DocumentStatus.CanTransitionTo(types.DocumentStatusAuthorized) {
			return ierr.WithError(domainDocument.ErrInvalidStatusTransition).
				WithHintf("Document in status %s cannot be authorized", current.DocumentStatus).
				Mark(ierr.ErrInvalidOperation)
		}

		err = sqlx.GetContext(ctx, q, &number,
			`UPDATE issuers SET next_number = next_number + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE id = $1 AND tenant_id = $2
			 RETURNING next_number`,
			issuerID, types.GetTenantID(ctx))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ierr.NewErrorf("issuer %s not found", issuerID).
					WithHint("The document references an unknown issuer").
					Mark(ierr.ErrNotFound)
			}
			return ierr.WithError(err).
				WithHint("Sequence number allocation failed").
				Mark(ierr.ErrDatabase)
		}

		_, err = q.ExecContext(ctx,
			`UPDATE fiscal_documents SET
				number = $2,
				document_status = $3,
				access_key = NULLIF($4, ''),
				protocol = NULLIF($5, ''),
				signed_xml = $6,
				authority_response = $7,
				received_at = $8,
				updated_at = CURRENT_TIMESTAMP
			 WHERE id = $1`,
			docID, number, types.DocumentStatusAuthorized,
			artifacts.AccessKey, artifacts.Protocol,
			artifacts.SignedXML, artifacts.RawResponse, artifacts.ReceivedAt)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to stamp the allocated number onto the document").
				Mark(ierr.ErrDatabase)
		}

		r.logger.Infow("allocated document number",
			"document_id", docID,
			"issuer_id", issuerID,
			"number", number)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (r *documentRepository) buildListQuery(ctx context.Context, base string, filter *types.DocumentFilter, paginate bool) (string, []interface{}, error) {
	if filter == nil {
		filter = types.NewDocumentFilter()
	}

	conditions := []string{"tenant_id = ?", "status = ?"}
	args := []interface{}{types.GetTenantID(ctx), filter.GetStatus()}

	if len(filter.DocumentIDs) > 0 {
		conditions = append(conditions, "id IN (?)")
		args = append(args, filter.DocumentIDs)
	}
	if filter.IssuerID != "" {
		conditions = append(conditions, "issuer_id = ?")
		args = append(args, filter.IssuerID)
	}
	if filter.CustomerID != "" {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if len(filter.DocumentStatus) > 0 {
		conditions = append(conditions, "document_status IN (?)")
		args = append(args, filter.DocumentStatus)
	}
	if filter.AccessKey != "" {
		conditions = append(conditions, "access_key = ?")
		args = append(args, filter.AccessKey)
	}

	query := base + " WHERE " + strings.Join(conditions, " AND ")
	if paginate {
		query += fmt.Sprintf(" ORDER BY created_at %s LIMIT %d OFFSET %d",
			safeOrder(filter.GetOrder()), filter.GetLimit(), filter.GetOffset())
	}

	query, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation)
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), expanded, nil
}

func safeOrder(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
