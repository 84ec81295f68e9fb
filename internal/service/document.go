package service

import (
	"context"

	"github.com/notaflow/notaflow/internal/api/dto"
	"github.com/notaflow/notaflow/internal/cache"
	"github.com/notaflow/notaflow/internal/domain/document"
	"github.com/notaflow/notaflow/internal/domain/issuer"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/idempotency"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
)

// DocumentService manages draft fiscal documents and read-only surfaces.
type DocumentService interface {
	CreateDocument(ctx context.Context, req dto.CreateDocumentRequest) (*dto.DocumentResponse, error)
	GetDocument(ctx context.Context, id string) (*dto.DocumentResponse, error)
	ListDocuments(ctx context.Context, filter *types.DocumentFilter) (*dto.ListDocumentsResponse, error)
	GetDocumentXML(ctx context.Context, id string) (*dto.DocumentXMLResponse, error)
}

type documentService struct {
	ServiceParams
	idempGen *idempotency.Generator
}

func NewDocumentService(params ServiceParams) DocumentService {
	return &documentService{
		ServiceParams: params,
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *documentService) CreateDocument(ctx context.Context, req dto.CreateDocumentRequest) (*dto.DocumentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	iss, err := s.getIssuer(ctx, req.IssuerID)
	if err != nil {
		return nil, err
	}

	idempKey := lo.FromPtr(req.IdempotencyKey)
	if idempKey == "" {
		idempKey = s.idempGen.GenerateKey(idempotency.ScopeDocument, map[string]interface{}{
			"tenant_id":   types.GetTenantID(ctx),
			"issuer_id":   req.IssuerID,
			"customer_id": req.CustomerID,
			"service_id":  req.ServiceID,
			"dps_xml":     req.DPSXML,
		})
	}

	// Duplicate submission returns the existing draft instead of erroring
	if existing, err := s.DocumentRepo.GetByIdempotencyKey(ctx, idempKey); err == nil {
		s.Logger.Infow("returning existing document for idempotency key",
			"document_id", existing.ID,
			"idempotency_key", idempKey)
		return dto.NewDocumentResponse(existing), nil
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	doc := req.ToDocument(ctx, iss.Series)
	doc.IdempotencyKey = lo.ToPtr(idempKey)
	if err := doc.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid document payload").
			Mark(ierr.ErrValidation)
	}

	if err := s.DocumentRepo.Create(ctx, doc); err != nil {
		// A concurrent duplicate can win the race between the lookup above and
		// this insert; the unique index rejects the loser, so re-read the
		// winner's draft instead of surfacing a conflict.
		if ierr.IsAlreadyExists(err) {
			existing, getErr := s.DocumentRepo.GetByIdempotencyKey(ctx, idempKey)
			if getErr != nil {
				return nil, err
			}
			s.Logger.Infow("returning existing document for idempotency key",
				"document_id", existing.ID,
				"idempotency_key", idempKey)
			return dto.NewDocumentResponse(existing), nil
		}
		return nil, err
	}

	s.Logger.Infow("created draft document",
		"document_id", doc.ID,
		"issuer_id", doc.IssuerID)
	return dto.NewDocumentResponse(doc), nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*dto.DocumentResponse, error) {
	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewDocumentResponse(doc), nil
}

func (s *documentService) ListDocuments(ctx context.Context, filter *types.DocumentFilter) (*dto.ListDocumentsResponse, error) {
	if filter == nil {
		filter = types.NewDocumentFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	docs, err := s.DocumentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.DocumentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListDocumentsResponse{
		Items: lo.Map(docs, func(doc *document.FiscalDocument, _ int) *dto.DocumentResponse {
			return dto.NewDocumentResponse(doc)
		}),
		Total: total,
	}, nil
}

func (s *documentService) GetDocumentXML(ctx context.Context, id string) (*dto.DocumentXMLResponse, error) {
	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.DocumentXMLResponse{
		ID:                   doc.ID,
		SignedXML:            doc.SignedXML,
		AuthorityResponse:    doc.AuthorityResponse,
		CancellationEventXML: doc.CancellationEventXML,
	}, nil
}

// getIssuer resolves an issuer through the cache; issuer records are
// read-mostly and safe to cache for the default expiration.
func (s *documentService) getIssuer(ctx context.Context, id string) (*issuer.Issuer, error) {
	return getIssuerCached(ctx, s.ServiceParams, id)
}

func getIssuerCached(ctx context.Context, params ServiceParams, id string) (*issuer.Issuer, error) {
	key := cache.GenerateKey(cache.PrefixIssuer, types.GetTenantID(ctx), id)
	if params.Cache != nil {
		if cached, ok := params.Cache.Get(ctx, key); ok {
			if iss, ok := cached.(*issuer.Issuer); ok {
				return iss, nil
			}
		}
	}

	iss, err := params.IssuerRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if params.Cache != nil {
		params.Cache.Set(ctx, key, iss, cache.DefaultExpiration)
	}
	return iss, nil
}
