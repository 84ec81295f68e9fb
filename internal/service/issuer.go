package service

import (
	"context"

	"github.com/notaflow/notaflow/internal/api/dto"
	"github.com/notaflow/notaflow/internal/cache"
	"github.com/notaflow/notaflow/internal/domain/issuer"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
)

// IssuerService manages issuer registrations. The sequence counter is never
// writable through this service; it only moves inside the allocation
// transaction that authorizes a document.
type IssuerService interface {
	CreateIssuer(ctx context.Context, req dto.CreateIssuerRequest) (*dto.IssuerResponse, error)
	GetIssuer(ctx context.Context, id string) (*dto.IssuerResponse, error)
	ListIssuers(ctx context.Context) (*dto.ListIssuersResponse, error)
	UpdateIssuer(ctx context.Context, id string, req dto.UpdateIssuerRequest) (*dto.IssuerResponse, error)
}

type issuerService struct {
	ServiceParams
}

func NewIssuerService(params ServiceParams) IssuerService {
	return &issuerService{ServiceParams: params}
}

func (s *issuerService) CreateIssuer(ctx context.Context, req dto.CreateIssuerRequest) (*dto.IssuerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	iss := req.ToIssuer(ctx)
	if err := iss.Validate(); err != nil {
		return nil, err
	}

	if err := s.IssuerRepo.Create(ctx, iss); err != nil {
		return nil, err
	}

	s.Logger.Infow("created issuer",
		"issuer_id", iss.ID,
		"cnpj", iss.CNPJ,
		"series", iss.Series)
	return dto.NewIssuerResponse(iss), nil
}

func (s *issuerService) GetIssuer(ctx context.Context, id string) (*dto.IssuerResponse, error) {
	iss, err := s.IssuerRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewIssuerResponse(iss), nil
}

func (s *issuerService) ListIssuers(ctx context.Context) (*dto.ListIssuersResponse, error) {
	issuers, err := s.IssuerRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.ListIssuersResponse{
		Items: lo.Map(issuers, func(iss *issuer.Issuer, _ int) *dto.IssuerResponse {
			return dto.NewIssuerResponse(iss)
		}),
		Total: len(issuers),
	}, nil
}

func (s *issuerService) UpdateIssuer(ctx context.Context, id string, req dto.UpdateIssuerRequest) (*dto.IssuerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	iss, err := s.IssuerRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		iss.Name = *req.Name
	}
	if req.MunicipalRegistration != nil {
		iss.MunicipalRegistration = *req.MunicipalRegistration
	}
	if req.CertificateID != nil {
		iss.CertificateID = *req.CertificateID
	}
	if req.Environment != nil {
		iss.Environment = *req.Environment
	}
	iss.UpdatedBy = types.GetUserID(ctx)

	if err := iss.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid issuer update").
			Mark(ierr.ErrValidation)
	}

	if err := s.IssuerRepo.Update(ctx, iss); err != nil {
		return nil, err
	}

	// Cached copies are stale after an update
	s.invalidateCache(ctx, id)

	return dto.NewIssuerResponse(iss), nil
}

func (s *issuerService) invalidateCache(ctx context.Context, id string) {
	if s.Cache == nil {
		return
	}
	key := cache.GenerateKey(cache.PrefixIssuer, types.GetTenantID(ctx), id)
	s.Cache.Delete(ctx, key)
}
