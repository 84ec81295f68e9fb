package dto

import (
	"context"
	"time"

	"github.com/notaflow/notaflow/internal/domain/issuer"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/notaflow/notaflow/internal/validator"
)

// CreateIssuerRequest registers a tax-paying entity that emits documents.
type CreateIssuerRequest struct {
	Name                  string            `json:"name" validate:"required"`
	CNPJ                  string            `json:"cnpj" validate:"required,numeric,len=14"`
	MunicipalRegistration string            `json:"municipal_registration"`
	Series                string            `json:"series" validate:"required"`
	CertificateID         string            `json:"certificate_id" validate:"required"`
	Environment           types.Environment `json:"environment" validate:"required"`
	// NextNumber seeds the sequence counter for issuers migrating from
	// another system; zero starts a fresh sequence
	NextNumber int64 `json:"next_number" validate:"omitempty,min=0"`
}

func (r *CreateIssuerRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Environment.Validate()
}

func (r *CreateIssuerRequest) ToIssuer(ctx context.Context) *issuer.Issuer {
	return &issuer.Issuer{
		ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ISSUER),
		Name:                  r.Name,
		CNPJ:                  r.CNPJ,
		MunicipalRegistration: r.MunicipalRegistration,
		Series:                r.Series,
		NextNumber:            r.NextNumber,
		CertificateID:         r.CertificateID,
		Environment:           r.Environment,
		BaseModel:             types.GetDefaultBaseModel(ctx),
	}
}

// UpdateIssuerRequest updates an issuer's registration data. The sequence
// counter is not updatable through the API.
type UpdateIssuerRequest struct {
	Name                  *string            `json:"name,omitempty"`
	MunicipalRegistration *string            `json:"municipal_registration,omitempty"`
	CertificateID         *string            `json:"certificate_id,omitempty"`
	Environment           *types.Environment `json:"environment,omitempty"`
}

func (r *UpdateIssuerRequest) Validate() error {
	if r.Environment != nil {
		return r.Environment.Validate()
	}
	return nil
}

// IssuerResponse is the API representation of an issuer.
type IssuerResponse struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	CNPJ                  string            `json:"cnpj"`
	MunicipalRegistration string            `json:"municipal_registration,omitempty"`
	Series                string            `json:"series"`
	NextNumber            int64             `json:"next_number"`
	CertificateID         string            `json:"certificate_id"`
	Environment           types.Environment `json:"environment"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// NewIssuerResponse converts the domain model to its API representation
func NewIssuerResponse(iss *issuer.Issuer) *IssuerResponse {
	if iss == nil {
		return nil
	}
	return &IssuerResponse{
		ID:                    iss.ID,
		Name:                  iss.Name,
		CNPJ:                  iss.CNPJ,
		MunicipalRegistration: iss.MunicipalRegistration,
		Series:                iss.Series,
		NextNumber:            iss.NextNumber,
		CertificateID:         iss.CertificateID,
		Environment:           iss.Environment,
		CreatedAt:             iss.CreatedAt,
		UpdatedAt:             iss.UpdatedAt,
	}
}

// ListIssuersResponse is the issuer listing payload.
type ListIssuersResponse struct {
	Items []*IssuerResponse `json:"items"`
	Total int               `json:"total"`
}
