package dto

import (
	"context"
	"strings"
	"time"

	"github.com/notaflow/notaflow/internal/domain/document"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/notaflow/notaflow/internal/validator"
	"github.com/shopspring/decimal"
)

// MinJustificationLength is the authority's minimum length for the free-text
// cancellation justification.
const MinJustificationLength = 15

// CreateDocumentRequest creates a draft fiscal document ready for emission.
type CreateDocumentRequest struct {
	IssuerID      string          `json:"issuer_id" validate:"required"`
	CustomerID    string          `json:"customer_id" validate:"required"`
	ServiceID     string          `json:"service_id"`
	ServiceAmount decimal.Decimal `json:"service_amount"`
	ISSAmount     decimal.Decimal `json:"iss_amount"`
	// DPSXML is the declaration payload to be signed and transmitted
	DPSXML string `json:"dps_xml" validate:"required"`
	// IdempotencyKey dedupes draft creation; generated when absent
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

func (r *CreateDocumentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !strings.HasPrefix(strings.TrimSpace(r.DPSXML), "<") {
		return ierr.NewError("dps_xml is not an XML document").
			WithHint("The DPS payload must be well-formed XML").
			WithReportableDetails(map[string]any{
				"field": "dps_xml",
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToDocument builds the draft domain model from the request.
func (r *CreateDocumentRequest) ToDocument(ctx context.Context, series string) *document.FiscalDocument {
	return &document.FiscalDocument{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DOCUMENT),
		IssuerID:       r.IssuerID,
		CustomerID:     r.CustomerID,
		ServiceID:      r.ServiceID,
		Series:         series,
		DocumentStatus: types.DocumentStatusDraft,
		ServiceAmount:  r.ServiceAmount,
		ISSAmount:      r.ISSAmount,
		DraftXML:       r.DPSXML,
		IdempotencyKey: r.IdempotencyKey,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

// CancelDocumentRequest asks the authority to void an authorized document.
type CancelDocumentRequest struct {
	ReasonCode    types.CancellationReason `json:"reason_code" validate:"required"`
	Justification string                   `json:"justification" validate:"required,min=15"`
}

func (r *CancelDocumentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.ReasonCode.Validate()
}

// DocumentResponse is the API representation of a fiscal document.
type DocumentResponse struct {
	ID             string               `json:"id"`
	IssuerID       string               `json:"issuer_id"`
	CustomerID     string               `json:"customer_id"`
	ServiceID      string               `json:"service_id,omitempty"`
	Number         *int64               `json:"number,omitempty"`
	Series         string               `json:"series"`
	DocumentStatus types.DocumentStatus `json:"document_status"`
	AccessKey      *string              `json:"access_key,omitempty"`
	Protocol       *string              `json:"protocol,omitempty"`
	ServiceAmount  decimal.Decimal      `json:"service_amount"`
	ISSAmount      decimal.Decimal      `json:"iss_amount"`
	SentAt         *time.Time           `json:"sent_at,omitempty"`
	ReceivedAt     *time.Time           `json:"received_at,omitempty"`
	CancelledAt    *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewDocumentResponse converts the domain model to its API representation
func NewDocumentResponse(doc *document.FiscalDocument) *DocumentResponse {
	if doc == nil {
		return nil
	}
	return &DocumentResponse{
		ID:             doc.ID,
		IssuerID:       doc.IssuerID,
		CustomerID:     doc.CustomerID,
		ServiceID:      doc.ServiceID,
		Number:         doc.Number,
		Series:         doc.Series,
		DocumentStatus: doc.DocumentStatus,
		AccessKey:      doc.AccessKey,
		Protocol:       doc.Protocol,
		ServiceAmount:  doc.ServiceAmount,
		ISSAmount:      doc.ISSAmount,
		SentAt:         doc.SentAt,
		ReceivedAt:     doc.ReceivedAt,
		CancelledAt:    doc.CancelledAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

// CancelDocumentResponse reports the result of a cancellation request.
// AlreadyCancelled flags that the authority (or the local record) had the
// cancellation registered before this request; the operation is still a
// success.
type CancelDocumentResponse struct {
	*DocumentResponse
	AlreadyCancelled bool `json:"already_cancelled"`
}

// ListDocumentsResponse is a paginated document listing.
type ListDocumentsResponse struct {
	Items []*DocumentResponse `json:"items"`
	Total int                 `json:"total"`
}

// DocumentXMLResponse returns the persisted XML artifacts of a document.
type DocumentXMLResponse struct {
	ID                   string  `json:"id"`
	SignedXML            *string `json:"signed_xml,omitempty"`
	AuthorityResponse    *string `json:"authority_response,omitempty"`
	CancellationEventXML *string `json:"cancellation_event_xml,omitempty"`
}
