package document

import (
	"time"

	"github.com/notaflow/notaflow/internal/types"
	"github.com/shopspring/decimal"
)

// FiscalDocument represents one service-invoice attempt (a DPS and, once
// authorized, its NFSe). The document owns its status and authority
// artifacts; the sequence number is assigned by the issuer's allocation
// transaction, never by the document itself.
type FiscalDocument struct {
	ID         string `db:"id" json:"id"`
	IssuerID   string `db:"issuer_id" json:"issuer_id"`
	CustomerID string `db:"customer_id" json:"customer_id"`
	ServiceID  string `db:"service_id" json:"service_id"`

	// Number is the issuer-scoped legal sequence number, assigned only on
	// confirmed authorization
	Number *int64 `db:"number" json:"number,omitempty"`
	Series string `db:"series" json:"series"`

	DocumentStatus types.DocumentStatus `db:"document_status" json:"document_status"`

	// AccessKey uniquely addresses the authorized document at the authority
	AccessKey *string `db:"access_key" json:"access_key,omitempty"`
	// Protocol is the authority's receipt id for the authorization
	Protocol *string `db:"protocol" json:"protocol,omitempty"`

	ServiceAmount decimal.Decimal `db:"service_amount" json:"service_amount"`
	ISSAmount     decimal.Decimal `db:"iss_amount" json:"iss_amount"`

	// DraftXML is the DPS payload provided at creation, before signing
	DraftXML string `db:"draft_xml" json:"draft_xml,omitempty"`
	// SignedXML is the signed DPS, populated by the signing step
	SignedXML *string `db:"signed_xml" json:"signed_xml,omitempty"`
	// AuthorityResponse is the raw response body of the authorization call
	AuthorityResponse *string `db:"authority_response" json:"authority_response,omitempty"`
	// CancellationEventXML is the compressed+encoded cancellation event,
	// populated only on confirmed or idempotent cancellation
	CancellationEventXML *string `db:"cancellation_event_xml" json:"cancellation_event_xml,omitempty"`

	IdempotencyKey *string `db:"idempotency_key" json:"idempotency_key,omitempty"`

	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ReceivedAt  *time.Time `db:"received_at" json:"received_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	types.BaseModel
}

// AuthorityArtifacts are the artifacts persisted atomically with the
// allocated number when the authority confirms authorization.
type AuthorityArtifacts struct {
	Protocol    string
	AccessKey   string
	SignedXML   string
	RawResponse string
	ReceivedAt  time.Time
}

// CancellationDetails are stamped onto the document when a cancellation is
// confirmed by the authority, or reconciled idempotently.
type CancellationDetails struct {
	EventXML    string
	CancelledAt time.Time
}

func (d *FiscalDocument) Validate() error {
	if d.IssuerID == "" {
		return NewValidationError("issuer_id", "is required")
	}
	if d.CustomerID == "" {
		return NewValidationError("customer_id", "is required")
	}
	if d.ServiceAmount.IsNegative() {
		return NewValidationError("service_amount", "must be non negative")
	}
	if d.ISSAmount.IsNegative() {
		return NewValidationError("iss_amount", "must be non negative")
	}
	if d.ISSAmount.GreaterThan(d.ServiceAmount) {
		return NewValidationError("iss_amount", "must be less than or equal to service_amount")
	}
	if err := d.DocumentStatus.Validate(); err != nil {
		return err
	}
	return nil
}

// IsAuthorized reports whether the document has been authorized, which is
// the only state a cancellation may depart from.
func (d *FiscalDocument) IsAuthorized() bool {
	return d.DocumentStatus == types.DocumentStatusAuthorized
}

// IsCancelled reports whether the document already reached CANCELLED.
func (d *FiscalDocument) IsCancelled() bool {
	return d.DocumentStatus == types.DocumentStatusCancelled
}
