package types

import (
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/samber/lo"
)

// QueryFilter represents a generic query filter with optional fields
type QueryFilter struct {
	Limit  *int    `json:"limit,omitempty" form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset *int    `json:"offset,omitempty" form:"offset" validate:"omitempty,min=0"`
	Status *Status `json:"status,omitempty" form:"status"`
	Order  *string `json:"order,omitempty" form:"order" validate:"omitempty,oneof=asc desc"`
}

// NewDefaultQueryFilter defines default values for query filters
func NewDefaultQueryFilter() *QueryFilter {
	return &QueryFilter{
		Limit:  lo.ToPtr(50),
		Offset: lo.ToPtr(0),
		Status: lo.ToPtr(StatusPublished),
		Order:  lo.ToPtr("desc"),
	}
}

// GetLimit returns the limit value or default if not set
func (f QueryFilter) GetLimit() int {
	if f.Limit == nil {
		return *NewDefaultQueryFilter().Limit
	}
	return *f.Limit
}

// GetOffset returns the offset value or default if not set
func (f QueryFilter) GetOffset() int {
	if f.Offset == nil {
		return *NewDefaultQueryFilter().Offset
	}
	return *f.Offset
}

// GetOrder returns the order value or default if not set
func (f QueryFilter) GetOrder() string {
	if f.Order == nil {
		return *NewDefaultQueryFilter().Order
	}
	return *f.Order
}

// GetStatus returns the status value or default if not set
func (f QueryFilter) GetStatus() Status {
	if f.Status == nil {
		return *NewDefaultQueryFilter().Status
	}
	return *f.Status
}

// DocumentFilter filters fiscal document listings
type DocumentFilter struct {
	*QueryFilter

	// document_ids restricts results to documents with the specified IDs
	DocumentIDs []string `json:"document_ids,omitempty" form:"document_ids"`

	// issuer_id filters documents emitted by a specific issuer
	IssuerID string `json:"issuer_id,omitempty" form:"issuer_id"`

	// customer_id filters documents for a specific customer
	CustomerID string `json:"customer_id,omitempty" form:"customer_id"`

	// document_status filters by lifecycle state; multiple states may be given
	DocumentStatus []DocumentStatus `json:"document_status,omitempty" form:"document_status"`

	// access_key filters by the document's access key
	AccessKey string `json:"access_key,omitempty" form:"access_key"`
}

// NewDocumentFilter creates a new document filter with default options
func NewDocumentFilter() *DocumentFilter {
	return &DocumentFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

func (f *DocumentFilter) Validate() error {
	if f.QueryFilter == nil {
		f.QueryFilter = NewDefaultQueryFilter()
	}
	for _, s := range f.DocumentStatus {
		if err := s.Validate(); err != nil {
			return ierr.WithError(err).
				WithHint("invalid document status in filter").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
