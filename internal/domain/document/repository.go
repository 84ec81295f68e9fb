package document

import (
	"context"

	"github.com/notaflow/notaflow/internal/types"
)

// Repository defines the interface for fiscal document persistence operations
type Repository interface {
	// Create creates a new fiscal document
	Create(ctx context.Context, doc *FiscalDocument) error

	// Get retrieves a fiscal document by ID
	Get(ctx context.Context, id string) (*FiscalDocument, error)

	// Update updates an existing fiscal document
	Update(ctx context.Context, doc *FiscalDocument) error

	// List retrieves fiscal documents based on filter criteria
	List(ctx context.Context, filter *types.DocumentFilter) ([]*FiscalDocument, error)

	// Count returns the total count of fiscal documents based on filter criteria
	Count(ctx context.Context, filter *types.DocumentFilter) (int, error)

	// GetByAccessKey retrieves a fiscal document by its access key
	GetByAccessKey(ctx context.Context, accessKey string) (*FiscalDocument, error)

	// GetByIdempotencyKey retrieves a fiscal document by its idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*FiscalDocument, error)

	// SearchByXMLFragment retrieves the document whose stored signed XML
	// contains the given fragment. Secondary lookup path used when the
	// access key column was never populated on an older record.
	SearchByXMLFragment(ctx context.Context, fragment string) (*FiscalDocument, error)

	// AllocateAndAuthorize atomically allocates the issuer's next document
	// number and stamps it, status=AUTHORIZED and the authority artifacts
	// onto the document, all-or-nothing. Calling it for a document that is
	// already AUTHORIZED is a no-op that returns the previously allocated
	// number without advancing the counter.
	AllocateAndAuthorize(ctx context.Context, docID string, issuerID string, artifacts *AuthorityArtifacts) (int64, error)
}
