package issuer

import (
	"context"
)

// Repository defines the interface for issuer persistence operations.
// The sequence counter is never mutated through Update; only the document
// repository's allocation transaction may advance it.
type Repository interface {
	// Create creates a new issuer
	Create(ctx context.Context, issuer *Issuer) error

	// Get retrieves an issuer by ID
	Get(ctx context.Context, id string) (*Issuer, error)

	// Update updates an existing issuer's registration data
	Update(ctx context.Context, issuer *Issuer) error

	// List retrieves all issuers for the tenant
	List(ctx context.Context) ([]*Issuer, error)
}
