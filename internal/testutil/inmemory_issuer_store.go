package testutil

import (
	"context"
	"sync"

	"github.com/notaflow/notaflow/internal/domain/issuer"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/types"
)

// InMemoryIssuerStore implements issuer.Repository for testing. The
// sequence counter is advanced only through AllocateNumber, mirroring the
// production rule that Update never touches it.
type InMemoryIssuerStore struct {
	*InMemoryStore[*issuer.Issuer]

	// allocMu serializes number allocation the way the row lock does in
	// postgres
	allocMu sync.Mutex
}

func NewInMemoryIssuerStore() *InMemoryIssuerStore {
	return &InMemoryIssuerStore{
		InMemoryStore: NewInMemoryStore[*issuer.Issuer](),
	}
}

func (s *InMemoryIssuerStore) Create(ctx context.Context, iss *issuer.Issuer) error {
	if iss == nil {
		return ierr.NewError("issuer cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if err := s.InMemoryStore.Create(ctx, iss.ID, iss); err != nil {
		return ierr.WithError(err).
			WithHintf("Issuer with ID %s already exists", iss.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryIssuerStore) Get(ctx context.Context, id string) (*issuer.Issuer, error) {
	iss, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Issuer with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return iss, nil
}

func (s *InMemoryIssuerStore) Update(ctx context.Context, iss *issuer.Issuer) error {
	if iss == nil {
		return ierr.NewError("issuer cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Update never moves the counter
	current, err := s.Get(ctx, iss.ID)
	if err != nil {
		return err
	}
	iss.NextNumber = current.NextNumber

	return s.InMemoryStore.Update(ctx, iss.ID, iss)
}

func (s *InMemoryIssuerStore) List(ctx context.Context) ([]*issuer.Issuer, error) {
	return s.InMemoryStore.List(ctx, nil,
		func(_ context.Context, iss *issuer.Issuer, _ interface{}) bool {
			return iss.TenantID == types.GetTenantID(ctx) && iss.Status == types.StatusPublished
		},
		func(a, b *issuer.Issuer) bool {
			return a.CreatedAt.After(b.CreatedAt)
		})
}

// AllocateNumber atomically advances and returns the issuer's next document
// number.
func (s *InMemoryIssuerStore) AllocateNumber(ctx context.Context, id string) (int64, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	iss, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	iss.NextNumber++
	if err := s.InMemoryStore.Update(ctx, id, iss); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to advance issuer sequence").
			Mark(ierr.ErrDatabase)
	}
	return iss.NextNumber, nil
}
