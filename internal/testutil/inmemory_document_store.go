package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/notaflow/notaflow/internal/domain/document"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
)

// InMemoryDocumentStore implements document.Repository for testing.
// AllocateAndAuthorize allocates through the issuer store under a single
// mutex, matching the all-or-nothing behavior of the real transaction.
type InMemoryDocumentStore struct {
	*InMemoryStore[*document.FiscalDocument]

	issuers *InMemoryIssuerStore
	mu      sync.Mutex
}

func NewInMemoryDocumentStore(issuers *InMemoryIssuerStore) *InMemoryDocumentStore {
	return &InMemoryDocumentStore{
		InMemoryStore: NewInMemoryStore[*document.FiscalDocument](),
		issuers:       issuers,
	}
}

func (s *InMemoryDocumentStore) Create(ctx context.Context, doc *document.FiscalDocument) error {
	if doc == nil {
		return ierr.NewError("document cannot be nil").
			Mark(ierr.ErrValidation)
	}

	if doc.TenantID == "" {
		doc.TenantID = types.GetTenantID(ctx)
	}

	if key := lo.FromPtr(doc.IdempotencyKey); key != "" {
		if _, err := s.GetByIdempotencyKey(ctx, key); err == nil {
			return ierr.NewError("document already exists").
				WithHintf("A document with idempotency key %s already exists", key).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	if err := s.InMemoryStore.Create(ctx, doc.ID, copyDocument(doc)); err != nil {
		return ierr.WithError(err).
			WithHintf("Document with ID %s already exists", doc.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *InMemoryDocumentStore) Get(ctx context.Context, id string) (*document.FiscalDocument, error) {
	doc, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(document.ErrDocumentNotFound).
			WithHintf("Document with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyDocument(doc), nil
}

func (s *InMemoryDocumentStore) Update(ctx context.Context, doc *document.FiscalDocument) error {
	if doc == nil {
		return ierr.NewError("document cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if err := s.InMemoryStore.Update(ctx, doc.ID, copyDocument(doc)); err != nil {
		return ierr.WithError(document.ErrDocumentNotFound).
			WithHintf("Document with ID %s was not found", doc.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryDocumentStore) List(ctx context.Context, filter *types.DocumentFilter) ([]*document.FiscalDocument, error) {
	if filter == nil {
		filter = types.NewDocumentFilter()
	}

	docs, err := s.InMemoryStore.List(ctx, filter, documentFilterFn, documentSortFn)
	if err != nil {
		return nil, err
	}

	start := filter.GetOffset()
	if start >= len(docs) {
		return []*document.FiscalDocument{}, nil
	}
	end := start + filter.GetLimit()
	if end > len(docs) {
		end = len(docs)
	}

	result := make([]*document.FiscalDocument, 0, end-start)
	for _, doc := range docs[start:end] {
		result = append(result, copyDocument(doc))
	}
	return result, nil
}

func (s *InMemoryDocumentStore) Count(ctx context.Context, filter *types.DocumentFilter) (int, error) {
	if filter == nil {
		filter = types.NewDocumentFilter()
	}
	return s.InMemoryStore.Count(ctx, filter, documentFilterFn)
}

func (s *InMemoryDocumentStore) GetByAccessKey(ctx context.Context, accessKey string) (*document.FiscalDocument, error) {
	docs, err := s.InMemoryStore.List(ctx, nil,
		func(_ context.Context, doc *document.FiscalDocument, _ interface{}) bool {
			return doc.TenantID == types.GetTenantID(ctx) &&
				lo.FromPtr(doc.AccessKey) == accessKey
		}, nil)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ierr.WithError(document.ErrDocumentNotFound).
			WithHintf("No document with access key %s", accessKey).
			Mark(ierr.ErrNotFound)
	}
	return copyDocument(docs[0]), nil
}

func (s *InMemoryDocumentStore) GetByIdempotencyKey(ctx context.Context, key string) (*document.FiscalDocument, error) {
	docs, err := s.InMemoryStore.List(ctx, nil,
		func(_ context.Context, doc *document.FiscalDocument, _ interface{}) bool {
			return doc.TenantID == types.GetTenantID(ctx) &&
				lo.FromPtr(doc.IdempotencyKey) == key
		}, nil)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ierr.WithError(document.ErrDocumentNotFound).
			WithHintf("No document with idempotency key %s", key).
			Mark(ierr.ErrNotFound)
	}
	return copyDocument(docs[0]), nil
}

func (s *InMemoryDocumentStore) SearchByXMLFragment(ctx context.Context, fragment string) (*document.FiscalDocument, error) {
	docs, err := s.InMemoryStore.List(ctx, nil,
		func(_ context.Context, doc *document.FiscalDocument, _ interface{}) bool {
			return doc.TenantID == types.GetTenantID(ctx) &&
				strings.Contains(lo.FromPtr(doc.SignedXML), fragment)
		}, nil)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ierr.WithError(document.ErrDocumentNotFound).
			WithHintf("No document XML contains %q", fragment).
			Mark(ierr.ErrNotFound)
	}
	return copyDocument(docs[0]), nil
}

func (s *InMemoryDocumentStore) AllocateAndAuthorize(ctx context.Context, docID string, issuerID string, artifacts *document.AuthorityArtifacts) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Get(ctx, docID)
	if err != nil {
		return 0, err
	}

	// Idempotent no-op: an authorized document keeps its allocated number
	// and the counter does not advance
	if doc.DocumentStatus == types.DocumentStatusAuthorized {
		return lo.FromPtr(doc.Number), nil
	}

	number, err := s.issuers.AllocateNumber(ctx, issuerID)
	if err != nil {
		return 0, err
	}

	doc.Number = lo.ToPtr(number)
	doc.DocumentStatus = types.DocumentStatusAuthorized
	if artifacts != nil {
		if artifacts.AccessKey != "" {
			doc.AccessKey = lo.ToPtr(artifacts.AccessKey)
		}
		if artifacts.Protocol != "" {
			doc.Protocol = lo.ToPtr(artifacts.Protocol)
		}
		if artifacts.RawResponse != "" {
			doc.AuthorityResponse = lo.ToPtr(artifacts.RawResponse)
		}
		doc.ReceivedAt = lo.ToPtr(artifacts.ReceivedAt)
	}

	if err := s.Update(ctx, doc); err != nil {
		return 0, err
	}
	return number, nil
}

func documentFilterFn(ctx context.Context, doc *document.FiscalDocument, filter interface{}) bool {
	f, ok := filter.(*types.DocumentFilter)
	if !ok {
		return true
	}

	if doc.TenantID != types.GetTenantID(ctx) {
		return false
	}
	if doc.Status != f.GetStatus() {
		return false
	}
	if len(f.DocumentIDs) > 0 && !lo.Contains(f.DocumentIDs, doc.ID) {
		return false
	}
	if f.IssuerID != "" && doc.IssuerID != f.IssuerID {
		return false
	}
	if f.CustomerID != "" && doc.CustomerID != f.CustomerID {
		return false
	}
	if len(f.DocumentStatus) > 0 && !lo.Contains(f.DocumentStatus, doc.DocumentStatus) {
		return false
	}
	if f.AccessKey != "" && lo.FromPtr(doc.AccessKey) != f.AccessKey {
		return false
	}
	return true
}

func documentSortFn(a, b *document.FiscalDocument) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

func copyDocument(doc *document.FiscalDocument) *document.FiscalDocument {
	clone := *doc
	return &clone
}
