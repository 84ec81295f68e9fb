package testutil

import (
	"context"
	"sync"

	"github.com/notaflow/notaflow/internal/authority"
	ierr "github.com/notaflow/notaflow/internal/errors"
)

var _ authority.Client = (*MockAuthorityClient)(nil)

// MockAuthorityClient is a scriptable authority client for testing. Set the
// outcome or error fields, or a function hook for per-call behavior; the
// mock records every request it receives.
type MockAuthorityClient struct {
	mu sync.Mutex

	EmitOutcome *authority.Outcome
	EmitErr     error
	EmitFn      func(ctx context.Context, req *authority.EmissionRequest) (*authority.Outcome, error)

	CancelOutcome *authority.Outcome
	CancelErr     error
	CancelFn      func(ctx context.Context, req *authority.CancellationRequest) (*authority.Outcome, error)

	EmitRequests   []*authority.EmissionRequest
	CancelRequests []*authority.CancellationRequest
}

func NewMockAuthorityClient() *MockAuthorityClient {
	return &MockAuthorityClient{}
}

func (m *MockAuthorityClient) Emit(ctx context.Context, req *authority.EmissionRequest) (*authority.Outcome, error) {
	m.mu.Lock()
	m.EmitRequests = append(m.EmitRequests, req)
	m.mu.Unlock()

	if m.EmitFn != nil {
		return m.EmitFn(ctx, req)
	}
	if m.EmitErr != nil {
		return nil, m.EmitErr
	}
	if m.EmitOutcome != nil {
		return m.EmitOutcome, nil
	}
	return nil, ierr.NewError("mock authority client has no emit script").
		Mark(ierr.ErrSystem)
}

func (m *MockAuthorityClient) Cancel(ctx context.Context, req *authority.CancellationRequest) (*authority.Outcome, error) {
	m.mu.Lock()
	m.CancelRequests = append(m.CancelRequests, req)
	m.mu.Unlock()

	if m.CancelFn != nil {
		return m.CancelFn(ctx, req)
	}
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	if m.CancelOutcome != nil {
		return m.CancelOutcome, nil
	}
	return nil, ierr.NewError("mock authority client has no cancel script").
		Mark(ierr.ErrSystem)
}

// EmitCount returns how many emission requests the mock has received.
func (m *MockAuthorityClient) EmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EmitRequests)
}

// CancelCount returns how many cancellation requests the mock has received.
func (m *MockAuthorityClient) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CancelRequests)
}
