package types

import (
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/samber/lo"
)

// DocumentStatus represents the current state of a fiscal document in its lifecycle.
// The legal transitions are:
//
//	DRAFT -> SIGNED -> SENT -> {AUTHORIZED | REJECTED}
//	AUTHORIZED -> CANCELLED
//
// AUTHORIZED, REJECTED and CANCELLED are terminal for their respective branches,
// except that an AUTHORIZED document may still be cancelled.
type DocumentStatus string

const (
	// DocumentStatusDraft is the initial state when a document is created
	DocumentStatusDraft DocumentStatus = "DRAFT"
	// DocumentStatusSigned means the DPS XML has been signed and is ready for transmission
	DocumentStatusSigned DocumentStatus = "SIGNED"
	// DocumentStatusSent means the payload was handed to the authority and the outcome is pending
	DocumentStatusSent DocumentStatus = "SENT"
	// DocumentStatusAuthorized means the authority accepted the document and a number was allocated
	DocumentStatusAuthorized DocumentStatus = "AUTHORIZED"
	// DocumentStatusRejected means the authority refused the document with business errors
	DocumentStatusRejected DocumentStatus = "REJECTED"
	// DocumentStatusCancelled means a cancellation event was registered for the document
	DocumentStatusCancelled DocumentStatus = "CANCELLED"
)

func (s DocumentStatus) String() string {
	return string(s)
}

func (s DocumentStatus) Validate() error {
	allowed := []DocumentStatus{
		DocumentStatusDraft,
		DocumentStatusSigned,
		DocumentStatusSent,
		DocumentStatusAuthorized,
		DocumentStatusRejected,
		DocumentStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid document status").
			WithHint("Please provide a valid document status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"status":  s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NextStatuses returns the set of states reachable from the current one.
func (s DocumentStatus) NextStatuses() []DocumentStatus {
	switch s {
	case DocumentStatusDraft:
		return []DocumentStatus{DocumentStatusSigned}
	case DocumentStatusSigned:
		return []DocumentStatus{DocumentStatusSent}
	case DocumentStatusSent:
		return []DocumentStatus{DocumentStatusAuthorized, DocumentStatusRejected}
	case DocumentStatusAuthorized:
		return []DocumentStatus{DocumentStatusCancelled}
	default:
		return nil
	}
}

// CanTransitionTo reports whether moving from s to target is a legal transition.
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	return lo.Contains(s.NextStatuses(), target)
}

// CanSign reports whether the document may be signed in its current state.
func (s DocumentStatus) CanSign() bool {
	return s == DocumentStatusDraft
}

// CanTransmit reports whether the document may be transmitted for emission.
// SENT is included so that a transmission whose outcome was never observed
// (transport failure) can be retried.
func (s DocumentStatus) CanTransmit() bool {
	return s == DocumentStatusSigned || s == DocumentStatusSent
}

// CanCancel reports whether a cancellation event may be sent for the document.
// A document that is already CANCELLED accepts a repeated cancellation request
// as a no-op, which is handled by the caller.
func (s DocumentStatus) CanCancel() bool {
	return s == DocumentStatusAuthorized
}

// IsTerminal reports whether no further emission transitions are possible.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusRejected || s == DocumentStatusCancelled
}

// CancellationReason is the authority's reason code for a cancellation event.
type CancellationReason string

const (
	// CancellationReasonEmissionError covers documents issued with incorrect data
	CancellationReasonEmissionError CancellationReason = "1"
	// CancellationReasonServiceNotProvided covers services that were never rendered
	CancellationReasonServiceNotProvided CancellationReason = "2"
)

func (r CancellationReason) String() string {
	return string(r)
}

func (r CancellationReason) Validate() error {
	allowed := []CancellationReason{
		CancellationReasonEmissionError,
		CancellationReasonServiceNotProvided,
	}
	if !lo.Contains(allowed, r) {
		return ierr.NewError("invalid cancellation reason").
			WithHint("Please provide a valid cancellation reason code").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
