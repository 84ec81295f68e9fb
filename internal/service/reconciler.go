package service

import (
	"context"
	"time"

	"github.com/notaflow/notaflow/internal/authority"
	"github.com/notaflow/notaflow/internal/domain/document"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
)

// statusReconciler is the single place a transmission outcome is turned
// into a persisted document state change. Emission authorizations delegate
// to the sequence allocator; cancellations converge idempotently, including
// when the authority reports the event was already registered.
type statusReconciler struct {
	ServiceParams
}

func newStatusReconciler(params ServiceParams) *statusReconciler {
	return &statusReconciler{ServiceParams: params}
}

// applyEmissionOutcome persists the result of an emission transmission.
// BusinessRejected moves the document to REJECTED and surfaces the
// authority's own descriptions; transport failures never reach this point.
func (r *statusReconciler) applyEmissionOutcome(ctx context.Context, doc *document.FiscalDocument, outcome *authority.Outcome) (*document.FiscalDocument, error) {
	switch outcome.Kind {
	case authority.OutcomeAuthorized:
		artifacts := &document.AuthorityArtifacts{
			Protocol:    outcome.Protocol,
			AccessKey:   outcome.AccessKey,
			SignedXML:   lo.FromPtr(doc.SignedXML),
			RawResponse: outcome.RawResponse,
			ReceivedAt:  time.Now().UTC(),
		}
		number, err := r.DocumentRepo.AllocateAndAuthorize(ctx, doc.ID, doc.IssuerID, artifacts)
		if err != nil {
			return nil, err
		}
		r.Logger.Infow("document authorized",
			"document_id", doc.ID,
			"number", number,
			"protocol", outcome.Protocol,
			"access_key", outcome.AccessKey)
		return r.DocumentRepo.Get(ctx, doc.ID)

	case authority.OutcomeBusinessRejected:
		doc.DocumentStatus = types.DocumentStatusRejected
		doc.AuthorityResponse = lo.ToPtr(outcome.RawResponse)
		doc.ReceivedAt = lo.ToPtr(time.Now().UTC())
		if err := r.DocumentRepo.Update(ctx, doc); err != nil {
			return nil, err
		}
		return nil, ierr.NewError("emission rejected by the authority").
			WithHint(authority.JoinedMessages(outcome.Errors)).
			WithReportableDetails(map[string]any{
				"document_id": doc.ID,
				"errors":      outcome.Errors,
			}).
			Mark(ierr.ErrAuthorityRejected)

	default:
		return nil, ierr.NewErrorf("unexpected emission outcome %s", outcome.Kind).
			Mark(ierr.ErrSystem)
	}
}

// applyCancellation converges the document addressed by accessKey to
// CANCELLED. The lookup falls back from the access-key column to a
// substring search of the stored signed XML, for records written before
// the key column was populated.
func (r *statusReconciler) applyCancellation(ctx context.Context, accessKey string, outcome *authority.Outcome, eventXML string) (*document.FiscalDocument, error) {
	doc, err := r.findByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}

	if doc.IsCancelled() {
		// Local record already converged; nothing to write
		return doc, nil
	}

	if !doc.IsAuthorized() {
		// The authority is the source of truth for cancellation: converge
		// anyway, but leave a trace for investigation
		r.Logger.Warnw("cancelling document outside the nominal transition",
			"document_id", doc.ID,
			"document_status", doc.DocumentStatus)
	}

	doc.DocumentStatus = types.DocumentStatusCancelled
	doc.CancelledAt = lo.ToPtr(time.Now().UTC())
	if eventXML != "" {
		doc.CancellationEventXML = lo.ToPtr(eventXML)
	}
	if outcome.Protocol != "" {
		doc.Protocol = lo.ToPtr(outcome.Protocol)
	}
	if doc.AccessKey == nil && accessKey != "" {
		doc.AccessKey = lo.ToPtr(accessKey)
	}

	if err := r.DocumentRepo.Update(ctx, doc); err != nil {
		return nil, err
	}

	r.Logger.Infow("document cancelled",
		"document_id", doc.ID,
		"access_key", accessKey,
		"already_cancelled", outcome.Kind == authority.OutcomeAlreadyCancelled)
	return doc, nil
}

func (r *statusReconciler) findByAccessKey(ctx context.Context, accessKey string) (*document.FiscalDocument, error) {
	doc, err := r.DocumentRepo.GetByAccessKey(ctx, accessKey)
	if err == nil {
		return doc, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	// Secondary path: older records carry the key only inside the XML
	doc, err = r.DocumentRepo.SearchByXMLFragment(ctx, accessKey)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(document.ErrDocumentNotFound).
				WithHintf("No local document matches access key %s", accessKey).
				Mark(ierr.ErrNotFound)
		}
		return nil, err
	}
	return doc, nil
}
