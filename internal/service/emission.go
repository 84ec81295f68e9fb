package service

import (
	"context"
	"time"

	"github.com/notaflow/notaflow/internal/api/dto"
	"github.com/notaflow/notaflow/internal/authority"
	"github.com/notaflow/notaflow/internal/codec"
	"github.com/notaflow/notaflow/internal/domain/document"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
)

// signedElementDPS is the element the DPS signature covers; the enveloped
// signature must sit immediately after its closing tag.
const signedElementDPS = "infDPS"

// EmissionService runs the sign-compress-transmit pipeline for a draft
// document and reconciles the authority's answer into local state.
type EmissionService interface {
	EmitDocument(ctx context.Context, id string) (*dto.DocumentResponse, error)
}

type emissionService struct {
	ServiceParams
	reconciler *statusReconciler
}

func NewEmissionService(params ServiceParams) EmissionService {
	return &emissionService{
		ServiceParams: params,
		reconciler:    newStatusReconciler(params),
	}
}

// EmitDocument signs the draft DPS, persists the SIGNED state, marks the
// document SENT before the network call, transmits and reconciles the
// outcome. A transport failure leaves the document in SENT so the caller
// can retry; the call is never retried automatically because a duplicate
// emission is not idempotent at the authority.
func (s *emissionService) EmitDocument(ctx context.Context, id string) (*dto.DocumentResponse, error) {
	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !doc.DocumentStatus.CanSign() && !doc.DocumentStatus.CanTransmit() {
		return nil, ierr.WithError(document.ErrInvalidStatusTransition).
			WithHintf("Document in status %s cannot be emitted", doc.DocumentStatus).
			WithReportableDetails(map[string]any{
				"document_id":     doc.ID,
				"document_status": doc.DocumentStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	iss, err := getIssuerCached(ctx, s.ServiceParams, doc.IssuerID)
	if err != nil {
		return nil, err
	}

	if doc.DocumentStatus.CanSign() {
		if err := s.signDocument(ctx, doc, iss.CertificateID); err != nil {
			return nil, err
		}
	}

	payload, err := codec.Compress(lo.FromPtr(doc.SignedXML))
	if err != nil {
		return nil, err
	}

	// SENT is persisted before the network call so a transport failure can
	// never leave an authorized document looking like a draft
	doc.DocumentStatus = types.DocumentStatusSent
	doc.SentAt = lo.ToPtr(time.Now().UTC())
	if err := s.DocumentRepo.Update(ctx, doc); err != nil {
		return nil, err
	}

	outcome, err := s.AuthorityClient.Emit(ctx, &authority.EmissionRequest{
		PayloadGZipB64: payload,
		CertificateID:  iss.CertificateID,
		Environment:    iss.Environment,
	})
	if err != nil {
		if ierr.IsTransport(err) {
			s.Logger.Warnw("emission transport failure, document stays SENT",
				"document_id", doc.ID,
				"error", err)
		}
		return nil, err
	}

	updated, err := s.reconciler.applyEmissionOutcome(ctx, doc, outcome)
	if err != nil {
		return nil, err
	}
	return dto.NewDocumentResponse(updated), nil
}

func (s *emissionService) signDocument(ctx context.Context, doc *document.FiscalDocument, certificateID string) error {
	signed, err := s.Signer.Sign(ctx, doc.DraftXML, certificateID)
	if err != nil {
		return err
	}
	signed = codec.NormalizeSignaturePlacement(signed, signedElementDPS)

	doc.SignedXML = lo.ToPtr(signed)
	doc.DocumentStatus = types.DocumentStatusSigned
	if err := s.DocumentRepo.Update(ctx, doc); err != nil {
		return err
	}

	s.Logger.Debugw("document signed", "document_id", doc.ID)
	return nil
}
