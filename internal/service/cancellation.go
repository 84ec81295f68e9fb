package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/notaflow/notaflow/internal/accesskey"
	"github.com/notaflow/notaflow/internal/api/dto"
	"github.com/notaflow/notaflow/internal/authority"
	"github.com/notaflow/notaflow/internal/codec"
	"github.com/notaflow/notaflow/internal/domain/document"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
)

const (
	// signedElementEvent is the element the cancellation event signature
	// covers; the signature sits immediately after its closing tag.
	signedElementEvent = "infPedReg"

	// eventTypeCancellation is the authority's event code for cancellation
	// (e101101) and its fixed description text.
	eventTypeCancellation        = "101101"
	eventCancellationDescription = "Cancelamento de NFS-e"
)

// CancellationService sends the cancellation event for an authorized
// document and converges local state with the authority's answer, treating
// an "already cancelled" rejection as success.
type CancellationService interface {
	CancelDocument(ctx context.Context, id string, req dto.CancelDocumentRequest) (*dto.CancelDocumentResponse, error)
}

type cancellationService struct {
	ServiceParams
	reconciler *statusReconciler
}

func NewCancellationService(params ServiceParams) CancellationService {
	return &cancellationService{
		ServiceParams: params,
		reconciler:    newStatusReconciler(params),
	}
}

func (s *cancellationService) CancelDocument(ctx context.Context, id string, req dto.CancelDocumentRequest) (*dto.CancelDocumentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// A document we already hold as cancelled answers without a network call
	if doc.IsCancelled() {
		return &dto.CancelDocumentResponse{
			DocumentResponse: dto.NewDocumentResponse(doc),
			AlreadyCancelled: true,
		}, nil
	}

	if !doc.DocumentStatus.CanCancel() {
		return nil, ierr.WithError(document.ErrInvalidStatusTransition).
			WithHintf("Document in status %s cannot be cancelled", doc.DocumentStatus).
			WithReportableDetails(map[string]any{
				"document_id":     doc.ID,
				"document_status": doc.DocumentStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	accessKey, err := s.resolveAccessKey(doc)
	if err != nil {
		return nil, err
	}

	iss, err := getIssuerCached(ctx, s.ServiceParams, doc.IssuerID)
	if err != nil {
		return nil, err
	}

	eventXML := buildCancellationEventXML(accessKey, req.ReasonCode, req.Justification)
	signed, err := s.Signer.Sign(ctx, eventXML, iss.CertificateID)
	if err != nil {
		return nil, err
	}
	signed = codec.NormalizeSignaturePlacement(signed, signedElementEvent)

	payload, err := codec.Compress(signed)
	if err != nil {
		return nil, err
	}

	outcome, err := s.AuthorityClient.Cancel(ctx, &authority.CancellationRequest{
		AccessKey:     accessKey,
		EventGZipB64:  payload,
		CertificateID: iss.CertificateID,
		Environment:   iss.Environment,
	})
	if err != nil {
		return nil, err
	}

	switch outcome.Kind {
	case authority.OutcomeAuthorized, authority.OutcomeAlreadyCancelled:
		updated, err := s.reconciler.applyCancellation(ctx, accessKey, outcome, payload)
		if err != nil {
			return nil, err
		}
		return &dto.CancelDocumentResponse{
			DocumentResponse: dto.NewDocumentResponse(updated),
			AlreadyCancelled: outcome.Kind == authority.OutcomeAlreadyCancelled,
		}, nil

	case authority.OutcomeBusinessRejected:
		return nil, ierr.NewError("cancellation rejected by the authority").
			WithHint(authority.JoinedMessages(outcome.Errors)).
			WithReportableDetails(map[string]any{
				"document_id": doc.ID,
				"access_key":  accessKey,
				"errors":      outcome.Errors,
			}).
			Mark(ierr.ErrAuthorityRejected)

	default:
		return nil, ierr.NewErrorf("unexpected cancellation outcome %s", outcome.Kind).
			Mark(ierr.ErrSystem)
	}
}

// resolveAccessKey returns the document's access key, falling back to
// extraction from the stored artifacts when the column was never stamped.
// The key is validated before any network traffic so a malformed key fails
// fast with a validation error instead of an authority round trip.
func (s *cancellationService) resolveAccessKey(doc *document.FiscalDocument) (string, error) {
	key := lo.FromPtr(doc.AccessKey)
	if key == "" {
		extracted, ok := accesskey.FromFields([]accesskey.Field{
			{Value: lo.FromPtr(doc.AuthorityResponse), Kind: accesskey.FieldXML},
			{Value: lo.FromPtr(doc.SignedXML), Kind: accesskey.FieldXML},
		})
		if !ok {
			return "", ierr.WithError(document.ErrMissingAccessKey).
				WithHintf("Document %s has no access key to address the cancellation", doc.ID).
				Mark(ierr.ErrValidation)
		}
		key = extracted
	}
	if !accesskey.IsValid(key) {
		return "", ierr.NewErrorf("invalid access key %q", key).
			WithHint("Access keys must be 44 or 50 numeric digits").
			WithReportableDetails(map[string]any{
				"document_id": doc.ID,
				"access_key":  key,
				"length":      len(key),
			}).
			Mark(ierr.ErrValidation)
	}
	return key, nil
}

// buildCancellationEventXML renders the pedidoRegistroEvento payload for a
// cancellation (event e101101). The Id attribute concatenates the PRE
// prefix, the access key and the event type, per the national layout.
func buildCancellationEventXML(accessKey string, reason types.CancellationReason, justification string) string {
	var sb strings.Builder
	sb.WriteString(`<pedidoRegistroEvento xmlns="http://www.sped.fazenda.gov.br/nfse" versao="1.00">`)
	fmt.Fprintf(&sb, `<infPedReg Id="PRE%s%s">`, accessKey, eventTypeCancellation)
	fmt.Fprintf(&sb, "<chNFSe>%s</chNFSe>", accessKey)
	sb.WriteString("<nPedRegEvento>1</nPedRegEvento>")
	fmt.Fprintf(&sb, "<e%s>", eventTypeCancellation)
	fmt.Fprintf(&sb, "<xDesc>%s</xDesc>", eventCancellationDescription)
	fmt.Fprintf(&sb, "<cMotivo>%s</cMotivo>", reason.String())
	fmt.Fprintf(&sb, "<xMotivo>%s</xMotivo>", escapeXML(justification))
	fmt.Fprintf(&sb, "</e%s>", eventTypeCancellation)
	sb.WriteString("</infPedReg>")
	sb.WriteString("</pedidoRegistroEvento>")
	return sb.String()
}

// escapeXML escapes free-text character data; only the justification is
// caller supplied, every other field is validated or fixed.
func escapeXML(value string) string {
	var sb strings.Builder
	if err := xml.EscapeText(&sb, []byte(value)); err != nil {
		return value
	}
	return sb.String()
}
