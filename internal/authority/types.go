package authority

import (
	"strings"

	"github.com/notaflow/notaflow/internal/types"
)

// OutcomeKind classifies the authority's answer to a transmission.
type OutcomeKind string

const (
	// OutcomeAuthorized means the authority accepted the emission or
	// registered the cancellation event
	OutcomeAuthorized OutcomeKind = "authorized"
	// OutcomeBusinessRejected means the authority refused the operation with
	// structured business errors
	OutcomeBusinessRejected OutcomeKind = "business_rejected"
	// OutcomeAlreadyCancelled means the authority reported that the
	// cancellation event was already registered; callers must treat the
	// operation as succeeded
	OutcomeAlreadyCancelled OutcomeKind = "already_cancelled"
)

// Outcome is the typed result of a call to the authority. Transport level
// failures (timeouts, connection errors) are not represented here: they are
// returned as errors marked with the transport sentinel, are safe to retry
// and never mutate persisted state.
type Outcome struct {
	Kind OutcomeKind

	// Protocol is the authority's receipt id, when provided
	Protocol string
	// AccessKey is the document's access key, extracted from the response
	AccessKey string
	// AuthorizedXML is the authorized NFSe XML when returned inline
	AuthorizedXML string
	// RawResponse is the verbatim response body, persisted for audit
	RawResponse string

	// Errors carries the structured business errors for a rejection and,
	// for OutcomeAlreadyCancelled, the entries that triggered the
	// classification
	Errors []APIError
}

// APIError is one structured error entry of a non-2xx authority response.
type APIError struct {
	Codigo      string `json:"codigo"`
	Descricao   string `json:"descricao"`
	Complemento string `json:"complemento,omitempty"`
}

// JoinedMessages renders the business errors the way they are surfaced to
// the caller: the authority's own descriptions, joined.
func JoinedMessages(errs []APIError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := strings.TrimSpace(e.Descricao)
		if e.Codigo != "" {
			msg = e.Codigo + ": " + msg
		}
		if c := strings.TrimSpace(e.Complemento); c != "" {
			msg += " (" + c + ")"
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

// EmissionRequest carries a signed, compressed DPS to the authority.
type EmissionRequest struct {
	// PayloadGZipB64 is the base64(gzip(signed DPS XML)) payload
	PayloadGZipB64 string
	// CertificateID identifies the certificate the payload was signed with
	CertificateID string
	// Environment selects production or homologation
	Environment types.Environment
}

// CancellationRequest carries a signed, compressed cancellation event.
type CancellationRequest struct {
	// AccessKey addresses the authorized document being cancelled
	AccessKey string
	// EventGZipB64 is the base64(gzip(signed event XML)) payload
	EventGZipB64 string
	// CertificateID identifies the certificate the event was signed with
	CertificateID string
	// Environment selects production or homologation
	Environment types.Environment
}

// emissionResponse is the authority's 2xx body for an emission call.
type emissionResponse struct {
	TipoAmbiente     string `json:"tipoAmbiente"`
	Protocolo        string `json:"protocolo"`
	ChaveAcesso      string `json:"chaveAcesso"`
	NFSeXmlGZipB64   string `json:"nfseXmlGZipB64"`
	NFSeXml          string `json:"nfseXml"`
	NFSeDownloadLink string `json:"nfseDownloadLink"`
}

// eventResponse is the authority's 2xx body for a cancellation event call.
type eventResponse struct {
	TipoAmbiente     string `json:"tipoAmbiente"`
	Protocolo        string `json:"protocolo"`
	ChaveAcesso      string `json:"chaveAcesso"`
	EventoXmlGZipB64 string `json:"eventoXmlGZipB64"`
}

// errorResponse is the authority's non-2xx body.
type errorResponse struct {
	Erros []APIError `json:"erros"`
}
