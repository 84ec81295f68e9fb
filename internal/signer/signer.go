// Package signer is the boundary to the certificate service that applies
// the XML digital signature. Signing itself is an external concern; this
// package only carries the payload there and back.
package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/notaflow/notaflow/internal/config"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/httpclient"
	"github.com/notaflow/notaflow/internal/logger"
)

// Signer signs a fiscal XML payload with the issuer's certificate and
// returns the XML with the signature block injected.
type Signer interface {
	Sign(ctx context.Context, xml string, certificateID string) (string, error)
}

type remoteSigner struct {
	cfg    config.SignerConfig
	client httpclient.Client
	logger *logger.Logger
}

// NewRemoteSigner builds a Signer backed by the certificate service.
func NewRemoteSigner(cfg *config.Configuration, logger *logger.Logger) Signer {
	return &remoteSigner{
		cfg:    cfg.Signer,
		client: httpclient.NewDefaultClient(cfg.Signer.Timeout),
		logger: logger,
	}
}

type signRequest struct {
	XML           string `json:"xml"`
	CertificateID string `json:"certificate_id"`
}

type signResponse struct {
	SignedXML string `json:"signed_xml"`
}

func (s *remoteSigner) Sign(ctx context.Context, xml string, certificateID string) (string, error) {
	if certificateID == "" {
		return "", ierr.NewError("missing certificate").
			WithHint("The issuer has no signing certificate configured").
			Mark(ierr.ErrCertificate)
	}

	body, err := json.Marshal(signRequest{
		XML:           xml,
		CertificateID: certificateID,
	})
	if err != nil {
		return "", ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	resp, err := s.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/sign", s.cfg.BaseURL),
		Body:   body,
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return "", ierr.WithError(httpErr).
				WithHint("The certificate service refused to sign the document").
				Mark(ierr.ErrCertificate)
		}
		return "", ierr.WithError(err).
			WithHint("The certificate service could not be reached").
			Mark(ierr.ErrTransport)
	}

	var parsed signResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", ierr.WithError(err).
			WithHint("The certificate service returned an unparseable response").
			Mark(ierr.ErrCodec)
	}
	if parsed.SignedXML == "" {
		return "", ierr.NewError("empty signed xml").
			WithHint("The certificate service returned no signature").
			Mark(ierr.ErrCertificate)
	}
	return parsed.SignedXML, nil
}
