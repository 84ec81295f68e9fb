// Package authority implements the transmission client for the tax
// authority's emission and cancellation endpoints.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/notaflow/notaflow/internal/accesskey"
	"github.com/notaflow/notaflow/internal/codec"
	"github.com/notaflow/notaflow/internal/config"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/httpclient"
	"github.com/notaflow/notaflow/internal/logger"
)

// Client sends signed, compressed payloads to the authority and maps the
// response into a typed Outcome. Transport failures are returned as errors
// marked with ierr.ErrTransport and never mutate any persisted state.
type Client interface {
	// Emit submits a DPS for authorization
	Emit(ctx context.Context, req *EmissionRequest) (*Outcome, error)

	// Cancel submits a cancellation event for an authorized document
	Cancel(ctx context.Context, req *CancellationRequest) (*Outcome, error)
}

// alreadyCancelledCodes are the authority error codes that signal the
// cancellation event was already registered for the document.
var alreadyCancelledCodes = map[string]bool{
	"E0840": true,
}

// alreadyCancelledRe matches the authority's "already cancelled" and
// "event already linked" phrasings, which older gateway versions return
// without a stable error code.
var alreadyCancelledRe = regexp.MustCompile(`(?i)(j[aá]\s+(se\s+encontra\s+|foi\s+)?cancelad|evento\s+j[aá]\s+(est[aá]\s+)?vinculad|already\s+cancelled)`)

type client struct {
	cfg    config.AuthorityConfig
	logger *logger.Logger
	// emitClient never retries: a duplicate emission is not idempotent at
	// the authority. cancelClient retries transport failures because the
	// authority's own already-cancelled signal absorbs duplicate delivery.
	emitClient   httpclient.Client
	cancelClient httpclient.Client
}

// NewClient builds the authority client from configuration.
func NewClient(cfg *config.Configuration, logger *logger.Logger) Client {
	return &client{
		cfg:          cfg.Authority,
		logger:       logger,
		emitClient:   httpclient.NewDefaultClient(cfg.Authority.Timeout),
		cancelClient: httpclient.NewRetryableClient(cfg.Authority.Timeout, cfg.Authority.CancelRetryMax),
	}
}

// NewClientWithHTTP builds the authority client over explicit HTTP clients,
// used by tests and by callers that need custom transports.
func NewClientWithHTTP(cfg config.AuthorityConfig, emit, cancel httpclient.Client, logger *logger.Logger) Client {
	return &client{
		cfg:          cfg,
		logger:       logger,
		emitClient:   emit,
		cancelClient: cancel,
	}
}

func (c *client) Emit(ctx context.Context, req *EmissionRequest) (*Outcome, error) {
	if req.CertificateID == "" {
		return nil, ierr.NewError("missing certificate").
			WithHint("The issuer has no signing certificate configured").
			Mark(ierr.ErrCertificate)
	}

	body, err := json.Marshal(map[string]string{
		"dpsXmlGZipB64": req.PayloadGZipB64,
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	resp, err := c.emitClient.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/nfse", c.cfg.BaseURL),
		Headers: c.headers(req.CertificateID, string(req.Environment)),
		Body:    body,
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return c.rejectionOutcome(httpErr, false)
		}
		return nil, ierr.WithError(err).
			WithHint("The tax authority could not be reached; the emission may be retried").
			Mark(ierr.ErrTransport)
	}

	return c.emissionOutcome(resp.Body)
}

func (c *client) Cancel(ctx context.Context, req *CancellationRequest) (*Outcome, error) {
	if req.CertificateID == "" {
		return nil, ierr.NewError("missing certificate").
			WithHint("The issuer has no signing certificate configured").
			Mark(ierr.ErrCertificate)
	}

	body, err := json.Marshal(map[string]string{
		"pedidoRegistroEventoXmlGZipB64": req.EventGZipB64,
		"chaveAcesso":                    req.AccessKey,
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	resp, err := c.cancelClient.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/nfse/%s/eventos", c.cfg.BaseURL, req.AccessKey),
		Headers: c.headers(req.CertificateID, string(req.Environment)),
		Body:    body,
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return c.rejectionOutcome(httpErr, true)
		}
		return nil, ierr.WithError(err).
			WithHint("The tax authority could not be reached; the cancellation may be retried").
			Mark(ierr.ErrTransport)
	}

	return c.cancellationOutcome(resp.Body, req.AccessKey)
}

func (c *client) headers(certificateID, environment string) map[string]string {
	return map[string]string{
		"Authorization":    "Bearer " + c.cfg.APIKey,
		"X-Certificate-Id": certificateID,
		"X-Ambiente":       environment,
	}
}

// emissionOutcome parses a 2xx emission response. The access key is not
// always explicit, so extraction falls back across the response's fields.
func (c *client) emissionOutcome(raw []byte) (*Outcome, error) {
	var parsed emissionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("The authority returned an unparseable response").
			Mark(ierr.ErrCodec)
	}

	key, _ := accesskey.FromFields([]accesskey.Field{
		{Value: parsed.ChaveAcesso, Kind: accesskey.FieldKey},
		{Value: parsed.NFSeXmlGZipB64, Kind: accesskey.FieldEncodedXML},
		{Value: parsed.NFSeXml, Kind: accesskey.FieldXML},
		{Value: parsed.NFSeDownloadLink, Kind: accesskey.FieldURL},
	})

	var authorizedXML string
	if parsed.NFSeXmlGZipB64 != "" {
		if xml, err := decodeAuthorizedXML(parsed.NFSeXmlGZipB64); err == nil {
			authorizedXML = xml
		} else {
			c.logger.Warnw("authorized XML could not be decoded",
				"error", err)
		}
	} else if parsed.NFSeXml != "" {
		authorizedXML = parsed.NFSeXml
	}

	return &Outcome{
		Kind:          OutcomeAuthorized,
		Protocol:      parsed.Protocolo,
		AccessKey:     key,
		AuthorizedXML: authorizedXML,
		RawResponse:   string(raw),
	}, nil
}

func (c *client) cancellationOutcome(raw []byte, requestKey string) (*Outcome, error) {
	var parsed eventResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("The authority returned an unparseable response").
			Mark(ierr.ErrCodec)
	}

	key := parsed.ChaveAcesso
	if key == "" {
		key = requestKey
	}

	return &Outcome{
		Kind:        OutcomeAuthorized,
		Protocol:    parsed.Protocolo,
		AccessKey:   key,
		RawResponse: string(raw),
	}, nil
}

// rejectionOutcome classifies a non-2xx response. For cancellations, an
// "event already registered" code or phrasing is converted into
// OutcomeAlreadyCancelled so that a retried cancellation that actually
// succeeded the first time does not surface as a failure.
func (c *client) rejectionOutcome(httpErr *httpclient.Error, cancellation bool) (*Outcome, error) {
	var parsed errorResponse
	if err := json.Unmarshal(httpErr.Response, &parsed); err != nil || len(parsed.Erros) == 0 {
		return nil, ierr.WithError(httpErr).
			WithHintf("The authority rejected the request with status %d", httpErr.StatusCode).
			WithReportableDetails(map[string]any{
				"status_code": httpErr.StatusCode,
			}).
			Mark(ierr.ErrAuthorityRejected)
	}

	if cancellation && isAlreadyCancelled(parsed.Erros) {
		c.logger.Infow("authority reports event already registered",
			"errors", parsed.Erros)
		return &Outcome{
			Kind:        OutcomeAlreadyCancelled,
			RawResponse: string(httpErr.Response),
			Errors:      parsed.Erros,
		}, nil
	}

	return &Outcome{
		Kind:        OutcomeBusinessRejected,
		RawResponse: string(httpErr.Response),
		Errors:      parsed.Erros,
	}, nil
}

func isAlreadyCancelled(errs []APIError) bool {
	for _, e := range errs {
		if alreadyCancelledCodes[e.Codigo] {
			return true
		}
		if alreadyCancelledRe.MatchString(e.Descricao) || alreadyCancelledRe.MatchString(e.Complemento) {
			return true
		}
	}
	return false
}

func decodeAuthorizedXML(encoded string) (string, error) {
	return codec.Decompress(encoded)
}
