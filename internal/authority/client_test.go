package authority_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/notaflow/notaflow/internal/authority"
	"github.com/notaflow/notaflow/internal/codec"
	"github.com/notaflow/notaflow/internal/config"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/testutil"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("12345", 10)

func newTestClient(t *testing.T) (authority.Client, *testutil.MockHTTPClient) {
	t.Helper()
	httpMock := testutil.NewMockHTTPClient()
	cfg := config.AuthorityConfig{
		BaseURL: "https://adn.example.gov.br",
		APIKey:  "test-api-key",
		Timeout: 5 * time.Second,
	}
	return authority.NewClientWithHTTP(cfg, httpMock, httpMock, logger.NewNoOpLogger()), httpMock
}

func emissionReq() *authority.EmissionRequest {
	return &authority.EmissionRequest{
		PayloadGZipB64: "ZmFrZQ==",
		CertificateID:  "cert_1",
		Environment:    types.EnvironmentHomologation,
	}
}

func cancellationReq() *authority.CancellationRequest {
	return &authority.CancellationRequest{
		AccessKey:     testKey,
		EventGZipB64:  "ZmFrZQ==",
		CertificateID: "cert_1",
		Environment:   types.EnvironmentHomologation,
	}
}

func TestEmitAuthorized(t *testing.T) {
	client, httpMock := newTestClient(t)

	body, _ := json.Marshal(map[string]string{
		"protocolo":   "PROT-1",
		"chaveAcesso": testKey,
	})
	httpMock.RegisterResponse("/nfse", testutil.MockResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
	})

	outcome, err := client.Emit(context.Background(), emissionReq())
	require.NoError(t, err)
	assert.Equal(t, authority.OutcomeAuthorized, outcome.Kind)
	assert.Equal(t, "PROT-1", outcome.Protocol)
	assert.Equal(t, testKey, outcome.AccessKey)
	assert.Equal(t, string(body), outcome.RawResponse)
}

func TestEmitAuthorizedKeyFromEncodedXML(t *testing.T) {
	client, httpMock := newTestClient(t)

	xml := fmt.Sprintf(`<NFSe><infNFSe Id="NFS%s"><nNFSe>7</nNFSe></infNFSe></NFSe>`, testKey)
	encoded, err := codec.Compress(xml)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{
		"protocolo":      "PROT-2",
		"nfseXmlGZipB64": encoded,
	})
	httpMock.RegisterResponse("/nfse", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
	})

	outcome, err := client.Emit(context.Background(), emissionReq())
	require.NoError(t, err)
	assert.Equal(t, authority.OutcomeAuthorized, outcome.Kind)
	assert.Equal(t, testKey, outcome.AccessKey)
	assert.Equal(t, xml, outcome.AuthorizedXML)
}

func TestEmitBusinessRejected(t *testing.T) {
	client, httpMock := newTestClient(t)

	body, _ := json.Marshal(map[string]any{
		"erros": []map[string]string{
			{"codigo": "E0101", "descricao": "CNPJ do emitente invalido"},
		},
	})
	httpMock.RegisterResponse("/nfse", testutil.MockResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       body,
	})

	outcome, err := client.Emit(context.Background(), emissionReq())
	require.NoError(t, err)
	assert.Equal(t, authority.OutcomeBusinessRejected, outcome.Kind)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, "E0101", outcome.Errors[0].Codigo)
}

func TestEmitUnparseableRejection(t *testing.T) {
	client, httpMock := newTestClient(t)

	httpMock.RegisterResponse("/nfse", testutil.MockResponse{
		StatusCode: http.StatusBadGateway,
		Body:       []byte("<html>bad gateway</html>"),
	})

	_, err := client.Emit(context.Background(), emissionReq())
	require.Error(t, err)
	assert.True(t, ierr.IsAuthorityRejected(err))
}

func TestEmitTransportFailure(t *testing.T) {
	client, httpMock := newTestClient(t)
	httpMock.TransportErr = errors.New("connection refused")

	_, err := client.Emit(context.Background(), emissionReq())
	require.Error(t, err)
	assert.True(t, ierr.IsTransport(err))
}

func TestEmitMissingCertificate(t *testing.T) {
	client, _ := newTestClient(t)

	req := emissionReq()
	req.CertificateID = ""

	_, err := client.Emit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrCertificate))
}

func TestEmitSendsHeaders(t *testing.T) {
	client, httpMock := newTestClient(t)

	httpMock.RegisterResponse("/nfse", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"protocolo":"P"}`),
	})

	_, err := client.Emit(context.Background(), emissionReq())
	require.NoError(t, err)

	reqs := httpMock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer test-api-key", reqs[0].Headers["Authorization"])
	assert.Equal(t, "cert_1", reqs[0].Headers["X-Certificate-Id"])
	assert.Equal(t, "2", reqs[0].Headers["X-Ambiente"])

	var payload map[string]string
	require.NoError(t, json.Unmarshal(reqs[0].Body, &payload))
	assert.Equal(t, "ZmFrZQ==", payload["dpsXmlGZipB64"])
}

func TestCancelRegistered(t *testing.T) {
	client, httpMock := newTestClient(t)

	body, _ := json.Marshal(map[string]string{
		"protocolo":   "EVT-1",
		"chaveAcesso": testKey,
	})
	httpMock.RegisterResponse("/eventos", testutil.MockResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
	})

	outcome, err := client.Cancel(context.Background(), cancellationReq())
	require.NoError(t, err)
	assert.Equal(t, authority.OutcomeAuthorized, outcome.Kind)
	assert.Equal(t, "EVT-1", outcome.Protocol)
	assert.Equal(t, testKey, outcome.AccessKey)

	reqs := httpMock.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].URL, "/nfse/"+testKey+"/eventos")
}

func TestCancelAlreadyCancelledByCode(t *testing.T) {
	client, httpMock := newTestClient(t)

	body, _ := json.Marshal(map[string]any{
		"erros": []map[string]string{
			{"codigo": "E0840", "descricao": "Evento rejeitado"},
		},
	})
	httpMock.RegisterResponse("/eventos", testutil.MockResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       body,
	})

	outcome, err := client.Cancel(context.Background(), cancellationReq())
	require.NoError(t, err)
	assert.Equal(t, authority.OutcomeAlreadyCancelled, outcome.Kind)
}

func TestCancelAlreadyCancelledByPhrasing(t *testing.T) {
	client, httpMock := newTestClient(t)

	for _, descricao := range []string{
		"NFS-e já se encontra cancelada",
		"A nota já foi cancelada anteriormente",
		"Evento já está vinculado à NFS-e",
		"Document already cancelled",
	} {
		body, _ := json.Marshal(map[string]any{
			"erros": []map[string]string{
				{"codigo": "E9999", "descricao": descricao},
			},
		})
		httpMock.Clear()
		httpMock.RegisterResponse("/eventos", testutil.MockResponse{
			StatusCode: http.StatusUnprocessableEntity,
			Body:       body,
		})

		outcome, err := client.Cancel(context.Background(), cancellationReq())
		require.NoError(t, err, descricao)
		assert.Equal(t, authority.OutcomeAlreadyCancelled, outcome.Kind, descricao)
	}
}

func TestCancelBusinessRejected(t *testing.T) {
	client, httpMock := newTestClient(t)

	body, _ := json.Marshal(map[string]any{
		"erros": []map[string]string{
			{"codigo": "E0820", "descricao": "Prazo de cancelamento expirado"},
		},
	})
	httpMock.RegisterResponse("/eventos", testutil.MockResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       body,
	})

	outcome, err := client.Cancel(context.Background(), cancellationReq())
	require.NoError(t, err)
	assert.Equal(t, authority.OutcomeBusinessRejected, outcome.Kind)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, "E0820", outcome.Errors[0].Codigo)
}

func TestCancelTransportFailure(t *testing.T) {
	client, httpMock := newTestClient(t)
	httpMock.TransportErr = errors.New("i/o timeout")

	_, err := client.Cancel(context.Background(), cancellationReq())
	require.Error(t, err)
	assert.True(t, ierr.IsTransport(err))
}
