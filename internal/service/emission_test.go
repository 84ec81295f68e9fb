package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/notaflow/notaflow/internal/authority"
	"github.com/notaflow/notaflow/internal/codec"
	"github.com/notaflow/notaflow/internal/domain/document"
	"github.com/notaflow/notaflow/internal/domain/issuer"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/testutil"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

var emissionTestKey = strings.Repeat("12345", 10)

type EmissionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  EmissionService
	testData struct {
		issuer *issuer.Issuer
		doc    *document.FiscalDocument
	}
}

func TestEmissionService(t *testing.T) {
	suite.Run(t, new(EmissionServiceSuite))
}

func (s *EmissionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewEmissionService(s.serviceParams())
	s.setupTestData()
}

func (s *EmissionServiceSuite) serviceParams() ServiceParams {
	return ServiceParams{
		Logger:          s.GetLogger(),
		Config:          s.GetConfig(),
		DB:              s.GetDB(),
		DocumentRepo:    s.GetStores().DocumentRepo,
		IssuerRepo:      s.GetStores().IssuerRepo,
		Signer:          s.GetSigner(),
		AuthorityClient: s.GetAuthorityClient(),
		Cache:           s.GetCache(),
	}
}

func (s *EmissionServiceSuite) setupTestData() {
	s.testData.issuer = &issuer.Issuer{
		ID:            "issr_test",
		Name:          "Acme Servicos LTDA",
		CNPJ:          "12345678000195",
		Series:        "900",
		NextNumber:    100,
		CertificateID: "cert_1",
		Environment:   types.EnvironmentHomologation,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().IssuerRepo.Create(s.GetContext(), s.testData.issuer))

	s.testData.doc = &document.FiscalDocument{
		ID:             "doc_test",
		IssuerID:       s.testData.issuer.ID,
		CustomerID:     "cust_1",
		Series:         "900",
		DocumentStatus: types.DocumentStatusDraft,
		ServiceAmount:  decimal.NewFromInt(1000),
		ISSAmount:      decimal.NewFromInt(50),
		DraftXML:       `<DPS><infDPS Id="DPS1"><serie>900</serie></infDPS></DPS>`,
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().DocumentRepo.Create(s.GetContext(), s.testData.doc))
}

func (s *EmissionServiceSuite) authorizedOutcome() *authority.Outcome {
	return &authority.Outcome{
		Kind:        authority.OutcomeAuthorized,
		Protocol:    "P1",
		AccessKey:   emissionTestKey,
		RawResponse: `{"protocolo":"P1"}`,
	}
}

func (s *EmissionServiceSuite) TestEmitDocumentAuthorized() {
	s.GetAuthorityClient().EmitOutcome = s.authorizedOutcome()

	resp, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusAuthorized, resp.DocumentStatus)
	s.Equal(int64(101), lo.FromPtr(resp.Number))
	s.Equal("P1", lo.FromPtr(resp.Protocol))
	s.Equal(emissionTestKey, lo.FromPtr(resp.AccessKey))

	// Counter advanced exactly once
	iss, err := s.GetStores().IssuerRepo.Get(s.GetContext(), s.testData.issuer.ID)
	s.NoError(err)
	s.Equal(int64(101), iss.NextNumber)
}

func (s *EmissionServiceSuite) TestEmitDocumentSignaturePlacement() {
	s.GetAuthorityClient().EmitOutcome = s.authorizedOutcome()

	_, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)

	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)

	// The mock signer appends the signature after the document; the
	// pipeline must relocate it next to the signed element
	signed := lo.FromPtr(doc.SignedXML)
	s.Contains(signed, `</infDPS><Signature`)
	s.True(strings.HasSuffix(signed, "</DPS>"))
}

func (s *EmissionServiceSuite) TestEmitDocumentSendsCompressedPayload() {
	s.GetAuthorityClient().EmitOutcome = s.authorizedOutcome()

	_, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)

	s.Equal(1, s.GetAuthorityClient().EmitCount())
	req := s.GetAuthorityClient().EmitRequests[0]
	s.Equal("cert_1", req.CertificateID)
	s.Equal(types.EnvironmentHomologation, req.Environment)

	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)

	decoded, err := codec.Decompress(req.PayloadGZipB64)
	s.NoError(err)
	s.Equal(lo.FromPtr(doc.SignedXML), decoded)
}

func (s *EmissionServiceSuite) TestEmitDocumentBusinessRejected() {
	s.GetAuthorityClient().EmitOutcome = &authority.Outcome{
		Kind:        authority.OutcomeBusinessRejected,
		RawResponse: `{"erros":[{"codigo":"E0101","descricao":"CNPJ invalido"}]}`,
		Errors: []authority.APIError{
			{Codigo: "E0101", Descricao: "CNPJ invalido"},
		},
	}

	_, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.Error(err)
	s.True(ierr.IsAuthorityRejected(err))

	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusRejected, doc.DocumentStatus)
	s.Contains(lo.FromPtr(doc.AuthorityResponse), "E0101")
	s.Nil(doc.Number)

	// A rejection never consumes a sequence number
	iss, err := s.GetStores().IssuerRepo.Get(s.GetContext(), s.testData.issuer.ID)
	s.NoError(err)
	s.Equal(int64(100), iss.NextNumber)
}

func (s *EmissionServiceSuite) TestEmitDocumentTransportFailureKeepsSent() {
	s.GetAuthorityClient().EmitErr = ierr.WithError(errors.New("connection refused")).
		Mark(ierr.ErrTransport)

	_, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.Error(err)
	s.True(ierr.IsTransport(err))

	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusSent, doc.DocumentStatus)
	s.NotNil(doc.SentAt)

	// The caller may retry: the document is transmittable again and the
	// signing step is not repeated
	s.GetAuthorityClient().EmitErr = nil
	s.GetAuthorityClient().EmitOutcome = s.authorizedOutcome()

	resp, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusAuthorized, resp.DocumentStatus)
	s.Equal(1, s.GetSigner().SignCalls)
}

func (s *EmissionServiceSuite) TestEmitDocumentInvalidState() {
	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	doc.DocumentStatus = types.DocumentStatusCancelled
	s.NoError(s.GetStores().DocumentRepo.Update(s.GetContext(), doc))

	_, err = s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
	s.Equal(0, s.GetAuthorityClient().EmitCount())
}

func (s *EmissionServiceSuite) TestEmitDocumentNotFound() {
	_, err := s.service.EmitDocument(s.GetContext(), "doc_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *EmissionServiceSuite) TestEmitDocumentMissingCertificate() {
	s.GetSigner().MissingCertificates = []string{"cert_1"}

	_, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrCertificate))
	s.Equal(0, s.GetAuthorityClient().EmitCount())

	// Signing failed before any state was persisted
	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusDraft, doc.DocumentStatus)
}

func (s *EmissionServiceSuite) TestEmitDocumentRepeatAuthorizationIsStable() {
	s.GetAuthorityClient().EmitOutcome = s.authorizedOutcome()

	resp, err := s.service.EmitDocument(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(int64(101), lo.FromPtr(resp.Number))

	// Re-running the allocation for an authorized document neither changes
	// the number nor advances the counter
	number, err := s.GetStores().DocumentRepo.AllocateAndAuthorize(
		s.GetContext(), s.testData.doc.ID, s.testData.issuer.ID, nil)
	s.NoError(err)
	s.Equal(int64(101), number)

	iss, err := s.GetStores().IssuerRepo.Get(s.GetContext(), s.testData.issuer.ID)
	s.NoError(err)
	s.Equal(int64(101), iss.NextNumber)
}

func (s *EmissionServiceSuite) TestAllocationIsSerializedPerIssuer() {
	// Concurrent authorizations must produce unique, gapless numbers
	const workers = 20

	docs := make([]*document.FiscalDocument, workers)
	for i := range docs {
		doc := &document.FiscalDocument{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DOCUMENT),
			IssuerID:       s.testData.issuer.ID,
			CustomerID:     "cust_1",
			Series:         "900",
			DocumentStatus: types.DocumentStatusSent,
			DraftXML:       "<DPS/>",
			BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
		}
		s.NoError(s.GetStores().DocumentRepo.Create(s.GetContext(), doc))
		docs[i] = doc
	}

	var wg sync.WaitGroup
	numbers := make(chan int64, workers)
	for _, doc := range docs {
		wg.Add(1)
		go func(ctx context.Context, docID string) {
			defer wg.Done()
			n, err := s.GetStores().DocumentRepo.AllocateAndAuthorize(
				ctx, docID, s.testData.issuer.ID, nil)
			if err == nil {
				numbers <- n
			}
		}(s.GetContext(), doc.ID)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool)
	for n := range numbers {
		s.False(seen[n], "number %d allocated twice", n)
		seen[n] = true
	}
	s.Len(seen, workers)
	for n := int64(101); n <= int64(100+workers); n++ {
		s.True(seen[n], "number %d missing from the allocated range", n)
	}
}
