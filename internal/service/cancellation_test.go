package service

import (
	"strings"
	"testing"
	"time"

	"github.com/notaflow/notaflow/internal/api/dto"
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

var cancellationTestKey = strings.Repeat("98765", 10)

type CancellationServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  CancellationService
	testData struct {
		issuer *issuer.Issuer
		doc    *document.FiscalDocument
	}
}

func TestCancellationService(t *testing.T) {
	suite.Run(t, new(CancellationServiceSuite))
}

func (s *CancellationServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewCancellationService(s.serviceParams())
	s.setupTestData()
}

func (s *CancellationServiceSuite) serviceParams() ServiceParams {
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

func (s *CancellationServiceSuite) setupTestData() {
	s.testData.issuer = &issuer.Issuer{
		ID:            "issr_test",
		Name:          "Acme Servicos LTDA",
		CNPJ:          "12345678000195",
		Series:        "900",
		NextNumber:    101,
		CertificateID: "cert_1",
		Environment:   types.EnvironmentHomologation,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().IssuerRepo.Create(s.GetContext(), s.testData.issuer))

	s.testData.doc = &document.FiscalDocument{
		ID:             "doc_test",
		IssuerID:       s.testData.issuer.ID,
		CustomerID:     "cust_1",
		Number:         lo.ToPtr(int64(101)),
		Series:         "900",
		DocumentStatus: types.DocumentStatusAuthorized,
		AccessKey:      lo.ToPtr(cancellationTestKey),
		Protocol:       lo.ToPtr("P1"),
		ServiceAmount:  decimal.NewFromInt(1000),
		ISSAmount:      decimal.NewFromInt(50),
		DraftXML:       `<DPS><infDPS Id="DPS1"/></DPS>`,
		SignedXML:      lo.ToPtr(`<DPS><infDPS Id="DPS1">x</infDPS></DPS>`),
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().DocumentRepo.Create(s.GetContext(), s.testData.doc))
}

func (s *CancellationServiceSuite) newCancelRequest() dto.CancelDocumentRequest {
	return dto.CancelDocumentRequest{
		ReasonCode:    types.CancellationReasonEmissionError,
		Justification: "Valores de ISS informados incorretamente",
	}
}

func (s *CancellationServiceSuite) registeredOutcome() *authority.Outcome {
	return &authority.Outcome{
		Kind:        authority.OutcomeAuthorized,
		Protocol:    "EVT-1",
		AccessKey:   cancellationTestKey,
		RawResponse: `{"protocolo":"EVT-1"}`,
	}
}

func (s *CancellationServiceSuite) TestCancelDocument() {
	s.GetAuthorityClient().CancelOutcome = s.registeredOutcome()

	resp, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.NoError(err)
	s.False(resp.AlreadyCancelled)
	s.Equal(types.DocumentStatusCancelled, resp.DocumentStatus)
	s.NotNil(resp.CancelledAt)

	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusCancelled, doc.DocumentStatus)
	s.NotNil(doc.CancellationEventXML)
}

func (s *CancellationServiceSuite) TestCancelDocumentEventPayload() {
	s.GetAuthorityClient().CancelOutcome = s.registeredOutcome()

	_, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.NoError(err)

	s.Equal(1, s.GetAuthorityClient().CancelCount())
	req := s.GetAuthorityClient().CancelRequests[0]
	s.Equal(cancellationTestKey, req.AccessKey)
	s.Equal("cert_1", req.CertificateID)

	eventXML, err := codec.Decompress(req.EventGZipB64)
	s.NoError(err)
	s.Contains(eventXML, `<infPedReg Id="PRE`+cancellationTestKey+`101101">`)
	s.Contains(eventXML, "<chNFSe>"+cancellationTestKey+"</chNFSe>")
	s.Contains(eventXML, "<cMotivo>1</cMotivo>")
	s.Contains(eventXML, "<xMotivo>Valores de ISS informados incorretamente</xMotivo>")
	// The signature was moved next to the signed element
	s.Contains(eventXML, `</infPedReg><Signature`)
}

func (s *CancellationServiceSuite) TestCancelDocumentAlreadyCancelledAtAuthority() {
	s.GetAuthorityClient().CancelOutcome = &authority.Outcome{
		Kind:        authority.OutcomeAlreadyCancelled,
		RawResponse: `{"erros":[{"codigo":"E0840","descricao":"Evento ja vinculado"}]}`,
		Errors: []authority.APIError{
			{Codigo: "E0840", Descricao: "Evento ja vinculado"},
		},
	}

	resp, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.NoError(err)
	s.True(resp.AlreadyCancelled)
	s.Equal(types.DocumentStatusCancelled, resp.DocumentStatus)

	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusCancelled, doc.DocumentStatus)
	s.NotNil(doc.CancelledAt)
}

func (s *CancellationServiceSuite) TestCancelDocumentLocallyCancelledShortCircuits() {
	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	doc.DocumentStatus = types.DocumentStatusCancelled
	doc.CancelledAt = lo.ToPtr(time.Now().UTC())
	s.NoError(s.GetStores().DocumentRepo.Update(s.GetContext(), doc))

	resp, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.NoError(err)
	s.True(resp.AlreadyCancelled)
	s.Equal(0, s.GetAuthorityClient().CancelCount())
	s.Equal(0, s.GetSigner().SignCalls)
}

func (s *CancellationServiceSuite) TestCancelDocumentBusinessRejected() {
	s.GetAuthorityClient().CancelOutcome = &authority.Outcome{
		Kind:        authority.OutcomeBusinessRejected,
		RawResponse: `{"erros":[{"codigo":"E0820","descricao":"Prazo expirado"}]}`,
		Errors: []authority.APIError{
			{Codigo: "E0820", Descricao: "Prazo expirado"},
		},
	}

	_, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.Error(err)
	s.True(ierr.IsAuthorityRejected(err))

	// A rejected cancellation leaves the document authorized
	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	s.Equal(types.DocumentStatusAuthorized, doc.DocumentStatus)
}

func (s *CancellationServiceSuite) TestCancelDocumentInvalidAccessKey() {
	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	doc.AccessKey = lo.ToPtr(strings.Repeat("123", 10))
	s.NoError(s.GetStores().DocumentRepo.Update(s.GetContext(), doc))

	_, err = s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.Error(err)
	s.True(ierr.IsValidation(err))

	// The malformed key never reaches the authority
	s.Equal(0, s.GetAuthorityClient().CancelCount())
}

func (s *CancellationServiceSuite) TestCancelDocumentMissingAccessKeyFallsBackToXML() {
	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	doc.AccessKey = nil
	doc.SignedXML = lo.ToPtr(`<NFSe><infNFSe Id="NFS` + cancellationTestKey + `"/></NFSe>`)
	s.NoError(s.GetStores().DocumentRepo.Update(s.GetContext(), doc))

	s.GetAuthorityClient().CancelOutcome = s.registeredOutcome()

	resp, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.NoError(err)
	s.Equal(types.DocumentStatusCancelled, resp.DocumentStatus)

	req := s.GetAuthorityClient().CancelRequests[0]
	s.Equal(cancellationTestKey, req.AccessKey)
}

func (s *CancellationServiceSuite) TestCancelDocumentNotAuthorized() {
	doc, err := s.GetStores().DocumentRepo.Get(s.GetContext(), s.testData.doc.ID)
	s.NoError(err)
	doc.DocumentStatus = types.DocumentStatusDraft
	s.NoError(s.GetStores().DocumentRepo.Update(s.GetContext(), doc))

	_, err = s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, s.newCancelRequest())
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *CancellationServiceSuite) TestCancelDocumentShortJustification() {
	req := s.newCancelRequest()
	req.Justification = "curta"

	_, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
	s.Equal(0, s.GetAuthorityClient().CancelCount())
}

func (s *CancellationServiceSuite) TestCancelDocumentInvalidReasonCode() {
	req := s.newCancelRequest()
	req.ReasonCode = types.CancellationReason("9")

	_, err := s.service.CancelDocument(s.GetContext(), s.testData.doc.ID, req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}
