package service

import (
	"sync"
	"testing"

	"github.com/notaflow/notaflow/internal/api/dto"
	"github.com/notaflow/notaflow/internal/domain/issuer"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/testutil"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type DocumentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  DocumentService
	testData struct {
		issuer *issuer.Issuer
	}
}

func TestDocumentService(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewDocumentService(s.serviceParams())
	s.setupTestData()
}

func (s *DocumentServiceSuite) serviceParams() ServiceParams {
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

func (s *DocumentServiceSuite) setupTestData() {
	s.testData.issuer = &issuer.Issuer{
		ID:                    "issr_test",
		Name:                  "Acme Servicos LTDA",
		CNPJ:                  "12345678000195",
		MunicipalRegistration: "987654",
		Series:                "900",
		NextNumber:            100,
		CertificateID:         "cert_1",
		Environment:           types.EnvironmentHomologation,
		BaseModel:             types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().IssuerRepo.Create(s.GetContext(), s.testData.issuer))
}

func (s *DocumentServiceSuite) newCreateRequest() dto.CreateDocumentRequest {
	return dto.CreateDocumentRequest{
		IssuerID:      s.testData.issuer.ID,
		CustomerID:    "cust_1",
		ServiceID:     "svc_1",
		ServiceAmount: decimal.NewFromInt(1000),
		ISSAmount:     decimal.NewFromInt(50),
		DPSXML:        `<DPS><infDPS Id="DPS1"><serie>900</serie></infDPS></DPS>`,
	}
}

func (s *DocumentServiceSuite) TestCreateDocument() {
	resp, err := s.service.CreateDocument(s.GetContext(), s.newCreateRequest())
	s.NoError(err)
	s.NotNil(resp)
	s.Equal(types.DocumentStatusDraft, resp.DocumentStatus)
	s.Equal("900", resp.Series)
	s.Nil(resp.Number)
	s.NotEmpty(resp.ID)
}

func (s *DocumentServiceSuite) TestCreateDocumentUnknownIssuer() {
	req := s.newCreateRequest()
	req.IssuerID = "issr_missing"

	_, err := s.service.CreateDocument(s.GetContext(), req)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *DocumentServiceSuite) TestCreateDocumentInvalidXML() {
	req := s.newCreateRequest()
	req.DPSXML = "not xml at all"

	_, err := s.service.CreateDocument(s.GetContext(), req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *DocumentServiceSuite) TestCreateDocumentMissingFields() {
	req := s.newCreateRequest()
	req.CustomerID = ""

	_, err := s.service.CreateDocument(s.GetContext(), req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *DocumentServiceSuite) TestCreateDocumentIdempotent() {
	req := s.newCreateRequest()
	req.IdempotencyKey = lo.ToPtr("idem-123")

	first, err := s.service.CreateDocument(s.GetContext(), req)
	s.NoError(err)

	second, err := s.service.CreateDocument(s.GetContext(), req)
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	count, err := s.GetStores().DocumentRepo.Count(s.GetContext(), types.NewDocumentFilter())
	s.NoError(err)
	s.Equal(1, count)
}

func (s *DocumentServiceSuite) TestCreateDocumentConcurrentDuplicates() {
	// Concurrent submissions of the same key race past the pre-insert lookup;
	// the loser must get the winner's draft back, not a conflict.
	req := s.newCreateRequest()
	req.IdempotencyKey = lo.ToPtr("idem-race")

	const workers = 10
	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := s.service.CreateDocument(s.GetContext(), req)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = resp.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		s.NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}

	count, err := s.GetStores().DocumentRepo.Count(s.GetContext(), types.NewDocumentFilter())
	s.NoError(err)
	s.Equal(1, count)
}

func (s *DocumentServiceSuite) TestCreateDocumentGeneratedIdempotencyKey() {
	// Identical payloads without an explicit key still dedupe
	first, err := s.service.CreateDocument(s.GetContext(), s.newCreateRequest())
	s.NoError(err)

	second, err := s.service.CreateDocument(s.GetContext(), s.newCreateRequest())
	s.NoError(err)
	s.Equal(first.ID, second.ID)
}

func (s *DocumentServiceSuite) TestGetDocument() {
	created, err := s.service.CreateDocument(s.GetContext(), s.newCreateRequest())
	s.NoError(err)

	got, err := s.service.GetDocument(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(created.ID, got.ID)
}

func (s *DocumentServiceSuite) TestGetDocumentNotFound() {
	_, err := s.service.GetDocument(s.GetContext(), "doc_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *DocumentServiceSuite) TestListDocuments() {
	req := s.newCreateRequest()
	_, err := s.service.CreateDocument(s.GetContext(), req)
	s.NoError(err)

	other := s.newCreateRequest()
	other.CustomerID = "cust_2"
	_, err = s.service.CreateDocument(s.GetContext(), other)
	s.NoError(err)

	resp, err := s.service.ListDocuments(s.GetContext(), types.NewDocumentFilter())
	s.NoError(err)
	s.Equal(2, resp.Total)
	s.Len(resp.Items, 2)

	filter := types.NewDocumentFilter()
	filter.CustomerID = "cust_2"
	resp, err = s.service.ListDocuments(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(1, resp.Total)
	s.Equal("cust_2", resp.Items[0].CustomerID)
}

func (s *DocumentServiceSuite) TestListDocumentsByStatus() {
	_, err := s.service.CreateDocument(s.GetContext(), s.newCreateRequest())
	s.NoError(err)

	filter := types.NewDocumentFilter()
	filter.DocumentStatus = []types.DocumentStatus{types.DocumentStatusAuthorized}
	resp, err := s.service.ListDocuments(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(0, resp.Total)

	filter.DocumentStatus = []types.DocumentStatus{types.DocumentStatusDraft}
	resp, err = s.service.ListDocuments(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(1, resp.Total)
}

func (s *DocumentServiceSuite) TestGetDocumentXML() {
	created, err := s.service.CreateDocument(s.GetContext(), s.newCreateRequest())
	s.NoError(err)

	resp, err := s.service.GetDocumentXML(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(created.ID, resp.ID)
	s.Nil(resp.SignedXML)
}
