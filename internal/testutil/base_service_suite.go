package testutil

import (
	"context"
	"time"

	"github.com/notaflow/notaflow/internal/cache"
	"github.com/notaflow/notaflow/internal/config"
	"github.com/notaflow/notaflow/internal/domain/document"
	"github.com/notaflow/notaflow/internal/domain/issuer"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/postgres"
	"github.com/notaflow/notaflow/internal/types"
	"github.com/notaflow/notaflow/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	DocumentRepo document.Repository
	IssuerRepo   issuer.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	db        postgres.IClient
	logger    *logger.Logger
	config    *config.Configuration
	cache     cache.Cache
	signer    *MockSigner
	authority *MockAuthorityClient
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()

	var err error
	s.logger, err = logger.NewLogger(types.LogLevelInfo)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
}

func (s *BaseServiceTestSuite) setupStores() {
	issuerStore := NewInMemoryIssuerStore()
	s.stores = Stores{
		IssuerRepo:   issuerStore,
		DocumentRepo: NewInMemoryDocumentStore(issuerStore),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache()
	s.signer = NewMockSigner()
	s.authority = NewMockAuthorityClient()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.DocumentRepo.(*InMemoryDocumentStore).Clear()
	s.stores.IssuerRepo.(*InMemoryIssuerStore).Clear()
	s.cache.Flush(s.ctx)
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns the test stores
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the mock database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetSigner returns the mock signer
func (s *BaseServiceTestSuite) GetSigner() *MockSigner {
	return s.signer
}

// GetAuthorityClient returns the mock authority client
func (s *BaseServiceTestSuite) GetAuthorityClient() *MockAuthorityClient {
	return s.authority
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
