package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/notaflow/notaflow/internal/api/dto"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/service"
)

type IssuerHandler struct {
	issuerService service.IssuerService
	logger        *logger.Logger
}

func NewIssuerHandler(issuerService service.IssuerService, logger *logger.Logger) *IssuerHandler {
	return &IssuerHandler{
		issuerService: issuerService,
		logger:        logger,
	}
}

// @Summary Create a new issuer
// @Description Registers a tax-paying entity that emits fiscal documents
// @Tags Issuers
// @Accept json
// @Produce json
// @Param issuer body dto.CreateIssuerRequest true "Issuer request"
// @Success 201 {object} dto.IssuerResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /issuers [post]
func (h *IssuerHandler) CreateIssuer(c *gin.Context) {
	var req dto.CreateIssuerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.issuerService.CreateIssuer(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get an issuer by ID
// @Description Retrieves an issuer by ID
// @Tags Issuers
// @Accept json
// @Produce json
// @Param id path string true "Issuer ID"
// @Success 200 {object} dto.IssuerResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /issuers/{id} [get]
func (h *IssuerHandler) GetIssuer(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("issuer ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.issuerService.GetIssuer(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List issuers
// @Description Lists the tenant's issuers
// @Tags Issuers
// @Accept json
// @Produce json
// @Success 200 {object} dto.ListIssuersResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /issuers [get]
func (h *IssuerHandler) ListIssuers(c *gin.Context) {
	resp, err := h.issuerService.ListIssuers(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update an issuer
// @Description Updates an issuer's registration data; the sequence counter is not updatable
// @Tags Issuers
// @Accept json
// @Produce json
// @Param id path string true "Issuer ID"
// @Param issuer body dto.UpdateIssuerRequest true "Issuer update"
// @Success 200 {object} dto.IssuerResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /issuers/{id} [put]
func (h *IssuerHandler) UpdateIssuer(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("issuer ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	var req dto.UpdateIssuerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.issuerService.UpdateIssuer(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
