package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/notaflow/notaflow/internal/api/dto"
	ierr "github.com/notaflow/notaflow/internal/errors"
	"github.com/notaflow/notaflow/internal/logger"
	"github.com/notaflow/notaflow/internal/service"
	"github.com/notaflow/notaflow/internal/types"
)

type DocumentHandler struct {
	documentService     service.DocumentService
	emissionService     service.EmissionService
	cancellationService service.CancellationService
	logger              *logger.Logger
}

func NewDocumentHandler(
	documentService service.DocumentService,
	emissionService service.EmissionService,
	cancellationService service.CancellationService,
	logger *logger.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documentService:     documentService,
		emissionService:     emissionService,
		cancellationService: cancellationService,
		logger:              logger,
	}
}

// @Summary Create a draft fiscal document
// @Description Creates a draft document from a DPS payload, ready for emission
// @Tags Documents
// @Accept json
// @Produce json
// @Param document body dto.CreateDocumentRequest true "Document request"
// @Success 201 {object} dto.DocumentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.documentService.CreateDocument(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a fiscal document by ID
// @Description Retrieves a fiscal document by ID
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} dto.DocumentResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("document ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.documentService.GetDocument(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List fiscal documents
// @Description Lists fiscal documents with the specified filter
// @Tags Documents
// @Accept json
// @Produce json
// @Param filter query types.DocumentFilter true "Filter"
// @Success 200 {object} dto.ListDocumentsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var filter types.DocumentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.documentService.ListDocuments(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a document's XML artifacts
// @Description Returns the signed DPS, the authority response and the cancellation event XML
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} dto.DocumentXMLResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /documents/{id}/xml [get]
func (h *DocumentHandler) GetDocumentXML(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("document ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.documentService.GetDocumentXML(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Emit a fiscal document
// @Description Signs, transmits and reconciles the document with the tax authority
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} dto.DocumentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 422 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /documents/{id}/emit [post]
func (h *DocumentHandler) EmitDocument(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("document ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.emissionService.EmitDocument(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel a fiscal document
// @Description Sends a cancellation event to the authority; repeated cancellations succeed idempotently
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param cancellation body dto.CancelDocumentRequest true "Cancellation request"
// @Success 200 {object} dto.CancelDocumentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 422 {object} ierr.ErrorResponse
// @Failure 502 {object} ierr.ErrorResponse
// @Router /documents/{id}/cancel [post]
func (h *DocumentHandler) CancelDocument(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("document ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	var req dto.CancelDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.cancellationService.CancelDocument(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
