package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/middleware"
	"github.com/noah-isme/loan-desk-api/internal/models"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
	"github.com/noah-isme/loan-desk-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateRequestRequest) (*models.Request, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Request, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) ([]models.Request, *models.Pagination, error)
	ListPending(ctx context.Context, query dto.RequestQuery) ([]models.Request, *models.Pagination, error)
	Approve(ctx context.Context, actor *models.JWTClaims, id string, req dto.ApproveRequest) (*models.Loan, error)
	Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Request, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) error
	ListRejectionReasons(ctx context.Context) ([]models.RejectionReason, error)
}

type availabilityResolver interface {
	Resolve(ctx context.Context, requestID string) ([]dto.ItemAvailability, error)
}

// RequestHandler exposes the loan request lifecycle.
type RequestHandler struct {
	service      requestService
	availability availabilityResolver
}

// NewRequestHandler builds a new handler.
func NewRequestHandler(service requestService, availability availabilityResolver) *RequestHandler {
	return &RequestHandler{service: service, availability: availability}
}

// Create godoc
// @Summary Submit a loan request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), middleware.Claims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List loan requests
// @Description Requesters only see their own requests.
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param category query string false "Request category"
// @Param user_id query string false "Requester filter (staff only)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var query dto.RequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), middleware.Claims(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListPending godoc
// @Summary List the staff review queue
// @Tags Requests
// @Produce json
// @Param category query string false "Request category"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests/pending [get]
func (h *RequestHandler) ListPending(c *gin.Context) {
	var query dto.RequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.ListPending(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a loan request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Availability godoc
// @Summary Resolve candidate units per line item
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/availability [get]
func (h *RequestHandler) Availability(c *gin.Context) {
	items, err := h.availability.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Approve godoc
// @Summary Approve a request and create the loan
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveRequest true "Selected units"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}
	loan, err := h.service.Approve(c.Request.Context(), middleware.Claims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Reject godoc
// @Summary Reject a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}
	request, err := h.service.Reject(c.Request.Context(), middleware.Claims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel a pending request
// @Tags Requests
// @Param id path string true "Request ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id} [delete]
func (h *RequestHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), middleware.Claims(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RejectionReasons godoc
// @Summary List rejection reason templates
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rejection-reasons [get]
func (h *RequestHandler) RejectionReasons(c *gin.Context) {
	reasons, err := h.service.ListRejectionReasons(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reasons, nil)
}
