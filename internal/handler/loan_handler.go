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

type loanService interface {
	CreateWalkUp(ctx context.Context, actor *models.JWTClaims, req dto.WalkUpRequest) (*models.Loan, error)
	GetLoan(ctx context.Context, actor *models.JWTClaims, id string) (*models.Loan, error)
}

// LoanHandler exposes loan endpoints.
type LoanHandler struct {
	service loanService
}

// NewLoanHandler builds a new handler.
func NewLoanHandler(service loanService) *LoanHandler {
	return &LoanHandler{service: service}
}

// WalkUp godoc
// @Summary Lend units at the desk without a prior request
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body dto.WalkUpRequest true "Walk-up payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /loans/walk-up [post]
func (h *LoanHandler) WalkUp(c *gin.Context) {
	var req dto.WalkUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid walk-up payload"))
		return
	}
	loan, err := h.service.CreateWalkUp(c.Request.Context(), middleware.Claims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Get godoc
// @Summary Get a loan
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(c *gin.Context) {
	loan, err := h.service.GetLoan(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}
