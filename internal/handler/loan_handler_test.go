package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/models"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

type loanServiceMock struct {
	walkUp dto.WalkUpRequest
}

func (m *loanServiceMock) CreateWalkUp(ctx context.Context, actor *models.JWTClaims, req dto.WalkUpRequest) (*models.Loan, error) {
	m.walkUp = req
	if req.BorrowerID == "sanctioned" {
		return nil, appErrors.ErrSanctioned
	}
	return &models.Loan{ID: "loan-1", BorrowerID: req.BorrowerID, Category: models.LoanCategoryWalkUp}, nil
}

func (m *loanServiceMock) GetLoan(ctx context.Context, actor *models.JWTClaims, id string) (*models.Loan, error) {
	if id != "loan-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
	}
	return &models.Loan{ID: id}, nil
}

func TestLoanHandlerWalkUp(t *testing.T) {
	svc := &loanServiceMock{}
	h := NewLoanHandler(svc)
	staff := &models.JWTClaims{UserID: "st1", Role: models.RoleStaff}

	c, w := newContext(http.MethodPost, "/loans/walk-up", []byte(`{"borrower_id":"s1","unit_ids":["copy-1"],"notify_locale":"ca"}`), staff)
	h.WalkUp(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"copy-1"}, svc.walkUp.UnitIDs)
	assert.Equal(t, "ca", svc.walkUp.NotifyLocale)

	c, w = newContext(http.MethodPost, "/loans/walk-up", []byte(`{"borrower_id":"sanctioned","unit_ids":["copy-1"]}`), staff)
	h.WalkUp(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "SANCTIONED", decode(t, w).Error.Code)
}

func TestLoanHandlerGet(t *testing.T) {
	h := NewLoanHandler(&loanServiceMock{})
	c, w := newContext(http.MethodGet, "/loans/loan-1", nil, &models.JWTClaims{UserID: "s1"})
	c.Params = gin.Params{{Key: "id", Value: "loan-1"}}
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodGet, "/loans/other", nil, &models.JWTClaims{UserID: "s1"})
	c.Params = gin.Params{{Key: "id", Value: "other"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
