package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/middleware"
	"github.com/noah-isme/loan-desk-api/internal/models"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

type requestServiceMock struct {
	createReq  dto.CreateRequestRequest
	approveErr error
	cancelErr  error
	listQuery  dto.RequestQuery
	actor      *models.JWTClaims
}

func (m *requestServiceMock) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateRequestRequest) (*models.Request, error) {
	m.actor = actor
	m.createReq = req
	return &models.Request{ID: "req-1", RequesterID: actor.UserID, Category: req.Category, Status: models.RequestStatusPending}, nil
}

func (m *requestServiceMock) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Request, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
}

func (m *requestServiceMock) List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) ([]models.Request, *models.Pagination, error) {
	m.listQuery = query
	return []models.Request{{ID: "req-1"}}, &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11}, nil
}

func (m *requestServiceMock) ListPending(ctx context.Context, query dto.RequestQuery) ([]models.Request, *models.Pagination, error) {
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *requestServiceMock) Approve(ctx context.Context, actor *models.JWTClaims, id string, req dto.ApproveRequest) (*models.Loan, error) {
	if m.approveErr != nil {
		return nil, m.approveErr
	}
	return &models.Loan{ID: "loan-1", Status: models.LoanStatusActive}, nil
}

func (m *requestServiceMock) Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Request, error) {
	return nil, appErrors.ErrNotPending
}

func (m *requestServiceMock) Cancel(ctx context.Context, actor *models.JWTClaims, id string) error {
	return m.cancelErr
}

func (m *requestServiceMock) ListRejectionReasons(ctx context.Context) ([]models.RejectionReason, error) {
	return []models.RejectionReason{{ID: "r1", Title: "Damaged", Body: "Under repair"}}, nil
}

type availabilityMock struct{}

func (availabilityMock) Resolve(ctx context.Context, requestID string) ([]dto.ItemAvailability, error) {
	pick := "copy-1"
	return []dto.ItemAvailability{{RequestItemID: "i1", Available: true, CandidateUnits: []string{"copy-1"}, DefaultPick: &pick}}, nil
}

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *appErrors.Error   `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

func newContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRequestHandlerCreate(t *testing.T) {
	svc := &requestServiceMock{}
	h := NewRequestHandler(svc, availabilityMock{})
	body := []byte(`{"category":"PERSONAL_USE","terms_accepted":true,"items":[{"book_id":"book-1","quantity":2}]}`)
	c, w := newContext(http.MethodPost, "/requests", body, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s1", svc.actor.UserID)
	assert.True(t, svc.createReq.TermsAccepted)
	require.Len(t, svc.createReq.Items, 1)
	assert.Equal(t, 2, svc.createReq.Items[0].Quantity)

	var created models.Request
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))
	assert.Equal(t, models.RequestStatusPending, created.Status)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, availabilityMock{})
	c, w := newContext(http.MethodPost, "/requests", []byte(`{`), &models.JWTClaims{UserID: "s1"})

	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestRequestHandlerApproveConflictCarriesUnit(t *testing.T) {
	svc := &requestServiceMock{approveErr: appErrors.WithDetails(appErrors.ErrUnitUnavailable, "", map[string]interface{}{"unitId": "copy-2", "reason": "not_available"})}
	h := NewRequestHandler(svc, availabilityMock{})
	c, w := newContext(http.MethodPost, "/requests/req-1/approve", []byte(`{"unit_ids":["copy-1","copy-2"]}`), &models.JWTClaims{UserID: "st1", Role: models.RoleStaff})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	h.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNIT_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, "copy-2", env.Error.Details["unitId"])
}

func TestRequestHandlerApproveCreatesLoan(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, availabilityMock{})
	c, w := newContext(http.MethodPost, "/requests/req-1/approve", []byte(`{"unit_ids":["copy-1"],"due_date":"2025-03-01T12:00:00Z"}`), &models.JWTClaims{UserID: "st1", Role: models.RoleStaff})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	h.Approve(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRequestHandlerRejectNotPending(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, availabilityMock{})
	c, w := newContext(http.MethodPost, "/requests/req-1/reject", []byte(`{"reason_id":"r1"}`), &models.JWTClaims{UserID: "st1", Role: models.RoleStaff})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	h.Reject(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_PENDING", decode(t, w).Error.Code)
}

func TestRequestHandlerCancel(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, availabilityMock{})
	c, w := newContext(http.MethodDelete, "/requests/req-1", nil, &models.JWTClaims{UserID: "s1"})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	h.Cancel(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)

	h = NewRequestHandler(&requestServiceMock{cancelErr: appErrors.ErrForbidden}, availabilityMock{})
	c, w = newContext(http.MethodDelete, "/requests/req-1", nil, &models.JWTClaims{UserID: "s2"})
	h.Cancel(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestHandlerListBindsQuery(t *testing.T) {
	svc := &requestServiceMock{}
	h := NewRequestHandler(svc, availabilityMock{})
	c, w := newContext(http.MethodGet, "/requests?status=PENDING,APPROVED&page=2&page_size=10", nil, &models.JWTClaims{UserID: "s1"})

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING,APPROVED", svc.listQuery.Status)
	assert.Equal(t, 2, svc.listQuery.Page)
	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 11, env.Pagination.TotalCount)
}

func TestRequestHandlerGetNotFoundAndAvailability(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, availabilityMock{})
	c, w := newContext(http.MethodGet, "/requests/x", nil, &models.JWTClaims{UserID: "s1"})
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newContext(http.MethodGet, "/requests/x/availability", nil, &models.JWTClaims{UserID: "st1", Role: models.RoleStaff})
	h.Availability(c)
	require.Equal(t, http.StatusOK, w.Code)
	var items []dto.ItemAvailability
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "copy-1", *items[0].DefaultPick)
}

func TestRequestHandlerRejectionReasons(t *testing.T) {
	h := NewRequestHandler(&requestServiceMock{}, availabilityMock{})
	c, w := newContext(http.MethodGet, "/rejection-reasons", nil, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	h.RejectionReasons(c)
	require.Equal(t, http.StatusOK, w.Code)
	var reasons []models.RejectionReason
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &reasons))
	require.Len(t, reasons, 1)
	assert.Equal(t, "Damaged", reasons[0].Title)
}
