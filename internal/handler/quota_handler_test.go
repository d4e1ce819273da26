package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/models"
	"github.com/noah-isme/loan-desk-api/internal/service"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

type quotaReporterMock struct {
	userID string
	asOf   time.Time
}

func (m *quotaReporterMock) Status(ctx context.Context, userID string, asOf time.Time) (*dto.QuotaStatus, error) {
	m.userID, m.asOf = userID, asOf
	return &dto.QuotaStatus{Used: 2, Limit: 5, Remaining: 3, TrimesterIndex: 1}, nil
}

func TestQuotaHandlerMe(t *testing.T) {
	svc := &quotaReporterMock{}
	h := NewQuotaHandler(svc)
	fixed := time.Date(2024, time.October, 2, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	c, w := newContext(http.MethodGet, "/quota/me", nil, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", svc.userID)
	assert.Equal(t, fixed, svc.asOf)

	var status dto.QuotaStatus
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &status))
	assert.Equal(t, 3, status.Remaining)

	c, w = newContext(http.MethodGet, "/quota/me", nil, nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuotaHandlerForUserAsOf(t *testing.T) {
	svc := &quotaReporterMock{}
	h := NewQuotaHandler(svc)

	c, w := newContext(http.MethodGet, "/quota/users/s2?asOf=2025-01-10", nil, adminClaims)
	c.Params = gin.Params{{Key: "userId", Value: "s2"}}
	h.ForUser(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s2", svc.userID)
	assert.Equal(t, time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC), svc.asOf)

	c, w = newContext(http.MethodGet, "/quota/users/s2?asOf=10/01/2025", nil, adminClaims)
	c.Params = gin.Params{{Key: "userId", Value: "s2"}}
	h.ForUser(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), pingerStub{})
	c, w := newContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(service.NewMetricsService(), pingerStub{err: errors.New("connection refused")})
	c, w = newContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h = NewMetricsHandler(nil, nil)
	c, w = newContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsHandlerSummaryAndExposition(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordTransition(service.TransitionApprove, service.OutcomeSuccess)
	metrics.RecordNotification(models.NotificationLoanApproved, service.OutcomeSuccess)
	h := NewMetricsHandler(metrics, nil)

	c, w := newContext(http.MethodGet, "/metrics/summary", nil, adminClaims)
	h.Summary(c)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.SystemMetrics
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &snapshot))
	assert.Equal(t, uint64(1), snapshot.Transitions["approve:success"])
	assert.Equal(t, uint64(1), snapshot.Notifications[string(models.NotificationLoanApproved)+":success"])

	c, w = newContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "loan_desk_request_transitions_total")
}
