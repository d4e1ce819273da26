package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/middleware"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
	"github.com/noah-isme/loan-desk-api/pkg/response"
)

type quotaReporter interface {
	Status(ctx context.Context, userID string, asOf time.Time) (*dto.QuotaStatus, error)
}

// QuotaHandler reports personal use quota usage.
type QuotaHandler struct {
	service quotaReporter
	now     func() time.Time
}

// NewQuotaHandler builds a new handler.
func NewQuotaHandler(service quotaReporter) *QuotaHandler {
	return &QuotaHandler{service: service, now: time.Now}
}

// Me godoc
// @Summary Quota status for the caller
// @Tags Quota
// @Produce json
// @Param asOf query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /quota/me [get]
func (h *QuotaHandler) Me(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.respond(c, claims.UserID)
}

// ForUser godoc
// @Summary Quota status for a user
// @Tags Quota
// @Produce json
// @Param userId path string true "User ID"
// @Param asOf query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /quota/users/{userId} [get]
func (h *QuotaHandler) ForUser(c *gin.Context) {
	h.respond(c, c.Param("userId"))
}

func (h *QuotaHandler) respond(c *gin.Context, userID string) {
	asOf := h.now()
	if raw := c.Query("asOf"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "asOf must be YYYY-MM-DD"))
			return
		}
		// midday keeps the calendar day stable across timezones
		asOf = day.Add(12 * time.Hour)
	}
	status, err := h.service.Status(c.Request.Context(), userID, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
