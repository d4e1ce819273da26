package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/models"
	"github.com/noah-isme/loan-desk-api/pkg/academic"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

type quotaRequestCounter interface {
	CountInWindow(ctx context.Context, userID string, category models.RequestCategory, from, until time.Time) (int, error)
}

// LoanSettings provides the calendar and quota configuration for one operation.
type LoanSettings interface {
	CalendarCutoffs(ctx context.Context) (academic.Cutoffs, error)
	PersonalQuota(ctx context.Context) (int, error)
}

// QuotaService enforces the per-trimester personal use limit.
type QuotaService struct {
	requests quotaRequestCounter
	settings LoanSettings
	cache    *QuotaCache
	location *time.Location
	logger   *zap.Logger
}

// QuotaServiceConfig tunes the quota service.
type QuotaServiceConfig struct {
	Location *time.Location
}

// NewQuotaService constructs a QuotaService. The cache is optional.
func NewQuotaService(requests quotaRequestCounter, settings LoanSettings, cache *QuotaCache, logger *zap.Logger, cfg QuotaServiceConfig) *QuotaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &QuotaService{
		requests: requests,
		settings: settings,
		cache:    cache,
		location: cfg.Location,
		logger:   logger,
	}
}

// Check admits or denies a new request. Only personal use is limited and the
// check fails open outside the course period.
func (s *QuotaService) Check(ctx context.Context, userID string, category models.RequestCategory, today time.Time) error {
	if !category.QuotaLimited() {
		return nil
	}
	window, ok, err := s.window(ctx, today)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	limit, err := s.settings.PersonalQuota(ctx)
	if err != nil {
		return err
	}
	used, err := s.requests.CountInWindow(ctx, userID, models.RequestCategoryPersonalUse, window.From, window.Until)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	if used >= limit {
		return appErrors.WithDetails(appErrors.ErrQuotaExceeded, "", map[string]interface{}{
			"used":           used,
			"limit":          limit,
			"trimesterIndex": window.Index,
		})
	}
	return nil
}

// Status reports the quota usage for the window containing asOf.
func (s *QuotaService) Status(ctx context.Context, userID string, asOf time.Time) (*dto.QuotaStatus, error) {
	asOf = asOf.In(s.location)
	limit, err := s.settings.PersonalQuota(ctx)
	if err != nil {
		return nil, err
	}
	window, ok, err := s.window(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &dto.QuotaStatus{UserID: userID, AsOf: asOf, Limit: limit, Remaining: limit, OutsideCoursePeriod: true}, nil
	}

	slot := window.From.Format("2006-01-02")
	var cached dto.QuotaStatus
	if s.cache.Load(ctx, userID, slot, &cached) && cached.Limit == limit {
		cached.AsOf = asOf
		return &cached, nil
	}

	used, err := s.requests.CountInWindow(ctx, userID, models.RequestCategoryPersonalUse, window.From, window.Until)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	from := window.From
	lastDay := window.LastDay()
	status := &dto.QuotaStatus{
		UserID:         userID,
		AsOf:           asOf,
		Used:           used,
		Limit:          limit,
		Remaining:      remaining,
		TrimesterIndex: window.Index,
		WindowFrom:     &from,
		WindowLastDay:  &lastDay,
	}
	s.cache.Store(ctx, userID, slot, status)
	return status, nil
}

// Invalidate drops cached quota status for the user.
func (s *QuotaService) Invalidate(ctx context.Context, userID string) {
	s.cache.Forget(ctx, userID)
}

func (s *QuotaService) window(ctx context.Context, today time.Time) (academic.Window, bool, error) {
	cutoffs, err := s.settings.CalendarCutoffs(ctx)
	if err != nil {
		return academic.Window{}, false, err
	}
	window, ok := academic.CurrentWindow(today.In(s.location), cutoffs)
	return window, ok, nil
}

