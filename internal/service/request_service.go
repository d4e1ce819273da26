package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/models"
	"github.com/noah-isme/loan-desk-api/internal/repository"
	"github.com/noah-isme/loan-desk-api/pkg/academic"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

// Transition labels used for metrics and logs.
const (
	TransitionCreate  = "create"
	TransitionApprove = "approve"
	TransitionReject  = "reject"
	TransitionCancel  = "cancel"
	TransitionWalkUp  = "walk_up"
)

type requestStore interface {
	CreateWithItems(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	Reject(ctx context.Context, params repository.RejectParams) error
	Delete(ctx context.Context, id string) error
	MarkCancelled(ctx context.Context, id string) error
}

type loanStore interface {
	Materialize(ctx context.Context, params repository.MaterializeParams) (*repository.Materialization, error)
	GetByID(ctx context.Context, id string) (*models.Loan, error)
}

type sanctionChecker interface {
	HasActiveSince(ctx context.Context, userID string, since, asOf time.Time) (bool, error)
}

type rejectionReasonReader interface {
	GetByID(ctx context.Context, id string) (*models.RejectionReason, error)
	List(ctx context.Context) ([]models.RejectionReason, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type quotaGate interface {
	Check(ctx context.Context, userID string, category models.RequestCategory, today time.Time) error
	Invalidate(ctx context.Context, userID string)
}

type notifier interface {
	Trigger(ctx context.Context, n models.Notification) error
}

type eventPublisher interface {
	Publish(event models.RequestEvent)
}

// RequestServiceConfig tunes lifecycle behaviour.
type RequestServiceConfig struct {
	DueHour       int
	SoftCancel    bool
	Location      *time.Location
	DefaultLocale string
}

// RequestService drives the request lifecycle and loan materialization.
type RequestService struct {
	requests  requestStore
	loans     loanStore
	sanctions sanctionChecker
	reasons   rejectionReasonReader
	users     userReader
	quota     quotaGate
	notifier  notifier
	events    eventPublisher
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       RequestServiceConfig
	now       func() time.Time
}

// RequestServiceDeps groups collaborators of the request service. Notifier,
// Events, Audit and Metrics are optional.
type RequestServiceDeps struct {
	Requests  requestStore
	Loans     loanStore
	Sanctions sanctionChecker
	Reasons   rejectionReasonReader
	Users     userReader
	Quota     quotaGate
	Notifier  notifier
	Events    eventPublisher
	Audit     auditLogger
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestServiceDeps, cfg RequestServiceConfig) *RequestService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DueHour <= 0 || cfg.DueHour > 23 {
		cfg.DueHour = 9
	}
	return &RequestService{
		requests:  deps.Requests,
		loans:     deps.Loans,
		sanctions: deps.Sanctions,
		reasons:   deps.Reasons,
		users:     deps.Users,
		quota:     deps.Quota,
		notifier:  deps.Notifier,
		events:    deps.Events,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *RequestService) clock() time.Time {
	return s.now().In(s.cfg.Location)
}

// Create validates and persists a new pending request. Preconditions are
// checked in a fixed order and the first failure is returned.
func (s *RequestService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateRequestRequest) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	now := s.clock()

	sanctioned, err := s.sanctions.HasActiveSince(ctx, actor.UserID, academic.CourseYearStart(now), now)
	if err != nil {
		s.metrics.RecordTransition(TransitionCreate, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check sanctions")
	}
	if sanctioned {
		s.metrics.RecordTransition(TransitionCreate, OutcomeRejected)
		return nil, appErrors.ErrSanctioned
	}

	items, err := s.validateCreate(req)
	if err != nil {
		s.metrics.RecordTransition(TransitionCreate, OutcomeRejected)
		return nil, err
	}

	if err := s.quota.Check(ctx, actor.UserID, req.Category, now); err != nil {
		s.metrics.RecordTransition(TransitionCreate, outcomeFor(err))
		return nil, err
	}

	request := &models.Request{
		RequesterID:   actor.UserID,
		Category:      req.Category,
		Status:        models.RequestStatusPending,
		TermsAccepted: true,
		CreatedAt:     now.UTC(),
		Items:         items,
	}
	if req.Category == models.RequestCategoryTeacherWork {
		request.TeacherRef = trimmedPtr(req.TeacherRef)
		request.GradeRef = trimmedPtr(req.GradeRef)
	}
	if err := s.requests.CreateWithItems(ctx, request); err != nil {
		s.metrics.RecordTransition(TransitionCreate, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.quota.Invalidate(ctx, actor.UserID)
	s.metrics.RecordTransition(TransitionCreate, OutcomeSuccess)
	s.recordAudit(ctx, actor, models.AuditActionRequestCreate, "request", request.ID, nil, map[string]interface{}{
		"category": request.Category,
		"items":    len(request.Items),
	})
	s.publish(models.RequestEvent{Type: models.RequestEventCreated, RequestID: request.ID, RequesterID: request.RequesterID, ActorID: actor.UserID})
	s.logger.Info("request created",
		zap.String("request_id", request.ID),
		zap.String("actor_id", actor.UserID),
		zap.String("category", string(request.Category)),
	)
	return request, nil
}

func (s *RequestService) validateCreate(req dto.CreateRequestRequest) ([]models.RequestItem, error) {
	if !req.Category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category is invalid")
	}
	if req.Category == models.RequestCategoryTeacherWork {
		if trimmedPtr(req.TeacherRef) == nil || trimmedPtr(req.GradeRef) == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher and grade references are required for teacher work")
		}
	}
	if !req.TermsAccepted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "terms must be accepted")
	}
	if len(req.Items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one item is required")
	}
	items := make([]models.RequestItem, 0, len(req.Items))
	for i, item := range req.Items {
		book := trimmedPtr(item.BookID)
		equipment := trimmedPtr(item.EquipmentID)
		if (book == nil) == (equipment == nil) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "each item must reference exactly one book or equipment", map[string]interface{}{"position": i + 1})
		}
		if err := s.validator.Struct(item); err != nil {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "item quantity must be between 0 and 50", map[string]interface{}{"position": i + 1})
		}
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		items = append(items, models.RequestItem{BookID: book, EquipmentID: equipment, Quantity: quantity})
	}
	return items, nil
}

// Get returns a request. Requesters may only read their own.
func (s *RequestService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, request.RequesterID) {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// List returns requests visible to the actor. Non-staff only see their own.
func (s *RequestService) List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) ([]models.Request, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter, err := buildRequestFilter(query)
	if err != nil {
		return nil, nil, err
	}
	if !actor.Role.IsStaff() {
		filter.RequesterID = actor.UserID
	}
	return s.list(ctx, filter)
}

// ListPending returns the staff review queue, oldest first by repository order.
func (s *RequestService) ListPending(ctx context.Context, query dto.RequestQuery) ([]models.Request, *models.Pagination, error) {
	query.Status = string(models.RequestStatusPending)
	filter, err := buildRequestFilter(query)
	if err != nil {
		return nil, nil, err
	}
	return s.list(ctx, filter)
}

func (s *RequestService) list(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func buildRequestFilter(query dto.RequestQuery) (models.RequestFilter, error) {
	filter := models.RequestFilter{
		RequesterID: strings.TrimSpace(query.UserID),
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	for _, raw := range strings.Split(query.Status, ",") {
		raw = strings.ToUpper(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		status := models.RequestStatus(raw)
		switch status {
		case models.RequestStatusPending, models.RequestStatusApproved, models.RequestStatusRejected, models.RequestStatusCancelled:
			filter.Status = append(filter.Status, status)
		default:
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
	}
	if category := strings.ToUpper(strings.TrimSpace(query.Category)); category != "" {
		filter.Category = models.RequestCategory(category)
		if !filter.Category.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "category is invalid")
		}
	}
	return filter, nil
}

// Approve materializes a loan for a pending request from the staff-selected units.
func (s *RequestService) Approve(ctx context.Context, actor *models.JWTClaims, id string, req dto.ApproveRequest) (*models.Loan, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		s.metrics.RecordTransition(TransitionApprove, outcomeFor(err))
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		s.metrics.RecordTransition(TransitionApprove, OutcomeRejected)
		return nil, appErrors.ErrNotPending
	}
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordTransition(TransitionApprove, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	unitIDs, err := normalizeUnitIDs(req.UnitIDs)
	if err != nil {
		s.metrics.RecordTransition(TransitionApprove, OutcomeRejected)
		return nil, err
	}

	now := s.clock()
	var dueAt time.Time
	if request.Category == models.RequestCategoryTeacherWork {
		if req.DueDate == nil || req.DueDate.IsZero() {
			s.metrics.RecordTransition(TransitionApprove, OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrValidation, "due date is required for teacher work loans")
		}
		if !req.DueDate.After(now) {
			s.metrics.RecordTransition(TransitionApprove, OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrValidation, "due date must be in the future")
		}
		dueAt = req.DueDate.In(s.cfg.Location)
	} else {
		dueAt = academic.NextBusinessDayAt(now, s.cfg.DueHour)
	}

	result, err := s.materialize(ctx, TransitionApprove, repository.MaterializeParams{
		RequestID:  &request.ID,
		BorrowerID: request.RequesterID,
		Category:   models.LoanCategoryFor(request.Category),
		ResolverID: actor.UserID,
		StartAt:    now,
		DueAt:      dueAt,
		UnitIDs:    unitIDs,
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, models.AuditActionRequestApprove, "request", request.ID,
		map[string]interface{}{"status": models.RequestStatusPending},
		map[string]interface{}{"status": models.RequestStatusApproved, "loan_id": result.Loan.ID, "units": unitIDs},
	)
	s.publish(models.RequestEvent{Type: models.RequestEventApproved, RequestID: request.ID, LoanID: result.Loan.ID, RequesterID: request.RequesterID, ActorID: actor.UserID})
	s.notify(ctx, models.Notification{
		Kind:      models.NotificationLoanApproved,
		RequestID: request.ID,
		Locale:    req.NotifyLocale,
		Loan:      &result.Loan,
		Units:     result.Units,
	}, request.RequesterID)
	s.logger.Info("request approved",
		zap.String("request_id", request.ID),
		zap.String("loan_id", result.Loan.ID),
		zap.String("actor_id", actor.UserID),
		zap.Int("units", len(unitIDs)),
	)
	loan := result.Loan
	return &loan, nil
}

// Reject resolves a pending request with a snapshot of the chosen reason template.
func (s *RequestService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		s.metrics.RecordTransition(TransitionReject, outcomeFor(err))
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		s.metrics.RecordTransition(TransitionReject, OutcomeRejected)
		return nil, appErrors.ErrNotPending
	}
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordTransition(TransitionReject, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reason, err := s.reasons.GetByID(ctx, req.ReasonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordTransition(TransitionReject, OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "rejection reason not found")
		}
		s.metrics.RecordTransition(TransitionReject, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rejection reason")
	}

	now := s.clock().UTC()
	text := reason.Text()
	if err := s.requests.Reject(ctx, repository.RejectParams{ID: request.ID, ResolverID: actor.UserID, Reason: text, ResolvedAt: now}); err != nil {
		if errors.Is(err, repository.ErrRequestNotPending) {
			s.metrics.RecordTransition(TransitionReject, OutcomeRejected)
			return nil, appErrors.ErrNotPending
		}
		s.metrics.RecordTransition(TransitionReject, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject request")
	}

	request.Status = models.RequestStatusRejected
	request.ResolverID = &actor.UserID
	request.RejectionReason = &text
	request.ResolvedAt = &now

	s.metrics.RecordTransition(TransitionReject, OutcomeSuccess)
	s.recordAudit(ctx, actor, models.AuditActionRequestReject, "request", request.ID,
		map[string]interface{}{"status": models.RequestStatusPending},
		map[string]interface{}{"status": models.RequestStatusRejected, "reason": text},
	)
	s.publish(models.RequestEvent{Type: models.RequestEventRejected, RequestID: request.ID, RequesterID: request.RequesterID, ActorID: actor.UserID})
	s.notify(ctx, models.Notification{
		Kind:      models.NotificationRequestRejected,
		RequestID: request.ID,
		Locale:    req.NotifyLocale,
		Reason:    text,
	}, request.RequesterID)
	s.logger.Info("request rejected", zap.String("request_id", request.ID), zap.String("actor_id", actor.UserID))
	return request, nil
}

// Cancel withdraws a pending request. Only the requester or staff may cancel.
func (s *RequestService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		s.metrics.RecordTransition(TransitionCancel, outcomeFor(err))
		return err
	}
	if request.Status != models.RequestStatusPending {
		s.metrics.RecordTransition(TransitionCancel, OutcomeRejected)
		return appErrors.ErrNotPending
	}
	if !canAccess(actor, request.RequesterID) {
		s.metrics.RecordTransition(TransitionCancel, OutcomeRejected)
		return appErrors.ErrForbidden
	}

	if s.cfg.SoftCancel {
		err = s.requests.MarkCancelled(ctx, id)
	} else {
		err = s.requests.Delete(ctx, id)
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotPending):
			s.metrics.RecordTransition(TransitionCancel, OutcomeRejected)
			return appErrors.ErrNotPending
		case errors.Is(err, sql.ErrNoRows):
			s.metrics.RecordTransition(TransitionCancel, OutcomeRejected)
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		s.metrics.RecordTransition(TransitionCancel, OutcomeError)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}

	s.quota.Invalidate(ctx, request.RequesterID)
	s.metrics.RecordTransition(TransitionCancel, OutcomeSuccess)
	s.recordAudit(ctx, actor, models.AuditActionRequestCancel, "request", request.ID,
		map[string]interface{}{"status": models.RequestStatusPending},
		map[string]interface{}{"status": models.RequestStatusCancelled, "soft": s.cfg.SoftCancel},
	)
	s.publish(models.RequestEvent{Type: models.RequestEventCancelled, RequestID: request.ID, RequesterID: request.RequesterID, ActorID: actor.UserID})
	s.logger.Info("request cancelled",
		zap.String("request_id", request.ID),
		zap.String("actor_id", actor.UserID),
		zap.Bool("soft", s.cfg.SoftCancel),
	)
	return nil
}

// CreateWalkUp lends units at the desk without a prior request.
func (s *RequestService) CreateWalkUp(ctx context.Context, actor *models.JWTClaims, req dto.WalkUpRequest) (*models.Loan, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordTransition(TransitionWalkUp, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	unitIDs, err := normalizeUnitIDs(req.UnitIDs)
	if err != nil {
		s.metrics.RecordTransition(TransitionWalkUp, OutcomeRejected)
		return nil, err
	}

	borrower, err := s.users.FindByID(ctx, req.BorrowerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordTransition(TransitionWalkUp, OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrower not found")
		}
		s.metrics.RecordTransition(TransitionWalkUp, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrower")
	}

	now := s.clock()
	sanctioned, err := s.sanctions.HasActiveSince(ctx, borrower.ID, academic.CourseYearStart(now), now)
	if err != nil {
		s.metrics.RecordTransition(TransitionWalkUp, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check sanctions")
	}
	if sanctioned {
		s.metrics.RecordTransition(TransitionWalkUp, OutcomeRejected)
		return nil, appErrors.ErrSanctioned
	}

	dueAt := academic.NextBusinessDayAt(now, s.cfg.DueHour)
	if req.DueDate != nil && !req.DueDate.IsZero() {
		if !req.DueDate.After(now) {
			s.metrics.RecordTransition(TransitionWalkUp, OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrValidation, "due date must be in the future")
		}
		dueAt = req.DueDate.In(s.cfg.Location)
	}

	result, err := s.materialize(ctx, TransitionWalkUp, repository.MaterializeParams{
		BorrowerID: borrower.ID,
		Category:   models.LoanCategoryWalkUp,
		ResolverID: actor.UserID,
		StartAt:    now,
		DueAt:      dueAt,
		UnitIDs:    unitIDs,
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, models.AuditActionLoanWalkUp, "loan", result.Loan.ID, nil,
		map[string]interface{}{"borrower_id": borrower.ID, "units": unitIDs},
	)
	s.publish(models.RequestEvent{Type: models.RequestEventWalkUp, LoanID: result.Loan.ID, RequesterID: borrower.ID, ActorID: actor.UserID})
	s.dispatch(ctx, models.Notification{
		Kind:          models.NotificationLoanApproved,
		BorrowerEmail: borrower.Email,
		BorrowerName:  borrower.FullName,
		Locale:        req.NotifyLocale,
		Loan:          &result.Loan,
		Units:         result.Units,
	})
	s.logger.Info("walk-up loan created",
		zap.String("loan_id", result.Loan.ID),
		zap.String("borrower_id", borrower.ID),
		zap.String("actor_id", actor.UserID),
	)
	loan := result.Loan
	return &loan, nil
}

// ListRejectionReasons returns the templates staff can pick from when rejecting.
func (s *RequestService) ListRejectionReasons(ctx context.Context) ([]models.RejectionReason, error) {
	reasons, err := s.reasons.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rejection reasons")
	}
	return reasons, nil
}

// GetLoan returns a loan. Borrowers may only read their own.
func (s *RequestService) GetLoan(ctx context.Context, actor *models.JWTClaims, id string) (*models.Loan, error) {
	loan, err := s.loans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	if !canAccess(actor, loan.BorrowerID) {
		return nil, appErrors.ErrForbidden
	}
	return loan, nil
}

func (s *RequestService) load(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) materialize(ctx context.Context, transition string, params repository.MaterializeParams) (*repository.Materialization, error) {
	start := time.Now()
	result, err := s.loans.Materialize(ctx, params)
	if err == nil {
		s.metrics.ObserveMaterialization(OutcomeSuccess, time.Since(start))
		s.metrics.RecordTransition(transition, OutcomeSuccess)
		return result, nil
	}

	var unitErr *repository.UnitUnavailableError
	var appErr error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		appErr = appErrors.Clone(appErrors.ErrNotFound, "request not found")
	case errors.Is(err, repository.ErrRequestNotPending):
		appErr = appErrors.ErrNotPending
	case errors.As(err, &unitErr):
		details := map[string]interface{}{"unitId": unitErr.UnitID, "reason": unitErr.Reason}
		if unitErr.Reason == repository.UnitReasonNotFound {
			appErr = appErrors.WithDetails(appErrors.ErrNotFound, "unit not found", details)
		} else {
			appErr = appErrors.WithDetails(appErrors.ErrUnitUnavailable, "", details)
		}
	default:
		s.metrics.ObserveMaterialization(OutcomeError, time.Since(start))
		s.metrics.RecordTransition(transition, OutcomeError)
		s.logger.Error("loan materialization failed", zap.String("transition", transition), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
	}
	s.metrics.ObserveMaterialization(OutcomeRejected, time.Since(start))
	s.metrics.RecordTransition(transition, OutcomeRejected)
	return nil, appErr
}

// notify resolves the borrower contact and dispatches the notification.
func (s *RequestService) notify(ctx context.Context, n models.Notification, borrowerID string) {
	if s.notifier == nil {
		return
	}
	borrower, err := s.users.FindByID(ctx, borrowerID)
	if err != nil {
		s.logger.Warn("failed to load borrower for notification", zap.String("request_id", n.RequestID), zap.Error(err))
		return
	}
	n.BorrowerEmail = borrower.Email
	n.BorrowerName = borrower.FullName
	s.dispatch(ctx, n)
}

func (s *RequestService) dispatch(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	if n.Locale == "" {
		n.Locale = s.cfg.DefaultLocale
	}
	n.CreatedAt = s.now().UTC()
	if err := s.notifier.Trigger(ctx, n); err != nil {
		s.logger.Warn("failed to trigger notification",
			zap.String("kind", string(n.Kind)),
			zap.String("request_id", n.RequestID),
			zap.Error(err),
		)
	}
}

func (s *RequestService) publish(event models.RequestEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now().UTC()
	s.events.Publish(event)
}

func (s *RequestService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string, oldValues, newValues map[string]interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "request-service",
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record request audit", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func normalizeUnitIDs(ids []string) ([]string, error) {
	result := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unit selected more than once", map[string]interface{}{"unitId": id})
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	if len(result) == 0 {
		return nil, appErrors.ErrNoItemsGiven
	}
	return result, nil
}

func canAccess(actor *models.JWTClaims, ownerID string) bool {
	if actor == nil {
		return false
	}
	return actor.Role.IsStaff() || actor.UserID == ownerID
}

func outcomeFor(err error) string {
	if appErrors.FromError(err).Status >= 500 {
		return OutcomeError
	}
	return OutcomeRejected
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
