package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

// ErrRequestNotPending is returned when a conditional transition finds the request already resolved.
var ErrRequestNotPending = errors.New("request is not pending")

const requestColumns = `id, requester_id, category, status, terms_accepted, teacher_ref, grade_ref,
       resolver_id, rejection_reason, created_at, resolved_at`

const requestItemColumns = `id, request_id, position, book_id, equipment_id, quantity`

// RequestRepository persists loan requests and their line items.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateWithItems inserts the request and all of its line items atomically.
func (r *RequestRepository) CreateWithItems(ctx context.Context, req *models.Request) (err error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRequest = `INSERT INTO requests (id, requester_id, category, status, terms_accepted, teacher_ref, grade_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insertRequest, req.ID, req.RequesterID, req.Category, req.Status, req.TermsAccepted,
		req.TeacherRef, req.GradeRef, req.CreatedAt); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	const insertItem = `INSERT INTO request_items (id, request_id, position, book_id, equipment_id, quantity)
VALUES ($1, $2, $3, $4, $5, $6)`
	for i := range req.Items {
		item := &req.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.RequestID = req.ID
		item.Position = i + 1
		if _, err = tx.ExecContext(ctx, insertItem, item.ID, item.RequestID, item.Position, item.BookID, item.EquipmentID, item.Quantity); err != nil {
			return fmt.Errorf("insert request item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// GetByID returns the request with its line items in position order.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	itemQuery := `SELECT ` + requestItemColumns + ` FROM request_items WHERE request_id = $1 ORDER BY position ASC`
	var items []models.RequestItem
	if err := r.db.SelectContext(ctx, &items, itemQuery, id); err != nil {
		return nil, fmt.Errorf("list request items: %w", err)
	}
	req.Items = items
	return &req, nil
}

// List returns requests matching the filter, newest first, with their items and the total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d", requestColumns, clause, size, offset)
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM requests"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	if err := r.attachItems(ctx, requests); err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *RequestRepository) attachItems(ctx context.Context, requests []models.Request) error {
	if len(requests) == 0 {
		return nil
	}
	ids := make([]string, len(requests))
	index := make(map[string]int, len(requests))
	for i, req := range requests {
		ids[i] = req.ID
		index[req.ID] = i
	}
	query := `SELECT ` + requestItemColumns + ` FROM request_items WHERE request_id = ANY($1) ORDER BY request_id, position ASC`
	var items []models.RequestItem
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list request items: %w", err)
	}
	for _, item := range items {
		if i, ok := index[item.RequestID]; ok {
			requests[i].Items = append(requests[i].Items, item)
		}
	}
	return nil
}

// CountInWindow counts non-cancelled requests of the category created in [from, until).
func (r *RequestRepository) CountInWindow(ctx context.Context, userID string, category models.RequestCategory, from, until time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM requests
WHERE requester_id = $1 AND category = $2 AND created_at >= $3 AND created_at < $4 AND status <> $5`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, category, from, until, models.RequestStatusCancelled); err != nil {
		return 0, fmt.Errorf("count requests in window: %w", err)
	}
	return count, nil
}

// RejectParams captures the resolution of a rejected request.
type RejectParams struct {
	ID         string
	ResolverID string
	Reason     string
	ResolvedAt time.Time
}

// Reject marks a pending request as rejected. It returns ErrRequestNotPending
// when the request was resolved concurrently.
func (r *RequestRepository) Reject(ctx context.Context, params RejectParams) error {
	const query = `UPDATE requests SET status = $2, resolver_id = $3, rejection_reason = $4, resolved_at = $5
WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, params.ID, models.RequestStatusRejected, params.ResolverID, params.Reason, params.ResolvedAt)
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reject rows: %w", err)
	}
	if rows == 0 {
		return ErrRequestNotPending
	}
	return nil
}

// Delete removes a pending request and its line items.
func (r *RequestRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete request tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.RequestStatus
	if err = tx.GetContext(ctx, &status, `SELECT status FROM requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock request: %w", err)
	}
	if status != models.RequestStatusPending {
		err = ErrRequestNotPending
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM request_items WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("delete request items: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete request: %w", err)
	}
	return nil
}

// MarkCancelled keeps the row and moves a pending request to CANCELLED.
// Resolver and resolution time stay empty for cancelled requests.
func (r *RequestRepository) MarkCancelled(ctx context.Context, id string) error {
	const query = `UPDATE requests SET status = $2 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, models.RequestStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check cancel rows: %w", err)
	}
	if rows == 0 {
		return ErrRequestNotPending
	}
	return nil
}
