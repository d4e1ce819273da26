package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

// Unit rejection reasons reported by UnitUnavailableError.
const (
	UnitReasonNotFound    = "not_found"
	UnitReasonNotFree     = "not_available"
	UnitReasonNotLendable = "not_lendable"
)

// UnitUnavailableError names the unit that failed re-validation inside the loan transaction.
type UnitUnavailableError struct {
	UnitID string
	Reason string
}

func (e *UnitUnavailableError) Error() string {
	return fmt.Sprintf("unit %s unavailable: %s", e.UnitID, e.Reason)
}

const loanColumns = `id, borrower_id, origin_request_id, category, status, resolver_id, start_at, due_at, returned_at`

const loanItemColumns = `id, loan_id, book_copy_id, equipment_unit_id, returned`

// LoanRepository materializes and reads loans.
type LoanRepository struct {
	db        *sqlx.DB
	txTimeout time.Duration
}

// NewLoanRepository constructs the repository. A non-positive timeout disables the transaction deadline.
func NewLoanRepository(db *sqlx.DB, txTimeout time.Duration) *LoanRepository {
	return &LoanRepository{db: db, txTimeout: txTimeout}
}

// MaterializeParams describes the loan to create. RequestID is nil for walk-up loans.
type MaterializeParams struct {
	RequestID  *string
	BorrowerID string
	Category   models.LoanCategory
	ResolverID string
	StartAt    time.Time
	DueAt      time.Time
	UnitIDs    []string
}

// Materialization is the committed loan with the units bound to it.
type Materialization struct {
	Loan  models.Loan
	Units []models.PhysicalUnit
}

// Materialize creates the loan, reserves every unit and approves the originating
// request in a single transaction. Units are locked in ascending id order. Any
// failure rolls back the whole transaction.
func (r *LoanRepository) Materialize(ctx context.Context, params MaterializeParams) (result *Materialization, err error) {
	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin materialize tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if params.RequestID != nil {
		var status models.RequestStatus
		if err = tx.GetContext(ctx, &status, `SELECT status FROM requests WHERE id = $1 FOR UPDATE`, *params.RequestID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("lock request: %w", err)
		}
		if status != models.RequestStatusPending {
			err = ErrRequestNotPending
			return nil, err
		}
	}

	loan := models.Loan{
		ID:              uuid.NewString(),
		BorrowerID:      params.BorrowerID,
		OriginRequestID: params.RequestID,
		Category:        params.Category,
		Status:          models.LoanStatusActive,
		ResolverID:      params.ResolverID,
		StartAt:         params.StartAt,
		DueAt:           params.DueAt,
	}
	const insertLoan = `INSERT INTO loans (id, borrower_id, origin_request_id, category, status, resolver_id, start_at, due_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insertLoan, loan.ID, loan.BorrowerID, loan.OriginRequestID, loan.Category, loan.Status,
		loan.ResolverID, loan.StartAt, loan.DueAt); err != nil {
		return nil, fmt.Errorf("insert loan: %w", err)
	}

	unitIDs := append([]string(nil), params.UnitIDs...)
	sort.Strings(unitIDs)

	const lockUnit = `SELECT id, kind, catalog_id, code, title, availability_state, condition
FROM physical_units WHERE id = $1 FOR UPDATE`
	const reserveUnit = `UPDATE physical_units SET availability_state = $2 WHERE id = $1`
	const insertItem = `INSERT INTO loan_items (id, loan_id, book_copy_id, equipment_unit_id, returned)
VALUES ($1, $2, $3, $4, FALSE)`

	units := make([]models.PhysicalUnit, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		var unit models.PhysicalUnit
		if err = tx.GetContext(ctx, &unit, lockUnit, unitID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = &UnitUnavailableError{UnitID: unitID, Reason: UnitReasonNotFound}
				return nil, err
			}
			return nil, fmt.Errorf("lock unit %s: %w", unitID, err)
		}
		if unit.AvailabilityState != models.AvailabilityAvailable {
			err = &UnitUnavailableError{UnitID: unitID, Reason: UnitReasonNotFree}
			return nil, err
		}
		if !unit.Condition.Lendable() {
			err = &UnitUnavailableError{UnitID: unitID, Reason: UnitReasonNotLendable}
			return nil, err
		}
		if _, err = tx.ExecContext(ctx, reserveUnit, unitID, models.AvailabilityReservedOrLoaned); err != nil {
			return nil, fmt.Errorf("reserve unit %s: %w", unitID, err)
		}

		item := models.LoanItem{ID: uuid.NewString(), LoanID: loan.ID}
		if unit.Kind == models.UnitKindBookCopy {
			item.BookCopyID = &unit.ID
		} else {
			item.EquipmentUnitID = &unit.ID
		}
		if _, err = tx.ExecContext(ctx, insertItem, item.ID, item.LoanID, item.BookCopyID, item.EquipmentUnitID); err != nil {
			return nil, fmt.Errorf("insert loan item: %w", err)
		}
		unit.AvailabilityState = models.AvailabilityReservedOrLoaned
		units = append(units, unit)
		loan.Items = append(loan.Items, item)
	}

	if params.RequestID != nil {
		const approve = `UPDATE requests SET status = $2, resolver_id = $3, resolved_at = $4 WHERE id = $1 AND status = 'PENDING'`
		if _, err = tx.ExecContext(ctx, approve, *params.RequestID, models.RequestStatusApproved, params.ResolverID, params.StartAt); err != nil {
			return nil, fmt.Errorf("approve request: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit materialize tx: %w", err)
	}
	return &Materialization{Loan: loan, Units: units}, nil
}

// GetByID returns a loan with its items.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*models.Loan, error) {
	return r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

// GetByRequestID returns the loan produced by approving the request.
func (r *LoanRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Loan, error) {
	return r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE origin_request_id = $1`, requestID)
}

func (r *LoanRepository) getOne(ctx context.Context, query, arg string) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.GetContext(ctx, &loan, query, arg); err != nil {
		return nil, err
	}
	var items []models.LoanItem
	if err := r.db.SelectContext(ctx, &items, `SELECT `+loanItemColumns+` FROM loan_items WHERE loan_id = $1 ORDER BY id ASC`, loan.ID); err != nil {
		return nil, fmt.Errorf("list loan items: %w", err)
	}
	loan.Items = items
	return &loan, nil
}
