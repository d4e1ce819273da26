package models

import "time"

// LoanCategory mirrors the originating request category, or WALK_UP.
type LoanCategory string

const (
	LoanCategoryTeacherWork LoanCategory = "TEACHER_WORK"
	LoanCategoryPersonalUse LoanCategory = "PERSONAL_USE"
	LoanCategoryWalkUp      LoanCategory = "WALK_UP"
)

// LoanCategoryFor maps a request category to its loan category.
func LoanCategoryFor(c RequestCategory) LoanCategory {
	if c == RequestCategoryTeacherWork {
		return LoanCategoryTeacherWork
	}
	return LoanCategoryPersonalUse
}

// LoanStatus is ACTIVE until every item is returned.
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "ACTIVE"
	LoanStatusClosed LoanStatus = "CLOSED"
)

// Loan is the materialized lending record produced by an approval or a walk-up.
type Loan struct {
	ID              string       `db:"id" json:"id"`
	BorrowerID      string       `db:"borrower_id" json:"borrower_id"`
	OriginRequestID *string      `db:"origin_request_id" json:"origin_request_id,omitempty"`
	Category        LoanCategory `db:"category" json:"category"`
	Status          LoanStatus   `db:"status" json:"status"`
	ResolverID      string       `db:"resolver_id" json:"resolver_id"`
	StartAt         time.Time    `db:"start_at" json:"start_at"`
	DueAt           time.Time    `db:"due_at" json:"due_at"`
	ReturnedAt      *time.Time   `db:"returned_at" json:"returned_at,omitempty"`

	Items []LoanItem `db:"-" json:"items"`
}

// LoanItem binds a loan to exactly one physical unit.
type LoanItem struct {
	ID              string  `db:"id" json:"id"`
	LoanID          string  `db:"loan_id" json:"loan_id"`
	BookCopyID      *string `db:"book_copy_id" json:"book_copy_id,omitempty"`
	EquipmentUnitID *string `db:"equipment_unit_id" json:"equipment_unit_id,omitempty"`
	Returned        bool    `db:"returned" json:"returned"`
}

// UnitID returns whichever unit reference is set.
func (i LoanItem) UnitID() string {
	if i.BookCopyID != nil {
		return *i.BookCopyID
	}
	if i.EquipmentUnitID != nil {
		return *i.EquipmentUnitID
	}
	return ""
}
