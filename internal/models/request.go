package models

import "time"

// RequestCategory determines quota applicability and review rules.
type RequestCategory string

const (
	RequestCategoryTeacherWork RequestCategory = "FOR_TEACHER_WORK"
	RequestCategoryPersonalUse RequestCategory = "PERSONAL_USE"
)

// Valid reports whether the category is known.
func (c RequestCategory) Valid() bool {
	switch c {
	case RequestCategoryTeacherWork, RequestCategoryPersonalUse:
		return true
	}
	return false
}

// QuotaLimited reports whether requests of this category count towards the trimester quota.
func (c RequestCategory) QuotaLimited() bool {
	return c == RequestCategoryPersonalUse
}

// RequestStatus captures the lifecycle state of a loan request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	return s != RequestStatusPending
}

// Request is a borrower's ask for one or more catalog entries.
type Request struct {
	ID              string          `db:"id" json:"id"`
	RequesterID     string          `db:"requester_id" json:"requester_id"`
	Category        RequestCategory `db:"category" json:"category"`
	Status          RequestStatus   `db:"status" json:"status"`
	TermsAccepted   bool            `db:"terms_accepted" json:"terms_accepted"`
	TeacherRef      *string         `db:"teacher_ref" json:"teacher_ref,omitempty"`
	GradeRef        *string         `db:"grade_ref" json:"grade_ref,omitempty"`
	ResolverID      *string         `db:"resolver_id" json:"resolver_id,omitempty"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`

	Items []RequestItem `db:"-" json:"items"`
}

// RequestItem is one requested catalog reference. Exactly one of BookID and
// EquipmentID is set.
type RequestItem struct {
	ID          string  `db:"id" json:"id"`
	RequestID   string  `db:"request_id" json:"request_id"`
	Position    int     `db:"position" json:"position"`
	BookID      *string `db:"book_id" json:"book_id,omitempty"`
	EquipmentID *string `db:"equipment_id" json:"equipment_id,omitempty"`
	Quantity    int     `db:"quantity" json:"quantity"`
}

// UnitKind returns the physical unit kind that can satisfy this item.
func (i RequestItem) UnitKind() UnitKind {
	if i.BookID != nil {
		return UnitKindBookCopy
	}
	return UnitKindEquipmentUnit
}

// CatalogID returns the referenced book or equipment id.
func (i RequestItem) CatalogID() string {
	if i.BookID != nil {
		return *i.BookID
	}
	if i.EquipmentID != nil {
		return *i.EquipmentID
	}
	return ""
}

// RequestFilter constrains listing queries.
type RequestFilter struct {
	Status      []RequestStatus
	Category    RequestCategory
	RequesterID string
	Page        int
	PageSize    int
}
