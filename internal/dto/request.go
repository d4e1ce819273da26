package dto

import (
	"time"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

// CreateRequestItem is one requested catalog reference. Exactly one of BookID and
// EquipmentID must be set. A zero quantity means one unit.
type CreateRequestItem struct {
	BookID      *string `json:"book_id,omitempty"`
	EquipmentID *string `json:"equipment_id,omitempty"`
	Quantity    int     `json:"quantity" validate:"gte=0,lte=50"`
}

// CreateRequestRequest is the payload for submitting a loan request.
type CreateRequestRequest struct {
	Category      models.RequestCategory `json:"category"`
	Items         []CreateRequestItem    `json:"items"`
	TermsAccepted bool                   `json:"terms_accepted"`
	TeacherRef    *string                `json:"teacher_ref,omitempty"`
	GradeRef      *string                `json:"grade_ref,omitempty"`
}

// ApproveRequest carries the staff selection of physical units.
type ApproveRequest struct {
	UnitIDs      []string   `json:"unit_ids"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	NotifyLocale string     `json:"notify_locale,omitempty"`
}

// RejectRequest references the rejection reason template to snapshot.
type RejectRequest struct {
	ReasonID     string `json:"reason_id" validate:"required"`
	NotifyLocale string `json:"notify_locale,omitempty"`
}

// WalkUpRequest creates a loan directly at the desk.
type WalkUpRequest struct {
	BorrowerID   string     `json:"borrower_id" validate:"required"`
	UnitIDs      []string   `json:"unit_ids" validate:"required,min=1,dive,required"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	NotifyLocale string     `json:"notify_locale,omitempty"`
}

// RequestQuery holds list filters bound from the query string.
type RequestQuery struct {
	Status   string `form:"status"`
	Category string `form:"category"`
	UserID   string `form:"user_id"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ItemAvailability reports the free units that could satisfy one line item.
type ItemAvailability struct {
	RequestItemID  string          `json:"request_item_id"`
	Position       int             `json:"position"`
	Kind           models.UnitKind `json:"kind"`
	CatalogID      string          `json:"catalog_id"`
	Quantity       int             `json:"quantity"`
	Available      bool            `json:"available"`
	Sufficient     bool            `json:"sufficient"`
	CandidateUnits []string        `json:"candidate_units"`
	DefaultPick    *string         `json:"default_pick,omitempty"`
}

// QuotaStatus describes a user's personal-use quota for the window containing AsOf.
type QuotaStatus struct {
	UserID              string     `json:"user_id"`
	AsOf                time.Time  `json:"as_of"`
	Used                int        `json:"used"`
	Limit               int        `json:"limit"`
	Remaining           int        `json:"remaining"`
	TrimesterIndex      int        `json:"trimester_index,omitempty"`
	WindowFrom          *time.Time `json:"window_from,omitempty"`
	WindowLastDay       *time.Time `json:"window_last_day,omitempty"`
	OutsideCoursePeriod bool       `json:"outside_course_period"`
}
