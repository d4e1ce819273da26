package models

import "time"

// NotificationKind identifies which terminal transition produced a notification.
type NotificationKind string

const (
	NotificationLoanApproved    NotificationKind = "LOAN_APPROVED"
	NotificationRequestRejected NotificationKind = "REQUEST_REJECTED"
)

// Notification is the contract handed to the notification trigger.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	RequestID     string           `json:"request_id,omitempty"`
	BorrowerEmail string           `json:"borrower_email"`
	BorrowerName  string           `json:"borrower_name"`
	Locale        string           `json:"locale"`
	Loan          *Loan            `json:"loan,omitempty"`
	Units         []PhysicalUnit   `json:"units,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// RequestEventType names lifecycle events pushed to staff clients.
type RequestEventType string

const (
	RequestEventCreated   RequestEventType = "request.created"
	RequestEventApproved  RequestEventType = "request.approved"
	RequestEventRejected  RequestEventType = "request.rejected"
	RequestEventCancelled RequestEventType = "request.cancelled"
	RequestEventWalkUp    RequestEventType = "loan.walk_up"
)

// RequestEvent is broadcast on the realtime feed.
type RequestEvent struct {
	Type        RequestEventType `json:"type"`
	RequestID   string           `json:"request_id,omitempty"`
	LoanID      string           `json:"loan_id,omitempty"`
	RequesterID string           `json:"requester_id,omitempty"`
	ActorID     string           `json:"actor_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
}
