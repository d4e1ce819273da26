package models

import "time"

// SanctionStatus tracks whether a disciplinary sanction is in force.
type SanctionStatus string

const (
	SanctionStatusActive SanctionStatus = "ACTIVE"
	SanctionStatusEnded  SanctionStatus = "ENDED"
)

// Sanction blocks a user from creating requests while active.
type Sanction struct {
	ID       string         `db:"id" json:"id"`
	UserID   string         `db:"user_id" json:"user_id"`
	Severity string         `db:"severity" json:"severity"`
	Status   SanctionStatus `db:"status" json:"status"`
	StartAt  time.Time      `db:"start_at" json:"start_at"`
	EndAt    *time.Time     `db:"end_at" json:"end_at,omitempty"`
}
