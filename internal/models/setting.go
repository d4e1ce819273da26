package models

import "time"

// SettingKind describes how a loan setting value is parsed.
type SettingKind string

const (
	SettingKindDayMonth SettingKind = "DAY_MONTH"
	SettingKindInteger  SettingKind = "INTEGER"
)

// LoanSetting is a persisted override of a loan desk setting. Keys without a
// row fall back to the environment defaults.
type LoanSetting struct {
	Key       string      `db:"key" json:"key"`
	Value     string      `db:"value" json:"value"`
	Kind      SettingKind `db:"kind" json:"kind"`
	UpdatedBy *string     `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
