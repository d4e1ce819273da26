package dto

import "time"

// SettingItem is the effective value of one loan setting.
type SettingItem struct {
	Key         string     `json:"key"`
	Value       string     `json:"value"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	Overridden  bool       `json:"overridden"`
	UpdatedBy   *string    `json:"updated_by,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// UpdateSettingRequest carries the new value for the key named in the path.
type UpdateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

// BulkUpdateSettingsRequest changes several keys in one transaction, typically
// the three trimester cutoffs together.
type BulkUpdateSettingsRequest struct {
	Values map[string]string `json:"values" binding:"required"`
}
