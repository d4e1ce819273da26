package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

const upsertSettingQuery = `INSERT INTO loan_settings (key, value, kind, updated_by, updated_at)
VALUES (:key, :value, :kind, :updated_by, :updated_at)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, kind = EXCLUDED.kind,
	updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`

// SettingRepository persists loan setting overrides.
type SettingRepository struct {
	db *sqlx.DB
}

// NewSettingRepository constructs the repository.
func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// All returns every stored override ordered by key.
func (r *SettingRepository) All(ctx context.Context) ([]models.LoanSetting, error) {
	var settings []models.LoanSetting
	err := r.db.SelectContext(ctx, &settings, `SELECT key, value, kind, updated_by, updated_at FROM loan_settings ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list loan settings: %w", err)
	}
	return settings, nil
}

// Save upserts the given settings atomically.
func (r *SettingRepository) Save(ctx context.Context, settings []models.LoanSetting) (err error) {
	if len(settings) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for i := range settings {
		settings[i].UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, upsertSettingQuery, settings[i]); err != nil {
			return fmt.Errorf("save setting %s: %w", settings[i].Key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit settings tx: %w", err)
	}
	return nil
}
