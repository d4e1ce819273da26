package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SanctionRepository reads disciplinary sanctions.
type SanctionRepository struct {
	db *sqlx.DB
}

// NewSanctionRepository constructs the repository.
func NewSanctionRepository(db *sqlx.DB) *SanctionRepository {
	return &SanctionRepository{db: db}
}

// HasActiveSince reports whether the user has an active sanction that started
// on or after since and is still in force at asOf.
func (r *SanctionRepository) HasActiveSince(ctx context.Context, userID string, since, asOf time.Time) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM sanctions
	WHERE user_id = $1 AND status = 'ACTIVE' AND start_at >= $2 AND start_at <= $3
	  AND (end_at IS NULL OR end_at > $3)
)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, since, asOf); err != nil {
		return false, fmt.Errorf("check active sanction: %w", err)
	}
	return exists, nil
}
