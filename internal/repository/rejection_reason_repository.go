package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

// RejectionReasonRepository reads rejection reason templates.
type RejectionReasonRepository struct {
	db *sqlx.DB
}

// NewRejectionReasonRepository constructs the repository.
func NewRejectionReasonRepository(db *sqlx.DB) *RejectionReasonRepository {
	return &RejectionReasonRepository{db: db}
}

// GetByID returns a template by id.
func (r *RejectionReasonRepository) GetByID(ctx context.Context, id string) (*models.RejectionReason, error) {
	const query = `SELECT id, title, body FROM rejection_reasons WHERE id = $1`
	var reason models.RejectionReason
	if err := r.db.GetContext(ctx, &reason, query, id); err != nil {
		return nil, err
	}
	return &reason, nil
}

// List returns all templates ordered by title.
func (r *RejectionReasonRepository) List(ctx context.Context) ([]models.RejectionReason, error) {
	const query = `SELECT id, title, body FROM rejection_reasons ORDER BY title ASC`
	var reasons []models.RejectionReason
	if err := r.db.SelectContext(ctx, &reasons, query); err != nil {
		return nil, fmt.Errorf("list rejection reasons: %w", err)
	}
	return reasons, nil
}
