package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

// UnitRepository reads physical inventory units.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository constructs the repository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// ListAvailable returns lendable, available units of the given kind for the catalog ids, ordered by id.
func (r *UnitRepository) ListAvailable(ctx context.Context, kind models.UnitKind, catalogIDs []string) ([]models.PhysicalUnit, error) {
	if len(catalogIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, kind, catalog_id, code, title, availability_state, condition
FROM physical_units
WHERE kind = $1 AND catalog_id = ANY($2) AND availability_state = $3 AND condition = ANY($4)
ORDER BY id ASC`
	conditions := []string{string(models.UnitConditionFunctional), string(models.UnitConditionObsoleteUsable)}
	var units []models.PhysicalUnit
	if err := r.db.SelectContext(ctx, &units, query, kind, pq.Array(catalogIDs), models.AvailabilityAvailable, pq.Array(conditions)); err != nil {
		return nil, fmt.Errorf("list available units: %w", err)
	}
	return units, nil
}
