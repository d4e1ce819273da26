package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/models"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

type availabilityRequestReader interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
}

type availabilityUnitReader interface {
	ListAvailable(ctx context.Context, kind models.UnitKind, catalogIDs []string) ([]models.PhysicalUnit, error)
}

// AvailabilityService lists free units for each line item of a request. The
// result is advisory; the loan transaction re-validates every unit.
type AvailabilityService struct {
	requests availabilityRequestReader
	units    availabilityUnitReader
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(requests availabilityRequestReader, units availabilityUnitReader) *AvailabilityService {
	return &AvailabilityService{requests: requests, units: units}
}

// Resolve returns one entry per line item, in item order, with candidates ordered by unit id.
func (s *AvailabilityService) Resolve(ctx context.Context, requestID string) ([]dto.ItemAvailability, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return s.ResolveItems(ctx, req.Items)
}

// ResolveItems computes availability for the given line items.
func (s *AvailabilityService) ResolveItems(ctx context.Context, items []models.RequestItem) ([]dto.ItemAvailability, error) {
	catalogByKind := map[models.UnitKind][]string{}
	seen := map[models.UnitKind]map[string]struct{}{}
	for _, item := range items {
		kind := item.UnitKind()
		if seen[kind] == nil {
			seen[kind] = map[string]struct{}{}
		}
		id := item.CatalogID()
		if _, ok := seen[kind][id]; ok {
			continue
		}
		seen[kind][id] = struct{}{}
		catalogByKind[kind] = append(catalogByKind[kind], id)
	}

	candidates := map[models.UnitKind]map[string][]string{}
	for _, kind := range []models.UnitKind{models.UnitKindBookCopy, models.UnitKindEquipmentUnit} {
		ids := catalogByKind[kind]
		if len(ids) == 0 {
			continue
		}
		units, err := s.units.ListAvailable(ctx, kind, ids)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available units")
		}
		byCatalog := map[string][]string{}
		for _, unit := range units {
			byCatalog[unit.CatalogID] = append(byCatalog[unit.CatalogID], unit.ID)
		}
		candidates[kind] = byCatalog
	}

	result := make([]dto.ItemAvailability, 0, len(items))
	for _, item := range items {
		kind := item.UnitKind()
		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		units := candidates[kind][item.CatalogID()]
		if units == nil {
			units = []string{}
		}
		entry := dto.ItemAvailability{
			RequestItemID:  item.ID,
			Position:       item.Position,
			Kind:           kind,
			CatalogID:      item.CatalogID(),
			Quantity:       quantity,
			Available:      len(units) > 0,
			Sufficient:     len(units) >= quantity,
			CandidateUnits: units,
		}
		if len(units) > 0 {
			pick := units[0]
			entry.DefaultPick = &pick
		}
		result = append(result, entry)
	}
	return result, nil
}
