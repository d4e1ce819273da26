package models

// UnitKind distinguishes book copies from equipment units.
type UnitKind string

const (
	UnitKindBookCopy      UnitKind = "BOOK_COPY"
	UnitKindEquipmentUnit UnitKind = "EQUIPMENT_UNIT"
)

// AvailabilityState is owned by inventory; loan materialization flips it.
type AvailabilityState string

const (
	AvailabilityAvailable        AvailabilityState = "AVAILABLE"
	AvailabilityReservedOrLoaned AvailabilityState = "RESERVED_OR_LOANED"
	AvailabilityBlocked          AvailabilityState = "BLOCKED"
	AvailabilityInRepair         AvailabilityState = "IN_REPAIR"
)

// UnitCondition describes the physical state of a unit.
type UnitCondition string

const (
	UnitConditionFunctional     UnitCondition = "FUNCTIONAL"
	UnitConditionObsoleteUsable UnitCondition = "OBSOLETE_USABLE"
	UnitConditionBroken         UnitCondition = "BROKEN"
	UnitConditionLost           UnitCondition = "LOST"
)

// Lendable reports whether a unit in this condition may be handed out.
func (c UnitCondition) Lendable() bool {
	return c == UnitConditionFunctional || c == UnitConditionObsoleteUsable
}

// PhysicalUnit is a specific lendable copy of a catalog entry.
type PhysicalUnit struct {
	ID                string            `db:"id" json:"id"`
	Kind              UnitKind          `db:"kind" json:"kind"`
	CatalogID         string            `db:"catalog_id" json:"catalog_id"`
	Code              string            `db:"code" json:"code"`
	Title             string            `db:"title" json:"title"`
	AvailabilityState AvailabilityState `db:"availability_state" json:"availability_state"`
	Condition         UnitCondition     `db:"condition" json:"condition"`
}
