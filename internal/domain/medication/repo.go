package medication

import (
	"context"

	"github.com/google/uuid"
)

type MedicationTypeRepository interface {
	List(ctx context.Context) ([]*MedicationType, error)
	GetByID(ctx context.Context, id int) (*MedicationType, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Prescription, error)
	ListActiveByVisit(ctx context.Context, visitID uuid.UUID) ([]*Prescription, error)
	// OutdateActiveByVisit marks every active prescription of the visit as
	// outdated and returns how many rows changed.
	OutdateActiveByVisit(ctx context.Context, visitID uuid.UUID, reason, actor string) (int, error)
	OutdateByVisitAndType(ctx context.Context, visitID uuid.UUID, medicationTypeID int, reason, actor string) (int, error)
}
