package visit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	UpdateSituation(ctx context.Context, id uuid.UUID, situationID *int, actor string) error
	Touch(ctx context.Context, id uuid.UUID, actor string) error
}

type TestResultRepository interface {
	Create(ctx context.Context, r *TestResult) error
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*TestResult, error)
	UpdateValue(ctx context.Context, id uuid.UUID, value float64, actor string) error
	// LatestPTHBefore returns the most recent PTH value from the patient's
	// visits dated strictly before the given date, ignoring excludeVisitID.
	// It returns nil when there is none.
	LatestPTHBefore(ctx context.Context, patientID, excludeVisitID uuid.UUID, before time.Time) (*float64, error)
}
