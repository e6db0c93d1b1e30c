package recommend

import (
	"context"

	"github.com/google/uuid"
)

type HistoryRepository interface {
	// ListVisitsWithPrescriptions returns every visit with at least one
	// prescription (active or outdated) except excludeVisitID, ordered by
	// report date, then creation time, then id.
	ListVisitsWithPrescriptions(ctx context.Context, excludeVisitID uuid.UUID) ([]Candidate, error)
}
