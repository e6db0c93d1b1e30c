package recommend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/medication"
	"github.com/ehr/ckdmbd/internal/domain/visit"
	"github.com/ehr/ckdmbd/internal/platform/metrics"
)

type Service struct {
	history       HistoryRepository
	types         medication.MedicationTypeRepository
	prescriptions medication.PrescriptionRepository
	visits        visit.VisitRepository
	results       visit.TestResultRepository
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func NewService(history HistoryRepository, types medication.MedicationTypeRepository,
	prescriptions medication.PrescriptionRepository, visits visit.VisitRepository,
	results visit.TestResultRepository, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{
		history:       history,
		types:         types,
		prescriptions: prescriptions,
		visits:        visits,
		results:       results,
		metrics:       m,
		log:           log.With().Str("component", "recommend").Logger(),
	}
}

// SuggestedItem is the proposed dosage for one medication type.
type SuggestedItem struct {
	MedicationTypeID int     `json:"medication_type_id"`
	Code             string  `json:"code"`
	Name             string  `json:"name"`
	Unit             string  `json:"unit"`
	Dosage           float64 `json:"dosage"`
}

// Suggestion is a proposed prescription. Nothing is persisted.
type Suggestion struct {
	Classification classification.Result `json:"classification"`
	Matched        bool                  `json:"matched"`
	Match          *Match                `json:"match,omitempty"`
	Items          []SuggestedItem       `json:"items"`
}

// Suggest classifies values and proposes the dosages of the closest treated
// visit. excludeVisitID keeps a visit from matching itself (uuid.Nil for a
// new patient). Without a match every medication type is proposed at 0.
// values must already carry corrected calcium.
func (s *Service) Suggest(ctx context.Context, values classification.TestValues, excludeVisitID uuid.UUID) (*Suggestion, error) {
	if err := classification.Validate(values); err != nil {
		return nil, err
	}
	result := classification.Classify(values)

	history, err := s.history.ListVisitsWithPrescriptions(ctx, excludeVisitID)
	if err != nil {
		return nil, err
	}
	types, err := s.types.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list medication types: %w", err)
	}

	sug := &Suggestion{Classification: result}
	match, ok := FindClosestPriorVisit(ProfileOf(values, result), history)
	dosages := map[int]float64{}
	if ok {
		sug.Matched = true
		sug.Match = match
		rx, err := s.prescriptions.ListByVisit(ctx, match.Candidate.VisitID)
		if err != nil {
			return nil, err
		}
		dosages = dosageByType(rx)
	}
	for _, t := range types {
		sug.Items = append(sug.Items, SuggestedItem{
			MedicationTypeID: t.ID, Code: t.Code, Name: t.Name, Unit: t.Unit,
			Dosage: dosages[t.ID],
		})
	}

	s.metrics.ObserveRecommendation(ok)
	ev := s.log.Debug().Str("situation_code", result.SituationCode).Bool("matched", ok)
	if ok {
		ev = ev.Str("matched_visit_id", match.Candidate.VisitID.String()).Float64("score", match.Score)
	}
	ev.Msg("recommendation computed")
	return sug, nil
}

// SuggestForVisit runs Suggest on a stored visit's current values, using the
// patient's earlier PTH as the trend baseline.
func (s *Service) SuggestForVisit(ctx context.Context, visitID uuid.UUID) (*Suggestion, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	previousPTH, err := s.results.LatestPTHBefore(ctx, v.PatientID, v.ID, v.ReportDate)
	if err != nil {
		return nil, err
	}
	values, err := classification.FromResults(visit.Snapshot(results), previousPTH)
	if err != nil {
		return nil, err
	}
	return s.Suggest(ctx, values, visitID)
}

// dosageByType picks, per medication type, the active prescription or else
// the most recently created one.
func dosageByType(rx []*medication.Prescription) map[int]float64 {
	chosen := map[int]*medication.Prescription{}
	for _, p := range rx {
		cur, ok := chosen[p.MedicationTypeID]
		switch {
		case !ok:
			chosen[p.MedicationTypeID] = p
		case cur.IsOutdated && !p.IsOutdated:
			chosen[p.MedicationTypeID] = p
		case cur.IsOutdated == p.IsOutdated && p.CreatedAt.After(cur.CreatedAt):
			chosen[p.MedicationTypeID] = p
		}
	}
	out := make(map[int]float64, len(chosen))
	for id, p := range chosen {
		out[id] = p.Dosage
	}
	return out
}
