package revision

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/medication"
	"github.com/ehr/ckdmbd/internal/domain/visit"
	"github.com/ehr/ckdmbd/internal/platform/db"
)

// memState backs the mock repositories. Rows are stored by value so a
// transaction can snapshot and restore the whole state.
type memState struct {
	visits     map[uuid.UUID]visit.Visit
	results    map[uuid.UUID]visit.TestResult
	rx         map[uuid.UUID]medication.Prescription
	failUpdate uuid.UUID
}

func newMemState() *memState {
	return &memState{
		visits:  map[uuid.UUID]visit.Visit{},
		results: map[uuid.UUID]visit.TestResult{},
		rx:      map[uuid.UUID]medication.Prescription{},
	}
}

func (s *memState) snapshot() memState {
	c := memState{
		visits:  make(map[uuid.UUID]visit.Visit, len(s.visits)),
		results: make(map[uuid.UUID]visit.TestResult, len(s.results)),
		rx:      make(map[uuid.UUID]medication.Prescription, len(s.rx)),
	}
	for k, v := range s.visits {
		c.visits[k] = v
	}
	for k, v := range s.results {
		c.results[k] = v
	}
	for k, v := range s.rx {
		c.rx[k] = v
	}
	return c
}

// transactor restores the state when fn fails.
func (s *memState) transactor() db.Transactor {
	return db.TransactorFunc(func(ctx context.Context, fn func(context.Context) error) error {
		saved := s.snapshot()
		if err := fn(ctx); err != nil {
			s.visits, s.results, s.rx = saved.visits, saved.results, saved.rx
			return err
		}
		return nil
	})
}

func (s *memState) value(visitID uuid.UUID, code string) (float64, bool) {
	for _, r := range s.results {
		if r.VisitID == visitID && r.TestCode == code {
			return r.Value, true
		}
	}
	return 0, false
}

type mockVisits struct{ s *memState }

func (m mockVisits) Create(_ context.Context, v *visit.Visit) error {
	m.s.visits[v.ID] = *v
	return nil
}

func (m mockVisits) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	v, ok := m.s.visits[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	return &v, nil
}

func (m mockVisits) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*visit.Visit, int, error) {
	return nil, 0, errors.New("not used")
}

func (m mockVisits) UpdateSituation(_ context.Context, id uuid.UUID, situationID *int, actor string) error {
	v, ok := m.s.visits[id]
	if !ok {
		return visit.ErrNotFound
	}
	v.SituationID = situationID
	v.LastModifiedBy = &actor
	m.s.visits[id] = v
	return nil
}

func (m mockVisits) Touch(_ context.Context, id uuid.UUID, actor string) error {
	v, ok := m.s.visits[id]
	if !ok {
		return visit.ErrNotFound
	}
	v.UpdatedAt = time.Now()
	v.LastModifiedBy = &actor
	m.s.visits[id] = v
	return nil
}

type mockResults struct{ s *memState }

func (m mockResults) Create(_ context.Context, r *visit.TestResult) error {
	m.s.results[r.ID] = *r
	return nil
}

func (m mockResults) ListByVisit(_ context.Context, visitID uuid.UUID) ([]*visit.TestResult, error) {
	var out []*visit.TestResult
	for _, r := range m.s.results {
		if r.VisitID == visitID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestCode < out[j].TestCode })
	return out, nil
}

func (m mockResults) UpdateValue(_ context.Context, id uuid.UUID, value float64, actor string) error {
	if id == m.s.failUpdate {
		return errors.New("connection reset")
	}
	r, ok := m.s.results[id]
	if !ok {
		return visit.ErrNotFound
	}
	r.Value = value
	r.UpdatedBy = &actor
	m.s.results[id] = r
	return nil
}

func (m mockResults) LatestPTHBefore(_ context.Context, patientID, excludeVisitID uuid.UUID, before time.Time) (*float64, error) {
	var best *visit.Visit
	for _, v := range m.s.visits {
		v := v
		if v.PatientID != patientID || v.ID == excludeVisitID || !v.ReportDate.Before(before) {
			continue
		}
		if best == nil || v.ReportDate.After(best.ReportDate) {
			best = &v
		}
	}
	if best == nil {
		return nil, nil
	}
	if pth, ok := m.s.value(best.ID, classification.CodePTH); ok {
		return &pth, nil
	}
	return nil, nil
}

type mockPrescriptions struct{ s *memState }

func (m mockPrescriptions) Create(_ context.Context, p *medication.Prescription) error {
	m.s.rx[p.ID] = *p
	return nil
}

func (m mockPrescriptions) list(visitID uuid.UUID, activeOnly bool) []*medication.Prescription {
	var out []*medication.Prescription
	for _, p := range m.s.rx {
		if p.VisitID == visitID && (!activeOnly || p.Active()) {
			p := p
			out = append(out, &p)
		}
	}
	return out
}

func (m mockPrescriptions) ListByVisit(_ context.Context, visitID uuid.UUID) ([]*medication.Prescription, error) {
	return m.list(visitID, false), nil
}

func (m mockPrescriptions) ListActiveByVisit(_ context.Context, visitID uuid.UUID) ([]*medication.Prescription, error) {
	return m.list(visitID, true), nil
}

func (m mockPrescriptions) outdate(match func(medication.Prescription) bool, reason, actor string) int {
	n := 0
	now := time.Now()
	for id, p := range m.s.rx {
		if p.IsOutdated || !match(p) {
			continue
		}
		p.IsOutdated = true
		p.OutdatedAt = &now
		p.OutdatedReason = &reason
		p.OutdatedBy = &actor
		m.s.rx[id] = p
		n++
	}
	return n
}

func (m mockPrescriptions) OutdateActiveByVisit(_ context.Context, visitID uuid.UUID, reason, actor string) (int, error) {
	return m.outdate(func(p medication.Prescription) bool { return p.VisitID == visitID }, reason, actor), nil
}

func (m mockPrescriptions) OutdateByVisitAndType(_ context.Context, visitID uuid.UUID, typeID int, reason, actor string) (int, error) {
	return m.outdate(func(p medication.Prescription) bool {
		return p.VisitID == visitID && p.MedicationTypeID == typeID
	}, reason, actor), nil
}
