package visit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a visit or test result does not exist.
var ErrNotFound = errors.New("not found")

// Visit maps to the visit table. SituationID is nil until the visit has been
// classified against the catalog.
type Visit struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	ReportDate     time.Time `db:"report_date" json:"report_date"`
	Notes          *string   `db:"notes" json:"notes,omitempty"`
	SituationID    *int      `db:"situation_id" json:"situation_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
	LastModifiedBy *string   `db:"last_modified_by" json:"last_modified_by,omitempty"`
}

// TestResult maps to the test_result table: one measured (or derived) value
// of one test code for one visit.
type TestResult struct {
	ID        uuid.UUID `db:"id" json:"id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`
	TestCode  string    `db:"test_code" json:"test_code"`
	Value     float64   `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
}

// Snapshot maps test codes to values. When a code appears more than once the
// last result wins.
func Snapshot(results []*TestResult) map[string]float64 {
	out := make(map[string]float64, len(results))
	for _, r := range results {
		out[r.TestCode] = r.Value
	}
	return out
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
