package medication

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Outdating reasons recorded on prescriptions.
const (
	ReasonSuperseded = "superseded by new prescription"
)

// MedicationType maps to the medication_type table (reference data).
type MedicationType struct {
	ID   int    `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
	Unit string `db:"unit" json:"unit"`
}

// Prescription maps to the prescription table. Outdated rows are kept for
// history; at most one active row exists per (visit, medication type).
type Prescription struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	VisitID          uuid.UUID  `db:"visit_id" json:"visit_id"`
	MedicationTypeID int        `db:"medication_type_id" json:"medication_type_id"`
	Dosage           float64    `db:"dosage" json:"dosage"`
	IsOutdated       bool       `db:"is_outdated" json:"is_outdated"`
	OutdatedAt       *time.Time `db:"outdated_at" json:"outdated_at,omitempty"`
	OutdatedReason   *string    `db:"outdated_reason" json:"outdated_reason,omitempty"`
	OutdatedBy       *string    `db:"outdated_by" json:"outdated_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	CreatedBy        *string    `db:"created_by" json:"created_by,omitempty"`
}

// Active reports whether the prescription is still in force.
func (p *Prescription) Active() bool { return !p.IsOutdated }

// Item is one dosage to prescribe for a medication type.
type Item struct {
	MedicationTypeID int     `json:"medication_type_id"`
	Dosage           float64 `json:"dosage"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
