package revision

import (
	"github.com/google/uuid"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/situation"
)

// CriticalThresholdPercent is the change above which an edit to a critical
// test counts as a critical change.
const CriticalThresholdPercent = 5.0

// criticalCodes are the tests whose changes can invalidate prescriptions.
// Albumin only matters through corrected calcium.
var criticalCodes = map[string]bool{
	classification.CodePTH:                true,
	classification.CodeCalcium:            true,
	classification.CodeCorrectedCalcium:   true,
	classification.CodePhosphate:          true,
	classification.CodeEcho:               true,
	classification.CodeLateralRadiography: true,
}

// Edit sets a new value on one of the visit's test results, addressed either
// by result id or by test code.
type Edit struct {
	TestResultID uuid.UUID `json:"test_result_id,omitempty"`
	TestCode     string    `json:"test_code,omitempty"`
	Value        float64   `json:"value"`
}

// ValueChange describes one applied edit.
type ValueChange struct {
	TestResultID  uuid.UUID `json:"test_result_id"`
	TestCode      string    `json:"test_code"`
	OldValue      *float64  `json:"old_value,omitempty"`
	NewValue      float64   `json:"new_value"`
	PercentChange float64   `json:"percent_change"`
	Critical      bool      `json:"critical"`
	Derived       bool      `json:"derived,omitempty"`
}

// Outcome reports what a revision changed.
type Outcome struct {
	VisitID                      uuid.UUID              `json:"visit_id"`
	UpdatedTestIDs               []uuid.UUID            `json:"updated_test_ids"`
	Changes                      []ValueChange          `json:"changes"`
	CorrectedCalciumRecalculated bool                   `json:"corrected_calcium_recalculated"`
	CriticalChanges              []string               `json:"critical_changes"`
	Classification               *classification.Result `json:"classification,omitempty"`
	ClassificationChanged        bool                   `json:"classification_changed"`
	SignificantChange            bool                   `json:"significant_change"`
	ClassificationChanges        []string               `json:"classification_changes,omitempty"`
	OldSituation                 *situation.Ref         `json:"old_situation,omitempty"`
	NewSituation                 *situation.Ref         `json:"new_situation,omitempty"`
	MedicationsOutdatedCount     int                    `json:"medications_outdated_count"`
	DataIntegrityWarning         bool                   `json:"data_integrity_warning"`
	WarningMessage               string                 `json:"warning_message"`
}

// PercentChange is |new-old|/old*100. An unchanged value is 0% and any change
// from zero is 100%.
func PercentChange(old, new float64) float64 {
	if old == new {
		return 0
	}
	if old == 0 {
		return 100
	}
	d := (new - old) / old * 100
	if d < 0 {
		return -d
	}
	return d
}

func (o *Outcome) changedAnything() bool {
	if o.ClassificationChanged {
		return true
	}
	for _, c := range o.Changes {
		if c.PercentChange != 0 || c.OldValue == nil {
			return true
		}
	}
	return false
}
