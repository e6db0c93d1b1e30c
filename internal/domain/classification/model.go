package classification

import (
	"fmt"
	"strconv"
	"strings"
)

// Group is the vascular-involvement classification.
type Group int

const (
	GroupVascularPositive Group = 1
	GroupVascularNegative Group = 2
)

func (g Group) String() string {
	switch g {
	case GroupVascularPositive:
		return "vascular-positive"
	case GroupVascularNegative:
		return "vascular-negative"
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// Bucket is the parathyroid-hormone trend classification.
type Bucket int

const (
	BucketHighTurnover Bucket = 1
	BucketWithinRange  Bucket = 2
	BucketLowTurnover  Bucket = 3
)

func (b Bucket) String() string {
	switch b {
	case BucketHighTurnover:
		return "high-turnover"
	case BucketWithinRange:
		return "within-range"
	case BucketLowTurnover:
		return "low-turnover"
	}
	return fmt.Sprintf("bucket(%d)", int(b))
}

// SituationsPerGroup is the size of one group's block in the situation catalog.
const SituationsPerGroup = 33

// TestValues is one point-in-time set of lab measurements for a patient.
//
// PreviousPTH is the most recent prior PTH for the same patient. It is optional;
// see TrendBaseline for how an absent value is substituted.
type TestValues struct {
	PTH                float64  `json:"pth"`
	PreviousPTH        *float64 `json:"previous_pth,omitempty"`
	Calcium            float64  `json:"calcium"`
	Albumin            float64  `json:"albumin"`
	CorrectedCalcium   float64  `json:"corrected_calcium"`
	Phosphate          float64  `json:"phosphate"`
	EchoPositive       bool     `json:"echo_positive"`
	LateralRadiography float64  `json:"lateral_radiography"`
}

// TrendBaseline returns the PTH value the current PTH is compared against.
// A first-ever visit has no previous PTH, so the current value is used, which
// makes every ratio rule neutral and leaves only absolute thresholds in play.
func (v TestValues) TrendBaseline() float64 {
	if v.PreviousPTH == nil {
		return v.PTH
	}
	return *v.PreviousPTH
}

// CorrectedCalcium adjusts total calcium for the albumin-bound fraction.
func CorrectedCalcium(calcium, albumin float64) float64 {
	return calcium + 0.8*(4-albumin)
}

// WithCorrectedCalcium returns a copy with CorrectedCalcium derived from
// Calcium and Albumin.
func (v TestValues) WithCorrectedCalcium() TestValues {
	v.CorrectedCalcium = CorrectedCalcium(v.Calcium, v.Albumin)
	return v
}

// Result is the derived classification of a set of test values.
type Result struct {
	Group           Group  `json:"group"`
	Bucket          Bucket `json:"bucket"`
	SituationNumber int    `json:"situation_number"`
	SituationCode   string `json:"situation_code"`
}

// SituationID is the catalog identifier the result must resolve to: group 1
// occupies ids 1-33 and group 2 ids 34-66.
func (r Result) SituationID() int {
	if r.Group == GroupVascularNegative {
		return SituationsPerGroup + r.SituationNumber
	}
	return r.SituationNumber
}

// SituationCode formats a situation number as its catalog code.
func SituationCode(number int) string {
	return "T" + strconv.Itoa(number)
}

// ParseSituationCode is the inverse of SituationCode.
func ParseSituationCode(code string) (int, error) {
	if !strings.HasPrefix(code, "T") {
		return 0, fmt.Errorf("situation code %q: missing T prefix", code)
	}
	n, err := strconv.Atoi(code[1:])
	if err != nil || n < 1 || n > SituationsPerGroup {
		return 0, fmt.Errorf("situation code %q: number out of range", code)
	}
	return n, nil
}
