// Package recommend proposes a starting prescription for a set of lab values
// by finding the most similar previously treated visit.
package recommend

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ckdmbd/internal/domain/classification"
)

// Score weights. A group mismatch outweighs any bucket mismatch, which in turn
// outweighs any realistic lab-value distance.
const (
	GroupMismatchPenalty  = 1000.0
	BucketMismatchPenalty = 100.0
)

// Profile is the classified lab picture being matched.
type Profile struct {
	Group            classification.Group
	Bucket           classification.Bucket
	CorrectedCalcium float64
	Phosphate        float64
}

// ProfileOf builds a Profile from classified values.
func ProfileOf(v classification.TestValues, r classification.Result) Profile {
	return Profile{Group: r.Group, Bucket: r.Bucket, CorrectedCalcium: v.CorrectedCalcium, Phosphate: v.Phosphate}
}

// Candidate is a historical visit that has at least one prescription. Group
// and bucket are zero for a visit that was never resolved to a situation.
type Candidate struct {
	VisitID          uuid.UUID             `json:"visit_id"`
	ReportDate       time.Time             `json:"report_date"`
	Group            classification.Group  `json:"group"`
	Bucket           classification.Bucket `json:"bucket"`
	CorrectedCalcium *float64              `json:"corrected_calcium,omitempty"`
	Phosphate        *float64              `json:"phosphate,omitempty"`
}

// Comparable reports whether the candidate has the values scoring needs.
func (c Candidate) Comparable() bool {
	return c.CorrectedCalcium != nil && c.Phosphate != nil
}

// Match is the winning candidate and its distance from the target.
type Match struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
}

// Score is the distance between target and c; lower is closer. It reports
// false for a candidate that is not Comparable.
func Score(target Profile, c Candidate) (float64, bool) {
	if !c.Comparable() {
		return 0, false
	}
	s := 0.0
	if c.Group != target.Group {
		s += GroupMismatchPenalty
	}
	if c.Bucket != target.Bucket {
		s += BucketMismatchPenalty
	}
	s += math.Abs(*c.CorrectedCalcium - target.CorrectedCalcium)
	s += math.Abs(*c.Phosphate - target.Phosphate)
	return s, true
}

// FindClosestPriorVisit returns the lowest-scoring comparable candidate. Ties
// go to the candidate that appears first in history. It reports false when no
// candidate is comparable. It never modifies history.
func FindClosestPriorVisit(target Profile, history []Candidate) (*Match, bool) {
	var best *Match
	for _, c := range history {
		s, ok := Score(target, c)
		if !ok {
			continue
		}
		if best == nil || s < best.Score {
			best = &Match{Candidate: c, Score: s}
		}
	}
	return best, best != nil
}
