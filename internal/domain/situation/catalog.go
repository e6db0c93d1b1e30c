package situation

import (
	"fmt"
	"sort"

	"github.com/ehr/ckdmbd/internal/domain/classification"
)

// Definitions derives the full reference catalog from the classification
// layout: 33 situations per group, group 2 offset by 33.
func Definitions() []Situation {
	defs := make([]Situation, 0, 2*classification.SituationsPerGroup)
	for _, g := range classification.Groups() {
		for n := 1; n <= classification.SituationsPerGroup; n++ {
			bucket, ca, p, _ := classification.SituationBands(n)
			r := classification.Result{Group: g, Bucket: bucket, SituationNumber: n}
			defs = append(defs, Situation{
				ID:       r.SituationID(),
				GroupID:  int(g),
				BucketID: int(bucket),
				Code:     classification.SituationCode(n),
				Description: fmt.Sprintf("Group %d (%s), bucket %d (%s): %s; %s",
					int(g), g, int(bucket), bucket, ca.Label, p.Label),
			})
		}
	}
	return defs
}

// DefinitionByID returns the derived catalog row for id, or false when id is
// outside the catalog.
func DefinitionByID(id int) (*Situation, bool) {
	if id < 1 || id > 2*classification.SituationsPerGroup {
		return nil, false
	}
	for _, def := range Definitions() {
		if def.ID == id {
			def := def
			return &def, true
		}
	}
	return nil, false
}

// Drift is one difference between the stored catalog and the derived one.
type Drift struct {
	ID       int    `json:"id"`
	Expected string `json:"expected"`
	Stored   string `json:"stored"`
}

func describe(s *Situation) string {
	if s == nil {
		return "<missing>"
	}
	return fmt.Sprintf("group=%d bucket=%d code=%s", s.GroupID, s.BucketID, s.Code)
}

// diff compares stored rows against derived definitions by id.
func diff(stored []*Situation) []Drift {
	byID := make(map[int]*Situation, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}
	var drifts []Drift
	for _, def := range Definitions() {
		def := def
		got := byID[def.ID]
		if got == nil || got.GroupID != def.GroupID || got.BucketID != def.BucketID || got.Code != def.Code {
			drifts = append(drifts, Drift{ID: def.ID, Expected: describe(&def), Stored: describe(got)})
		}
		delete(byID, def.ID)
	}
	extra := make([]int, 0, len(byID))
	for id := range byID {
		extra = append(extra, id)
	}
	sort.Ints(extra)
	for _, id := range extra {
		drifts = append(drifts, Drift{ID: id, Expected: describe(nil), Stored: describe(byID[id])})
	}
	return drifts
}
