package recommend

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ckdmbd/internal/domain/classification"
)

func f(v float64) *float64 { return &v }

func candidate(group, bucket int, cca, p *float64) Candidate {
	return Candidate{
		VisitID:          uuid.New(),
		Group:            classification.Group(group),
		Bucket:           classification.Bucket(bucket),
		CorrectedCalcium: cca,
		Phosphate:        p,
	}
}

func TestFindClosestPriorVisit_ScenarioB(t *testing.T) {
	target := Profile{Group: 1, Bucket: 2, CorrectedCalcium: 9.0, Phosphate: 4.0}
	h1 := candidate(1, 2, f(9.2), f(4.1))
	h2 := candidate(2, 2, f(9.0), f(4.0))

	s1, ok := Score(target, h1)
	require.True(t, ok)
	assert.InDelta(t, 0.3, s1, 1e-9)
	s2, ok := Score(target, h2)
	require.True(t, ok)
	assert.InDelta(t, 1000, s2, 1e-9)

	m, ok := FindClosestPriorVisit(target, []Candidate{h2, h1})
	require.True(t, ok)
	assert.Equal(t, h1.VisitID, m.Candidate.VisitID)
	assert.InDelta(t, 0.3, m.Score, 1e-9)
}

func TestFindClosestPriorVisit_BucketPenalty(t *testing.T) {
	target := Profile{Group: 2, Bucket: 1, CorrectedCalcium: 9.0, Phosphate: 4.0}
	sameBucketFar := candidate(2, 1, f(12.0), f(7.0))
	otherBucketExact := candidate(2, 3, f(9.0), f(4.0))

	m, ok := FindClosestPriorVisit(target, []Candidate{otherBucketExact, sameBucketFar})
	require.True(t, ok)
	assert.Equal(t, sameBucketFar.VisitID, m.Candidate.VisitID)
	assert.InDelta(t, 6.0, m.Score, 1e-9)
}

func TestFindClosestPriorVisit_TieGoesToFirst(t *testing.T) {
	target := Profile{Group: 1, Bucket: 1, CorrectedCalcium: 9.0, Phosphate: 4.0}
	a := candidate(1, 1, f(9.5), f(4.0))
	b := candidate(1, 1, f(9.0), f(4.5))
	c := candidate(1, 1, f(8.5), f(4.0))

	m, ok := FindClosestPriorVisit(target, []Candidate{a, b, c})
	require.True(t, ok)
	assert.Equal(t, a.VisitID, m.Candidate.VisitID)

	m, _ = FindClosestPriorVisit(target, []Candidate{c, b, a})
	assert.Equal(t, c.VisitID, m.Candidate.VisitID)
}

func TestFindClosestPriorVisit_SkipsIncomplete(t *testing.T) {
	target := Profile{Group: 1, Bucket: 1, CorrectedCalcium: 9.0, Phosphate: 4.0}
	noCCA := candidate(1, 1, nil, f(4.0))
	noP := candidate(1, 1, f(9.0), nil)
	far := candidate(2, 3, f(7.0), f(2.0))

	m, ok := FindClosestPriorVisit(target, []Candidate{noCCA, noP, far})
	require.True(t, ok)
	assert.Equal(t, far.VisitID, m.Candidate.VisitID)

	_, ok = FindClosestPriorVisit(target, []Candidate{noCCA, noP})
	assert.False(t, ok)
}

func TestFindClosestPriorVisit_Empty(t *testing.T) {
	m, ok := FindClosestPriorVisit(Profile{Group: 1, Bucket: 1}, nil)
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestFindClosestPriorVisit_DoesNotMutate(t *testing.T) {
	history := []Candidate{candidate(1, 2, f(9.2), f(4.1)), candidate(2, 2, f(9.0), f(4.0))}
	before := make([]Candidate, len(history))
	copy(before, history)
	beforeValues := []float64{*history[0].CorrectedCalcium, *history[1].Phosphate}

	FindClosestPriorVisit(Profile{Group: 1, Bucket: 2, CorrectedCalcium: 9.0, Phosphate: 4.0}, history)

	assert.Equal(t, before, history)
	assert.Equal(t, beforeValues, []float64{*history[0].CorrectedCalcium, *history[1].Phosphate})
}

func TestScore_IncomparableCandidate(t *testing.T) {
	target := Profile{Group: 1, Bucket: 2, CorrectedCalcium: 9.0, Phosphate: 4.0}
	for _, c := range []Candidate{
		candidate(1, 2, nil, f(4.0)),
		candidate(1, 2, f(9.0), nil),
		candidate(1, 2, nil, nil),
	} {
		assert.NotPanics(t, func() {
			_, ok := Score(target, c)
			assert.False(t, ok)
		})
	}
}
