// Package classification maps a patient's lab values to a CKD-MBD group,
// PTH bucket and situation code. Classify is pure; callers validate input
// with Validate first.
package classification

// Classify derives the group, bucket and situation for a set of test values.
func Classify(v TestValues) Result {
	group := assignGroup(v)
	bucket := assignBucket(group, v.PTH, v.TrendBaseline())
	number := assignSituation(bucket, v.CorrectedCalcium, v.Phosphate)
	return Result{
		Group:           group,
		Bucket:          bucket,
		SituationNumber: number,
		SituationCode:   SituationCode(number),
	}
}

func assignGroup(v TestValues) Group {
	if v.LateralRadiography > 5 || v.EchoPositive {
		return GroupVascularPositive
	}
	return GroupVascularNegative
}

func assignBucket(g Group, cpth, ppth float64) Bucket {
	t := groupThresholds[g]
	switch {
	case cpth > t.HighSustained && ppth > t.HighSustained,
		cpth > t.HighRising && cpth >= ppth*t.RisingRatio:
		return BucketHighTurnover
	case cpth < t.LowSustained && ppth < t.LowSustained,
		cpth < t.LowFalling && cpth <= ppth*t.FallingRatio:
		return BucketLowTurnover
	default:
		return BucketWithinRange
	}
}

func assignSituation(b Bucket, cca, p float64) int {
	l := layouts[b]
	index := l.CalciumCategory(cca)*len(PhosphateBands) + phosphateCategory(p) + 1
	return l.BaseOffset + index
}
