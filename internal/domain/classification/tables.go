package classification

// pthThresholds holds one group's bucket rules. Bucket 1 applies when both PTH
// values exceed HighSustained, or when the current PTH exceeds HighRising and
// has risen by at least RisingRatio. Bucket 3 mirrors this downwards.
type pthThresholds struct {
	HighSustained float64
	HighRising    float64
	RisingRatio   float64
	LowSustained  float64
	LowFalling    float64
	FallingRatio  float64
}

var groupThresholds = map[Group]pthThresholds{
	GroupVascularPositive: {
		HighSustained: 300,
		HighRising:    200,
		RisingRatio:   1.5,
		LowSustained:  100,
		LowFalling:    150,
		FallingRatio:  0.5,
	},
	GroupVascularNegative: {
		HighSustained: 585,
		HighRising:    450,
		RisingRatio:   3,
		LowSustained:  130,
		LowFalling:    180,
		FallingRatio:  0.75,
	},
}

// Band is one labelled interval of a categorical lab table.
type Band struct {
	Category int
	Label    string
}

// bucketLayout describes how a bucket's situations are numbered.
type bucketLayout struct {
	CalciumBands    []Band
	BaseOffset      int
	CalciumCategory func(correctedCalcium float64) int
}

// Size is the number of situations the layout spans.
func (l bucketLayout) Size() int {
	return len(l.CalciumBands) * len(PhosphateBands)
}

// PhosphateBands is shared by every bucket.
var PhosphateBands = []Band{
	{Category: 0, Label: "P > 5.5"},
	{Category: 1, Label: "3.5 <= P <= 5.5"},
	{Category: 2, Label: "P < 3.5"},
}

var standardCalciumBands = []Band{
	{Category: 0, Label: "cCa > 10.2"},
	{Category: 1, Label: "8.4 <= cCa <= 10.2"},
	{Category: 2, Label: "7.5 <= cCa < 8.4"},
	{Category: 3, Label: "cCa < 7.5"},
}

var mergedCalciumBands = []Band{
	{Category: 0, Label: "cCa > 10.2"},
	{Category: 1, Label: "7.5 <= cCa <= 10.2"},
	{Category: 2, Label: "cCa < 7.5"},
}

var layouts = map[Bucket]bucketLayout{
	BucketHighTurnover: {
		CalciumBands:    standardCalciumBands,
		BaseOffset:      0,
		CalciumCategory: standardCalciumCategory,
	},
	BucketWithinRange: {
		CalciumBands:    mergedCalciumBands,
		BaseOffset:      12,
		CalciumCategory: mergedCalciumCategory,
	},
	BucketLowTurnover: {
		CalciumBands:    standardCalciumBands,
		BaseOffset:      21,
		CalciumCategory: standardCalciumCategory,
	},
}

func standardCalciumCategory(cca float64) int {
	switch {
	case cca > 10.2:
		return 0
	case cca >= 8.4:
		return 1
	case cca >= 7.5:
		return 2
	default:
		return 3
	}
}

// The two middle standard bands collapse into one for the within-range bucket.
func mergedCalciumCategory(cca float64) int {
	switch {
	case cca > 10.2:
		return 0
	case cca >= 7.5:
		return 1
	default:
		return 2
	}
}

func phosphateCategory(p float64) int {
	switch {
	case p > 5.5:
		return 0
	case p >= 3.5:
		return 1
	default:
		return 2
	}
}

// SituationRange returns the first and last situation number of a bucket.
func SituationRange(b Bucket) (first, last int) {
	l, ok := layouts[b]
	if !ok {
		return 0, 0
	}
	return l.BaseOffset + 1, l.BaseOffset + l.Size()
}

// SituationBands decodes a situation number back into its bucket and the
// calcium and phosphate bands that produce it.
func SituationBands(number int) (Bucket, Band, Band, bool) {
	for _, b := range Buckets() {
		l := layouts[b]
		idx := number - l.BaseOffset - 1
		if idx < 0 || idx >= l.Size() {
			continue
		}
		return b, l.CalciumBands[idx/len(PhosphateBands)], PhosphateBands[idx%len(PhosphateBands)], true
	}
	return 0, Band{}, Band{}, false
}

// Buckets lists buckets in catalog order.
func Buckets() []Bucket {
	return []Bucket{BucketHighTurnover, BucketWithinRange, BucketLowTurnover}
}

// Groups lists groups in catalog order.
func Groups() []Group {
	return []Group{GroupVascularPositive, GroupVascularNegative}
}
