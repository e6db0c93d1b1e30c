package situation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ckdmbd/internal/domain/classification"
)

type failingRepo struct {
	*MemoryRepo
	err error
}

func (f *failingRepo) GetByGroupAndCode(context.Context, int, string) (*Situation, error) {
	return nil, f.err
}

func TestResolve_ScenarioA(t *testing.T) {
	svc := NewService(NewSeededMemoryRepo(), nil)
	r := classification.Result{Group: classification.GroupVascularNegative, Bucket: classification.BucketWithinRange, SituationNumber: 17, SituationCode: "T17"}

	s, err := svc.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 50, s.ID)
	assert.Equal(t, 2, s.GroupID)
	assert.Equal(t, 2, s.BucketID)
}

func TestResolve_EveryDerivedResult(t *testing.T) {
	svc := NewService(NewSeededMemoryRepo(), nil)
	for _, g := range classification.Groups() {
		for n := 1; n <= classification.SituationsPerGroup; n++ {
			b, _, _, ok := classification.SituationBands(n)
			require.True(t, ok)
			r := classification.Result{Group: g, Bucket: b, SituationNumber: n, SituationCode: classification.SituationCode(n)}
			s, err := svc.Resolve(context.Background(), r)
			require.NoError(t, err, "group %d code %s", g, r.SituationCode)
			assert.Equal(t, r.SituationID(), s.ID)
		}
	}
}

func TestResolve_MissingRow(t *testing.T) {
	repo := NewSeededMemoryRepo()
	repo.Delete(50)
	svc := NewService(repo, nil)

	_, err := svc.Resolve(context.Background(), classification.Result{Group: 2, Bucket: 2, SituationNumber: 17, SituationCode: "T17"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalogResolution))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, classification.ErrInvalidInput))

	var cre *CatalogResolutionError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, 50, cre.ExpectedID)
}

func TestResolve_IDMismatch(t *testing.T) {
	repo := NewMemoryRepo(Situation{ID: 17, GroupID: 2, BucketID: 2, Code: "T17"})
	svc := NewService(repo, nil)

	_, err := svc.Resolve(context.Background(), classification.Result{Group: 2, Bucket: 2, SituationNumber: 17, SituationCode: "T17"})
	var cre *CatalogResolutionError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, 17, cre.FoundID)
	assert.Equal(t, 50, cre.ExpectedID)
	assert.Contains(t, err.Error(), "expected 50")
}

func TestResolve_StorageError(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(&failingRepo{MemoryRepo: NewSeededMemoryRepo(), err: boom}, nil)

	_, err := svc.Resolve(context.Background(), classification.Result{Group: 1, Bucket: 1, SituationNumber: 1, SituationCode: "T1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrCatalogResolution))
}

func TestSeedAndVerify(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	drifts, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.Len(t, drifts, 66)

	n, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 66, n)

	drifts, err = svc.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestList(t *testing.T) {
	svc := NewService(NewSeededMemoryRepo(), nil)
	ctx := context.Background()

	all, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 66)

	g2, err := svc.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, g2, 33)
	assert.Equal(t, 34, g2[0].ID)

	_, err = svc.List(ctx, 3)
	assert.True(t, errors.Is(err, classification.ErrInvalidInput))
}

func TestGet_OutOfRange(t *testing.T) {
	svc := NewService(NewSeededMemoryRepo(), nil)
	_, err := svc.Get(context.Background(), 67)
	assert.ErrorIs(t, err, ErrNotFound)

	s, err := svc.Get(context.Background(), 66)
	require.NoError(t, err)
	assert.Equal(t, "T33", s.Code)
}

func TestService_Classify(t *testing.T) {
	svc := NewService(NewSeededMemoryRepo(), nil)
	prev := 320.0
	values := classification.TestValues{
		PTH: 350, PreviousPTH: &prev, Calcium: 9.5, Albumin: 4.0,
		Phosphate: 4.0, LateralRadiography: 3,
	}.WithCorrectedCalcium()

	out, err := svc.Classify(context.Background(), values)
	require.NoError(t, err)
	assert.Equal(t, "T17", out.Result.SituationCode)
	assert.Equal(t, 50, out.Situation.ID)

	values.PTH = -1
	_, err = svc.Classify(context.Background(), values)
	assert.ErrorIs(t, err, classification.ErrInvalidInput)
}

func TestService_Classify_MissingCatalogRow(t *testing.T) {
	repo := NewSeededMemoryRepo()
	repo.Delete(50)
	svc := NewService(repo, nil)

	values := classification.TestValues{PTH: 350, Calcium: 9.5, Albumin: 4.0, Phosphate: 4.0, LateralRadiography: 3}.WithCorrectedCalcium()
	_, err := svc.Classify(context.Background(), values)
	assert.ErrorIs(t, err, ErrCatalogResolution)
}
