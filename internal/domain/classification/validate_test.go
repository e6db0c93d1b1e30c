package classification

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	v := TestValues{PTH: 250, PreviousPTH: ptr(200), Calcium: 9, Albumin: 4, CorrectedCalcium: 9, Phosphate: 4}
	assert.NoError(t, Validate(v))
}

func TestValidate_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name  string
		v     TestValues
		field string
	}{
		{"nan pth", TestValues{PTH: math.NaN()}, "pth"},
		{"inf phosphate", TestValues{Phosphate: math.Inf(1)}, "phosphate"},
		{"nan previous", TestValues{PreviousPTH: ptr(math.NaN())}, "previous_pth"},
		{"negative calcium", TestValues{Calcium: -1}, "calcium"},
		{"negative radiography", TestValues{LateralRadiography: -0.5}, "lateral_radiography"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.v)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var inv *InvalidInputError
			require.True(t, errors.As(err, &inv))
			assert.Contains(t, inv.FieldMessages(), tt.field)
		})
	}
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue(CodePTH, 330))
	assert.NoError(t, ValidateValue(CodeEcho, 1))
	assert.NoError(t, ValidateValue(CodeCorrectedCalcium, -0.2))
	assert.ErrorIs(t, ValidateValue(CodeEcho, 0.5), ErrInvalidInput)
	assert.ErrorIs(t, ValidateValue(CodePhosphate, -1), ErrInvalidInput)
	assert.ErrorIs(t, ValidateValue(CodePTH, math.Inf(-1)), ErrInvalidInput)
}

func TestFromResults(t *testing.T) {
	values := map[string]float64{
		CodePTH:                350,
		CodeCalcium:            9.0,
		CodeAlbumin:            3.5,
		CodePhosphate:          4.0,
		CodeEcho:               0,
		CodeLateralRadiography: 3,
	}

	tv, err := FromResults(values, ptr(320))
	require.NoError(t, err)
	assert.InDelta(t, 9.4, tv.CorrectedCalcium, 1e-9)
	assert.False(t, tv.EchoPositive)
	assert.Equal(t, 320.0, tv.TrendBaseline())
}

func TestFromResults_FallsBackToStoredCorrectedCalcium(t *testing.T) {
	values := map[string]float64{
		CodePTH:                350,
		CodeCorrectedCalcium:   9.1,
		CodePhosphate:          4.0,
		CodeEcho:               1,
		CodeLateralRadiography: 3,
	}

	tv, err := FromResults(values, nil)
	require.NoError(t, err)
	assert.Equal(t, 9.1, tv.CorrectedCalcium)
	assert.True(t, tv.EchoPositive)
	assert.Equal(t, 350.0, tv.TrendBaseline())
}

func TestFromResults_Missing(t *testing.T) {
	_, err := FromResults(map[string]float64{CodePTH: 100}, nil)
	require.Error(t, err)

	var inv *InvalidInputError
	require.True(t, errors.As(err, &inv))
	msgs := inv.FieldMessages()
	for _, code := range []string{CodePhosphate, CodeEcho, CodeLateralRadiography, CodeCalcium, CodeAlbumin} {
		assert.Contains(t, msgs, code)
	}
}
