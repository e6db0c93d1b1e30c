package classification

import (
	"errors"
	"math"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Lab test codes understood by the engine.
const (
	CodePTH                = "PTH"
	CodeCalcium            = "CA"
	CodeAlbumin            = "ALB"
	CodeCorrectedCalcium   = "CCA"
	CodePhosphate          = "P"
	CodeEcho               = "ECHO"
	CodeLateralRadiography = "LAT_RAD"
)

// KnownCodes lists every test code the engine reads or derives.
var KnownCodes = []string{
	CodePTH, CodeCalcium, CodeAlbumin, CodeCorrectedCalcium,
	CodePhosphate, CodeEcho, CodeLateralRadiography,
}

// ErrInvalidInput is matched by every InvalidInputError.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError carries per-field validation messages.
type InvalidInputError struct {
	Fields validation.Errors
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Fields.Error()
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

func (e *InvalidInputError) Unwrap() error { return e.Fields }

// FieldMessages flattens the field errors for API responses.
func (e *InvalidInputError) FieldMessages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		out[k] = v.Error()
	}
	return out
}

// NewInvalidInput builds an InvalidInputError for a single field.
func NewInvalidInput(field, message string) error {
	return &InvalidInputError{Fields: validation.Errors{field: errors.New(message)}}
}

var finite = validation.By(func(value interface{}) error {
	var f float64
	switch x := value.(type) {
	case float64:
		f = x
	case *float64:
		if x == nil {
			return nil
		}
		f = *x
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be a finite number")
	}
	return nil
})

// Validate rejects values Classify must never see.
func Validate(v TestValues) error {
	err := validation.ValidateStruct(&v,
		validation.Field(&v.PTH, finite, validation.Min(0.0)),
		validation.Field(&v.PreviousPTH, finite, validation.Min(0.0)),
		validation.Field(&v.Calcium, finite, validation.Min(0.0)),
		validation.Field(&v.Albumin, finite, validation.Min(0.0)),
		validation.Field(&v.CorrectedCalcium, finite),
		validation.Field(&v.Phosphate, finite, validation.Min(0.0)),
		validation.Field(&v.LateralRadiography, finite, validation.Min(0.0)),
	)
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return &InvalidInputError{Fields: fields}
	}
	return err
}

// ValidateValue checks a single stored test value.
func ValidateValue(code string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewInvalidInput(code, "must be a finite number")
	}
	if code != CodeCorrectedCalcium && value < 0 {
		return NewInvalidInput(code, "must be no less than 0")
	}
	if code == CodeEcho && value != 0 && value != 1 {
		return NewInvalidInput(code, "must be 0 or 1")
	}
	return nil
}

// FromResults assembles TestValues from a code-to-value snapshot. Corrected
// calcium is derived from calcium and albumin when both are present and taken
// from the snapshot otherwise.
func FromResults(values map[string]float64, previousPTH *float64) (TestValues, error) {
	missing := validation.Errors{}
	need := func(code string) float64 {
		v, ok := values[code]
		if !ok {
			missing[code] = errors.New("is required")
		}
		return v
	}

	tv := TestValues{
		PTH:                need(CodePTH),
		PreviousPTH:        previousPTH,
		Phosphate:          need(CodePhosphate),
		EchoPositive:       need(CodeEcho) != 0,
		LateralRadiography: need(CodeLateralRadiography),
	}

	ca, hasCa := values[CodeCalcium]
	alb, hasAlb := values[CodeAlbumin]
	cca, hasCCA := values[CodeCorrectedCalcium]
	switch {
	case hasCa && hasAlb:
		tv.Calcium, tv.Albumin = ca, alb
		tv.CorrectedCalcium = CorrectedCalcium(ca, alb)
	case hasCCA:
		tv.Calcium, tv.Albumin = ca, alb
		tv.CorrectedCalcium = cca
	default:
		if !hasCa {
			missing[CodeCalcium] = errors.New("is required")
		}
		if !hasAlb {
			missing[CodeAlbumin] = errors.New("is required")
		}
	}

	if len(missing) > 0 {
		return TestValues{}, &InvalidInputError{Fields: missing}
	}
	return tv, Validate(tv)
}

// SortedCodes returns the keys of a snapshot in a stable order.
func SortedCodes(values map[string]float64) []string {
	codes := make([]string, 0, len(values))
	for c := range values {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
