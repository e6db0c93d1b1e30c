package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/situation"
	"github.com/ehr/ckdmbd/internal/platform/db"
	"github.com/ehr/ckdmbd/internal/platform/metrics"
)

// SituationResolver maps a classification to its catalog row.
type SituationResolver interface {
	Resolve(ctx context.Context, r classification.Result) (*situation.Situation, error)
}

type Service struct {
	visits   VisitRepository
	results  TestResultRepository
	resolver SituationResolver
	tx       db.Transactor
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewService(visits VisitRepository, results TestResultRepository, resolver SituationResolver,
	tx db.Transactor, m *metrics.Metrics, log zerolog.Logger) *Service {
	if tx == nil {
		tx = db.Inline
	}
	return &Service{
		visits:   visits,
		results:  results,
		resolver: resolver,
		tx:       tx,
		metrics:  m,
		log:      log.With().Str("component", "visit").Logger(),
	}
}

// RegisterRequest is a lab report for a new visit. Results are keyed by test
// code; corrected calcium is derived and must not be supplied.
type RegisterRequest struct {
	PatientID  uuid.UUID          `json:"patient_id"`
	ReportDate time.Time          `json:"report_date"`
	Notes      *string            `json:"notes,omitempty"`
	Results    map[string]float64 `json:"results"`
}

var notNilUUID = validation.By(func(value interface{}) error {
	if id, ok := value.(uuid.UUID); ok && id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
})

func (r RegisterRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.PatientID, notNilUUID),
		validation.Field(&r.ReportDate, validation.Required),
		validation.Field(&r.Results, validation.Required),
	)
	fields := validation.Errors{}
	if err != nil {
		var ve validation.Errors
		if !errors.As(err, &ve) {
			return err
		}
		for k, v := range ve {
			fields[k] = v
		}
	}
	for _, code := range classification.SortedCodes(r.Results) {
		key := "results." + code
		switch {
		case !isKnownCode(code):
			fields[key] = errors.New("unknown test code")
		case code == classification.CodeCorrectedCalcium:
			fields[key] = errors.New("is derived from CA and ALB and cannot be supplied")
		default:
			if err := classification.ValidateValue(code, r.Results[code]); err != nil {
				var ie *classification.InvalidInputError
				if errors.As(err, &ie) {
					fields[key] = ie.Fields[code]
				}
			}
		}
	}
	if len(fields) > 0 {
		return &classification.InvalidInputError{Fields: fields}
	}
	return nil
}

func isKnownCode(code string) bool {
	for _, c := range classification.KnownCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Registration is the result of registering a lab report.
type Registration struct {
	Visit                *Visit                `json:"visit"`
	Results              []*TestResult         `json:"results"`
	Classification       classification.Result `json:"classification"`
	Situation            *situation.Ref        `json:"situation,omitempty"`
	DataIntegrityWarning bool                  `json:"data_integrity_warning"`
	WarningMessage       string                `json:"warning_message,omitempty"`
}

// Register stores a visit with its results and classification. A catalog
// resolution failure leaves the visit unclassified and is reported as a data
// integrity warning rather than an error.
func (s *Service) Register(ctx context.Context, req RegisterRequest, actor string) (*Registration, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	previousPTH, err := s.results.LatestPTHBefore(ctx, req.PatientID, uuid.Nil, req.ReportDate)
	if err != nil {
		return nil, fmt.Errorf("load previous PTH: %w", err)
	}
	values, err := classification.FromResults(req.Results, previousPTH)
	if err != nil {
		return nil, err
	}

	result := classification.Classify(values)
	s.metrics.ObserveClassification(int(result.Group), int(result.Bucket))

	reg := &Registration{Classification: result}
	sit, err := s.resolver.Resolve(ctx, result)
	switch {
	case errors.Is(err, situation.ErrCatalogResolution):
		s.metrics.ObserveCatalogFailure()
		reg.DataIntegrityWarning = true
		reg.WarningMessage = "Visit saved without a situation: " + err.Error()
	case err != nil:
		return nil, err
	default:
		reg.Situation = sit.Ref()
	}

	v := &Visit{
		ID:             uuid.New(),
		PatientID:      req.PatientID,
		ReportDate:     req.ReportDate,
		Notes:          req.Notes,
		LastModifiedBy: strPtr(actor),
	}
	if sit != nil {
		v.SituationID = &sit.ID
	}

	stored := make(map[string]float64, len(req.Results)+1)
	for code, value := range req.Results {
		stored[code] = value
	}
	stored[classification.CodeCorrectedCalcium] = values.CorrectedCalcium

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.visits.Create(ctx, v); err != nil {
			return fmt.Errorf("create visit: %w", err)
		}
		for _, code := range classification.SortedCodes(stored) {
			tr := &TestResult{VisitID: v.ID, TestCode: code, Value: stored[code], UpdatedBy: strPtr(actor)}
			if err := s.results.Create(ctx, tr); err != nil {
				return fmt.Errorf("create %s result: %w", code, err)
			}
			reg.Results = append(reg.Results, tr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	reg.Visit = v

	ev := s.log.Info()
	if reg.DataIntegrityWarning {
		ev = s.log.Warn()
	}
	ev.Str("visit_id", v.ID.String()).
		Str("patient_id", v.PatientID.String()).
		Int("group", int(result.Group)).
		Int("bucket", int(result.Bucket)).
		Str("situation_code", result.SituationCode).
		Bool("data_integrity_warning", reg.DataIntegrityWarning).
		Msg("visit registered")
	return reg, nil
}

// Detail is a visit with its current results.
type Detail struct {
	Visit   *Visit        `json:"visit"`
	Results []*TestResult `json:"results"`
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	v, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListByVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Visit: v, Results: results}, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.visits.ListByPatient(ctx, patientID, limit, offset)
}
