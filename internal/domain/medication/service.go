package medication

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/visit"
	"github.com/ehr/ckdmbd/internal/platform/db"
)

// VisitLookup confirms a visit exists before prescribing against it.
type VisitLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
}

type Service struct {
	types         MedicationTypeRepository
	prescriptions PrescriptionRepository
	visits        VisitLookup
	tx            db.Transactor
	log           zerolog.Logger
}

func NewService(types MedicationTypeRepository, prescriptions PrescriptionRepository, visits VisitLookup,
	tx db.Transactor, log zerolog.Logger) *Service {
	if tx == nil {
		tx = db.Inline
	}
	return &Service{
		types:         types,
		prescriptions: prescriptions,
		visits:        visits,
		tx:            tx,
		log:           log.With().Str("component", "medication").Logger(),
	}
}

func (i Item) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.MedicationTypeID, validation.Required, validation.Min(1)),
		validation.Field(&i.Dosage, validation.Min(0.0)),
	)
}

func (s *Service) validateItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return classification.NewInvalidInput("items", "cannot be blank")
	}
	fields := validation.Errors{}
	seen := map[int]bool{}
	for idx, it := range items {
		key := "items." + strconv.Itoa(idx)
		if err := it.Validate(); err != nil {
			fields[key] = err
			continue
		}
		if seen[it.MedicationTypeID] {
			fields[key] = errors.New("duplicate medication type")
			continue
		}
		seen[it.MedicationTypeID] = true
		if _, err := s.types.GetByID(ctx, it.MedicationTypeID); err != nil {
			if errors.Is(err, ErrNotFound) {
				fields[key] = fmt.Errorf("unknown medication type %d", it.MedicationTypeID)
				continue
			}
			return err
		}
	}
	if len(fields) > 0 {
		return &classification.InvalidInputError{Fields: fields}
	}
	return nil
}

// Prescribe saves one prescription per item for the visit. An active
// prescription of the same medication type is outdated first, so the visit
// never holds two active rows for one type.
func (s *Service) Prescribe(ctx context.Context, visitID uuid.UUID, items []Item, actor string) ([]*Prescription, error) {
	if _, err := s.visits.GetByID(ctx, visitID); err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.validateItems(ctx, items); err != nil {
		return nil, err
	}

	var created []*Prescription
	superseded := 0
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, it := range items {
			n, err := s.prescriptions.OutdateByVisitAndType(ctx, visitID, it.MedicationTypeID, ReasonSuperseded, actor)
			if err != nil {
				return err
			}
			superseded += n
			p := &Prescription{
				VisitID:          visitID,
				MedicationTypeID: it.MedicationTypeID,
				Dosage:           it.Dosage,
				CreatedBy:        strPtr(actor),
			}
			if err := s.prescriptions.Create(ctx, p); err != nil {
				return fmt.Errorf("create prescription: %w", err)
			}
			created = append(created, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("visit_id", visitID.String()).
		Int("created", len(created)).
		Int("superseded", superseded).
		Msg("prescriptions saved")
	return created, nil
}

// ListForVisit returns the visit's prescriptions, optionally only active ones.
func (s *Service) ListForVisit(ctx context.Context, visitID uuid.UUID, activeOnly bool) ([]*Prescription, error) {
	if activeOnly {
		return s.prescriptions.ListActiveByVisit(ctx, visitID)
	}
	return s.prescriptions.ListByVisit(ctx, visitID)
}

func (s *Service) ListTypes(ctx context.Context) ([]*MedicationType, error) {
	return s.types.List(ctx)
}

// OutdateActive outdates every active prescription of a visit.
func (s *Service) OutdateActive(ctx context.Context, visitID uuid.UUID, reason, actor string) (int, error) {
	return s.prescriptions.OutdateActiveByVisit(ctx, visitID, reason, actor)
}
