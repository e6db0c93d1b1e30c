package situation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/platform/db"
)

type Service struct {
	repo Repository
	tx   db.Transactor
}

func NewService(repo Repository, tx db.Transactor) *Service {
	if tx == nil {
		tx = db.Inline
	}
	return &Service{repo: repo, tx: tx}
}

// Resolve maps a classification result to its catalog row. The row must exist
// and carry the id and bucket the engine derived; anything else is a
// *CatalogResolutionError.
func (s *Service) Resolve(ctx context.Context, r classification.Result) (*Situation, error) {
	expected := r.SituationID()
	found, err := s.repo.GetByGroupAndCode(ctx, int(r.Group), r.SituationCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &CatalogResolutionError{GroupID: int(r.Group), Code: r.SituationCode, ExpectedID: expected, Err: err}
		}
		return nil, fmt.Errorf("resolve situation %s in group %d: %w", r.SituationCode, r.Group, err)
	}
	if found.ID != expected || found.BucketID != int(r.Bucket) {
		return nil, &CatalogResolutionError{GroupID: int(r.Group), Code: r.SituationCode, ExpectedID: expected, FoundID: found.ID}
	}
	return found, nil
}

func (s *Service) Get(ctx context.Context, id int) (*Situation, error) {
	if id < 1 || id > 2*classification.SituationsPerGroup {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// List returns the catalog, optionally restricted to one group (0 = all).
func (s *Service) List(ctx context.Context, groupID int) ([]*Situation, error) {
	if groupID != 0 && groupID != int(classification.GroupVascularPositive) && groupID != int(classification.GroupVascularNegative) {
		return nil, classification.NewInvalidInput("group", "must be 1 or 2")
	}
	return s.repo.List(ctx, groupID)
}

// Seed writes every derived definition in one transaction and returns the
// number of rows written.
func (s *Service) Seed(ctx context.Context) (int, error) {
	defs := Definitions()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for i := range defs {
			if err := s.repo.Upsert(ctx, &defs[i]); err != nil {
				return fmt.Errorf("upsert situation %d: %w", defs[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(defs), nil
}

// Verify reports every difference between stored rows and the derived catalog.
func (s *Service) Verify(ctx context.Context) ([]Drift, error) {
	stored, err := s.repo.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	return diff(stored), nil
}

// Classification is the outcome of a one-shot classification.
type Classification struct {
	Result    classification.Result `json:"classification"`
	Situation *Situation            `json:"situation"`
}

// Classify validates values, classifies them and resolves the catalog row.
// Nothing is stored. A missing catalog row is returned as an error here since
// there is no visit to degrade.
func (s *Service) Classify(ctx context.Context, values classification.TestValues) (*Classification, error) {
	if err := classification.Validate(values); err != nil {
		return nil, err
	}
	result := classification.Classify(values)
	found, err := s.Resolve(ctx, result)
	if err != nil {
		return nil, err
	}
	return &Classification{Result: result, Situation: found}, nil
}
