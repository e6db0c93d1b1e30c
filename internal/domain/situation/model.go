package situation

import (
	"errors"
	"fmt"

	"github.com/ehr/ckdmbd/internal/domain/classification"
)

// Situation maps to the situation table. Rows are static reference data.
type Situation struct {
	ID          int    `db:"id" json:"id"`
	GroupID     int    `db:"group_id" json:"group_id"`
	BucketID    int    `db:"bucket_id" json:"bucket_id"`
	Code        string `db:"code" json:"code"`
	Description string `db:"description" json:"description"`
}

// Group returns the situation's group as a classification value.
func (s *Situation) Group() classification.Group { return classification.Group(s.GroupID) }

// Bucket returns the situation's bucket as a classification value.
func (s *Situation) Bucket() classification.Bucket { return classification.Bucket(s.BucketID) }

// Ref is the compact form of a situation used in API responses and outcomes.
type Ref struct {
	ID       int    `json:"id"`
	GroupID  int    `json:"group_id"`
	BucketID int    `json:"bucket_id"`
	Code     string `json:"code"`
}

// Ref returns the compact form, or nil for a nil situation.
func (s *Situation) Ref() *Ref {
	if s == nil {
		return nil
	}
	return &Ref{ID: s.ID, GroupID: s.GroupID, BucketID: s.BucketID, Code: s.Code}
}

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("situation not found")
	// ErrCatalogResolution marks a classification that has no matching
	// catalog row. It signals inconsistent reference data, not bad input.
	ErrCatalogResolution = errors.New("situation catalog resolution failed")
)

// CatalogResolutionError describes a derived (group, code) pair the catalog
// could not resolve to the expected situation id.
type CatalogResolutionError struct {
	GroupID    int
	Code       string
	ExpectedID int
	FoundID    int
	Err        error
}

func (e *CatalogResolutionError) Error() string {
	if e.FoundID != 0 {
		return fmt.Sprintf("situation catalog: group %d code %s resolved to id %d, expected %d",
			e.GroupID, e.Code, e.FoundID, e.ExpectedID)
	}
	if e.Err != nil {
		return fmt.Sprintf("situation catalog: group %d code %s: %v", e.GroupID, e.Code, e.Err)
	}
	return fmt.Sprintf("situation catalog: no row for group %d code %s", e.GroupID, e.Code)
}

func (e *CatalogResolutionError) Is(target error) bool { return target == ErrCatalogResolution }

func (e *CatalogResolutionError) Unwrap() error { return e.Err }
