package revision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotLinked    = errors.New("test result not linked to visit")
	ErrUpdateFailed = errors.New("test result update failed")
)

// NotLinkedError lists edit targets that do not belong to the visit being
// revised. Nothing has been written when it is returned.
type NotLinkedError struct {
	VisitID       uuid.UUID
	TestResultIDs []uuid.UUID
	TestCodes     []string
}

func (e *NotLinkedError) Error() string {
	var parts []string
	for _, id := range e.TestResultIDs {
		parts = append(parts, id.String())
	}
	parts = append(parts, e.TestCodes...)
	return fmt.Sprintf("test results not linked to visit %s: %s", e.VisitID, strings.Join(parts, ", "))
}

func (e *NotLinkedError) Is(target error) bool { return target == ErrNotLinked }

// UpdateFailedError names the test result whose write failed. The revision's
// earlier writes are rolled back with it.
type UpdateFailedError struct {
	TestResultID uuid.UUID
	TestCode     string
	Err          error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update test result %s (%s): %v", e.TestResultID, e.TestCode, e.Err)
}

func (e *UpdateFailedError) Is(target error) bool { return target == ErrUpdateFailed }

func (e *UpdateFailedError) Unwrap() error { return e.Err }
