// Package revision keeps a visit's classification and prescriptions consistent
// when its lab values are corrected.
package revision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/medication"
	"github.com/ehr/ckdmbd/internal/domain/situation"
	"github.com/ehr/ckdmbd/internal/domain/visit"
	"github.com/ehr/ckdmbd/internal/platform/db"
	"github.com/ehr/ckdmbd/internal/platform/metrics"
)

// Catalog resolves classifications and reads stored situations.
type Catalog interface {
	Resolve(ctx context.Context, r classification.Result) (*situation.Situation, error)
	Get(ctx context.Context, id int) (*situation.Situation, error)
}

type Service struct {
	visits        visit.VisitRepository
	results       visit.TestResultRepository
	prescriptions medication.PrescriptionRepository
	catalog       Catalog
	tx            db.Transactor
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func NewService(visits visit.VisitRepository, results visit.TestResultRepository,
	prescriptions medication.PrescriptionRepository, catalog Catalog,
	tx db.Transactor, m *metrics.Metrics, log zerolog.Logger) *Service {
	if tx == nil {
		tx = db.Inline
	}
	return &Service{
		visits:        visits,
		results:       results,
		prescriptions: prescriptions,
		catalog:       catalog,
		tx:            tx,
		metrics:       m,
		log:           log.With().Str("component", "revision").Logger(),
	}
}

type target struct {
	result *visit.TestResult
	value  float64
}

// staged is one write the revision will perform.
type staged struct {
	row    *visit.TestResult
	isNew  bool
	change ValueChange
}

// ReviseVisit applies edits to a visit's test results, reclassifies the visit
// and outdates its active prescriptions when a critical value or the
// group/bucket changed.
//
// Linkage and input errors are returned before anything is written. All writes
// run in one transaction, so a failed write leaves the visit untouched. When
// the new classification has no catalog row the value edits are still saved,
// the situation and prescriptions are left alone and the outcome carries a
// data integrity warning.
func (s *Service) ReviseVisit(ctx context.Context, visitID uuid.UUID, edits []Edit, actor string) (out *Outcome, err error) {
	defer func() { s.observe(out, err) }()

	if len(edits) == 0 {
		return nil, classification.NewInvalidInput("edits", "cannot be blank")
	}
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	current, err := s.results.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("load test results: %w", err)
	}
	targets, err := resolveTargets(visitID, current, edits)
	if err != nil {
		return nil, err
	}

	out = &Outcome{VisitID: visitID}
	snapshot := visit.Snapshot(current)
	latest := latestByCode(current)

	var plan []staged
	caOrAlbEdited := false
	for _, t := range targets {
		snapshot[t.result.TestCode] = t.value
		plan = append(plan, stage(t.result, t.value, false, false))
		if t.result.TestCode == classification.CodeCalcium || t.result.TestCode == classification.CodeAlbumin {
			caOrAlbEdited = true
		}
	}

	if caOrAlbEdited {
		ca, okCa := snapshot[classification.CodeCalcium]
		alb, okAlb := snapshot[classification.CodeAlbumin]
		if okCa && okAlb {
			cca := classification.CorrectedCalcium(ca, alb)
			snapshot[classification.CodeCorrectedCalcium] = cca
			row, isNew := latest[classification.CodeCorrectedCalcium], false
			if row == nil {
				row = &visit.TestResult{ID: uuid.New(), VisitID: visitID, TestCode: classification.CodeCorrectedCalcium}
				isNew = true
			}
			plan = append(plan, stage(row, cca, isNew, true))
			out.CorrectedCalciumRecalculated = true
		}
	}

	var descriptions []string
	for _, p := range plan {
		out.Changes = append(out.Changes, p.change)
		if p.change.Critical {
			out.CriticalChanges = appendUnique(out.CriticalChanges, p.change.TestCode)
			descriptions = append(descriptions, describeChange(p.change))
		}
	}

	previousPTH, err := s.results.LatestPTHBefore(ctx, v.PatientID, v.ID, v.ReportDate)
	if err != nil {
		return nil, fmt.Errorf("load previous PTH: %w", err)
	}
	values, err := classification.FromResults(snapshot, previousPTH)
	if err != nil {
		return nil, err
	}
	result := classification.Classify(values)
	s.metrics.ObserveClassification(int(result.Group), int(result.Bucket))
	out.Classification = &result

	var oldSit *situation.Situation
	storedMissing := false
	if v.SituationID != nil {
		oldSit, err = s.catalog.Get(ctx, *v.SituationID)
		switch {
		case errors.Is(err, situation.ErrNotFound):
			// Dangling reference: compare against the derived definition
			// of the id, if it has one.
			storedMissing = true
			oldSit, _ = situation.DefinitionByID(*v.SituationID)
			out.DataIntegrityWarning = true
			s.log.Warn().Str("visit_id", visitID.String()).Int("situation_id", *v.SituationID).
				Msg("stored situation missing from catalog")
		case err != nil:
			return nil, fmt.Errorf("load current situation: %w", err)
		}
	}
	out.OldSituation = oldSit.Ref()

	newSit, err := s.catalog.Resolve(ctx, result)
	degraded := errors.Is(err, situation.ErrCatalogResolution)
	if err != nil && !degraded {
		return nil, err
	}
	if degraded {
		s.metrics.ObserveCatalogFailure()
		out.DataIntegrityWarning = true
		s.log.Error().Err(err).Str("visit_id", visitID.String()).Msg("classification could not be resolved; situation left unchanged")
	} else {
		out.NewSituation = newSit.Ref()
		if storedMissing && oldSit == nil {
			reassignSituation(out, *v.SituationID, newSit)
		} else {
			compareSituations(out, oldSit, newSit)
		}
		descriptions = append(descriptions, out.ClassificationChanges...)
	}

	hadActive := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, p := range plan {
			if err := s.write(ctx, p, actor); err != nil {
				return err
			}
			out.UpdatedTestIDs = append(out.UpdatedTestIDs, p.row.ID)
		}

		if !degraded {
			if v.SituationID == nil || *v.SituationID != newSit.ID {
				if err := s.visits.UpdateSituation(ctx, visitID, &newSit.ID, actor); err != nil {
					return fmt.Errorf("update visit situation: %w", err)
				}
			}

			active, err := s.prescriptions.ListActiveByVisit(ctx, visitID)
			if err != nil {
				return fmt.Errorf("load active prescriptions: %w", err)
			}
			hadActive = len(active) > 0
			if hadActive && (len(out.CriticalChanges) > 0 || out.SignificantChange) {
				reason := "Lab values revised: " + strings.Join(descriptions, "; ")
				n, err := s.prescriptions.OutdateActiveByVisit(ctx, visitID, reason, actor)
				if err != nil {
					return err
				}
				out.MedicationsOutdatedCount = n
			}
		}

		if err := s.visits.Touch(ctx, visitID, actor); err != nil {
			return fmt.Errorf("touch visit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.WarningMessage = composeMessage(out, degraded, hadActive, descriptions)
	if storedMissing {
		out.WarningMessage += fmt.Sprintf(" The visit's stored situation %d is missing from the catalog; "+
			"contact an administrator to repair the reference data.", *v.SituationID)
	}
	s.log.Info().
		Str("visit_id", visitID.String()).
		Str("actor", actor).
		Strs("critical_changes", out.CriticalChanges).
		Bool("classification_changed", out.ClassificationChanged).
		Bool("significant_change", out.SignificantChange).
		Int("medications_outdated", out.MedicationsOutdatedCount).
		Bool("data_integrity_warning", out.DataIntegrityWarning).
		Msg("visit revised")
	return out, nil
}

func (s *Service) write(ctx context.Context, p staged, actor string) error {
	var err error
	if p.isNew {
		row := *p.row
		row.Value = p.change.NewValue
		if actor != "" {
			row.UpdatedBy = &actor
		}
		err = s.results.Create(ctx, &row)
	} else {
		err = s.results.UpdateValue(ctx, p.row.ID, p.change.NewValue, actor)
	}
	if err != nil {
		return &UpdateFailedError{TestResultID: p.row.ID, TestCode: p.row.TestCode, Err: err}
	}
	return nil
}

func (s *Service) observe(out *Outcome, err error) {
	switch {
	case errors.Is(err, ErrNotLinked), errors.Is(err, classification.ErrInvalidInput), errors.Is(err, visit.ErrNotFound):
		s.metrics.ObserveRevision("rejected", 0)
	case err != nil:
		s.metrics.ObserveRevision("failed", 0)
	case out.DataIntegrityWarning:
		s.metrics.ObserveRevision("degraded", 0)
	case !out.changedAnything():
		s.metrics.ObserveRevision("noop", 0)
	default:
		s.metrics.ObserveRevision("applied", out.MedicationsOutdatedCount)
	}
}

func resolveTargets(visitID uuid.UUID, current []*visit.TestResult, edits []Edit) ([]target, error) {
	byID := make(map[uuid.UUID]*visit.TestResult, len(current))
	for _, r := range current {
		byID[r.ID] = r
	}
	byCode := latestByCode(current)

	notLinked := &NotLinkedError{VisitID: visitID}
	fields := validation.Errors{}
	seen := map[uuid.UUID]bool{}
	var targets []target

	for i, e := range edits {
		key := "edits." + strconv.Itoa(i)
		var r *visit.TestResult
		switch {
		case e.TestResultID != uuid.Nil:
			if r = byID[e.TestResultID]; r == nil {
				notLinked.TestResultIDs = append(notLinked.TestResultIDs, e.TestResultID)
				continue
			}
		case e.TestCode != "":
			if r = byCode[e.TestCode]; r == nil {
				notLinked.TestCodes = append(notLinked.TestCodes, e.TestCode)
				continue
			}
		default:
			fields[key] = errors.New("test_result_id or test_code is required")
			continue
		}

		if r.TestCode == classification.CodeCorrectedCalcium {
			fields[key] = errors.New("corrected calcium is derived from CA and ALB and cannot be edited")
			continue
		}
		if seen[r.ID] {
			fields[key] = errors.New("test result edited more than once")
			continue
		}
		seen[r.ID] = true
		if err := classification.ValidateValue(r.TestCode, e.Value); err != nil {
			var ie *classification.InvalidInputError
			if errors.As(err, &ie) {
				fields[key] = ie.Fields[r.TestCode]
			}
			continue
		}
		targets = append(targets, target{result: r, value: e.Value})
	}

	if len(notLinked.TestResultIDs) > 0 || len(notLinked.TestCodes) > 0 {
		return nil, notLinked
	}
	if len(fields) > 0 {
		return nil, &classification.InvalidInputError{Fields: fields}
	}
	return targets, nil
}

func latestByCode(results []*visit.TestResult) map[string]*visit.TestResult {
	out := make(map[string]*visit.TestResult, len(results))
	for _, r := range results {
		out[r.TestCode] = r
	}
	return out
}

func stage(row *visit.TestResult, value float64, isNew, derived bool) staged {
	ch := ValueChange{TestResultID: row.ID, TestCode: row.TestCode, NewValue: value, Derived: derived}
	if !isNew {
		old := row.Value
		ch.OldValue = &old
		ch.PercentChange = PercentChange(old, value)
		ch.Critical = criticalCodes[row.TestCode] && ch.PercentChange > CriticalThresholdPercent
	}
	return staged{row: row, isNew: isNew, change: ch}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func describeChange(c ValueChange) string {
	old := "none"
	if c.OldValue != nil {
		old = formatValue(*c.OldValue)
	}
	return fmt.Sprintf("%s changed %.1f%% (%s -> %s)", c.TestCode, c.PercentChange, old, formatValue(c.NewValue))
}

// compareSituations fills the classification fields of out. A group or bucket
// change is significant; a code change inside the same bucket is recorded
// only. A visit that had no situation counts as a significant change.
func compareSituations(out *Outcome, old, next *situation.Situation) {
	if old == nil {
		out.ClassificationChanged = true
		out.SignificantChange = true
		out.ClassificationChanges = append(out.ClassificationChanges,
			fmt.Sprintf("situation assigned: group %d, bucket %d, %s", next.GroupID, next.BucketID, next.Code))
		return
	}
	if old.GroupID != next.GroupID {
		out.SignificantChange = true
		out.ClassificationChanges = append(out.ClassificationChanges,
			fmt.Sprintf("group %d -> %d", old.GroupID, next.GroupID))
	}
	if old.BucketID != next.BucketID {
		out.SignificantChange = true
		out.ClassificationChanges = append(out.ClassificationChanges,
			fmt.Sprintf("bucket %d -> %d", old.BucketID, next.BucketID))
	}
	if old.Code != next.Code {
		out.ClassificationChanges = append(out.ClassificationChanges,
			fmt.Sprintf("situation %s -> %s", old.Code, next.Code))
	}
	out.ClassificationChanged = len(out.ClassificationChanges) > 0
}

// reassignSituation records the move away from a stored situation id that no
// longer exists anywhere. The clinical change is unknown, so it is not
// treated as significant.
func reassignSituation(out *Outcome, storedID int, next *situation.Situation) {
	out.ClassificationChanged = true
	out.ClassificationChanges = append(out.ClassificationChanges,
		fmt.Sprintf("unknown situation %d -> %s", storedID, next.Code))
}

func composeMessage(out *Outcome, degraded, hadActive bool, descriptions []string) string {
	switch {
	case degraded:
		c := out.Classification
		return fmt.Sprintf("Test values were saved, but the new classification (group %d, bucket %d, %s) "+
			"has no matching situation in the catalog. The visit's situation and prescriptions were not changed; "+
			"contact an administrator to repair the reference data.", c.Group, c.Bucket, c.SituationCode)
	case out.MedicationsOutdatedCount > 0:
		return fmt.Sprintf("Changes detected: %s. %d prescription(s) were marked outdated. "+
			"Review the treatment plan and issue new prescriptions.",
			strings.Join(descriptions, "; "), out.MedicationsOutdatedCount)
	case !hadActive:
		msg := "Test values updated successfully."
		if out.ClassificationChanged && out.NewSituation != nil {
			msg += " The visit is now classified as " + out.NewSituation.Code + "."
		}
		return msg
	default:
		msg := "Test values updated. Existing prescriptions remain valid."
		if out.ClassificationChanged {
			msg += " Situation changed within the same bucket: " + strings.Join(out.ClassificationChanges, "; ") + "."
		}
		return msg
	}
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
