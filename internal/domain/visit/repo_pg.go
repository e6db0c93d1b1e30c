package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/platform/db"
)

// =========== Visit Repository ===========

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const visitCols = `id, patient_id, report_date, notes, situation_id, created_at, updated_at, last_modified_by`

func (r *visitRepoPG) scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.ReportDate, &v.Notes, &v.SituationID,
		&v.CreatedAt, &v.UpdatedAt, &v.LastModifiedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit (id, patient_id, report_date, notes, situation_id, last_modified_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.ReportDate, v.Notes, v.SituationID, v.LastModifiedBy,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM visit WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+visitCols+` FROM visit
		WHERE patient_id = $1 ORDER BY report_date DESC, created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var items []*Visit
	for rows.Next() {
		v, err := r.scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *visitRepoPG) UpdateSituation(ctx context.Context, id uuid.UUID, situationID *int, actor string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET situation_id = $2, updated_at = NOW(), last_modified_by = $3
		WHERE id = $1`, id, situationID, strPtr(actor))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *visitRepoPG) Touch(ctx context.Context, id uuid.UUID, actor string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET updated_at = NOW(), last_modified_by = $2 WHERE id = $1`, id, strPtr(actor))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Test Result Repository ===========

type testResultRepoPG struct{ pool *pgxpool.Pool }

func NewTestResultRepoPG(pool *pgxpool.Pool) TestResultRepository {
	return &testResultRepoPG{pool: pool}
}

func (r *testResultRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const resultCols = `id, visit_id, test_code, value, updated_at, updated_by`

func (r *testResultRepoPG) Create(ctx context.Context, tr *TestResult) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO test_result (id, visit_id, test_code, value, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING updated_at`,
		tr.ID, tr.VisitID, tr.TestCode, tr.Value, tr.UpdatedBy,
	).Scan(&tr.UpdatedAt)
}

func (r *testResultRepoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*TestResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM test_result
		WHERE visit_id = $1 ORDER BY test_code, updated_at`, visitID)
	if err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	defer rows.Close()

	var items []*TestResult
	for rows.Next() {
		var tr TestResult
		if err := rows.Scan(&tr.ID, &tr.VisitID, &tr.TestCode, &tr.Value, &tr.UpdatedAt, &tr.UpdatedBy); err != nil {
			return nil, err
		}
		items = append(items, &tr)
	}
	return items, rows.Err()
}

func (r *testResultRepoPG) UpdateValue(ctx context.Context, id uuid.UUID, value float64, actor string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE test_result SET value = $2, updated_at = NOW(), updated_by = $3
		WHERE id = $1`, id, value, strPtr(actor))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *testResultRepoPG) LatestPTHBefore(ctx context.Context, patientID, excludeVisitID uuid.UUID, before time.Time) (*float64, error) {
	var value float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT tr.value
		FROM test_result tr
		JOIN visit v ON v.id = tr.visit_id
		WHERE v.patient_id = $1
		  AND v.id <> $2
		  AND v.report_date < $3
		  AND tr.test_code = $4
		ORDER BY v.report_date DESC, v.created_at DESC
		LIMIT 1`,
		patientID, excludeVisitID, before, classification.CodePTH,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest PTH before %s: %w", before.Format("2006-01-02"), err)
	}
	return &value, nil
}
