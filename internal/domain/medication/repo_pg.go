package medication

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ckdmbd/internal/platform/db"
)

// =========== Medication Type Repository ===========

type medicationTypeRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationTypeRepoPG(pool *pgxpool.Pool) MedicationTypeRepository {
	return &medicationTypeRepoPG{pool: pool}
}

func (r *medicationTypeRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *medicationTypeRepoPG) List(ctx context.Context) ([]*MedicationType, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, code, name, unit FROM medication_type ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list medication types: %w", err)
	}
	defer rows.Close()

	var items []*MedicationType
	for rows.Next() {
		var mt MedicationType
		if err := rows.Scan(&mt.ID, &mt.Code, &mt.Name, &mt.Unit); err != nil {
			return nil, err
		}
		items = append(items, &mt)
	}
	return items, rows.Err()
}

func (r *medicationTypeRepoPG) GetByID(ctx context.Context, id int) (*MedicationType, error) {
	var mt MedicationType
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, code, name, unit FROM medication_type WHERE id = $1`, id).
		Scan(&mt.ID, &mt.Code, &mt.Name, &mt.Unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &mt, err
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const rxCols = `id, visit_id, medication_type_id, dosage, is_outdated, outdated_at,
	outdated_reason, outdated_by, created_at, created_by`

func (r *prescriptionRepoPG) scanRx(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.VisitID, &p.MedicationTypeID, &p.Dosage, &p.IsOutdated, &p.OutdatedAt,
		&p.OutdatedReason, &p.OutdatedBy, &p.CreatedAt, &p.CreatedBy)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, visit_id, medication_type_id, dosage, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		p.ID, p.VisitID, p.MedicationTypeID, p.Dosage, p.CreatedBy,
	).Scan(&p.CreatedAt)
}

func (r *prescriptionRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := r.scanRx(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *prescriptionRepoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Prescription, error) {
	return r.list(ctx, `SELECT `+rxCols+` FROM prescription
		WHERE visit_id = $1 ORDER BY created_at, id`, visitID)
}

func (r *prescriptionRepoPG) ListActiveByVisit(ctx context.Context, visitID uuid.UUID) ([]*Prescription, error) {
	return r.list(ctx, `SELECT `+rxCols+` FROM prescription
		WHERE visit_id = $1 AND NOT is_outdated ORDER BY medication_type_id`, visitID)
}

func (r *prescriptionRepoPG) OutdateActiveByVisit(ctx context.Context, visitID uuid.UUID, reason, actor string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription
		SET is_outdated = TRUE, outdated_at = NOW(), outdated_reason = $2, outdated_by = $3
		WHERE visit_id = $1 AND NOT is_outdated`, visitID, reason, strPtr(actor))
	if err != nil {
		return 0, fmt.Errorf("outdate prescriptions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *prescriptionRepoPG) OutdateByVisitAndType(ctx context.Context, visitID uuid.UUID, medicationTypeID int, reason, actor string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription
		SET is_outdated = TRUE, outdated_at = NOW(), outdated_reason = $3, outdated_by = $4
		WHERE visit_id = $1 AND medication_type_id = $2 AND NOT is_outdated`,
		visitID, medicationTypeID, reason, strPtr(actor))
	if err != nil {
		return 0, fmt.Errorf("outdate prescription: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
