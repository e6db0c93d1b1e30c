package recommend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/platform/db"
)

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *historyRepoPG) ListVisitsWithPrescriptions(ctx context.Context, excludeVisitID uuid.UUID) ([]Candidate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT v.id, v.report_date,
			COALESCE(s.group_id, 0), COALESCE(s.bucket_id, 0),
			(SELECT tr.value FROM test_result tr
				WHERE tr.visit_id = v.id AND tr.test_code = $2
				ORDER BY tr.updated_at DESC LIMIT 1),
			(SELECT tr.value FROM test_result tr
				WHERE tr.visit_id = v.id AND tr.test_code = $3
				ORDER BY tr.updated_at DESC LIMIT 1)
		FROM visit v
		LEFT JOIN situation s ON s.id = v.situation_id
		WHERE v.id <> $1
		  AND EXISTS (SELECT 1 FROM prescription p WHERE p.visit_id = v.id)
		ORDER BY v.report_date, v.created_at, v.id`,
		excludeVisitID, classification.CodeCorrectedCalcium, classification.CodePhosphate)
	if err != nil {
		return nil, fmt.Errorf("list treated visits: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var group, bucket int
		if err := rows.Scan(&c.VisitID, &c.ReportDate, &group, &bucket, &c.CorrectedCalcium, &c.Phosphate); err != nil {
			return nil, err
		}
		c.Group = classification.Group(group)
		c.Bucket = classification.Bucket(bucket)
		out = append(out, c)
	}
	return out, rows.Err()
}
