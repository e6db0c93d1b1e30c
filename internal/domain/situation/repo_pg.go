package situation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/ckdmbd/internal/platform/db"
)

type situationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &situationRepoPG{pool: pool}
}

func (r *situationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const situationCols = `id, group_id, bucket_id, code, description`

func scanSituation(row pgx.Row) (*Situation, error) {
	var s Situation
	if err := row.Scan(&s.ID, &s.GroupID, &s.BucketID, &s.Code, &s.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *situationRepoPG) GetByID(ctx context.Context, id int) (*Situation, error) {
	return scanSituation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+situationCols+` FROM situation WHERE id = $1`, id))
}

func (r *situationRepoPG) GetByGroupAndCode(ctx context.Context, groupID int, code string) (*Situation, error) {
	return scanSituation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+situationCols+` FROM situation WHERE group_id = $1 AND code = $2`, groupID, code))
}

func (r *situationRepoPG) List(ctx context.Context, groupID int) ([]*Situation, error) {
	query := `SELECT ` + situationCols + ` FROM situation`
	var args []interface{}
	if groupID != 0 {
		query += ` WHERE group_id = $1`
		args = append(args, groupID)
	}
	query += ` ORDER BY id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list situations: %w", err)
	}
	defer rows.Close()

	var items []*Situation
	for rows.Next() {
		s, err := scanSituation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *situationRepoPG) Upsert(ctx context.Context, s *Situation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO situation (id, group_id, bucket_id, code, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			bucket_id = EXCLUDED.bucket_id,
			code = EXCLUDED.code,
			description = EXCLUDED.description`,
		s.ID, s.GroupID, s.BucketID, s.Code, s.Description)
	return err
}
