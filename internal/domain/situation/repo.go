package situation

import "context"

type Repository interface {
	GetByID(ctx context.Context, id int) (*Situation, error)
	GetByGroupAndCode(ctx context.Context, groupID int, code string) (*Situation, error)
	List(ctx context.Context, groupID int) ([]*Situation, error)
	Upsert(ctx context.Context, s *Situation) error
}
