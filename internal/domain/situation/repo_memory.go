package situation

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-process Repository. The classify CLI resolves against
// it when no database is configured.
type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[int]*Situation
}

func NewMemoryRepo(rows ...Situation) *MemoryRepo {
	r := &MemoryRepo{rows: make(map[int]*Situation, len(rows))}
	for i := range rows {
		s := rows[i]
		r.rows[s.ID] = &s
	}
	return r
}

// NewSeededMemoryRepo returns a MemoryRepo holding the full derived catalog.
func NewSeededMemoryRepo() *MemoryRepo {
	return NewMemoryRepo(Definitions()...)
}

func (r *MemoryRepo) GetByID(_ context.Context, id int) (*Situation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepo) GetByGroupAndCode(_ context.Context, groupID int, code string) (*Situation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.rows {
		if s.GroupID == groupID && s.Code == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) List(_ context.Context, groupID int) ([]*Situation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Situation
	for _, s := range r.rows {
		if groupID == 0 || s.GroupID == groupID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Upsert(_ context.Context, s *Situation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

// Delete removes a row. Used to simulate incomplete reference data.
func (r *MemoryRepo) Delete(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
}
