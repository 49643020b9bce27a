package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"livetrade/internal/errors"
	"livetrade/pkg/exception"
)

// MemoryRepository keeps definitions in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	clock func() time.Time
}

// NewMemoryRepository returns a repository seeded with defs.
func NewMemoryRepository(defs ...Definition) (*MemoryRepository, error) {
	repo := &MemoryRepository{
		defs:  make(map[string]Definition, len(defs)),
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, def := range defs {
		if _, err := repo.Save(context.Background(), def); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// Save inserts or replaces a definition.
func (r *MemoryRepository) Save(_ context.Context, def Definition) (Definition, error) {
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	now := r.clock()
	def = def.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.defs[def.ID]; ok {
		def.CreatedAt = existing.CreatedAt
	} else if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	r.defs[def.ID] = def
	return def.Clone(), nil
}

// FindByID returns the definition with id.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, errors.Wrapf(exception.ErrStrategyNotFound, "find %s", id)
	}
	return def.Clone(), nil
}

// List returns all definitions ordered by ID.
func (r *MemoryRepository) List(_ context.Context) ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a definition.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[id]; !ok {
		return errors.Wrapf(exception.ErrStrategyNotFound, "delete %s", id)
	}
	delete(r.defs, id)
	return nil
}
