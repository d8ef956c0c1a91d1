package pool

import (
	"fmt"
	"sort"

	"dexsim/internal/dexerr"
	"dexsim/internal/model"
	"dexsim/internal/stableswap"
)

// Registry holds pool models by id. It does no locking; one simulation
// owns a registry at a time.
type Registry struct {
	pools map[string]Pool
}

func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]Pool)}
}

// NewRegistryFromStates builds a model for each state.
func NewRegistryFromStates(states ...model.State) (*Registry, error) {
	r := NewRegistry()
	for _, s := range states {
		p, err := New(s)
		if err != nil {
			return nil, err
		}
		r.Put(p)
	}
	return r, nil
}

func (r *Registry) Put(p Pool) {
	r.pools[p.ID()] = p
}

func (r *Registry) Get(id string) (Pool, error) {
	p, ok := r.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, dexerr.ErrUnknownPool)
	}
	return p, nil
}

// IDs returns the pool ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	return len(r.pools)
}

// States returns a copy of every pool state, ordered by id.
func (r *Registry) States() []model.State {
	ids := r.IDs()
	out := make([]model.State, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.pools[id].State())
	}
	return out
}

// Clone deep-copies every pool.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for id, p := range r.pools {
		out.pools[id] = p.Clone()
	}
	return out
}

// SetSolver makes every stable pool in the registry use solver.
func (r *Registry) SetSolver(solver stableswap.Solver) {
	for _, p := range r.pools {
		if s, ok := p.(*Stable); ok {
			s.WithSolver(solver)
		}
	}
}
