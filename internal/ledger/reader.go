// Package ledger reads pool states from the ledger the engine simulates.
package ledger

import (
	"context"
	"fmt"

	"dexsim/internal/model"
	"dexsim/internal/pool"
)

// Reader returns the current state of a pool.
type Reader interface {
	ReadPoolState(ctx context.Context, poolID string) (model.State, error)
}

// LoadRegistry reads every pool in ids and builds a registry from them.
func LoadRegistry(ctx context.Context, reader Reader, ids []string) (*pool.Registry, error) {
	if reader == nil {
		return nil, fmt.Errorf("ledger reader is nil")
	}
	states := make([]model.State, 0, len(ids))
	for _, id := range ids {
		st, err := reader.ReadPoolState(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read pool %s: %w", id, err)
		}
		states = append(states, st)
	}
	return pool.NewRegistryFromStates(states...)
}
