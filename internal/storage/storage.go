// Package storage persists pool snapshots and route simulation runs.
package storage

import (
	"context"

	"dexsim/internal/model"
)

// Storage defines a sink for snapshots and route runs.
type Storage interface {
	PutSnapshots(ctx context.Context, snapshots []model.Snapshot) error
	PutRouteRuns(ctx context.Context, runs []model.RouteRun) error
}
