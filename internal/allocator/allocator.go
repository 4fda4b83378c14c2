// Package allocator chooses a node for a newly-seen dimension value.
// Kept behind a single-method interface so a load-aware, weighted, or
// consistent-hashing allocator can replace UniformRandom without
// touching hivestore, directorystore, or hiverouter (spec.md §4.5,
// §9). No package-level mutable state, mirroring the
// register-a-function, no-global-selection-state idiom of
// internal/storage/factory's backend registry.
package allocator

import (
	"context"
	"errors"
	"math/rand/v2"
)

// ErrNoNodes is returned by Picker.PickNode when given an empty
// candidate set. Callers with a dimension name to attach (hiverouter)
// translate this into hiveerrors.NoNodesForDimensionError; the
// allocator itself has no dimension name to put in that error, only a
// node-id slice, so it stays a plain sentinel.
var ErrNoNodes = errors.New("allocator: no nodes available")

// Picker selects one id from a non-empty slice of candidate node ids.
type Picker interface {
	PickNode(ctx context.Context, nodeIDs []int64) (int64, error)
}

// UniformRandom picks uniformly at random among the candidate nodes.
// math/rand/v2's package-level functions are already safe for
// concurrent use without explicit seeding, unlike the legacy
// math/rand global source before Go 1.20.
type UniformRandom struct{}

// PickNode returns a uniformly random element of nodeIDs, or
// ErrNoNodes if nodeIDs is empty.
func (UniformRandom) PickNode(ctx context.Context, nodeIDs []int64) (int64, error) {
	if len(nodeIDs) == 0 {
		return 0, ErrNoNodes
	}
	return nodeIDs[rand.IntN(len(nodeIDs))], nil
}
