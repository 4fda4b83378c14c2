// Package hiverouter is the public API of the routing core: it
// composes hivestore, directorystore, and allocator and enforces the
// error taxonomy of spec.md §7. Router itself is a thin, stateless
// struct — spec.md §9 is explicit that there is no global state, and
// every handle is passed in by the caller.
package hiverouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hivedb/hivedb/internal/allocator"
	"github.com/hivedb/hivedb/internal/directorystore"
	"github.com/hivedb/hivedb/internal/hiveerrors"
	"github.com/hivedb/hivedb/internal/hiveql"
	"github.com/hivedb/hivedb/internal/hiveschema"
	"github.com/hivedb/hivedb/internal/hivestore"
)

// Router holds only the allocator strategy to use for new assignments;
// every hive, directory, and node handle is supplied by the caller on
// each call.
type Router struct {
	Picker allocator.Picker
}

// New returns a Router using the default uniform-random allocator.
func New() *Router {
	return &Router{Picker: allocator.UniformRandom{}}
}

// CreateHive opens (creating if necessary) the hive database at uri
// and materialises the hive schema. Idempotent.
func (r *Router) CreateHive(ctx context.Context, uri string) (*hivestore.Handle, error) {
	return hivestore.Create(ctx, uri)
}

// CreatePrimaryIndex opens or creates the directory database at
// directoryURI and materialises the hive_primary_<dimensionName>
// table. Idempotent. Does not touch the hive's own metadata tables —
// call CreateDimension afterward to register the dimension.
func (r *Router) CreatePrimaryIndex(ctx context.Context, directoryURI, dimensionName string, dbType hiveschema.DBType) error {
	dir, err := directorystore.Open(ctx, directoryURI)
	if err != nil {
		return err
	}
	defer dir.Engine.Dispose()
	return directorystore.CreatePrimaryIndex(ctx, dir, dimensionName, dbType)
}

// CreateDimension registers dimensionName in the hive, pointing its
// directory at directoryURI. It does NOT materialise the directory
// table; the caller must have already called CreatePrimaryIndex.
func (r *Router) CreateDimension(ctx context.Context, hive *hivestore.Handle, dimensionName, directoryURI string, dbType hiveschema.DBType) (int64, error) {
	return hivestore.CreateDimension(ctx, hive, dimensionName, directoryURI, dbType)
}

// CreateNode registers a node under dimensionID. dimensionID (not a
// dimension name) is the authoritative second argument per spec.md
// §9's resolution of the source's two historical CreateNode variants.
func (r *Router) CreateNode(ctx context.Context, hive *hivestore.Handle, dimensionID int64, nodeName, nodeURI string) (int64, error) {
	return hivestore.CreateNode(ctx, hive, dimensionID, nodeName, nodeURI)
}

// GetEngine resolves dimensionName/value to an existing assignment
// and returns a fresh engine for the node storing it. Read-only: no
// write, no lock, no side effect on failure (spec.md §4.7).
func (r *Router) GetEngine(ctx context.Context, hive *hivestore.Handle, dimensionName string, value any) (*hiveql.Engine, error) {
	dimensionID, indexURI, err := hivestore.LookupDimension(ctx, hive, dimensionName)
	if err != nil {
		return nil, err
	}

	dir, err := directorystore.Open(ctx, indexURI)
	if err != nil {
		return nil, err
	}
	defer dir.Engine.Dispose()

	nodeID, err := directorystore.PrimaryLookup(ctx, dir, dimensionName, value)
	if err != nil {
		return nil, err
	}

	nodeURI, err := hivestore.LookupNodeURI(ctx, hive, nodeID, dimensionID)
	if err != nil {
		return nil, err
	}
	if nodeURI == "" {
		return nil, &hiveerrors.NoSuchNodeError{Dimension: dimensionName, NodeID: nodeID}
	}

	return hiveql.Open(nodeURI)
}

// AssignNode is the critical-section operation of spec.md §4.6: it
// guarantees at most one node assignment per (dimensionName, value)
// even under concurrent callers, using directorystore's locked
// get-or-insert.
func (r *Router) AssignNode(ctx context.Context, hive *hivestore.Handle, dimensionName string, value any) (*hiveql.Engine, error) {
	dimensionID, indexURI, err := hivestore.LookupDimension(ctx, hive, dimensionName)
	if err != nil {
		return nil, err
	}

	dir, err := directorystore.Open(ctx, indexURI)
	if err != nil {
		return nil, err
	}
	defer dir.Engine.Dispose()

	pick := func(ctx context.Context) (int64, error) {
		nodeIDs, err := hivestore.ListNodeIDs(ctx, hive, dimensionID)
		if err != nil {
			return 0, err
		}
		nodeID, err := r.Picker.PickNode(ctx, nodeIDs)
		if err != nil {
			if errors.Is(err, allocator.ErrNoNodes) {
				return 0, &hiveerrors.NoNodesForDimensionError{Dimension: dimensionName}
			}
			return 0, err
		}
		return nodeID, nil
	}

	nodeID, err := directorystore.PrimaryGetOrInsert(ctx, dir, dimensionName, value, pick)
	if err != nil {
		return nil, err
	}

	nodeURI, err := hivestore.LookupNodeURI(ctx, hive, nodeID, dimensionID)
	if err != nil {
		return nil, err
	}
	if nodeURI == "" {
		// The node existed when pick() chose it (inside the same
		// transaction that just committed) but is gone now. This cannot
		// happen during quiescent operation; per spec.md §4.6 step 4 it
		// is an administrative race, surfaced rather than repaired.
		return nil, &hiveerrors.InternalInconsistencyError{
			Description: fmt.Sprintf("node %d for dimension %q vanished between allocation and URI lookup", nodeID, dimensionName),
		}
	}

	slog.Debug("hiverouter: assigned node", "dimension", dimensionName, "value", value, "node_id", nodeID)
	return hiveql.Open(nodeURI)
}

// UnassignNode removes the directory row for (dimensionName, value)
// that was assigned to node nodeName. Does not touch node-side data.
func (r *Router) UnassignNode(ctx context.Context, hive *hivestore.Handle, dimensionName string, value any, nodeName string) error {
	dimensionID, indexURI, err := hivestore.LookupDimension(ctx, hive, dimensionName)
	if err != nil {
		return err
	}

	nodeID, err := hivestore.LookupNodeByName(ctx, hive, dimensionID, nodeName)
	if err != nil {
		return err
	}

	dir, err := directorystore.Open(ctx, indexURI)
	if err != nil {
		return err
	}
	defer dir.Engine.Dispose()

	deleted, err := directorystore.PrimaryDelete(ctx, dir, dimensionName, value, nodeID)
	if err != nil {
		return err
	}
	if !deleted {
		return &hiveerrors.NoSuchNodeForDimensionValueError{Dimension: dimensionName, Value: value, NodeName: nodeName}
	}
	return nil
}
