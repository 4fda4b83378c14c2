// Package directorystore owns the per-dimension primary-index
// database: it creates hive_primary_<dimension> tables and serves the
// locked get-or-insert operation that is the heart of node
// assignment (spec.md §4.6). Modeled on the same Store/Handle shape
// as internal/hivestore, generalized to a table whose name and key
// type are runtime values per hiveschema.Catalog.
package directorystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hivedb/hivedb/internal/hiveerrors"
	"github.com/hivedb/hivedb/internal/hiveql"
	"github.com/hivedb/hivedb/internal/hiveschema"
)

// Handle is an open connection to a directory database, plus the
// per-name materialised-table cache required by
// hiveschema.Catalog.MaterialiseDirectoryTable's idempotence
// contract.
type Handle struct {
	Engine  *hiveql.Engine
	catalog *hiveschema.Catalog
}

// Open attaches a fresh engine to uri. Does not create any table.
func Open(ctx context.Context, uri string) (*Handle, error) {
	eng, err := hiveql.Open(uri)
	if err != nil {
		return nil, err
	}
	return &Handle{Engine: eng, catalog: hiveschema.NewCatalog()}, nil
}

// CreatePrimaryIndex creates the directory database (if needed, via
// Open) and the table hive_primary_<dimensionName> with its id column
// typed per dbType. Idempotent across repeated calls with the same
// arguments.
func CreatePrimaryIndex(ctx context.Context, h *Handle, dimensionName string, dbType hiveschema.DBType) error {
	table, err := h.catalog.MaterialiseDirectoryTable(dimensionName, dbType)
	if err != nil {
		return fmt.Errorf("directorystore: create primary index for %q: %w", dimensionName, err)
	}
	return h.Engine.CreateAllTables(ctx, hiveql.NewTableDDL(table))
}

// PrimaryLookup returns the node id assigned to value under
// dimensionName, or NoSuchIDError if no row matches.
func PrimaryLookup(ctx context.Context, h *Handle, dimensionName string, value any) (int64, error) {
	table := hiveschema.DirectoryTableName(dimensionName)
	var nodeID int64
	row := h.Engine.QueryRow(ctx,
		fmt.Sprintf(`SELECT node FROM %s WHERE id = ?`, table), value)
	if err := row.Scan(&nodeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &hiveerrors.NoSuchIDError{Dimension: dimensionName, Value: value}
		}
		return 0, fmt.Errorf("directorystore: lookup %q value %v: %w", dimensionName, value, err)
	}
	return nodeID, nil
}

// PickNodeFunc selects a node id to assign a never-before-seen
// dimension value to. It runs inside the locked transaction described
// below, so it must not itself start a nested transaction against the
// same database.
type PickNodeFunc func(ctx context.Context) (int64, error)

// PrimaryGetOrInsert is the critical section of spec.md §4.6: inside
// one transaction, it probes for an existing assignment with a
// row-level lock; if none exists it calls pick to choose a node and
// inserts the new row. Concurrent callers racing on the same
// (dimensionName, value) either observe the row one of them inserted,
// or block on the engine's transaction until it commits — see
// hiveql.Tx.SelectForUpdate for how that guarantee is realised per
// back-end.
func PrimaryGetOrInsert(ctx context.Context, h *Handle, dimensionName string, value any, pick PickNodeFunc) (int64, error) {
	table := hiveschema.DirectoryTableName(dimensionName)
	var nodeID int64

	err := h.Engine.Transaction(ctx, func(tx *hiveql.Tx) error {
		row := tx.SelectForUpdate(ctx,
			fmt.Sprintf(`SELECT node FROM %s WHERE id = ? LIMIT 1`, table), value)
		switch scanErr := row.Scan(&nodeID); {
		case scanErr == nil:
			return nil
		case errors.Is(scanErr, sql.ErrNoRows):
			// fall through to allocate below
		default:
			return fmt.Errorf("directorystore: probe %q value %v: %w", dimensionName, value, scanErr)
		}

		picked, pickErr := pick(ctx)
		if pickErr != nil {
			return pickErr
		}

		_, execErr := tx.Execute(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, node, secondary_index_count, last_updated, read_only) VALUES (?, ?, 0, ?, 0)`, table),
			value, picked, time.Now().UTC().Format("2006-01-02 15:04:05"))
		if execErr != nil {
			return fmt.Errorf("directorystore: insert %q value %v: %w", dimensionName, value, execErr)
		}
		nodeID = picked
		return nil
	})
	if err != nil {
		return 0, err
	}
	return nodeID, nil
}

// PrimaryDelete deletes the row matching both id and node. It returns
// whether a row was actually deleted; the caller surfaces
// NoSuchNodeForDimensionValueError when it returns false.
func PrimaryDelete(ctx context.Context, h *Handle, dimensionName string, value any, nodeID int64) (bool, error) {
	table := hiveschema.DirectoryTableName(dimensionName)
	res, err := h.Engine.Execute(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND node = ?`, table), value, nodeID)
	if err != nil {
		return false, fmt.Errorf("directorystore: delete %q value %v: %w", dimensionName, value, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("directorystore: delete %q value %v: rows affected: %w", dimensionName, value, err)
	}
	return n > 0, nil
}
