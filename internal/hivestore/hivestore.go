// Package hivestore reads and writes the hive metadata tables:
// partition_dimension_metadata and node_metadata. Modeled on the
// Store shape of internal/storage/ephemeral (New/Close, a thin
// wrapper over *sql.DB) and the query helpers of
// internal/storage/sqlite/config.go (QueryRowContext plus a
// wrap-the-driver-error helper).
package hivestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hivedb/hivedb/internal/hiveerrors"
	"github.com/hivedb/hivedb/internal/hiveql"
	"github.com/hivedb/hivedb/internal/hiveschema"
)

// Handle is an open connection to a hive database.
type Handle struct {
	Engine *hiveql.Engine
}

// Open binds a fresh engine to uri. Does not create tables; Create
// materialises the hive schema.
func Open(ctx context.Context, uri string) (*Handle, error) {
	eng, err := hiveql.Open(uri)
	if err != nil {
		return nil, err
	}
	return &Handle{Engine: eng}, nil
}

// Create opens uri and materialises the hive schema. Idempotent:
// re-creating an existing hive succeeds and leaves existing data
// untouched.
func Create(ctx context.Context, uri string) (*Handle, error) {
	h, err := Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := h.Engine.CreateAllTables(ctx, hiveql.NewSchemaDDL(hiveschema.HiveSchema())); err != nil {
		h.Engine.Dispose()
		return nil, err
	}
	return h, nil
}

// LookupDimension resolves a dimension name to its id and directory
// index URI.
func LookupDimension(ctx context.Context, h *Handle, name string) (id int64, indexURI string, err error) {
	row := h.Engine.QueryRow(ctx,
		`SELECT id, index_uri FROM partition_dimension_metadata WHERE name = ?`, name)
	if err := row.Scan(&id, &indexURI); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", &hiveerrors.NoSuchDimensionError{Name: name}
		}
		return 0, "", fmt.Errorf("hivestore: lookup dimension %q: %w", name, err)
	}
	return id, indexURI, nil
}

// LookupNodeURI resolves a node id to its connection URI, requiring
// the node to belong to dimensionID.
func LookupNodeURI(ctx context.Context, h *Handle, nodeID, dimensionID int64) (uri string, err error) {
	row := h.Engine.QueryRow(ctx,
		`SELECT uri FROM node_metadata WHERE id = ? AND partition_dimension_id = ?`, nodeID, dimensionID)
	if err := row.Scan(&uri); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil // caller decides whether this is NoSuchNode or InternalInconsistency
		}
		return "", fmt.Errorf("hivestore: lookup node uri %d: %w", nodeID, err)
	}
	return uri, nil
}

// ListNodeIDs returns every node id registered under dimensionID. An
// empty slice is a valid result.
func ListNodeIDs(ctx context.Context, h *Handle, dimensionID int64) ([]int64, error) {
	rows, err := h.Engine.Query(ctx,
		`SELECT id FROM node_metadata WHERE partition_dimension_id = ? ORDER BY id`, dimensionID)
	if err != nil {
		return nil, fmt.Errorf("hivestore: list node ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("hivestore: scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LookupNodeByName resolves a node name within a dimension to its id.
func LookupNodeByName(ctx context.Context, h *Handle, dimensionID int64, name string) (int64, error) {
	var id int64
	row := h.Engine.QueryRow(ctx,
		`SELECT id FROM node_metadata WHERE partition_dimension_id = ? AND name = ?`, dimensionID, name)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &hiveerrors.NoNodesForDimensionError{Dimension: fmt.Sprintf("dimension_id=%d", dimensionID)}
		}
		return 0, fmt.Errorf("hivestore: lookup node by name %q: %w", name, err)
	}
	return id, nil
}

// CreateDimension registers a new dimension. directoryURI is stored
// as index_uri; CreateDimension does NOT materialise the directory
// table (the caller must have already invoked
// directorystore.CreatePrimaryIndex).
func CreateDimension(ctx context.Context, h *Handle, name, directoryURI string, dbType hiveschema.DBType) (int64, error) {
	res, err := h.Engine.Execute(ctx,
		`INSERT INTO partition_dimension_metadata (name, index_uri, db_type) VALUES (?, ?, ?)`,
		name, directoryURI, string(dbType))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &hiveerrors.DimensionExistsError{Name: name}
		}
		return 0, fmt.Errorf("hivestore: create dimension %q: %w", name, err)
	}
	id, err := res.LastInsertID()
	if err != nil {
		return 0, fmt.Errorf("hivestore: create dimension %q: last insert id: %w", name, err)
	}
	slog.Debug("hivestore: dimension created", "name", name, "id", id)
	return id, nil
}

// CreateNode registers a new node under dimensionID. This is the
// authoritative contract: dimensionID, not dimensionName (spec.md §9
// resolves the source's two historical variants in favor of the id
// form, which matches the data model).
func CreateNode(ctx context.Context, h *Handle, dimensionID int64, name, uri string) (int64, error) {
	res, err := h.Engine.Execute(ctx,
		`INSERT INTO node_metadata (partition_dimension_id, name, uri, read_only) VALUES (?, ?, ?, 0)`,
		dimensionID, name, uri)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &hiveerrors.NodeExistsError{Name: name}
		}
		return 0, fmt.Errorf("hivestore: create node %q: %w", name, err)
	}
	id, err := res.LastInsertID()
	if err != nil {
		return 0, fmt.Errorf("hivestore: create node %q: last insert id: %w", name, err)
	}
	slog.Debug("hivestore: node created", "name", name, "id", id, "dimension_id", dimensionID)
	return id, nil
}

// DeleteNode removes a node_metadata row directly. Not part of the
// public Router surface; it exists so tests can manufacture the
// catalog inconsistency described in spec.md scenario S4 ("vanishing
// node") the way original_source/snakepit's test suite does, by
// deleting the row out from under an existing directory assignment.
func DeleteNode(ctx context.Context, h *Handle, nodeID int64) error {
	_, err := h.Engine.Execute(ctx, `DELETE FROM node_metadata WHERE id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("hivestore: delete node %d: %w", nodeID, err)
	}
	return nil
}

// isUniqueViolation classifies a driver error as a uniqueness
// constraint violation by substring match, the same way
// hiveql.isRetryableError classifies transient connection errors:
// the two drivers wired in (ncruces/go-sqlite3 and go-sql-driver/mysql)
// don't share a structured error type, so string matching on their
// well-known phrasing is the portable option.
func isUniqueViolation(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "duplicate entry") ||
		strings.Contains(s, "unique constraint") ||
		strings.Contains(s, "1062")
}
