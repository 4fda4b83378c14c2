// Package hiveerrors defines the closed set of domain failures the
// routing core can surface. Every error is a distinct struct type
// (not a bare sentinel) because each one carries the arguments that
// participate in its exact string form; callers that need to branch
// on error class should use errors.As.
package hiveerrors

import "fmt"

// quote wraps s the way the source's Python repr() rendered a plain
// identifier string, single-quoted. The golden strings in spec.md §8
// depend on this exact form.
func quote(s string) string {
	return "'" + s + "'"
}

// NoSuchDimensionError is returned when a dimension name is not
// registered in the hive.
type NoSuchDimensionError struct {
	Name string
}

func (e *NoSuchDimensionError) Error() string {
	return fmt.Sprintf("No such dimension: %s", quote(e.Name))
}

// NoSuchIDError is returned when a dimension exists but the given
// value has no assignment in its directory.
type NoSuchIDError struct {
	Dimension string
	Value     any
}

func (e *NoSuchIDError) Error() string {
	return fmt.Sprintf("No such id: dimension %s, dimension_value %v", quote(e.Dimension), e.Value)
}

// NoSuchNodeError is returned when a directory row points at a node
// that is no longer registered in node_metadata for the dimension.
// This indicates a catalog inconsistency; it is surfaced, not
// repaired.
type NoSuchNodeError struct {
	Dimension string
	NodeID    int64
}

func (e *NoSuchNodeError) Error() string {
	return fmt.Sprintf("No such node: dimension %s, node_id %d", quote(e.Dimension), e.NodeID)
}

// NoNodesForDimensionError is returned when a dimension has no nodes
// registered, or a lookup by name found none.
type NoNodesForDimensionError struct {
	Dimension string
}

func (e *NoNodesForDimensionError) Error() string {
	return fmt.Sprintf("No nodes for dimension: %s", quote(e.Dimension))
}

// NoSuchNodeForDimensionValueError is returned when UnassignNode finds
// nothing matching (value, node name) to delete.
type NoSuchNodeForDimensionValueError struct {
	Dimension string
	Value     any
	NodeName  string
}

func (e *NoSuchNodeForDimensionValueError) Error() string {
	return fmt.Sprintf("No such node for dimension value: dimension %s, dimension_value %v, node %s", quote(e.Dimension), e.Value, quote(e.NodeName))
}

// DimensionExistsError is returned on a unique-name violation during
// CreateDimension.
type DimensionExistsError struct {
	Name string
}

func (e *DimensionExistsError) Error() string {
	return fmt.Sprintf("Dimension exists: %s", quote(e.Name))
}

// NodeExistsError is returned on a unique (dimension, name) violation
// during CreateNode.
type NodeExistsError struct {
	Name string
}

func (e *NodeExistsError) Error() string {
	return fmt.Sprintf("Node exists: %s", quote(e.Name))
}

// InternalInconsistencyError is raised for conditions that should be
// unreachable during quiescent operation, e.g. a node vanishing
// between allocation and URI lookup.
type InternalInconsistencyError struct {
	Description string
}

func (e *InternalInconsistencyError) Error() string {
	return fmt.Sprintf("Internal inconsistency: %s", e.Description)
}
