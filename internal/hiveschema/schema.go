// Package hiveschema holds declarative definitions of the hive's own
// metadata tables and a builder for the templated per-dimension
// directory table. Modeled on the CREATE-TABLE-IF-NOT-EXISTS schema
// blocks in ephemeral.schema, generalized into Go values because the
// directory table's name and key-column type are runtime parameters.
package hiveschema

import "fmt"

// ColumnType is a portable column type, mapped to a concrete SQL type
// name per driver dialect by the hiveql package.
type ColumnType int

const (
	ColInteger ColumnType = iota
	ColSmallInt
	ColString
	ColDateTime
	ColFloat
	ColBoolean
)

// Column describes one column of a Table.
type Column struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
	AutoIncr   bool
	Unique     bool
	Indexed    bool
	Default    string // raw SQL default expression, empty if none
	References *ForeignKey
}

// ForeignKey names the table and column a column references.
type ForeignKey struct {
	Table  string
	Column string
}

// Table is a named collection of columns plus table-level unique
// constraints.
type Table struct {
	Name        string
	Columns     []Column
	UniqueCols  [][]string // table-level UNIQUE(col1, col2, ...)
}

// Schema is a set of tables materialised together by
// Engine.CreateAllTables.
type Schema struct {
	Tables []Table
}

// dimensionMetadataTable is partition_dimension_metadata from spec.md §3.
func dimensionMetadataTable() Table {
	return Table{
		Name: "partition_dimension_metadata",
		Columns: []Column{
			{Name: "id", Type: ColInteger, PrimaryKey: true, AutoIncr: true, NotNull: true},
			{Name: "name", Type: ColString, NotNull: true, Unique: true},
			{Name: "index_uri", Type: ColString, NotNull: true},
			{Name: "db_type", Type: ColString, NotNull: true},
		},
	}
}

// nodeMetadataTable is node_metadata from spec.md §3.
func nodeMetadataTable() Table {
	return Table{
		Name: "node_metadata",
		Columns: []Column{
			{Name: "id", Type: ColInteger, PrimaryKey: true, AutoIncr: true, NotNull: true},
			{Name: "partition_dimension_id", Type: ColInteger, NotNull: true,
				References: &ForeignKey{Table: "partition_dimension_metadata", Column: "id"}},
			{Name: "name", Type: ColString, NotNull: true},
			{Name: "uri", Type: ColString, NotNull: true},
			{Name: "read_only", Type: ColBoolean},
		},
		UniqueCols: [][]string{{"partition_dimension_id", "name"}},
	}
}

// resourceMetadataTable, secondaryIndexMetadataTable and
// semaphoreMetadataTable are forward declarations preserved verbatim
// from original_source/snakepit/hive.py (see spec.md §3, SPEC_FULL.md
// §3): the routing core never queries them, but a hive created by
// this package must carry them so its on-disk schema matches a hive
// created by a historical implementation.
func resourceMetadataTable() Table {
	return Table{
		Name: "resource_metadata",
		Columns: []Column{
			{Name: "id", Type: ColInteger, PrimaryKey: true, AutoIncr: true, NotNull: true},
			{Name: "dimension_id", Type: ColInteger, NotNull: true,
				References: &ForeignKey{Table: "partition_dimension_metadata", Column: "id"}},
			{Name: "name", Type: ColString, NotNull: true},
			{Name: "db_type", Type: ColString, NotNull: true},
			{Name: "is_partitioning_resource", Type: ColBoolean, NotNull: true, Default: "1"},
		},
	}
}

func secondaryIndexMetadataTable() Table {
	return Table{
		Name: "secondary_index_metadata",
		Columns: []Column{
			{Name: "id", Type: ColInteger, PrimaryKey: true, AutoIncr: true, NotNull: true},
			{Name: "resource_id", Type: ColInteger, NotNull: true,
				References: &ForeignKey{Table: "resource_metadata", Column: "id"}},
			{Name: "column_name", Type: ColString, NotNull: true},
			{Name: "db_type", Type: ColString, NotNull: true},
		},
	}
}

func semaphoreMetadataTable() Table {
	return Table{
		Name: "semaphore_metadata",
		Columns: []Column{
			{Name: "read_only", Type: ColBoolean, NotNull: true},
			{Name: "revision", Type: ColInteger, NotNull: true},
		},
	}
}

// HiveSchema returns the five hive tables of spec.md §3.
func HiveSchema() Schema {
	return Schema{Tables: []Table{
		dimensionMetadataTable(),
		nodeMetadataTable(),
		resourceMetadataTable(),
		secondaryIndexMetadataTable(),
		semaphoreMetadataTable(),
	}}
}

// DirectoryPrimaryTemplate returns the four non-id columns shared by
// every hive_primary_<dimension> table.
func DirectoryPrimaryTemplate() []Column {
	return []Column{
		{Name: "node", Type: ColSmallInt, NotNull: true, Indexed: true},
		{Name: "secondary_index_count", Type: ColInteger, NotNull: true},
		{Name: "last_updated", Type: ColDateTime, NotNull: true, Indexed: true},
		{Name: "read_only", Type: ColBoolean, NotNull: true, Default: "0"},
	}
}

// DirectoryTableName returns the templated table name for dimension.
func DirectoryTableName(dimension string) string {
	return fmt.Sprintf("hive_primary_%s", dimension)
}

// idColumnType maps a DBType to the directory table's key-column
// type, per spec.md §4.2. DOUBLE and INTEGER intentionally share
// ColInteger — a quirk preserved from the source, not a bug.
func idColumnType(t DBType) (ColumnType, error) {
	switch t {
	case DBTypeBigint:
		return ColInteger, nil
	case DBTypeChar, DBTypeVarchar:
		return ColString, nil
	case DBTypeDate, DBTypeTimestamp:
		return ColDateTime, nil
	case DBTypeFloat:
		return ColFloat, nil
	case DBTypeSmallint, DBTypeTinyint:
		return ColSmallInt, nil
	case DBTypeDouble:
		return ColInteger, nil
	case DBTypeInteger:
		return ColInteger, nil
	default:
		return 0, fmt.Errorf("hiveschema: unknown db_type %q", string(t))
	}
}

// Catalog memoizes materialised directory tables per dimension name,
// so repeated MaterialiseDirectoryTable calls for the same name are
// idempotent and return the identical Table value (spec.md §4.2, §9).
type Catalog struct {
	tables map[string]Table
}

// NewCatalog returns an empty per-handle directory-table cache.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]Table)}
}

// MaterialiseDirectoryTable returns a concrete table definition named
// hive_primary_<name> whose id column's type is derived from dbType.
// A second call with the same name under the same Catalog returns the
// cached definition without re-validating dbType.
//
// The id column is the table's primary key, matching
// original_source/snakepit/directory.py's `sq.Column('id', ...,
// primary_key=True)`: at most one row per dimension value is a DB-level
// constraint, not just an artifact of PrimaryGetOrInsert's locking
// (spec.md I4/P1). The table-level UNIQUE(id, node) is also carried
// over from the same source file, redundant with the primary key but
// preserved for schema fidelity.
func (c *Catalog) MaterialiseDirectoryTable(name string, dbType DBType) (Table, error) {
	if existing, ok := c.tables[name]; ok {
		return existing, nil
	}
	idType, err := idColumnType(dbType)
	if err != nil {
		return Table{}, err
	}
	cols := make([]Column, 0, len(DirectoryPrimaryTemplate())+1)
	cols = append(cols, Column{Name: "id", Type: idType, NotNull: true, PrimaryKey: true})
	cols = append(cols, DirectoryPrimaryTemplate()...)
	t := Table{
		Name:       DirectoryTableName(name),
		Columns:    cols,
		UniqueCols: [][]string{{"id", "node"}},
	}
	c.tables[name] = t
	return t, nil
}
