package hiveql

import (
	"fmt"
	"strings"

	"github.com/hivedb/hivedb/internal/hiveschema"
)

// SchemaDDL renders a hiveschema.Schema (or a single extra table, via
// NewTableDDL) to CREATE TABLE / CREATE INDEX statements for a given
// driver dialect. Kept in hiveql rather than hiveschema because it is
// about how to talk to a specific SQL dialect, not about what the
// hive's tables look like.
type SchemaDDL struct {
	tables []hiveschema.Table
}

// NewSchemaDDL wraps a hiveschema.Schema for materialisation.
func NewSchemaDDL(s hiveschema.Schema) SchemaDDL {
	return SchemaDDL{tables: s.Tables}
}

// NewTableDDL wraps a single table, e.g. a directory's
// hive_primary_<dimension> table, for materialisation.
func NewTableDDL(t hiveschema.Table) SchemaDDL {
	return SchemaDDL{tables: []hiveschema.Table{t}}
}

// Statements renders CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS statements for every table, in order, for the given driver
// name ("sqlite3" or "mysql").
func (s SchemaDDL) Statements(driver string) []string {
	var out []string
	for _, t := range s.tables {
		out = append(out, createTableStmt(t, driver))
		for _, c := range t.Columns {
			if c.Indexed && !c.PrimaryKey {
				out = append(out, fmt.Sprintf(
					"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
					t.Name, c.Name, t.Name, c.Name))
			}
		}
	}
	return out
}

func createTableStmt(t hiveschema.Table, driver string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)

	var lines []string
	for _, c := range t.Columns {
		lines = append(lines, "    "+columnDDL(c, driver))
	}
	for _, uc := range t.UniqueCols {
		lines = append(lines, fmt.Sprintf("    UNIQUE(%s)", strings.Join(uc, ", ")))
	}
	for _, c := range t.Columns {
		if c.References != nil {
			lines = append(lines, fmt.Sprintf("    FOREIGN KEY (%s) REFERENCES %s(%s)",
				c.Name, c.References.Table, c.References.Column))
		}
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

func columnDDL(c hiveschema.Column, driver string) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(" ")
	b.WriteString(sqlType(c.Type, c.AutoIncr, driver))
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		if c.AutoIncr && driver == "sqlite3" {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	if c.NotNull && !c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	return b.String()
}

// sqlType maps a portable hiveschema.ColumnType to a concrete SQL
// type name for the given dialect.
func sqlType(t hiveschema.ColumnType, autoIncr bool, driver string) string {
	switch driver {
	case "mysql":
		switch t {
		case hiveschema.ColInteger:
			if autoIncr {
				return "INTEGER AUTO_INCREMENT"
			}
			return "INTEGER"
		case hiveschema.ColSmallInt:
			return "SMALLINT"
		case hiveschema.ColString:
			return "VARCHAR(255)"
		case hiveschema.ColDateTime:
			return "DATETIME"
		case hiveschema.ColFloat:
			return "FLOAT"
		case hiveschema.ColBoolean:
			return "BOOLEAN"
		}
	default: // sqlite3
		switch t {
		case hiveschema.ColInteger:
			return "INTEGER"
		case hiveschema.ColSmallInt:
			return "INTEGER"
		case hiveschema.ColString:
			return "TEXT"
		case hiveschema.ColDateTime:
			return "TIMESTAMP"
		case hiveschema.ColFloat:
			return "REAL"
		case hiveschema.ColBoolean:
			return "BOOLEAN"
		}
	}
	return "TEXT"
}
