package hiveschema

import "testing"

// TestIDColumnTypeMapping exercises P7: for each dbType, the
// materialised directory table's id column has the SQL type the
// mapping table in spec.md §4.2 specifies.
func TestIDColumnTypeMapping(t *testing.T) {
	tests := []struct {
		dbType DBType
		want   ColumnType
	}{
		{DBTypeBigint, ColInteger},
		{DBTypeChar, ColString},
		{DBTypeVarchar, ColString},
		{DBTypeDate, ColDateTime},
		{DBTypeTimestamp, ColDateTime},
		{DBTypeFloat, ColFloat},
		{DBTypeSmallint, ColSmallInt},
		{DBTypeTinyint, ColSmallInt},
		// DOUBLE and INTEGER intentionally collapse to the same column
		// type; this is a preserved quirk, not an oversight (spec.md §9).
		{DBTypeDouble, ColInteger},
		{DBTypeInteger, ColInteger},
	}

	for _, tt := range tests {
		t.Run(string(tt.dbType), func(t *testing.T) {
			c := NewCatalog()
			table, err := c.MaterialiseDirectoryTable("frob", tt.dbType)
			if err != nil {
				t.Fatalf("MaterialiseDirectoryTable(%q) error: %v", tt.dbType, err)
			}
			if table.Columns[0].Name != "id" {
				t.Fatalf("expected first column to be id, got %q", table.Columns[0].Name)
			}
			if got := table.Columns[0].Type; got != tt.want {
				t.Errorf("id column type = %v, want %v", got, tt.want)
			}
			if !table.Columns[0].NotNull {
				t.Errorf("id column must be NOT NULL")
			}
			if !table.Columns[0].PrimaryKey {
				t.Errorf("id column must be PRIMARY KEY: I4/P1 needs a DB-level backstop, not just locking")
			}
		})
	}
}

func TestMaterialiseDirectoryTableName(t *testing.T) {
	c := NewCatalog()
	table, err := c.MaterialiseDirectoryTable("ProductType", DBTypeInteger)
	if err != nil {
		t.Fatal(err)
	}
	if table.Name != "hive_primary_ProductType" {
		t.Errorf("table name = %q, want hive_primary_ProductType", table.Name)
	}
}

// TestMaterialiseDirectoryTableIdempotent exercises the §4.2
// idempotence contract: a second call with the same name returns the
// identical cached definition, even if dbType is (incorrectly)
// different on the second call.
func TestMaterialiseDirectoryTableIdempotent(t *testing.T) {
	c := NewCatalog()
	first, err := c.MaterialiseDirectoryTable("frob", DBTypeInteger)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.MaterialiseDirectoryTable("frob", DBTypeVarchar)
	if err != nil {
		t.Fatal(err)
	}
	if second.Columns[0].Type != first.Columns[0].Type {
		t.Errorf("second call returned a different id column type: got %v, want cached %v",
			second.Columns[0].Type, first.Columns[0].Type)
	}
}

func TestMaterialiseDirectoryTableUnknownDBType(t *testing.T) {
	c := NewCatalog()
	if _, err := c.MaterialiseDirectoryTable("frob", DBType("NOT_A_TYPE")); err == nil {
		t.Fatal("expected error for unknown db_type")
	}
}

func TestParseDBType(t *testing.T) {
	if _, err := ParseDBType("INTEGER"); err != nil {
		t.Errorf("ParseDBType(INTEGER) should succeed: %v", err)
	}
	if _, err := ParseDBType("integer"); err == nil {
		t.Errorf("ParseDBType is case-sensitive; lowercase should fail")
	}
	if _, err := ParseDBType("NOT_A_TYPE"); err == nil {
		t.Errorf("ParseDBType should reject values outside the enumeration")
	}
}

func TestDirectoryPrimaryTemplateColumns(t *testing.T) {
	cols := DirectoryPrimaryTemplate()
	names := make(map[string]bool)
	for _, c := range cols {
		names[c.Name] = true
	}
	for _, want := range []string{"node", "secondary_index_count", "last_updated", "read_only"} {
		if !names[want] {
			t.Errorf("DirectoryPrimaryTemplate missing column %q", want)
		}
	}
}
