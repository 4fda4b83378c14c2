package hiveschema

import "fmt"

// DBType is the closed set of column-type names the hive's
// partition_dimension_metadata.db_type column accepts, per spec.md
// §6. Case-sensitive, matching the source exactly.
type DBType string

const (
	DBTypeBigint    DBType = "BIGINT"
	DBTypeChar      DBType = "CHAR"
	DBTypeDate      DBType = "DATE"
	DBTypeDouble    DBType = "DOUBLE"
	DBTypeFloat     DBType = "FLOAT"
	DBTypeInteger   DBType = "INTEGER"
	DBTypeSmallint  DBType = "SMALLINT"
	DBTypeTimestamp DBType = "TIMESTAMP"
	DBTypeTinyint   DBType = "TINYINT"
	DBTypeVarchar   DBType = "VARCHAR"
)

// validDBTypes is the closed enumeration used by ParseDBType.
var validDBTypes = map[DBType]struct{}{
	DBTypeBigint: {}, DBTypeChar: {}, DBTypeDate: {}, DBTypeDouble: {},
	DBTypeFloat: {}, DBTypeInteger: {}, DBTypeSmallint: {}, DBTypeTimestamp: {},
	DBTypeTinyint: {}, DBTypeVarchar: {},
}

// ParseDBType validates a user-supplied db_type string (e.g. from the
// CLI) against the closed enumeration of spec.md §6.
func ParseDBType(s string) (DBType, error) {
	t := DBType(s)
	if _, ok := validDBTypes[t]; !ok {
		return "", fmt.Errorf("hiveschema: invalid db_type %q (must be one of BIGINT, CHAR, DATE, DOUBLE, FLOAT, INTEGER, SMALLINT, TIMESTAMP, TINYINT, VARCHAR)", s)
	}
	return t, nil
}
