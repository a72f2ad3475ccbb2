package ddl

// ColumnDef describes a single column in a table definition.
//
// Name is the logical column name (unquoted; quoting happens at render time).
// SQLType is the backend type, e.g. TEXT, INTEGER, NUMERIC(18,2).
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef holds the fully-qualified table name (FQN) and an ordered list of
// columns. The FQN is expected in dotted form (e.g. "schema.table") and is
// quoted segment by segment by renderers.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}
