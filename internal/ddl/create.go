// Package ddl renders CREATE TABLE statements for the SQL storage backends
// from the canonical column contract. Each backend supplies a Dialect with
// its quoting rules and type mapping.
package ddl

import (
	"fmt"
	"strings"

	"marketetl/internal/schema"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// QuoteIdent quotes one identifier segment.
	QuoteIdent func(string) string

	// MapType maps a contract type (schema.TypeString, TypeInt, TypeDecimal)
	// to a column type.
	MapType func(string) string

	// Guard, when set, wraps a plain CREATE TABLE so it only runs if the table
	// is missing. Dialects without it get CREATE TABLE IF NOT EXISTS.
	Guard func(fqn, quotedFQN, create string) string
}

// FromContract builds a TableDef for table from c using d's type mapping.
func FromContract(c schema.Contract, table string, d Dialect) TableDef {
	cols := make([]ColumnDef, len(c.Fields))
	for i, f := range c.Fields {
		cols[i] = ColumnDef{Name: f.Name, SQLType: d.MapType(f.Type), Nullable: f.Nullable}
	}
	return TableDef{FQN: table, Columns: cols}
}

// BuildCreateTableSQL renders a deterministic CREATE TABLE statement:
//
//	CREATE TABLE IF NOT EXISTS "schema"."table" (
//	  "col1" TYPE [NOT NULL],
//	  ...
//	);
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(d.QuoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	quoted := QuoteFQN(fqn, d.QuoteIdent)
	body := fmt.Sprintf("(\n  %s\n)", strings.Join(cols, ",\n  "))
	if d.Guard != nil {
		return d.Guard(fqn, quoted, "CREATE TABLE "+quoted+" "+body+";"), nil
	}
	return "CREATE TABLE IF NOT EXISTS " + quoted + " " + body + ";", nil
}

// QuoteFQN quotes each dotted segment of name with quote. Empty segments are
// dropped.
func QuoteFQN(name string, quote func(string) string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, quote(p))
	}
	return strings.Join(out, ".")
}

// DoubleQuote is the ANSI identifier quote used by Postgres and SQLite.
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
