package storage

import (
	"strings"

	"marketetl/internal/schema"
)

// Rows flattens sets into positional rows aligned with schema.Columns().
func Rows(sets []PartitionSet) [][]any {
	n := 0
	for _, s := range sets {
		n += len(s.Events)
	}
	out := make([][]any, 0, n)
	for _, s := range sets {
		for _, ev := range s.Events {
			out = append(out, ev.Values())
		}
	}
	return out
}

// DeleteSQL renders the statement that clears what a write is about to
// replace: the whole table in static mode, otherwise only the given
// partitions. placeholder renders the i-th (1-based) bind parameter.
func DeleteSQL(quotedTable, quotedPartitionCol string, keys []string, static bool, placeholder func(i int) string) (string, []any) {
	if static {
		return "DELETE FROM " + quotedTable, nil
	}
	ph := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		ph[i] = placeholder(i + 1)
		args[i] = k
	}
	return "DELETE FROM " + quotedTable + " WHERE " + quotedPartitionCol + " IN (" + strings.Join(ph, ", ") + ")", args
}

// InsertSQL renders a multi-row INSERT for nrows rows of the canonical
// columns.
func InsertSQL(quotedTable string, quote func(string) string, nrows int, placeholder func(i int) string) string {
	cols := schema.Columns()
	qcols := make([]string, len(cols))
	for i, c := range cols {
		qcols[i] = quote(c)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quotedTable)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(qcols, ", "))
	sb.WriteString(") VALUES ")
	p := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range cols {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholder(p))
			p++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// QuestionMark is the positional placeholder used by SQLite and MySQL.
func QuestionMark(int) string { return "?" }
