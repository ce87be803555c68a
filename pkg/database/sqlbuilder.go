package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the row proposed for insertion in an ON CONFLICT clause
func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

// OnConflictUpdate appends an upsert clause that overwrites updateCols from
// the proposed row when conflictCols collide.
func OnConflictUpdate(ib *sqlbuilder.InsertBuilder, conflictCols []string, updateCols ...string) *sqlbuilder.InsertBuilder {
	sets := make([]string, 0, len(updateCols))
	for _, col := range updateCols {
		sets = append(sets, fmt.Sprintf("%s = %s", col, Excluded(col)))
	}
	ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflictCols, ", "), strings.Join(sets, ", ")))
	return ib
}

// IsNoRows reports whether err is the "no rows" result of GetContext
func IsNoRows(err error) bool {
	return err != nil && err.Error() == "sql: no rows in result set"
}
