package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the proposed row inside an ON CONFLICT clause.
func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

// OnConflictUpdate renders an upsert suffix that overwrites columns with the proposed row.
// Both PostgreSQL and SQLite accept this form.
func OnConflictUpdate(conflict []string, columns ...string) string {
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = %s", col, Excluded(col)))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", "))
}

// OnConflictDoNothing renders an insert-or-ignore suffix.
func OnConflictDoNothing(conflict ...string) string {
	if len(conflict) == 0 {
		return " ON CONFLICT DO NOTHING"
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
}

func NewInsertBuilder(db DB) *sqlbuilder.InsertBuilder {
	return db.Flavor().NewInsertBuilder()
}

func NewUpdateBuilder(db DB) *sqlbuilder.UpdateBuilder {
	return db.Flavor().NewUpdateBuilder()
}

func NewDeleteBuilder(db DB) *sqlbuilder.DeleteBuilder {
	return db.Flavor().NewDeleteBuilder()
}

func NewSelectBuilder(db DB) *sqlbuilder.SelectBuilder {
	return db.Flavor().NewSelectBuilder()
}

// BoolInt stores booleans as 0/1 so the same schema works on every supported engine.
func BoolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
