package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the row proposed for insertion inside an ON CONFLICT clause.
func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// OnConflictUpdate appends ON CONFLICT (conflict...) DO UPDATE SET col = EXCLUDED.col for each of columns.
func OnConflictUpdate(ib *sqlbuilder.InsertBuilder, conflict []string, columns ...string) *sqlbuilder.InsertBuilder {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		sets = append(sets, fmt.Sprintf("%s = %s", c, Excluded(c)))
	}
	ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", ")))
	return ib
}

// NewStruct builds a Postgres flavored struct mapper reading `db` tags.
func NewStruct(v any) *sqlbuilder.Struct {
	return sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)
}
