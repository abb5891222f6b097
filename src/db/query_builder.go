package db

import (
	"fmt"
	"strings"
)

/*
Builds up a query piece by piece, for the cases where the shape of the query
depends on the caller's filters. Placeholders are written as `$?` and
numbered as they are added.
*/
type QueryBuilder struct {
	sql  strings.Builder
	args []any
}

/*
Adds the given SQL and arguments to the query. Any occurrences
of `$?` will be replaced with the correct argument number.

foo $? bar $? baz $?
foo ARG1 bar ARG2 baz $?
foo ARG1 bar ARG2 baz ARG3
*/
func (qb *QueryBuilder) Add(sql string, args ...any) {
	numPlaceholders := strings.Count(sql, "$?")
	if numPlaceholders != len(args) {
		panic(fmt.Errorf("cannot add chunk to query; expected %d arguments but got %d", numPlaceholders, len(args)))
	}

	for _, arg := range args {
		qb.args = append(qb.args, arg)
		sql = strings.Replace(sql, "$?", fmt.Sprintf("$%d", len(qb.args)), 1)
	}

	qb.sql.WriteString(sql)
	qb.sql.WriteString("\n")
}

// AddIf is Add, but only when cond holds. Handy for optional filters.
func (qb *QueryBuilder) AddIf(cond bool, sql string, args ...any) {
	if cond {
		qb.Add(sql, args...)
	}
}

func (qb *QueryBuilder) String() string {
	return qb.sql.String()
}

func (qb *QueryBuilder) Args() []any {
	return qb.args
}
