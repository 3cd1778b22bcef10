package controllers

import (
	"fmt"
	"strings"
)

// whereBuilder accumulates AND-ed predicates with numbered placeholders.
// The same builder feeds both the data query and its count query, so the
// two can never disagree on which rows are in scope.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

// add appends a predicate; each "?" in cond is rewritten to the next
// $N placeholder.
func (b *whereBuilder) add(cond string, vals ...interface{}) {
	for _, v := range vals {
		b.args = append(b.args, v)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(b.args)), 1)
	}
	b.conds = append(b.conds, cond)
}

// bind registers an extra argument (LIMIT/OFFSET) and returns its
// placeholder.
func (b *whereBuilder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// clone returns an independent copy so LIMIT/OFFSET binds on the data
// query do not leak into the count query.
func (b *whereBuilder) clone() *whereBuilder {
	c := &whereBuilder{
		conds: append([]string(nil), b.conds...),
		args:  append([]interface{}(nil), b.args...),
	}
	return c
}

func like(s string) string {
	return "%" + strings.TrimSpace(s) + "%"
}
