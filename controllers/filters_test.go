package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhereBuilderNumbersPlaceholders(t *testing.T) {
	b := &whereBuilder{}
	b.add("p.email ILIKE ?", "%jane%")
	b.add("p.participant_id = ?", 7)

	assert.Equal(t, " WHERE p.email ILIKE $1 AND p.participant_id = $2", b.clause())
	assert.Equal(t, []interface{}{"%jane%", 7}, b.args)
}

func TestWhereBuilderEmptyClause(t *testing.T) {
	b := &whereBuilder{}
	assert.Equal(t, "", b.clause())
}

func TestWhereBuilderNoArgPredicate(t *testing.T) {
	b := &whereBuilder{}
	b.add("ed.start_time >= now()")
	b.add("e.name ILIKE ?", "%gala%")

	assert.Equal(t, " WHERE ed.start_time >= now() AND e.name ILIKE $1", b.clause())
}

func TestWhereBuilderBindContinuesNumbering(t *testing.T) {
	b := &whereBuilder{}
	b.add("p.participant_id = ?", 7)

	assert.Equal(t, "$2", b.bind(25))
	assert.Equal(t, "$3", b.bind(0))
	assert.Equal(t, []interface{}{7, 25, 0}, b.args)
}

func TestWhereBuilderCloneIsIndependent(t *testing.T) {
	b := &whereBuilder{}
	b.add("p.email ILIKE ?", "%jane%")

	c := b.clone()
	c.bind(25)

	assert.Len(t, b.args, 1)
	assert.Len(t, c.args, 2)
	assert.Equal(t, b.clause(), c.clause())
}

func TestLikeTrimsAndWraps(t *testing.T) {
	assert.Equal(t, "%jane%", like("  jane "))
}
