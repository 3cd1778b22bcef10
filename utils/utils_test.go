package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginateFirstPage(t *testing.T) {
	p := Paginate("1", 60)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, p.Offset)
	assert.True(t, p.HasNext())
	assert.False(t, p.HasPrev())
}

func TestPaginateMiddlePage(t *testing.T) {
	p := Paginate("2", 60)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 25, p.Offset)
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.Equal(t, 1, p.Prev())
	assert.Equal(t, 3, p.Next())
}

func TestPaginateClampsOutOfRange(t *testing.T) {
	p := Paginate("99", 60)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.Offset)
	assert.False(t, p.HasNext())
}

func TestPaginateGarbageFallsBackToFirst(t *testing.T) {
	for _, raw := range []string{"", "abc", "-3", "0"} {
		p := Paginate(raw, 60)
		assert.Equal(t, 1, p.Page, "page param %q", raw)
	}
}

func TestPaginateEmptyResultStillHasOnePage(t *testing.T) {
	p := Paginate("5", 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 0, p.Offset)
	assert.False(t, p.HasNext())
}

func TestPaginateExactBoundary(t *testing.T) {
	p := Paginate("1", 25)
	assert.Equal(t, 1, p.TotalPages)

	p = Paginate("2", 26)
	assert.Equal(t, 2, p.TotalPages)
	assert.Equal(t, 25, p.Offset)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-15")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2026, d.Year())
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 15, d.Day())

	d, err = ParseDate("  ")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = ParseDate("03/15/2026")
	assert.Error(t, err)
}

func TestParseDateTimeAcceptsDateOnly(t *testing.T) {
	d, err := ParseDateTime("2026-03-15T18:30")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 18, d.Hour())

	d, err = ParseDateTime("2026-03-15")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 0, d.Hour())

	d, err = ParseDateTime("")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestEndOfDay(t *testing.T) {
	d, err := ParseDate("2026-03-15")
	require.NoError(t, err)

	end := EndOfDay(*d)
	assert.Equal(t, 15, end.Day())
	assert.Equal(t, 23, end.Hour())
	assert.Equal(t, 59, end.Minute())
	assert.Equal(t, 59, end.Second())
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, ComparePasswords(hash, []byte("correct horse battery staple")))
	assert.False(t, ComparePasswords(hash, []byte("wrong password")))
}

func TestNullableString(t *testing.T) {
	ns := NullableString("  hello ")
	assert.True(t, ns.Valid)
	assert.Equal(t, "hello", ns.String)

	ns = NullableString("   ")
	assert.False(t, ns.Valid)
}

func TestSessionUserIsManager(t *testing.T) {
	assert.True(t, SessionUser{LoggedIn: true, Role: "manager"}.IsManager())
	assert.False(t, SessionUser{LoggedIn: false, Role: "manager"}.IsManager())
	assert.False(t, SessionUser{LoggedIn: true, Role: "participant"}.IsManager())
}
