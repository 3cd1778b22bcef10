package controllers

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestComputeOverallAveragesPresentScores(t *testing.T) {
	got := computeOverall(intPtr(4), intPtr(5), intPtr(3), intPtr(5))
	require.NotNil(t, got)
	assert.Equal(t, "4.25", got.StringFixed(2))
}

func TestComputeOverallIgnoresMissingScores(t *testing.T) {
	got := computeOverall(intPtr(4), nil, nil, intPtr(5))
	require.NotNil(t, got)
	assert.Equal(t, "4.50", got.StringFixed(2))
}

func TestComputeOverallAllMissing(t *testing.T) {
	assert.Nil(t, computeOverall(nil, nil, nil, nil))
}

func TestComputeOverallRoundsToTwoPlaces(t *testing.T) {
	got := computeOverall(intPtr(5), intPtr(5), intPtr(4))
	require.NotNil(t, got)
	assert.Equal(t, "4.67", got.StringFixed(2))
}

func TestParseSurveyScores(t *testing.T) {
	form := url.Values{
		"satisfaction":   {"4"},
		"usefulness":     {""},
		"instructor":     {"5"},
		"recommendation": {"3"},
	}
	req := httptest.NewRequest("POST", "/surveys/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sat, use, ins, rec, ok := parseSurveyScores(req)
	require.True(t, ok)
	assert.Equal(t, 4, *sat)
	assert.Nil(t, use)
	assert.Equal(t, 5, *ins)
	assert.Equal(t, 3, *rec)
}

func TestParseSurveyScoresRejectsOutOfRange(t *testing.T) {
	form := url.Values{"satisfaction": {"6"}}
	req := httptest.NewRequest("POST", "/surveys/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, _, _, _, ok := parseSurveyScores(req)
	assert.False(t, ok)
}

func TestParseSurveyScoresRejectsNonNumeric(t *testing.T) {
	form := url.Values{"instructor": {"great"}}
	req := httptest.NewRequest("POST", "/surveys/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, _, _, _, ok := parseSurveyScores(req)
	assert.False(t, ok)
}
