package dateparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/constants"
)

func TestResolveISO(t *testing.T) {
	r := Resolve("1990-12-25", constants.DayFirst)
	require.NotNil(t, r)
	assert.Equal(t, "1990-12-25", r.ISO)
	assert.Equal(t, 98, r.Confidence)
	assert.Empty(t, r.AssumedOrder)
}

func TestResolveTextual(t *testing.T) {
	for _, raw := range []string{"25 December 1990", "Dec 25, 1990", "25 Dec 1990"} {
		r := Resolve(raw, constants.MonthFirst)
		require.NotNil(t, r, raw)
		assert.Equal(t, "1990-12-25", r.ISO, raw)
		assert.Equal(t, 97, r.Confidence, raw)
	}
}

func TestResolveForcedOrder(t *testing.T) {
	// 25 cannot be a month, so the order is decided by the data itself.
	r := Resolve("25/12/1990", constants.MonthFirst)
	require.NotNil(t, r)
	assert.Equal(t, "1990-12-25", r.ISO)
	assert.GreaterOrEqual(t, r.Confidence, 95)
	assert.Equal(t, constants.DayFirst, r.AssumedOrder)

	r = Resolve("12/25/1990", constants.DayFirst)
	require.NotNil(t, r)
	assert.Equal(t, "1990-12-25", r.ISO)
	assert.Equal(t, constants.MonthFirst, r.AssumedOrder)
}

func TestResolveAmbiguousUsesLocaleDefault(t *testing.T) {
	// Both components could be the month: the category default decides,
	// and the confidence says so.
	r := Resolve("01/02/1990", constants.DayFirst)
	require.NotNil(t, r)
	assert.Equal(t, "1990-02-01", r.ISO)
	assert.Equal(t, 72, r.Confidence)
	assert.GreaterOrEqual(t, r.Confidence, 60)
	assert.Equal(t, constants.DayFirst, r.AssumedOrder)

	r = Resolve("01/02/1990", constants.MonthFirst)
	require.NotNil(t, r)
	assert.Equal(t, "1990-01-02", r.ISO)
	assert.Equal(t, 72, r.Confidence)
}

func TestResolveSameDayMonth(t *testing.T) {
	r := Resolve("03/03/2001", constants.DayFirst)
	require.NotNil(t, r)
	assert.Equal(t, "2001-03-03", r.ISO)
	assert.Equal(t, 95, r.Confidence)
}

func TestResolveLeapYearEdge(t *testing.T) {
	// Feb 29 exists only in leap years; no reading of the 2023 input is a
	// real date and Resolve refuses to guess one.
	assert.Nil(t, Resolve("29/02/2023", constants.DayFirst))
	assert.Nil(t, Resolve("02/29/2023", constants.DayFirst))

	r := Resolve("29/02/2024", constants.DayFirst)
	require.NotNil(t, r)
	assert.Equal(t, "2024-02-29", r.ISO)
	assert.Equal(t, 96, r.Confidence)
}

func TestResolveTwoDigitYearPivot(t *testing.T) {
	r := Resolve("25/12/90", constants.DayFirst)
	require.NotNil(t, r)
	assert.Equal(t, "1990-12-25", r.ISO)

	r = Resolve("25/12/01", constants.DayFirst)
	require.NotNil(t, r)
	assert.Equal(t, "2001-12-25", r.ISO)
}

func TestResolveRejectsNonsense(t *testing.T) {
	assert.Nil(t, Resolve("", constants.DayFirst))
	assert.Nil(t, Resolve("not a date", constants.DayFirst))
	assert.Nil(t, Resolve("99/99/2001", constants.DayFirst))
	assert.Nil(t, Resolve("2001-13-40", constants.DayFirst))
}

func TestLooksLikeDate(t *testing.T) {
	assert.True(t, LooksLikeDate("2001-01-02"))
	assert.True(t, LooksLikeDate("3/4/99"))
	assert.True(t, LooksLikeDate("Jan 2, 2006"))
	assert.False(t, LooksLikeDate("JOHN SMITH"))
}
