package datetime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllAcceptedShapes(t *testing.T) {
	cases := []struct {
		in   string
		want DateTime
	}{
		{"2024-01-02T03:04:05", DateTime{2024, 1, 2, 3, 4, 5, 0}},
		{"2024-01-02T03:04:05Z", DateTime{2024, 1, 2, 3, 4, 5, 0}},
		{"2024-01-02T03:04:05.123456", DateTime{2024, 1, 2, 3, 4, 5, 123456}},
		{"2024-01-02T03:04:05.123456Z", DateTime{2024, 1, 2, 3, 4, 5, 123456}},
		{"2024-01-02T03:04:05.5", DateTime{2024, 1, 2, 3, 4, 5, 500000}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParse_RejectsOutOfRangeComponents(t *testing.T) {
	bad := []string{
		"2024-13-02T03:04:05Z",
		"2024-02-30T03:04:05Z",
		"2023-02-29T03:04:05Z", // not a leap year
		"2024-01-02T24:04:05Z",
		"2024-01-02T03:60:05Z",
		"2024-01-02T03:04:60Z",
		"2024-01-02 03:04:05Z", // missing T
		"2024-1-02T03:04:05Z",  // wrong digit width
		"2024-01-02T03:04:05.1234567Z",
	}
	for _, s := range bad {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestParse_LeapYearFebruary29(t *testing.T) {
	got, err := Parse("2024-02-29T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 29, got.Day)
}

func TestCompare_LexicographicByField(t *testing.T) {
	a, _ := Parse("2024-01-01T00:00:00Z")
	b, _ := Parse("2024-01-01T00:00:01Z")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.Equal(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestString_RoundTripsThroughParse(t *testing.T) {
	d, err := Parse("2024-06-15T12:30:45.007000Z")
	require.NoError(t, err)
	again, err := Parse(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, again)
}
