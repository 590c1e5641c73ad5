package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBandTableBoundaries(t *testing.T) {
	table := DefaultBandTable()

	cases := []struct {
		pct  float64
		band float64
	}{
		{0, 1.0},
		{1.9, 1.0},
		{2, 1.5},
		{89.9, 7.5},
		{90, 8.0},
		{93.99, 8.0},
		{97, 9.0},
		{100, 9.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.band, table.Band(tc.pct), "percentage %.2f", tc.pct)
	}
}

func TestBandIsMonotone(t *testing.T) {
	table := DefaultBandTable()

	prev := table.Band(0)
	for p := 0.0; p <= 100; p += 0.25 {
		b := table.Band(p)
		require.GreaterOrEqual(t, b, prev, "band dropped at %.2f%%", p)
		require.True(t, ValidBand(b))
		prev = b
	}
}

func TestParseBandTableRejectsBadTables(t *testing.T) {
	_, err := ParseBandTable([]byte("thresholds: []"))
	assert.Error(t, err)

	_, err = ParseBandTable([]byte("thresholds:\n  - {min: 10, band: 2}\n  - {min: 10, band: 3}\n"))
	assert.ErrorContains(t, err, "min")

	_, err = ParseBandTable([]byte("thresholds:\n  - {min: 10, band: 3}\n  - {min: 20, band: 2.5}\n"))
	assert.ErrorContains(t, err, "band")

	_, err = ParseBandTable([]byte("thresholds:\n  - {min: 10, band: 2.3}\n"))
	assert.ErrorContains(t, err, "grid")
}

func TestRoundHalf(t *testing.T) {
	assert.Equal(t, 7.0, RoundHalf((6.5+7.0+7.0)/3))
	assert.Equal(t, 6.5, RoundHalf(6.25))
	assert.Equal(t, 7.0, RoundHalf(6.75))
	assert.Equal(t, 6.0, RoundHalf(6.2))
}
