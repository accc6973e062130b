package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"100", 6, "100000000"},
		{"100.5", 6, "100500000"},
		{"0.000001", 6, "1"},
		{"25.5", 9, "25500000000"},
		{" 42 ", 0, "42"},
		{".5", 6, "500000"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, tc.decimals)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got.String(), "input %q", tc.in)
	}
}

func TestParseUnitsRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "-1", "1.2345678", "abc", "1.2.3"} {
		_, err := ParseUnits(in, 6)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", in)
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "100.5", FormatUnits(big.NewInt(100_500000), 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "25.5", FormatUnits(big.NewInt(25_500000000), 9))
	assert.Equal(t, "0", FormatUnits(nil, 6))
	assert.Equal(t, "42", FormatUnits(big.NewInt(42), 0))
}

func TestIntervalDuration(t *testing.T) {
	d, err := IntervalDuration(IntervalWeekly)
	require.NoError(t, err)
	assert.Equal(t, int64(604800000), d.Milliseconds())

	d, err = IntervalDuration(IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(2592000000), d.Milliseconds())

	_, err = IntervalDuration(Interval("hourly"))
	assert.Error(t, err)
}
