package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMajor(t *testing.T) {
	tests := []struct {
		major float64
		minor int64
	}{
		{0, 0},
		{29.99, 2999},
		{30, 3000},
		{49.99, 4999},
		{50, 5000},
		{99.99, 9999},
		{100, 10000},
		{0.1, 10},
		{12.34, 1234}, // rounds, never truncates
	}
	for _, tt := range tests {
		got := FromMajor(tt.major, USD)
		assert.Equal(t, tt.minor, got.AmountMinor, "major %v", tt.major)
	}
}

func TestAddSub(t *testing.T) {
	a := New(5000, USD)
	b := New(3000, USD)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), sum.AmountMinor)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), diff.AmountMinor)
}

func TestAdd_CurrencyMismatch(t *testing.T) {
	_, err := New(100, USD).Add(New(100, Currency("EUR")))
	assert.Error(t, err)
}

func TestPercentage(t *testing.T) {
	m := New(10000, USD)

	assert.Equal(t, int64(2500), m.Percentage(2500).AmountMinor)
	assert.Equal(t, int64(1500), m.Percentage(1500).AmountMinor)
	assert.Equal(t, int64(0), m.Percentage(0).AmountMinor)

	// rounds half away from zero
	assert.Equal(t, int64(1), New(50, USD).Percentage(100).AmountMinor)
}

func TestCompare(t *testing.T) {
	assert.True(t, New(2999, USD).LessThan(New(3000, USD)))
	assert.False(t, New(3000, USD).LessThan(New(3000, USD)))
	assert.True(t, New(3000, USD).Equal(New(3000, USD)))
}

func TestSigns(t *testing.T) {
	assert.True(t, New(1, USD).IsPositive())
	assert.True(t, New(-1, USD).IsNegative())
	assert.True(t, Zero(USD).IsZero())
	assert.Equal(t, int64(-500), New(500, USD).Negate().AmountMinor)
}

func TestJSON(t *testing.T) {
	m := New(12500, USD)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount_minor":12500,"currency":"USD"}`, string(data))

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, m.Equal(back))
}
