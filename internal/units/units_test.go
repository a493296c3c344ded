package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad literal %q", s)
	return n
}

func TestCentsToAmount(t *testing.T) {
	tests := []struct {
		name     string
		cents    uint64
		decimals uint8
		want     string
	}{
		{"18 decimals", 70, 18, "700000000000000000"},
		{"18 decimals, 10 tickets at 70", 700, 18, "7000000000000000000"},
		{"6 decimals", 70, 6, "700000"},
		{"exactly cent precision", 70, 2, "70"},
		{"zero", 0, 18, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CentsToAmount(tt.cents, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, mustBig(t, tt.want), got)
		})
	}
}

func TestCentsToAmount_RejectsCoarseToken(t *testing.T) {
	_, err := CentsToAmount(70, 1)
	require.Error(t, err)
}

func TestCentScale18(t *testing.T) {
	scale, err := CentScale(18)
	require.NoError(t, err)
	assert.Equal(t, mustBig(t, "10000000000000000"), scale)
}

func TestUnitsToAmount(t *testing.T) {
	assert.Equal(t, mustBig(t, "10000000000000000000"), UnitsToAmount(10, 18))
	assert.Equal(t, mustBig(t, "1000000"), UnitsToAmount(1, 6))
	assert.Equal(t, big.NewInt(0), UnitsToAmount(0, 18))
}

func TestUnitsAndCentsAgree(t *testing.T) {
	for _, dec := range []uint8{2, 6, 8, 18} {
		fromCents, err := CentsToAmount(100, dec)
		require.NoError(t, err)
		assert.Equal(t, UnitsToAmount(1, dec), fromCents, "decimals=%d", dec)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "8.5", FormatAmount(mustBig(t, "8500000000000000000"), 18))
	assert.Equal(t, "10", FormatAmount(UnitsToAmount(10, 18), 18))
	assert.Equal(t, "0", FormatAmount(nil, 18))
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, mustBig(t, "1500000000000000000"), got)

	got, err = ParseAmount(" 3 ", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3_000_000), got)

	_, err = ParseAmount("-1", 18)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ParseAmount("0.0000001", 6)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ParseAmount("abc", 18)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
