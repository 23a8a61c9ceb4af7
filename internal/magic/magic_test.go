package magic

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedRoundTrip(t *testing.T) {
	table, err := Signed(DefaultMaxDivisor)
	require.NoError(t, err)

	for d := uint64(2); d < DefaultMaxDivisor; d++ {
		if isPowerOfTwo(d) {
			continue
		}
		power := signedPower(d)
		y := uint64(1) << power
		m := int64((d - y%d + y) / d)

		got, ok := table.Lookup(m, power)
		if !ok || got != int64(d) {
			t.Fatalf("Lookup(%#x, %d) = %d, %v; want %d", m, power, got, ok, d)
		}
	}
}

func TestUnsignedRoundTrip(t *testing.T) {
	table, err := Unsigned(DefaultMaxDivisor)
	require.NoError(t, err)

	seen := 0
	for _, e := range table.Entries() {
		got, ok := table.Lookup(e.Magic, e.Power)
		require.True(t, ok)
		require.Equal(t, e.Divisor, got)
		seen++
	}
	// one entry per divisor that is not a power of two
	assert.Equal(t, DefaultMaxDivisor-2-9, seen)
}

func TestKnownMultipliers(t *testing.T) {
	signed, err := Signed(DefaultMaxDivisor)
	require.NoError(t, err)
	unsigned, err := Unsigned(DefaultMaxDivisor)
	require.NoError(t, err)

	tests := []struct {
		name  string
		table *Table
		magic int64
		power int
		want  int64
	}{
		{"signed 3", signed, 0x55555556, 32, 3},
		{"signed 5", signed, 0x66666667, 33, 5},
		{"signed 7", signed, 0x92492493, 34, 7},
		{"signed -3", signed, -0x55555556, 32, -3},
		{"signed -7 folded", signed, 0x6db6db6d, 34, -7},
		{"unsigned 3", unsigned, 0xaaaaaaab, 33, 3},
		{"unsigned 7 reduced", unsigned, 0x24924925, 35, 7},
		{"unsigned 10", unsigned, 0xcccccccd, 35, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.table.Lookup(tt.magic, tt.power)
			require.True(t, ok, "no entry for (%#x, %d)", tt.magic, tt.power)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPowersOfTwoOmitted(t *testing.T) {
	table, err := Signed(DefaultMaxDivisor)
	require.NoError(t, err)
	for _, e := range table.Entries() {
		d := e.Divisor
		if d < 0 {
			d = -d
		}
		assert.False(t, isPowerOfTwo(uint64(d)), "divisor %d should not be tabulated", e.Divisor)
	}
}

func TestRangeTooLarge(t *testing.T) {
	_, err := Signed(MaxDivisorLimit + 1)
	assert.True(t, errors.Is(err, ErrRangeTooLarge))
}

func TestStoreRoundTrip(t *testing.T) {
	store := &Store{Dir: t.TempDir()}

	built, err := store.Load(KindUnsigned, 64)
	require.NoError(t, err)
	_, err = os.Stat(store.Path(KindUnsigned))
	require.NoError(t, err, "cache file should be written")

	loaded, err := store.Load(KindUnsigned, 64)
	require.NoError(t, err)
	assert.Equal(t, built.Entries(), loaded.Entries())
	assert.Equal(t, 64, loaded.Max())

	// a larger request rebuilds
	bigger, err := store.Load(KindUnsigned, 128)
	require.NoError(t, err)
	assert.Equal(t, 128, bigger.Max())
	got, ok := bigger.Lookup(0x3e0f83e1, 36)
	if assert.True(t, ok) {
		assert.Equal(t, int64(66), got)
	}
}

func TestStoreKeyedByDivisor(t *testing.T) {
	store := &Store{Dir: t.TempDir()}
	_, err := store.Load(KindSigned, 16)
	require.NoError(t, err)

	bts, err := os.ReadFile(store.Path(KindSigned))
	require.NoError(t, err)
	var cf struct {
		Max      int `json:"max"`
		Divisors map[string]struct {
			Magic int64 `json:"magic"`
			Power int   `json:"power"`
		} `json:"divisors"`
	}
	require.NoError(t, json.Unmarshal(bts, &cf))
	assert.Equal(t, 16, cf.Max)
	assert.Equal(t, int64(0x92492493), cf.Divisors["7"].Magic)
	assert.Equal(t, 34, cf.Divisors["7"].Power)
	assert.Equal(t, int64(0x6db6db6d), cf.Divisors["-7"].Magic)
	assert.NotContains(t, cf.Divisors, "8", "powers of two have no multiplier")
}

func TestStoreRebuildsCorruptCache(t *testing.T) {
	store := &Store{Dir: t.TempDir()}
	require.NoError(t, os.WriteFile(store.Path(KindSigned), []byte("{not json"), 0o644))

	table, err := store.Load(KindSigned, 32)
	require.NoError(t, err)
	got, ok := table.Lookup(0x55555556, 32)
	require.True(t, ok)
	assert.Equal(t, int64(3), got)
}
