package fs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationUnits(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"500", 500 * time.Millisecond},
		{"500ms", 500 * time.Millisecond},
		{"5s", 5 * time.Second},
		{"5sec", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"2min", 2 * time.Minute},
		{"1h", time.Hour},
		{"1hour", time.Hour},
		{"1d", 24 * time.Hour},
		{"1day", 24 * time.Hour},
		{"100ns", 100 * time.Nanosecond},
		{"100nanos", 100 * time.Nanosecond},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseDurationAcceptsNegative(t *testing.T) {
	// A negative value is syntactically valid; PoolConfig.WaitUnbounded
	// gives it the "wait indefinitely" meaning (spec §4.1).
	got, err := ParseDuration("-5s")
	require.NoError(t, err)
	assert.Equal(t, -5*time.Second, got)
}

func TestParseDurationRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "5fortnights", "5.5s"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
		assert.True(t, Is(err, KindInvalidArgument), in)
	}
}
