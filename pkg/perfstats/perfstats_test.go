package perfstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccumulator(t *testing.T) {
	a := Accumulator{}
	_, ok := a.Mean()
	require.False(t, ok)
	require.Equal(t, 0.0, a.Average())

	a.AddSample(2)
	a.AddSample(4)
	mean, ok := a.Mean()
	require.True(t, ok)
	require.Equal(t, 3.0, mean)
	require.Equal(t, int64(2), a.Samples)

	a.Reset()
	_, ok = a.Mean()
	require.False(t, ok)
}

func TestTimeAccumulator(t *testing.T) {
	a := TimeAccumulator{}
	require.Equal(t, time.Duration(0), a.Average())
	a.AddSample(10 * time.Millisecond)
	a.AddSample(20 * time.Millisecond)
	require.Equal(t, 15*time.Millisecond, a.Average())
}
