package fermentation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoDecay(t *testing.T) {
	require.Equal(t, 1.0, NoDecay{}.Invoke(1))
	require.Equal(t, 1.0, NoDecay{}.Invoke(0))
	require.Equal(t, 1.0, NoDecay{}.Invoke(-1))
}

func TestExponential(t *testing.T) {
	g, err := NewExponential(1)
	require.NoError(t, err)
	require.InDelta(t, math.E, g.Invoke(1), 1e-15)

	rate, err := ExponentialRate(0.0001, time.Minute)
	require.NoError(t, err)
	require.InDelta(t, 0.1535056728662697, rate.Alpha, 1e-15)

	_, err = NewExponential(-1)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewExponential(0)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewExponential(math.NaN())
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestExponentialRate(t *testing.T) {
	for _, target := range []float64{0, 1, -0.5, 1.5} {
		_, err := ExponentialRate(target, time.Minute)
		require.ErrorIs(t, err, ErrInvalidParameter, "target %v", target)
	}

	_, err := ExponentialRate(0.5, 0)
	require.ErrorIs(t, err, ErrInvalidParameter)

	g, err := ExponentialRate(0.5, 10*time.Second)
	require.NoError(t, err)

	decay := NewDecay(time.Unix(0, 0), g)
	require.InDelta(t, 0.5, decay.Weight(Instant(time.Unix(10, 0)), time.Unix(20, 0)), 1e-12)
}

func TestPolynomial(t *testing.T) {
	g, err := NewPolynomial(3)
	require.NoError(t, err)
	require.Equal(t, 8.0, g.Invoke(2))

	_, err = NewPolynomial(-3)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewPolynomial(0)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPolynomialNegativeAge(t *testing.T) {
	for _, beta := range []float64{0.5, 1, 2, 2.5} {
		g := Polynomial{Beta: beta}

		require.Zero(t, g.Invoke(-1), "beta %v", beta)
		require.Zero(t, g.Invoke(-0.25), "beta %v", beta)
		require.Zero(t, g.Invoke(0), "beta %v", beta)
		require.Greater(t, g.Invoke(1), g.Invoke(-1), "beta %v", beta)
	}
}

func TestLandmarkWindow(t *testing.T) {
	require.Equal(t, 1.0, LandmarkWindow{}.Invoke(1))
	require.Equal(t, 0.0, LandmarkWindow{}.Invoke(0))
	require.Equal(t, 0.0, LandmarkWindow{}.Invoke(-1))
}

func TestCustom(t *testing.T) {
	g, err := NewCustom(func(n float64) float64 { return n * 0.2 })
	require.NoError(t, err)
	require.Equal(t, 0.2, g.Invoke(1))
	require.Equal(t, 0.0, g.Invoke(0))
	require.Equal(t, -0.2, g.Invoke(-1))

	_, err = NewCustom(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRescalers(t *testing.T) {
	functions := []struct {
		g        Function
		expected bool
	}{
		{NoDecay{}, true},
		{Exponential{Alpha: 1}, true},
		{Polynomial{Beta: 2}, false},
		{LandmarkWindow{}, false},
		{Custom{fn: math.Exp}, false},
	}

	for _, f := range functions {
		_, ok := f.g.(Rescaler)
		require.Equal(t, f.expected, ok, "%T", f.g)
	}
}
