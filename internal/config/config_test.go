package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/misalcedo/fermentation"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fermentation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	g, err := cfg.Decay.Function()
	require.NoError(t, err)

	expected, err := fermentation.ExponentialRate(0.001, time.Minute)
	require.NoError(t, err)
	require.Equal(t, expected, g)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
decay:
  kind: polynomial
  beta: 2
landmark: 2024-01-02T03:04:05Z
capacity: 16
top: 4
phi: 0.25
breaker:
  window_size: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Capacity)
	require.Equal(t, 4, cfg.Top)
	require.Equal(t, 0.25, cfg.Phi)
	require.Equal(t, 30*time.Second, cfg.Breaker.WindowSize)
	require.Equal(t, 50, cfg.Breaker.HardFailureThreshold)

	decay, err := cfg.Model(time.Now())
	require.NoError(t, err)
	require.Equal(t, fermentation.Polynomial{Beta: 2}, decay.G())
	require.True(t, decay.Landmark().Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestLoadAlpha(t *testing.T) {
	path := writeConfig(t, `
decay:
  kind: exponential
  alpha: 0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	now := time.Now()
	decay, err := cfg.Model(now)
	require.NoError(t, err)
	require.Equal(t, fermentation.Exponential{Alpha: 0.2}, decay.G())
	require.Equal(t, now, decay.Landmark())
}

func TestLoadInvalid(t *testing.T) {
	path := writeConfig(t, `
decay:
  kind: exponential
  alpha: -1
capacity: 0
phi: 2
breaker:
  soft_failure_threshold: -1
`)

	_, err := Load(path)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 4)
	require.ErrorIs(t, err, fermentation.ErrInvalidParameter)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFunctionKinds(t *testing.T) {
	kinds := map[string]fermentation.Function{
		KindNone:     fermentation.NoDecay{},
		KindLandmark: fermentation.LandmarkWindow{},
	}

	for kind, expected := range kinds {
		g, err := DecayConfig{Kind: kind}.Function()
		require.NoError(t, err)
		require.Equal(t, expected, g)
	}

	_, err := DecayConfig{Kind: "linear"}.Function()
	require.Error(t, err)
}
