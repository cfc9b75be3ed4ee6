package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/misalcedo/fermentation"
	"github.com/misalcedo/fermentation/breaker"
	"gopkg.in/yaml.v3"
)

// Decay kinds accepted in configuration files. Custom functions can only be supplied in code.
const (
	KindNone        = "none"
	KindPolynomial  = "polynomial"
	KindExponential = "exponential"
	KindLandmark    = "landmark"
)

// Config holds all fermentation configuration.
type Config struct {
	Decay    DecayConfig    `yaml:"decay"`
	Landmark time.Time      `yaml:"landmark"` // zero means the time the model is built
	Capacity int            `yaml:"capacity"`
	Top      int            `yaml:"top"`
	Phi      float64        `yaml:"phi"`
	Breaker  breaker.Config `yaml:"breaker"`
}

type DecayConfig struct {
	Kind     string        `yaml:"kind"`
	Alpha    float64       `yaml:"alpha"`    // exponential rate; takes precedence over target
	Target   float64       `yaml:"target"`   // fraction of weight left after duration
	Duration time.Duration `yaml:"duration"` // e.g. "60s"
	Beta     float64       `yaml:"beta"`     // polynomial degree
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Decay: DecayConfig{
			Kind:     KindExponential,
			Target:   0.001,
			Duration: time.Minute,
		},
		Capacity: 8,
		Top:      2,
		Phi:      0.1,
		Breaker:  breaker.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Function builds the weighting function described by the decay section.
func (d DecayConfig) Function() (fermentation.Function, error) {
	switch d.Kind {
	case KindNone:
		return fermentation.NoDecay{}, nil
	case KindPolynomial:
		return fermentation.NewPolynomial(d.Beta)
	case KindExponential:
		if d.Alpha != 0 {
			return fermentation.NewExponential(d.Alpha)
		}

		return fermentation.ExponentialRate(d.Target, d.Duration)
	case KindLandmark:
		return fermentation.LandmarkWindow{}, nil
	default:
		return nil, fmt.Errorf("unknown decay kind %q", d.Kind)
	}
}

// Model builds the forward decay model, using now when no landmark is configured.
func (c Config) Model(now time.Time) (fermentation.ForwardDecay, error) {
	g, err := c.Decay.Function()
	if err != nil {
		return fermentation.ForwardDecay{}, err
	}

	landmark := c.Landmark
	if landmark.IsZero() {
		landmark = now
	}

	return fermentation.NewDecay(landmark, g), nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if _, err := c.Decay.Function(); err != nil {
		result = multierror.Append(result, fmt.Errorf("decay: %w", err))
	}

	if c.Capacity < 1 {
		result = multierror.Append(result, fmt.Errorf("capacity must be at least 1, given %d", c.Capacity))
	}

	if c.Top < 0 {
		result = multierror.Append(result, fmt.Errorf("top must not be negative, given %d", c.Top))
	}

	if !(c.Phi > 0 && c.Phi <= 1) {
		result = multierror.Append(result, fmt.Errorf("phi must be in the range (0, 1], given %v", c.Phi))
	}

	result = validateBreaker(result, c.Breaker)

	return result.ErrorOrNil()
}

func validateBreaker(result *multierror.Error, b breaker.Config) *multierror.Error {
	if b.WindowSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("breaker: window_size must be positive, given %s", b.WindowSize))
	}

	if b.OpenDuration < 0 {
		result = multierror.Append(result, fmt.Errorf("breaker: open_duration must not be negative, given %s", b.OpenDuration))
	}

	thresholds := []struct {
		name  string
		value int
	}{
		{"suspicion_success_threshold", b.SuspicionSuccessThreshold},
		{"soft_failure_threshold", b.SoftFailureThreshold},
		{"hard_failure_threshold", b.HardFailureThreshold},
		{"half_open_failure_threshold", b.HalfOpenFailureThreshold},
		{"half_open_success_threshold", b.HalfOpenSuccessThreshold},
	}

	for _, threshold := range thresholds {
		if threshold.value < 0 {
			result = multierror.Append(result, fmt.Errorf("breaker: %s must not be negative, given %d", threshold.name, threshold.value))
		}
	}

	if b.HardFailureThreshold < b.SoftFailureThreshold {
		result = multierror.Append(result, fmt.Errorf("breaker: hard_failure_threshold %d is below soft_failure_threshold %d", b.HardFailureThreshold, b.SoftFailureThreshold))
	}

	return result
}
