package fermentation

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidParameter is returned when a weighting function would not be positive and monotone non-decreasing.
var ErrInvalidParameter = errors.New("invalid weighting function parameter")

// Function is a positive monotone non-decreasing function g of an age in seconds,
// used to calculate the decayed weight of an item.
type Function interface {
	Invoke(age float64) float64
}

// Rescaler is implemented by functions where g(a - b) = g(a) / g(b),
// so totals accumulated under one landmark can be moved to another by a single division.
type Rescaler interface {
	Function
	rescalable()
}

// NoDecay is g(n) = 1 for all n.
type NoDecay struct{}

func (NoDecay) Invoke(float64) float64 {
	return 1
}

func (NoDecay) rescalable() {}

// Polynomial is g(n) = n^β for some β > 0, and 0 for n ≤ 0.
type Polynomial struct {
	Beta float64
}

func NewPolynomial(beta float64) (Polynomial, error) {
	if !(beta > 0) {
		return Polynomial{}, fmt.Errorf("%w: beta must be greater than 0, given %v", ErrInvalidParameter, beta)
	}

	return Polynomial{Beta: beta}, nil
}

func (p Polynomial) Invoke(age float64) float64 {
	// a fractional power of a negative age is NaN.
	return math.Pow(math.Max(age, 0), p.Beta)
}

// Exponential is g(n) = exp(αn) for some α > 0.
type Exponential struct {
	Alpha float64
}

func NewExponential(alpha float64) (Exponential, error) {
	if !(alpha > 0) || math.IsInf(alpha, 1) {
		return Exponential{}, fmt.Errorf("%w: alpha must be greater than 0, given %v", ErrInvalidParameter, alpha)
	}

	return Exponential{Alpha: alpha}, nil
}

// ExponentialRate decays an item to the target fraction of its original weight after the given duration.
// For example, a target of 0.0001 and a duration of a minute leaves 0.01% of an item's weight after 60 seconds.
func ExponentialRate(target float64, duration time.Duration) (Exponential, error) {
	if !(target > 0 && target < 1) {
		return Exponential{}, fmt.Errorf("%w: target must be in the range (0, 1), given %v", ErrInvalidParameter, target)
	}

	if duration <= 0 {
		return Exponential{}, fmt.Errorf("%w: duration must be positive, given %s", ErrInvalidParameter, duration)
	}

	return NewExponential(-math.Log(target) / duration.Seconds())
}

func (e Exponential) Invoke(age float64) float64 {
	return math.Exp(e.Alpha * age)
}

func (Exponential) rescalable() {}

// LandmarkWindow is g(n) = 1 for n > 0, and 0 otherwise.
// Every item after the landmark counts fully; nothing before it counts at all.
type LandmarkWindow struct{}

func (LandmarkWindow) Invoke(age float64) float64 {
	if age > 0 {
		return 1
	}

	return 0
}

// Custom wraps an arbitrary function.
// The caller is responsible for the function being positive, monotone and non-decreasing.
type Custom struct {
	fn func(float64) float64
}

func NewCustom(fn func(float64) float64) (Custom, error) {
	if fn == nil {
		return Custom{}, fmt.Errorf("%w: custom function must not be nil", ErrInvalidParameter)
	}

	return Custom{fn: fn}, nil
}

func (c Custom) Invoke(age float64) float64 {
	return c.fn(age)
}
