// Package fermentation implements forward decay, as described in
// http://dimacs.rutgers.edu/~graham/pubs/papers/fwddecay.pdf, to enable aggregations over streams of items.
//
// Given a positive monotone non-decreasing function g and a landmark time L, the decayed weight
// of an item with arrival time ti > L measured at time t ≥ ti is w(i, t) = g(ti − L) / g(t − L).
package fermentation

import (
	"errors"
	"time"
)

// ErrNotRescalable is returned when the landmark of a model cannot be moved without replaying the stream.
var ErrNotRescalable = errors.New("weighting function does not support landmark rescaling")

type ForwardDecay struct {
	landmark time.Time
	g        Function
}

func NewDecay(landmark time.Time, g Function) ForwardDecay {
	return ForwardDecay{
		landmark: landmark,
		g:        g,
	}
}

func (d ForwardDecay) Landmark() time.Time {
	return d.landmark
}

func (d ForwardDecay) G() Function {
	return d.g
}

func (d ForwardDecay) Invoke(age time.Duration) float64 {
	return d.g.Invoke(age.Seconds())
}

// SetLandmark moves the landmark and returns the signed age of the new landmark relative to the old one.
// Any totals accumulated with static weights are no longer consistent with the model afterwards;
// use Rescale when those totals need to be carried over.
func (d *ForwardDecay) SetLandmark(landmark time.Time) time.Duration {
	old := d.landmark
	d.landmark = landmark
	return d.landmark.Sub(old)
}

// Rescale moves the landmark and returns the factor every static total must be divided by
// to remain consistent with the new landmark.
// The landmark is left untouched when g is not a Rescaler.
func (d *ForwardDecay) Rescale(landmark time.Time) (float64, error) {
	if _, ok := d.g.(Rescaler); !ok {
		return 0, ErrNotRescalable
	}

	return d.Invoke(d.SetLandmark(landmark)), nil
}

// Rescalable reports whether Rescale can succeed for this model.
func (d ForwardDecay) Rescalable() bool {
	_, ok := d.g.(Rescaler)
	return ok
}

// Weight is the decayed weight of the item at the given time, between 0 and 1 for items no newer than the timestamp.
// Items at or before the landmark, and queries at or before the landmark, have a weight of 0.
func (d ForwardDecay) Weight(item Item, timestamp time.Time) float64 {
	if !timestamp.After(d.landmark) || item.Timestamp().Before(d.landmark) {
		return 0
	}

	return d.StaticWeight(item) / d.NormalizingFactor(timestamp)
}

func (d ForwardDecay) WeightedValue(item Item, timestamp time.Time) float64 {
	return d.Weight(item, timestamp) * item.Value()
}

// StaticWeight is the weight of the item without the normalizing factor of 1 / g(t - L).
// It remains constant for a given item as long as the landmark does.
func (d ForwardDecay) StaticWeight(item Item) float64 {
	return d.StaticWeightAt(item.Timestamp())
}

func (d ForwardDecay) StaticWeightAt(timestamp time.Time) float64 {
	return d.g.Invoke(Age(timestamp, d.landmark))
}

func (d ForwardDecay) StaticWeightedValue(item Item) float64 {
	return d.StaticWeight(item) * item.Value()
}

// NormalizingFactor is g(t - L), which static totals are divided by to get decayed totals at time t.
func (d ForwardDecay) NormalizingFactor(timestamp time.Time) float64 {
	return d.g.Invoke(Age(timestamp, d.landmark))
}
