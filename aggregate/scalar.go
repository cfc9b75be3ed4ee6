package aggregate

import (
	"math"
	"time"

	"github.com/misalcedo/fermentation"
)

// Sum is the decayed sum of the values of all items.
type Sum struct {
	decay fermentation.ForwardDecay
	total float64
}

func NewSum(decay fermentation.ForwardDecay) *Sum {
	return &Sum{decay: decay}
}

func (s *Sum) Update(item fermentation.Item) {
	s.total += s.decay.StaticWeightedValue(item)
}

func (s *Sum) Reset(landmark time.Time) {
	s.decay.SetLandmark(landmark)
	s.total = 0
}

func (s *Sum) UpdateLandmark(landmark time.Time) error {
	return rescale(&s.decay, landmark, &s.total)
}

func (s *Sum) Query(timestamp time.Time) float64 {
	return s.total / s.decay.NormalizingFactor(timestamp)
}

// Static is the sum relative to the landmark, without the normalizing factor.
func (s *Sum) Static() float64 {
	return s.total
}

func (s *Sum) Decay() fermentation.ForwardDecay {
	return s.decay
}

// Count is the decayed number of items.
type Count struct {
	decay fermentation.ForwardDecay
	total float64
}

func NewCount(decay fermentation.ForwardDecay) *Count {
	return &Count{decay: decay}
}

func (c *Count) Update(item fermentation.Item) {
	c.total += c.decay.StaticWeight(item)
}

func (c *Count) Reset(landmark time.Time) {
	c.decay.SetLandmark(landmark)
	c.total = 0
}

func (c *Count) UpdateLandmark(landmark time.Time) error {
	return rescale(&c.decay, landmark, &c.total)
}

func (c *Count) Query(timestamp time.Time) float64 {
	return c.total / c.decay.NormalizingFactor(timestamp)
}

// Static is the count relative to the landmark, without the normalizing factor.
func (c *Count) Static() float64 {
	return c.total
}

func (c *Count) Decay() fermentation.ForwardDecay {
	return c.decay
}

// Average is the decayed mean of the values of all items.
// The normalizing factor cancels out, so the average does not depend on the time of the query.
type Average struct {
	decay fermentation.ForwardDecay
	sum   float64
	count float64
}

func NewAverage(decay fermentation.ForwardDecay) *Average {
	return &Average{decay: decay}
}

func (a *Average) Update(item fermentation.Item) {
	weight := a.decay.StaticWeight(item)

	a.sum += weight * item.Value()
	a.count += weight
}

func (a *Average) Reset(landmark time.Time) {
	a.decay.SetLandmark(landmark)
	a.sum = 0
	a.count = 0
}

func (a *Average) UpdateLandmark(landmark time.Time) error {
	return rescale(&a.decay, landmark, &a.sum, &a.count)
}

// Query is NaN until an item with a non-zero weight has been seen.
func (a *Average) Query() float64 {
	if a.count == 0 {
		return math.NaN()
	}

	return a.sum / a.count
}

func (a *Average) Decay() fermentation.ForwardDecay {
	return a.decay
}
