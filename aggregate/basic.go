package aggregate

import (
	"math"
	"time"

	"github.com/misalcedo/fermentation"
)

// Basic keeps a decayed sum and count together, which also yields the average.
type Basic struct {
	decay fermentation.ForwardDecay
	sum   float64
	count float64
}

func NewBasic(decay fermentation.ForwardDecay) *Basic {
	return &Basic{decay: decay}
}

func (b *Basic) Update(item fermentation.Item) {
	weight := b.decay.StaticWeight(item)

	b.sum += weight * item.Value()
	b.count += weight
}

func (b *Basic) Reset(landmark time.Time) {
	b.decay.SetLandmark(landmark)
	b.sum = 0
	b.count = 0
}

func (b *Basic) UpdateLandmark(landmark time.Time) error {
	return rescale(&b.decay, landmark, &b.sum, &b.count)
}

func (b *Basic) Sum(timestamp time.Time) float64 {
	return b.sum / b.decay.NormalizingFactor(timestamp)
}

func (b *Basic) Count(timestamp time.Time) float64 {
	return b.count / b.decay.NormalizingFactor(timestamp)
}

// Average is NaN when no items have been seen.
func (b *Basic) Average() float64 {
	if b.count == 0 {
		return math.NaN()
	}

	return b.sum / b.count
}

func (b *Basic) StaticSum() float64 {
	return b.sum
}

func (b *Basic) StaticCount() float64 {
	return b.count
}

func (b *Basic) Decay() fermentation.ForwardDecay {
	return b.decay
}

// Sign uses a separate Basic aggregator for positive and negative values.
// A common use is a decayed error rate where failures are recorded as negative values.
type Sign struct {
	positive *Basic
	negative *Basic
}

// NewSign shares one decay model between both signs.
func NewSign(decay fermentation.ForwardDecay) *Sign {
	return NewSplitSign(decay, decay)
}

func NewSplitSign(positive, negative fermentation.ForwardDecay) *Sign {
	return &Sign{
		positive: NewBasic(positive),
		negative: NewBasic(negative),
	}
}

// Update sends items with a clear sign bit to the positive side, including zero, and the rest to the negative side.
func (s *Sign) Update(item fermentation.Item) {
	if math.Signbit(item.Value()) {
		s.negative.Update(item)
	} else {
		s.positive.Update(item)
	}
}

func (s *Sign) Reset(landmark time.Time) {
	s.positive.Reset(landmark)
	s.negative.Reset(landmark)
}

func (s *Sign) UpdateLandmark(landmark time.Time) error {
	if !s.positive.decay.Rescalable() || !s.negative.decay.Rescalable() {
		return fermentation.ErrNotRescalable
	}

	if err := s.positive.UpdateLandmark(landmark); err != nil {
		return err
	}

	return s.negative.UpdateLandmark(landmark)
}

func (s *Sign) Positive() *Basic {
	return s.positive
}

func (s *Sign) Negative() *Basic {
	return s.negative
}

// ErrorRate is the decayed magnitude of negative values as a fraction of the decayed magnitude of all values.
// It is NaN when nothing has been seen.
func (s *Sign) ErrorRate(timestamp time.Time) float64 {
	errors := math.Abs(s.negative.Sum(timestamp))
	successes := s.positive.Sum(timestamp)

	if errors+successes == 0 {
		return math.NaN()
	}

	return errors / (errors + successes)
}
