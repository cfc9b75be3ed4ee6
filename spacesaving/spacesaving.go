// Package spacesaving implements the SpaceSaving algorithm (https://www.cs.ucsb.edu/sites/default/files/documents/2005-23.pdf)
// adjusted to the forward decay model (http://dimacs.rutgers.edu/~graham/pubs/papers/expdecay.pdf).
//
// A SpaceSaving tracks at most capacity keys. For every tracked key, count - error is a lower bound
// and count is an upper bound of the key's true decayed weight.
//
// A SpaceSaving is not safe for concurrent use.
package spacesaving

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/armon/go-metrics"
	"github.com/google/btree"
	"github.com/misalcedo/fermentation"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

var ErrInvalidCapacity = errors.New("capacity must be at least 1")

const degree = 8

// Count is the weight of a key along with the maximum overestimation of that weight.
type Count struct {
	Value float64
	Error float64
}

// Lower is the guaranteed lower bound of the weight.
func (c Count) Lower() float64 {
	return c.Value - c.Error
}

func (c Count) normalize(factor float64) Count {
	return Count{Value: c.Value / factor, Error: c.Error / factor}
}

type Entry[K comparable] struct {
	Key K
	Count
}

// Result is a list of keys that is only guaranteed to be exact when Guaranteed is set.
type Result[K comparable] struct {
	Keys       []K
	Guaranteed bool
}

type counter[K comparable] struct {
	key   K
	count Count
}

// rank orders counters by count, then error. The slot breaks the remaining ties.
type rank struct {
	count float64
	error float64
	slot  int
}

func less(a, b rank) bool {
	if a.count != b.count {
		return a.count < b.count
	}

	if a.error != b.error {
		return a.error < b.error
	}

	return a.slot < b.slot
}

type SpaceSaving[K comparable] struct {
	capacity int
	decay    fermentation.ForwardDecay
	clock    clock.PassiveClock
	logger   *zap.Logger
	metrics  *metrics.Metrics
	hits     float64
	evicted  bool
	counters []counter[K]
	slots    map[K]int
	ranks    *btree.BTreeG[rank]
}

// New creates an empty SpaceSaving. The error of any count is bounded by the decayed total hits divided by the capacity.
func New[K comparable](capacity int, decay fermentation.ForwardDecay, opts ...Option) (*SpaceSaving[K], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w, given %d", ErrInvalidCapacity, capacity)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &SpaceSaving[K]{
		capacity: capacity,
		decay:    decay,
		clock:    o.clock,
		logger:   o.logger,
		metrics:  o.metrics,
		counters: make([]counter[K], 0, capacity),
		slots:    make(map[K]int, capacity),
		ranks:    btree.NewG[rank](degree, less),
	}, nil
}

func (s *SpaceSaving[K]) rankOf(slot int) rank {
	c := s.counters[slot].count
	return rank{count: c.Value, error: c.Error, slot: slot}
}

// Hit increments the key's counter by a single hit at the current time.
func (s *SpaceSaving[K]) Hit(key K) Count {
	return s.HitAt(key, s.clock.Now())
}

// HitAt increments the key's counter by a single hit at the given time.
// The returned count is relative to the landmark.
// Hits whose weight is negative or not finite are dropped, since they would break the ordering of counters.
func (s *SpaceSaving[K]) HitAt(key K, timestamp time.Time) Count {
	weight := s.decay.StaticWeightAt(timestamp)

	if !(weight >= 0) || math.IsInf(weight, 1) {
		s.logger.Warn("dropping hit with invalid weight", zap.Any("key", key), zap.Time("timestamp", timestamp), zap.Float64("weight", weight))

		if s.metrics != nil {
			s.metrics.IncrCounter([]string{"spacesaving", "dropped"}, 1)
		}

		if slot, ok := s.slots[key]; ok {
			return s.counters[slot].count
		}

		return Count{}
	}

	s.hits += weight

	if slot, ok := s.slots[key]; ok {
		s.ranks.Delete(s.rankOf(slot))
		s.counters[slot].count.Value += weight
		s.ranks.ReplaceOrInsert(s.rankOf(slot))

		return s.counters[slot].count
	}

	if len(s.counters) < s.capacity {
		slot := len(s.counters)
		s.counters = append(s.counters, counter[K]{key: key, count: Count{Value: weight}})
		s.slots[key] = slot
		s.ranks.ReplaceOrInsert(s.rankOf(slot))

		return s.counters[slot].count
	}

	victim, _ := s.ranks.DeleteMin()
	c := &s.counters[victim.slot]

	if ce := s.logger.Check(zap.DebugLevel, "evicting counter"); ce != nil {
		ce.Write(zap.Any("victim", c.key), zap.Any("key", key), zap.Float64("count", c.count.Value), zap.Float64("error", c.count.Error))
	}

	if s.metrics != nil {
		s.metrics.IncrCounter([]string{"spacesaving", "evictions"}, 1)
	}

	delete(s.slots, c.key)

	// the new key may have been seen as often as the victim, so the victim's count becomes the error.
	c.key = key
	c.count.Error = c.count.Value
	c.count.Value += weight

	s.evicted = true
	s.slots[key] = victim.slot
	s.ranks.ReplaceOrInsert(s.rankOf(victim.slot))

	return c.count
}

// Top returns up to k keys with the highest counts, highest first.
// The result is guaranteed when the lower bounds of the keys are non-increasing
// and no other key can have a larger weight than any of the returned keys.
func (s *SpaceSaving[K]) Top(k int) Result[K] {
	if k <= 0 {
		return Result[K]{Keys: []K{}, Guaranteed: true}
	}

	keys := make([]K, 0, min(k, len(s.counters)))
	ordered := true
	lowest := math.Inf(1)
	previous := math.Inf(1)
	next, hasNext := 0.0, false

	s.ranks.Descend(func(r rank) bool {
		if len(keys) == k {
			next, hasNext = r.count, true
			return false
		}

		lower := r.count - r.error
		if lower > previous {
			ordered = false
		}

		previous = lower
		lowest = math.Min(lowest, lower)
		keys = append(keys, s.counters[r.slot].key)

		return true
	})

	bounded := true
	switch {
	case hasNext:
		bounded = next <= lowest
	case s.evicted && len(keys) < k:
		// an evicted key belongs in the result but is no longer tracked.
		bounded = false
	case s.evicted:
		// an untracked key weighs no more than the smallest count.
		smallest, _ := s.ranks.Min()
		bounded = smallest.count <= lowest
	}

	return Result[K]{Keys: keys, Guaranteed: ordered && bounded}
}

// Frequent returns the keys whose count exceeds ceil(phi * hits), highest first.
// The result is guaranteed when the lower bound of every returned key also exceeds the threshold.
func (s *SpaceSaving[K]) Frequent(phi float64) Result[K] {
	threshold := math.Ceil(phi * s.hits)
	keys := make([]K, 0)
	guaranteed := true

	s.ranks.Descend(func(r rank) bool {
		if r.count <= threshold {
			return false
		}

		guaranteed = guaranteed && r.count-r.error > threshold
		keys = append(keys, s.counters[r.slot].key)

		return true
	})

	return Result[K]{Keys: keys, Guaranteed: guaranteed}
}

// Get returns the decayed count of the key at the given time, or false if the key is not tracked.
func (s *SpaceSaving[K]) Get(key K, timestamp time.Time) (Count, bool) {
	slot, ok := s.slots[key]
	if !ok {
		return Count{}, false
	}

	return s.counters[slot].count.normalize(s.decay.NormalizingFactor(timestamp)), true
}

// Counters returns every tracked key with its decayed count at the given time, highest first.
func (s *SpaceSaving[K]) Counters(timestamp time.Time) []Entry[K] {
	factor := s.decay.NormalizingFactor(timestamp)
	entries := make([]Entry[K], 0, len(s.counters))

	s.ranks.Descend(func(r rank) bool {
		c := s.counters[r.slot]
		entries = append(entries, Entry[K]{Key: c.key, Count: c.count.normalize(factor)})
		return true
	})

	return entries
}

// Hits is the decayed total of all hits at the given time.
func (s *SpaceSaving[K]) Hits(timestamp time.Time) float64 {
	return s.hits / s.decay.NormalizingFactor(timestamp)
}

// UpdateLandmark moves the landmark and rescales every counter to keep the magnitude of counts bounded.
// Fails with fermentation.ErrNotRescalable, leaving all counters untouched, when the weighting function cannot be rescaled.
func (s *SpaceSaving[K]) UpdateLandmark(landmark time.Time) error {
	factor, err := s.decay.Rescale(landmark)
	if err != nil {
		return err
	}

	s.hits /= factor
	s.ranks.Clear(false)

	for slot := range s.counters {
		s.counters[slot].count = s.counters[slot].count.normalize(factor)
		s.ranks.ReplaceOrInsert(s.rankOf(slot))
	}

	if s.metrics != nil {
		s.metrics.IncrCounter([]string{"spacesaving", "rescales"}, 1)
	}

	s.logger.Debug("updated landmark", zap.Time("landmark", landmark), zap.Float64("factor", factor))

	return nil
}

func (s *SpaceSaving[K]) Len() int {
	return len(s.counters)
}

func (s *SpaceSaving[K]) Capacity() int {
	return s.capacity
}

func (s *SpaceSaving[K]) Decay() fermentation.ForwardDecay {
	return s.decay
}
