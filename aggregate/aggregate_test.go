package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/misalcedo/fermentation"
	"github.com/stretchr/testify/require"
)

const epsilon = 0.01

func item(landmark time.Time, offset time.Duration, value float64) fermentation.BasicItem {
	return fermentation.NewBasicItem(landmark.Add(offset*time.Second), value)
}

func stream(landmark time.Time) []fermentation.BasicItem {
	return []fermentation.BasicItem{
		item(landmark, 5, 4.0),
		item(landmark, 7, 8.0),
		item(landmark, 3, 3.0),
		item(landmark, 8, 6.0),
		item(landmark, 4, 4.0),
	}
}

func TestScalarAggregates(t *testing.T) {
	landmark := time.Now()
	now := landmark.Add(10 * time.Second)
	decay := fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2})

	sum := NewSum(decay)
	count := NewCount(decay)
	average := NewAverage(decay)
	minimum := NewMin(decay)
	maximum := NewMax(decay)

	for _, i := range stream(landmark) {
		sum.Update(i)
		count.Update(i)
		average.Update(i)
		minimum.Update(i)
		maximum.Update(i)
	}

	require.InDelta(t, 9.67, sum.Query(now), 1e-9)
	require.InDelta(t, 1.63, count.Query(now), 1e-9)
	require.InDelta(t, 5.93, average.Query(), epsilon)

	low, ok := minimum.Query(now)
	require.True(t, ok)
	require.InDelta(t, 3.0*0.09, low, 1e-9)

	high, ok := maximum.Query(now)
	require.True(t, ok)
	require.InDelta(t, 8.0*0.49, high, 1e-9)
}

func TestEmptyAggregates(t *testing.T) {
	landmark := time.Now()
	now := landmark.Add(10 * time.Second)
	decay := fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2})

	require.Zero(t, NewSum(decay).Query(now))
	require.Zero(t, NewCount(decay).Query(now))
	require.True(t, math.IsNaN(NewAverage(decay).Query()))
	require.True(t, math.IsNaN(NewBasic(decay).Average()))

	_, ok := NewMin(decay).Query(now)
	require.False(t, ok)

	_, ok = NewMax(decay).Item()
	require.False(t, ok)
}

func TestBasic(t *testing.T) {
	landmark := time.Now()
	now := landmark.Add(10 * time.Second)
	aggregator := NewBasic(fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2}))

	for _, i := range stream(landmark) {
		aggregator.Update(i)
	}

	require.InDelta(t, 9.67, aggregator.Sum(now), 1e-9)
	require.InDelta(t, 1.63, aggregator.Count(now), 1e-9)
	require.InDelta(t, 5.93, aggregator.Average(), epsilon)
	require.Equal(t, 967.0, aggregator.StaticSum())
	require.Equal(t, 163.0, aggregator.StaticCount())
}

func TestMinMax(t *testing.T) {
	landmark := time.Now()
	aggregator := NewMinMax(fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2}))

	for _, i := range stream(landmark) {
		aggregator.Update(i)
	}

	low, ok := aggregator.Min().Item()
	require.True(t, ok)
	require.Equal(t, item(landmark, 3, 3.0), low)

	high, ok := aggregator.Max().Item()
	require.True(t, ok)
	require.Equal(t, item(landmark, 7, 8.0), high)
}

func TestExtremeComparesDecayedValues(t *testing.T) {
	landmark := time.Now()
	maximum := NewMax(fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2}))

	// 10 * 1^2 = 10 is overtaken by 2 * 5^2 = 50
	maximum.Update(item(landmark, 1, 10))
	maximum.Update(item(landmark, 5, 2))

	high, ok := maximum.Item()
	require.True(t, ok)
	require.Equal(t, 2.0, high.Value())
}

func TestExtremeTiesKeepExisting(t *testing.T) {
	landmark := time.Now()
	decay := fermentation.NewDecay(landmark, fermentation.NoDecay{})
	minimum := NewMin(decay)
	maximum := NewMax(decay)
	first := item(landmark, 1, 5)
	second := item(landmark, 2, 5)

	for _, i := range []fermentation.BasicItem{first, second} {
		minimum.Update(i)
		maximum.Update(i)
	}

	low, _ := minimum.Item()
	high, _ := maximum.Item()
	require.Equal(t, first, low)
	require.Equal(t, first, high)
}

func TestSign(t *testing.T) {
	landmark := time.Now()
	now := landmark.Add(10 * time.Second)
	aggregator := NewSign(fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2}))

	// a negative sign denotes an error
	for _, i := range []fermentation.BasicItem{
		item(landmark, 5, -4.0),
		item(landmark, 7, 8.0),
		item(landmark, 3, 3.0),
		item(landmark, 8, -6.0),
		item(landmark, 4, 4.0),
	} {
		aggregator.Update(i)
	}

	require.InDelta(t, 4.83, aggregator.Positive().Sum(now), 1e-9)
	require.Equal(t, 483.0, aggregator.Positive().StaticSum())
	require.InDelta(t, -4.84, aggregator.Negative().Sum(now), 1e-9)
	require.Equal(t, -484.0, aggregator.Negative().StaticSum())
	require.InDelta(t, 0.74, aggregator.Positive().Count(now), 1e-9)
	require.Equal(t, 74.0, aggregator.Positive().StaticCount())
	require.InDelta(t, 0.89, aggregator.Negative().Count(now), 1e-9)
	require.Equal(t, 89.0, aggregator.Negative().StaticCount())
	require.InDelta(t, 6.53, aggregator.Positive().Average(), epsilon)
	require.InDelta(t, -5.44, aggregator.Negative().Average(), epsilon)
	require.InDelta(t, 0.5005, aggregator.ErrorRate(now), 1e-4)
}

func TestSignRoutesZero(t *testing.T) {
	landmark := time.Now()
	aggregator := NewSign(fermentation.NewDecay(landmark, fermentation.NoDecay{}))

	aggregator.Update(item(landmark, 1, 0))
	aggregator.Update(item(landmark, 1, math.Copysign(0, -1)))

	require.Equal(t, 1.0, aggregator.Positive().StaticCount())
	require.Equal(t, 1.0, aggregator.Negative().StaticCount())
	require.True(t, math.IsNaN(NewSign(fermentation.NewDecay(landmark, fermentation.NoDecay{})).ErrorRate(landmark)))
}

func TestUpdateLandmark(t *testing.T) {
	landmark := time.Now()
	newLandmark := landmark.Add(time.Second)
	now := landmark.Add(10 * time.Second)
	g, err := fermentation.NewExponential(0.2)
	require.NoError(t, err)

	decay := fermentation.NewDecay(landmark, g)
	aggregators := map[string][2]Aggregator{
		"sum":     {NewSum(decay), NewSum(decay)},
		"count":   {NewCount(decay), NewCount(decay)},
		"average": {NewAverage(decay), NewAverage(decay)},
		"basic":   {NewBasic(decay), NewBasic(decay)},
		"sign":    {NewSign(decay), NewSign(decay)},
		"minmax":  {NewMinMax(decay), NewMinMax(decay)},
	}

	for name, pair := range aggregators {
		moved, fresh := pair[0], pair[1]
		fresh.Reset(newLandmark)

		for _, i := range []fermentation.BasicItem{
			item(landmark, 5, -4.0),
			item(landmark, 7, 8.0),
			item(landmark, 3, 3.0),
			item(landmark, 8, -6.0),
			item(landmark, 4, 4.0),
		} {
			moved.Update(i)
			fresh.Update(i)
		}

		require.NoError(t, moved.UpdateLandmark(newLandmark), name)
		requireSameAggregate(t, name, moved, fresh, now)
	}
}

func requireSameAggregate(t *testing.T, name string, moved, fresh Aggregator, now time.Time) {
	const tolerance = 1e-4

	switch a := moved.(type) {
	case *Sum:
		require.InDelta(t, fresh.(*Sum).Query(now), a.Query(now), tolerance, name)
	case *Count:
		require.InDelta(t, fresh.(*Count).Query(now), a.Query(now), tolerance, name)
	case *Average:
		require.InDelta(t, fresh.(*Average).Query(), a.Query(), tolerance, name)
	case *Basic:
		b := fresh.(*Basic)
		require.InDelta(t, b.Sum(now), a.Sum(now), tolerance, name)
		require.InDelta(t, b.Count(now), a.Count(now), tolerance, name)
		require.InDelta(t, b.Average(), a.Average(), tolerance, name)
	case *Sign:
		s := fresh.(*Sign)
		require.InDelta(t, s.Positive().Sum(now), a.Positive().Sum(now), tolerance, name)
		require.InDelta(t, s.Negative().Sum(now), a.Negative().Sum(now), tolerance, name)
		require.InDelta(t, s.Positive().Count(now), a.Positive().Count(now), tolerance, name)
		require.InDelta(t, s.Negative().Count(now), a.Negative().Count(now), tolerance, name)
		require.InDelta(t, s.Positive().Average(), a.Positive().Average(), tolerance, name)
		require.InDelta(t, s.Negative().Average(), a.Negative().Average(), tolerance, name)
	case *MinMax:
		m := fresh.(*MinMax)
		expectedLow, _ := m.Min().Query(now)
		actualLow, _ := a.Min().Query(now)
		expectedHigh, _ := m.Max().Query(now)
		actualHigh, _ := a.Max().Query(now)
		require.InDelta(t, expectedLow, actualLow, tolerance, name)
		require.InDelta(t, expectedHigh, actualHigh, tolerance, name)
	default:
		t.Fatalf("unexpected aggregator %T", moved)
	}
}

func TestUpdateLandmarkNotRescalable(t *testing.T) {
	landmark := time.Now()
	now := landmark.Add(10 * time.Second)
	decay := fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2})
	sum := NewSum(decay)
	sign := NewSign(decay)

	for _, i := range stream(landmark) {
		sum.Update(i)
		sign.Update(i)
	}

	require.ErrorIs(t, sum.UpdateLandmark(landmark.Add(time.Second)), fermentation.ErrNotRescalable)
	require.ErrorIs(t, sign.UpdateLandmark(landmark.Add(time.Second)), fermentation.ErrNotRescalable)
	require.InDelta(t, 9.67, sum.Query(now), 1e-9)
	require.Equal(t, landmark, sum.Decay().Landmark())
}

func TestReset(t *testing.T) {
	landmark := time.Now()
	decay := fermentation.NewDecay(landmark, fermentation.Polynomial{Beta: 2})
	sum := NewSum(decay)
	minimum := NewMin(decay)

	for _, i := range stream(landmark) {
		sum.Update(i)
		minimum.Update(i)
	}

	sum.Reset(landmark.Add(time.Second))
	minimum.Reset(landmark.Add(time.Second))

	require.Zero(t, sum.Static())
	require.Equal(t, landmark.Add(time.Second), sum.Decay().Landmark())

	_, ok := minimum.Item()
	require.False(t, ok)
}

func TestItemsBeforeLandmark(t *testing.T) {
	landmark := time.Now()
	now := landmark.Add(10 * time.Second)

	before := item(landmark, -1, 100)
	positive := item(landmark, 4, 2)
	negative := item(landmark, 9, -3)

	for _, g := range []fermentation.Function{fermentation.Polynomial{Beta: 0.5}, fermentation.Polynomial{Beta: 2}, fermentation.LandmarkWindow{}} {
		decay := fermentation.NewDecay(landmark, g)

		sum := NewSum(decay)
		basic := NewBasic(decay)
		extremes := NewMinMax(decay)
		sign := NewSign(decay)

		for _, i := range []fermentation.BasicItem{before, positive, negative} {
			for _, aggregator := range []Aggregator{sum, basic, extremes, sign} {
				aggregator.Update(i)
			}
		}

		expected := decay.WeightedValue(positive, now) + decay.WeightedValue(negative, now)
		require.InDelta(t, expected, sum.Query(now), 1e-9, "%T", g)
		require.InDelta(t, expected, basic.Sum(now), 1e-9, "%T", g)
		require.InDelta(t, decay.Weight(positive, now)+decay.Weight(negative, now), basic.Count(now), 1e-9, "%T", g)
		require.False(t, math.IsNaN(basic.Average()), "%T", g)

		high, ok := extremes.Max().Query(now)
		require.True(t, ok)
		require.InDelta(t, decay.WeightedValue(positive, now), high, 1e-9, "%T", g)

		low, ok := extremes.Min().Query(now)
		require.True(t, ok)
		require.InDelta(t, decay.WeightedValue(negative, now), low, 1e-9, "%T", g)

		require.InDelta(t, decay.WeightedValue(positive, now), sign.Positive().Sum(now), 1e-9, "%T", g)
		require.False(t, math.IsNaN(sign.ErrorRate(now)), "%T", g)
	}
}
