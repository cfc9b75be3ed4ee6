package aggregate

import (
	"time"

	"github.com/misalcedo/fermentation"
)

// extreme retains the single item that wins a comparison of static weighted values.
// Comparing static weighted values means an old large value can be overtaken by a newer smaller one.
type extreme struct {
	decay    fermentation.ForwardDecay
	item     fermentation.Item
	replaces func(candidate, current float64) bool
}

func (e *extreme) update(item fermentation.Item) {
	if e.item == nil || e.replaces(e.decay.StaticWeightedValue(item), e.decay.StaticWeightedValue(e.item)) {
		e.item = item
	}
}

func (e *extreme) reset(landmark time.Time) {
	e.decay.SetLandmark(landmark)
	e.item = nil
}

// updateLandmark only moves the landmark since a common positive factor does not change which item wins.
func (e *extreme) updateLandmark(landmark time.Time) error {
	_, err := e.decay.Rescale(landmark)
	return err
}

func (e *extreme) query(timestamp time.Time) (float64, bool) {
	if e.item == nil {
		return 0, false
	}

	return e.decay.WeightedValue(e.item, timestamp), true
}

// Min is the item with the smallest decayed value. Ties keep the existing item.
type Min struct {
	extreme
}

func NewMin(decay fermentation.ForwardDecay) *Min {
	return &Min{extreme{
		decay:    decay,
		replaces: func(candidate, current float64) bool { return candidate < current },
	}}
}

func (m *Min) Update(item fermentation.Item) {
	m.update(item)
}

func (m *Min) Reset(landmark time.Time) {
	m.reset(landmark)
}

func (m *Min) UpdateLandmark(landmark time.Time) error {
	return m.updateLandmark(landmark)
}

// Query is the decayed value of the minimum item at the given time, or false if no items have been seen.
func (m *Min) Query(timestamp time.Time) (float64, bool) {
	return m.query(timestamp)
}

func (m *Min) Item() (fermentation.Item, bool) {
	return m.item, m.item != nil
}

// Max is the item with the largest decayed value. Ties keep the existing item.
type Max struct {
	extreme
}

func NewMax(decay fermentation.ForwardDecay) *Max {
	return &Max{extreme{
		decay:    decay,
		replaces: func(candidate, current float64) bool { return candidate > current },
	}}
}

func (m *Max) Update(item fermentation.Item) {
	m.update(item)
}

func (m *Max) Reset(landmark time.Time) {
	m.reset(landmark)
}

func (m *Max) UpdateLandmark(landmark time.Time) error {
	return m.updateLandmark(landmark)
}

// Query is the decayed value of the maximum item at the given time, or false if no items have been seen.
func (m *Max) Query(timestamp time.Time) (float64, bool) {
	return m.query(timestamp)
}

func (m *Max) Item() (fermentation.Item, bool) {
	return m.item, m.item != nil
}

// MinMax tracks both extremes of the stream.
type MinMax struct {
	min *Min
	max *Max
}

func NewMinMax(decay fermentation.ForwardDecay) *MinMax {
	return &MinMax{
		min: NewMin(decay),
		max: NewMax(decay),
	}
}

func (m *MinMax) Update(item fermentation.Item) {
	m.min.Update(item)
	m.max.Update(item)
}

func (m *MinMax) Reset(landmark time.Time) {
	m.min.Reset(landmark)
	m.max.Reset(landmark)
}

func (m *MinMax) UpdateLandmark(landmark time.Time) error {
	if err := m.min.UpdateLandmark(landmark); err != nil {
		return err
	}

	return m.max.UpdateLandmark(landmark)
}

func (m *MinMax) Min() *Min {
	return m.min
}

func (m *MinMax) Max() *Max {
	return m.max
}
