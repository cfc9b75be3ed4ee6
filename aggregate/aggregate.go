// Package aggregate computes decayed aggregates over streams of items using a forward decay model.
//
// Aggregators accumulate static weights relative to the landmark of their model, so a query
// at any later time only needs a single division by the normalizing factor of that time.
package aggregate

import (
	"time"

	"github.com/misalcedo/fermentation"
)

// Aggregator aggregates information about items in an unordered stream.
type Aggregator interface {
	// Update adds the item to the aggregate.
	Update(item fermentation.Item)

	// Reset empties the aggregate and moves the landmark.
	// This is equivalent to creating a new aggregator with the same decay model and the given landmark.
	Reset(landmark time.Time)

	// UpdateLandmark moves the landmark while keeping the items seen so far.
	// Fails with fermentation.ErrNotRescalable, leaving the aggregate untouched, when the weighting function cannot be rescaled.
	UpdateLandmark(landmark time.Time) error
}

var (
	_ Aggregator = (*Sum)(nil)
	_ Aggregator = (*Count)(nil)
	_ Aggregator = (*Average)(nil)
	_ Aggregator = (*Min)(nil)
	_ Aggregator = (*Max)(nil)
	_ Aggregator = (*MinMax)(nil)
	_ Aggregator = (*Basic)(nil)
	_ Aggregator = (*Sign)(nil)
)

// rescale moves the landmark of the decay model and divides each of the totals by the rescale factor.
func rescale(decay *fermentation.ForwardDecay, landmark time.Time, totals ...*float64) error {
	factor, err := decay.Rescale(landmark)
	if err != nil {
		return err
	}

	for _, total := range totals {
		*total /= factor
	}

	return nil
}
