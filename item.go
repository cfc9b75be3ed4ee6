package fermentation

import (
	"math"
	"time"
)

// Item is an element of a stream of inputs.
type Item interface {
	// Timestamp is the arrival time of the item.
	Timestamp() time.Time
	// Value is the numeric value carried by the item.
	Value() float64
}

type BasicItem struct {
	timestamp time.Time
	value     float64
}

func NewBasicItem(timestamp time.Time, value float64) BasicItem {
	return BasicItem{
		timestamp: timestamp,
		value:     value,
	}
}

func (t BasicItem) Timestamp() time.Time {
	return t.timestamp
}

func (t BasicItem) Value() float64 {
	return t.value
}

// Instant is a bare point in time. It has no value, so its value is NaN.
type Instant time.Time

func (i Instant) Timestamp() time.Time {
	return time.Time(i)
}

func (i Instant) Value() float64 {
	return math.NaN()
}

// Age is the signed number of seconds, including fractions, from the landmark to the timestamp.
func Age(timestamp, landmark time.Time) float64 {
	return timestamp.Sub(landmark).Seconds()
}
