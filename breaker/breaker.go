// Package breaker implements a circuit breaker whose window is a forward decay model.
// https://aashaypalliwar.github.io/assets/pdf/gedcb-main.pdf
package breaker

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/misalcedo/fermentation"
	"github.com/misalcedo/fermentation/aggregate"
	"go.uber.org/zap"
)

var OpenBreakerErr = errors.New("circuit breaker is open")

type Config struct {
	WindowSize                time.Duration `yaml:"window_size"`
	SuspicionSuccessThreshold int           `yaml:"suspicion_success_threshold"`
	SoftFailureThreshold      int           `yaml:"soft_failure_threshold"`
	HardFailureThreshold      int           `yaml:"hard_failure_threshold"`
	HalfOpenFailureThreshold  int           `yaml:"half_open_failure_threshold"`
	HalfOpenSuccessThreshold  int           `yaml:"half_open_success_threshold"`
	OpenDuration              time.Duration `yaml:"open_duration"`
}

func DefaultConfig() Config {
	return Config{
		WindowSize:                time.Minute,
		SuspicionSuccessThreshold: 10,
		SoftFailureThreshold:      5,
		HardFailureThreshold:      50,
		HalfOpenFailureThreshold:  2,
		HalfOpenSuccessThreshold:  2,
		OpenDuration:              time.Second * 1,
	}
}

type State int

const (
	Closed State = iota
	Suspicion
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Suspicion:
		return "suspicion"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker records successes as positive and failures as negative items of a sign aggregate.
// It is safe for concurrent use.
type Breaker struct {
	config   Config
	outcomes *aggregate.Sign
	state    State
	deadline time.Time
	peers    map[string]State
	logger   *zap.Logger
	metrics  *metrics.Metrics
	mutex    sync.Mutex
}

type Option func(*Breaker)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Breaker) { b.logger = logger }
}

// WithMetrics emits transitions to the given metrics instead of the global ones.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Breaker) { b.metrics = m }
}

// NewBreaker fails when the decay model cannot move its landmark, since the breaker rescales on every State call.
func NewBreaker(config Config, decay fermentation.ForwardDecay, opts ...Option) (*Breaker, error) {
	if !decay.Rescalable() {
		return nil, fermentation.ErrNotRescalable
	}

	b := &Breaker{
		config:   config,
		outcomes: aggregate.NewSign(decay),
		state:    Closed,
		deadline: decay.Landmark(),
		peers:    make(map[string]State),
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Acquire fails when the breaker is open at the given time.
func (b *Breaker) Acquire(timestamp time.Time) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.transition(timestamp)

	if b.state == Open {
		return OpenBreakerErr
	}

	return nil
}

func (b *Breaker) Success(timestamp time.Time) error {
	return b.record(timestamp, 1.0)
}

func (b *Breaker) Failure(timestamp time.Time) error {
	return b.record(timestamp, -1.0)
}

// record drops the outcome when the breaker is open, since the request should never have been made.
func (b *Breaker) record(timestamp time.Time, value float64) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state == Open {
		b.transition(timestamp)

		if b.state == Open {
			return OpenBreakerErr
		}
	}

	b.outcomes.Update(fermentation.NewBasicItem(timestamp, value))

	if value < 0 {
		b.transition(timestamp)
	}

	return nil
}

func (b *Breaker) transition(timestamp time.Time) {
	previous := b.state

	switch b.state {
	case Closed:
		if b.failures(timestamp) > b.config.SoftFailureThreshold {
			b.state = Suspicion
		}
	case Suspicion:
		if b.successes(timestamp) > b.config.SuspicionSuccessThreshold {
			b.state = Closed
			b.clearWindow()
		} else if b.failures(timestamp) > b.config.HardFailureThreshold {
			b.state = Open
			b.clearWindow()
			b.startTimer(timestamp)
		} else if b.majoritySuspecting() {
			b.state = Open
			b.clearWindow()
			b.startTimer(timestamp)
		}
	case Open:
		if timestamp.After(b.deadline) {
			b.state = HalfOpen
		}
	case HalfOpen:
		if b.failures(timestamp) > b.config.HalfOpenFailureThreshold {
			b.state = Open
			b.clearWindow()
			b.startTimer(timestamp)
		} else if b.successes(timestamp) > b.config.HalfOpenSuccessThreshold {
			b.state = Closed
			b.clearWindow()
		}
	}

	if previous != b.state {
		key := []string{"breaker", "transition"}
		labels := []metrics.Label{{Name: "to", Value: b.state.String()}}

		if b.metrics != nil {
			b.metrics.IncrCounterWithLabels(key, 1, labels)
		} else {
			metrics.IncrCounterWithLabels(key, 1, labels)
		}

		b.logger.Info("breaker transitioned", zap.Stringer("from", previous), zap.Stringer("to", b.state), zap.Time("at", timestamp))
	}
}

func (b *Breaker) successes(timestamp time.Time) int {
	return int(math.Ceil(b.outcomes.Positive().Count(timestamp)))
}

func (b *Breaker) failures(timestamp time.Time) int {
	return int(math.Ceil(b.outcomes.Negative().Count(timestamp)))
}

func (b *Breaker) Successes(timestamp time.Time) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.successes(timestamp)
}

func (b *Breaker) Failures(timestamp time.Time) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.failures(timestamp)
}

// ErrorRate is the decayed fraction of outcomes that were failures, or NaN when there are none.
func (b *Breaker) ErrorRate(timestamp time.Time) float64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.outcomes.ErrorRate(timestamp)
}

func (b *Breaker) Deadline() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.deadline
}

func (b *Breaker) clearWindow() {
	b.outcomes.Reset(b.outcomes.Positive().Decay().Landmark())
}

func (b *Breaker) startTimer(timestamp time.Time) {
	b.deadline = timestamp.Add(b.config.OpenDuration)
}

func (b *Breaker) majoritySuspecting() bool {
	if len(b.peers) == 0 {
		return false
	}

	total := 0
	majority := len(b.peers)/2 + 1

	for _, peer := range b.peers {
		if peer != Closed {
			total++
		}
	}

	return total >= majority
}

// State moves the landmark to the given time, keeping the decayed outcomes bounded, and returns the resulting state.
func (b *Breaker) State(timestamp time.Time) State {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.outcomes.UpdateLandmark(timestamp); err != nil {
		b.logger.Error("failed to update landmark", zap.Time("landmark", timestamp), zap.Error(err))
	}
	b.transition(timestamp)

	return b.state
}

// Current returns the state as of the last transition without advancing time.
func (b *Breaker) Current() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.state
}

// UpdatePeers replaces the known states of other breakers guarding the same resource.
func (b *Breaker) UpdatePeers(peers map[string]State) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for key := range b.peers {
		if _, ok := peers[key]; !ok {
			delete(b.peers, key)
		}
	}

	for key, value := range peers {
		b.peers[key] = value
	}
}
