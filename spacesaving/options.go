package spacesaving

import (
	"github.com/armon/go-metrics"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

type Option func(*options)

type options struct {
	clock   clock.PassiveClock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func defaultOptions() options {
	return options{
		clock:  clock.RealClock{},
		logger: zap.NewNop(),
	}
}

// WithClock sets the time source used by Hit.
func WithClock(clock clock.PassiveClock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger logs evictions at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics counts evictions and landmark updates.
func WithMetrics(metrics *metrics.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}
