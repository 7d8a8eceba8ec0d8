package crm

import (
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
)

type options struct {
	metrics *instrumentation.Metrics
	logger  logging.Logger
}

// Option configures an Upserter.
type Option func(*options)

// WithMetrics records upsert metrics on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	return o
}
