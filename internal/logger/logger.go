package logger

import (
	"go.uber.org/zap"
)

type options struct {
	development bool
}

// Option tweaks the logger configuration.
type Option func(*options)

// WithDevelopment uses zap's human-readable development config.
func WithDevelopment() Option {
	return func(o *options) { o.development = true }
}

func New(verbosity string, opts ...Option) (*zap.Logger, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	config := zap.NewProductionConfig()
	if o.development {
		config = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	return config.Build()
}

// OrNop returns log, or a no-op logger when log is nil.
func OrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
