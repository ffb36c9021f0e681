package ranking

import (
	"github.com/shopspring/decimal"

	"github.com/okian/arena/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithScale sets the mark scale used to turn averages into percentages.
func WithScale(scale decimal.Decimal) Option {
	return func(e *Engine) {
		if scale.IsPositive() {
			e.scale = scale
		}
	}
}

// WithNotifier sets the listener for committed recomputations.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
