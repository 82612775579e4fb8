package statemachine

import "log/slog"

type options struct {
	name       string
	logger     *slog.Logger
	errorEvent func(error) Event
}

// Option configures a StateMachine.
type Option func(*options)

// WithName sets the machine name used in log records.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the structured logger. A nil logger keeps the discard default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorEvent sets the constructor used to turn recovered resolver and
// action failures into events fed back into the machine.
func WithErrorEvent(fn func(error) Event) Option {
	return func(o *options) {
		o.errorEvent = fn
	}
}

func defaultOptions() options {
	return options{
		name:   "statemachine",
		logger: slog.New(slog.DiscardHandler),
	}
}
