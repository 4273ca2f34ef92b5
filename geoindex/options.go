package geoindex

import "log/slog"

type options struct {
	fanout int
	logger *slog.Logger
}

type Option interface {
	apply(*options)
}

type fanout int

func (f fanout) apply(o *options) {
	o.fanout = int(f)
}

// Default: 9
func WithFanout(n int) Option {
	return fanout(n)
}

type loggerOption struct {
	logger *slog.Logger
}

func (l loggerOption) apply(o *options) {
	o.logger = l.logger
}

func WithLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}
