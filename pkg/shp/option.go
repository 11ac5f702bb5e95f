package shp

import (
	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"go.uber.org/zap"
)

type Options struct {
	Logger *zap.Logger
}

func defaultOptions() Options {
	return Options{Logger: zap.NewNop()}
}

func WithLogger(lg *zap.Logger) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Logger = lg
	})
}
