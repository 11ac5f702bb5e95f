package dbf

import (
	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"go.uber.org/zap"
)

type Options struct {
	// Codepage is the language driver id used when the header carries none.
	Codepage byte
	Logger   *zap.Logger
}

func defaultOptions() Options {
	return Options{
		Codepage: GetEnvCfg().Dbf.Codepage,
		Logger:   zap.NewNop(),
	}
}

func WithCodepage(id byte) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Codepage = id
	})
}

func WithLogger(lg *zap.Logger) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Logger = lg
	})
}
