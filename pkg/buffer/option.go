package buffer

import (
	"encoding/binary"
	"strings"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"go.uber.org/zap"
)

const DefaultWindowSize = 32 << 10

type Options struct {
	WindowSize int
	Order      binary.ByteOrder
	Logger     *zap.Logger
}

// DefaultOptions derives the options from the environment config.
func DefaultOptions() Options {
	cfg := GetEnvCfg()
	opts := Options{
		WindowSize: DefaultWindowSize,
		Order:      binary.BigEndian,
		Logger:     zap.NewNop(),
	}
	if sz := cfg.Buffer.WindowSize.Int(); sz > 0 {
		opts.WindowSize = sz
	}
	if order, err := ParseByteOrder(cfg.Buffer.ByteOrder); err == nil {
		opts.Order = order
	}
	return opts
}

func WithWindowSize(size int) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.WindowSize = size
	})
}

func WithByteOrder(order binary.ByteOrder) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Order = order
	})
}

func WithLogger(lg *zap.Logger) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Logger = lg
	})
}

// ParseByteOrder accepts big/be/little/le, case-insensitive.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "big", "be", "bigendian", "big-endian":
		return binary.BigEndian, nil
	case "little", "le", "littleendian", "little-endian":
		return binary.LittleEndian, nil
	}
	return nil, ErrInvalidByteOrder
}
