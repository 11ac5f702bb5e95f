package buffer

import "github.com/pkg/errors"

var (
	ErrClosed            = errors.New("file buffer used after close")
	ErrInvalidOffset     = errors.New("invalid offset")
	ErrOffsetOverflow    = errors.New("offset overflows the addressable window")
	ErrShortWrite        = errors.New("short write")
	ErrInvalidWindowSize = errors.New("window size must be positive")
	ErrInvalidByteOrder  = errors.New("unknown byte order")
)
