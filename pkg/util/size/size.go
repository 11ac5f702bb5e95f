package size

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// SizeSuffix is an int64 byte count that parses and prints with binary
// suffixes. A bare suffix letter (16K, 4M) means the binary unit.
type SizeSuffix int64

const (
	Byte SizeSuffix = 1 << (iota * 10)
	KibiByte
	MebiByte
	GibiByte
	TebiByte
)

func (x SizeSuffix) String() string {
	if x < 0 {
		return "off"
	}
	return humanize.IBytes(uint64(x))
}

func (x SizeSuffix) Int() int {
	if int64(x) > math.MaxInt {
		return math.MaxInt
	}
	return int(x)
}

func (x *SizeSuffix) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("empty size")
	}
	if strings.EqualFold(s, "off") {
		*x = -1
		return nil
	}
	switch last := s[len(s)-1]; last {
	case 'k', 'K', 'm', 'M', 'g', 'G', 't', 'T':
		s += "iB"
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return errors.Wrapf(err, "bad size %q", s)
	}
	if v > math.MaxInt64 {
		return errors.Errorf("size %q overflows", s)
	}
	*x = SizeSuffix(v)
	return nil
}

func (x *SizeSuffix) Type() string {
	return "SizeSuffix"
}
