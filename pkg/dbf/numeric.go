package dbf

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type NumericKind int

const (
	KindInt NumericKind = iota
	KindLong
	KindDouble
)

func (k NumericKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	default:
		return "double"
	}
}

// Numeric is a parsed N or F field: the narrowest of int32, int64 or
// float64 that holds the text.
type Numeric struct {
	Kind   NumericKind
	Int    int32
	Long   int64
	Double float64
}

func ParseNumeric(s string) (Numeric, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return Numeric{Kind: KindInt, Int: int32(i)}, nil
	}
	if l, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Numeric{Kind: KindLong, Long: l}, nil
	}
	if d, err := strconv.ParseFloat(s, 64); err == nil {
		return Numeric{Kind: KindDouble, Double: d}, nil
	}
	return Numeric{}, errors.Wrapf(ErrParseNumeric, "%q", s)
}

func (n Numeric) Value() any {
	switch n.Kind {
	case KindInt:
		return n.Int
	case KindLong:
		return n.Long
	default:
		return n.Double
	}
}

func (n Numeric) Float64() float64 {
	switch n.Kind {
	case KindInt:
		return float64(n.Int)
	case KindLong:
		return float64(n.Long)
	default:
		return n.Double
	}
}

// format renders n as field text; doubles get the given number of decimals.
func (n Numeric) format(decimals uint8) string {
	switch n.Kind {
	case KindInt:
		return strconv.FormatInt(int64(n.Int), 10)
	case KindLong:
		return strconv.FormatInt(n.Long, 10)
	default:
		return strconv.FormatFloat(n.Double, 'f', int(decimals), 64)
	}
}
