package dbf

import (
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// dBase language driver ids with a single-byte charmap.
var languageDrivers = map[byte]*charmap.Charmap{
	0x01: charmap.CodePage437,
	0x02: charmap.CodePage850,
	0x03: charmap.Windows1252,
	0x57: charmap.Windows1252,
	0x64: charmap.CodePage852,
	0x65: charmap.CodePage866,
	0x66: charmap.CodePage865,
	0xC8: charmap.Windows1250,
	0xC9: charmap.Windows1251,
}

// codec converts between field bytes and Go strings. A nil charmap passes
// bytes through unchanged.
type codec struct {
	cm *charmap.Charmap
}

func newCodec(id byte) codec {
	return codec{cm: languageDrivers[id]}
}

func (c codec) decode(raw []byte) (string, error) {
	if c.cm == nil {
		return string(raw), nil
	}
	out, err := c.cm.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errors.Wrapf(err, "decode %s", c.cm)
	}
	return string(out), nil
}

func (c codec) encode(s string) ([]byte, error) {
	if c.cm == nil {
		return []byte(s), nil
	}
	out, err := c.cm.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "%q is not representable in %s", s, c.cm)
	}
	return out, nil
}
