// Package dbf reads and writes dBase III tables, the attribute half of a
// shapefile, on top of a buffer.FileBuffer.
package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/afeish/flatio/pkg/buffer"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	headerSize      = 32
	fieldDescSize   = 32
	fieldNameSize   = 11
	maxFieldNameLen = 10

	headerTerminator = 0x0D
	eofMarker        = 0x1A
	deletedFlag      = '*'
	activeFlag       = ' '

	versionDBase3 = 0x03
)

type FieldType byte

const (
	Character FieldType = 'C'
	Number    FieldType = 'N'
	Float     FieldType = 'F'
	Logical   FieldType = 'L'
	Date      FieldType = 'D'
)

func (t FieldType) String() string {
	return string(t)
}

func (t FieldType) valid() bool {
	return lo.Contains([]FieldType{Character, Number, Float, Logical, Date}, t)
}

type Field struct {
	Name     string
	Type     FieldType
	Length   uint8
	Decimals uint8

	offset int // from the start of the record, after the deletion flag
}

func (f Field) validate() error {
	if f.Name == "" || len(f.Name) > maxFieldNameLen {
		return errors.Wrapf(ErrInvalidField, "name %q", f.Name)
	}
	if !f.Type.valid() {
		return errors.Wrapf(ErrInvalidField, "%s: type %q", f.Name, byte(f.Type))
	}
	switch f.Type {
	case Logical:
		if f.Length != 1 {
			return errors.Wrapf(ErrInvalidField, "%s: logical length must be 1", f.Name)
		}
	case Date:
		if f.Length != 8 {
			return errors.Wrapf(ErrInvalidField, "%s: date length must be 8", f.Name)
		}
	case Number, Float:
		if f.Length == 0 || f.Length > 20 || (f.Decimals > 0 && f.Decimals >= f.Length-1) {
			return errors.Wrapf(ErrInvalidField, "%s: numeric %d.%d", f.Name, f.Length, f.Decimals)
		}
	case Character:
		if f.Length == 0 {
			return errors.Wrapf(ErrInvalidField, "%s: zero length", f.Name)
		}
	}
	return nil
}

type Header struct {
	Version        byte
	Updated        time.Time
	NumRecords     uint32
	HeaderLen      uint16
	RecordLen      uint16
	LanguageDriver byte
	Fields         []Field
}

func (h *Header) String() string {
	return fmt.Sprintf("dbf v%#x records=%d header=%d record=%d fields=%d", h.Version, h.NumRecords, h.HeaderLen, h.RecordLen, len(h.Fields))
}

// newHeader lays out fields and computes header and record lengths.
func newHeader(fields []Field, languageDriver byte) (*Header, error) {
	if len(fields) == 0 {
		return nil, errors.Wrap(ErrInvalidField, "no fields")
	}
	seen := map[string]bool{}
	h := &Header{
		Version:        versionDBase3,
		LanguageDriver: languageDriver,
		Fields:         make([]Field, len(fields)),
	}
	recordLen := 1
	for i, f := range fields {
		if err := f.validate(); err != nil {
			return nil, err
		}
		key := strings.ToUpper(f.Name)
		if seen[key] {
			return nil, errors.Wrapf(ErrInvalidField, "duplicate field %s", f.Name)
		}
		seen[key] = true
		f.offset = recordLen
		recordLen += int(f.Length)
		h.Fields[i] = f
	}
	headerLen := headerSize + fieldDescSize*len(fields) + 1
	if recordLen > 0xFFFF || headerLen > 0xFFFF {
		return nil, errors.Wrap(ErrInvalidField, "too many fields")
	}
	h.RecordLen = uint16(recordLen)
	h.HeaderLen = uint16(headerLen)
	return h, nil
}

func readHeader(b *buffer.FileBuffer) (*Header, error) {
	b.SetOrder(binary.LittleEndian)

	fixed := make([]byte, headerSize)
	if err := b.BytesAt(0, fixed); err != nil {
		return nil, err
	}
	h := &Header{
		Version:        fixed[0],
		Updated:        time.Date(1900+int(fixed[1]), time.Month(fixed[2]), int(fixed[3]), 0, 0, 0, 0, time.UTC),
		NumRecords:     binary.LittleEndian.Uint32(fixed[4:]),
		HeaderLen:      binary.LittleEndian.Uint16(fixed[8:]),
		RecordLen:      binary.LittleEndian.Uint16(fixed[10:]),
		LanguageDriver: fixed[29],
	}
	if h.HeaderLen < headerSize+1 || h.RecordLen < 1 {
		return nil, errors.Wrapf(ErrInvalidHeader, "header length %d record length %d", h.HeaderLen, h.RecordLen)
	}

	desc := make([]byte, fieldDescSize)
	recordLen := 1
	for pos := int64(headerSize); pos+fieldDescSize <= int64(h.HeaderLen); pos += fieldDescSize {
		term, err := b.ByteAt(pos)
		if err != nil {
			return nil, err
		}
		if term == headerTerminator {
			break
		}
		if err := b.BytesAt(pos, desc); err != nil {
			return nil, err
		}
		name := desc[:fieldNameSize]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		f := Field{
			Name:     strings.TrimSpace(string(name)),
			Type:     FieldType(desc[11]),
			Length:   desc[16],
			Decimals: desc[17],
			offset:   recordLen,
		}
		recordLen += int(f.Length)
		h.Fields = append(h.Fields, f)
	}

	if len(h.Fields) == 0 {
		return nil, errors.Wrap(ErrInvalidHeader, "no fields")
	}
	if recordLen != int(h.RecordLen) {
		return nil, errors.Wrapf(ErrInvalidHeader, "record length %d, fields add up to %d", h.RecordLen, recordLen)
	}
	return h, nil
}

func (h *Header) write(b *buffer.FileBuffer) error {
	b.SetOrder(binary.LittleEndian)

	fixed := make([]byte, headerSize)
	fixed[0] = h.Version
	fixed[1] = byte(h.Updated.Year() - 1900)
	fixed[2] = byte(h.Updated.Month())
	fixed[3] = byte(h.Updated.Day())
	binary.LittleEndian.PutUint32(fixed[4:], h.NumRecords)
	binary.LittleEndian.PutUint16(fixed[8:], h.HeaderLen)
	binary.LittleEndian.PutUint16(fixed[10:], h.RecordLen)
	fixed[29] = h.LanguageDriver
	if err := b.PutBytesAt(0, fixed); err != nil {
		return err
	}

	for i, f := range h.Fields {
		desc := make([]byte, fieldDescSize)
		copy(desc[:maxFieldNameLen], f.Name)
		desc[11] = byte(f.Type)
		desc[16] = f.Length
		desc[17] = f.Decimals
		if err := b.PutBytesAt(int64(headerSize+i*fieldDescSize), desc); err != nil {
			return err
		}
	}
	return b.PutByteAt(int64(h.HeaderLen)-1, headerTerminator)
}

// updateCount rewrites only the date and record count.
func (h *Header) updateCount(b *buffer.FileBuffer) error {
	b.SetOrder(binary.LittleEndian)
	if err := b.PutBytesAt(1, []byte{byte(h.Updated.Year() - 1900), byte(h.Updated.Month()), byte(h.Updated.Day())}); err != nil {
		return err
	}
	return b.PutInt32At(4, int32(h.NumRecords))
}

func (h *Header) recordOffset(i int) int64 {
	return int64(h.HeaderLen) + int64(i)*int64(h.RecordLen)
}

// dataEnd is where the end-of-file marker goes.
func (h *Header) dataEnd() int64 {
	return h.recordOffset(int(h.NumRecords))
}
