package dbf

import (
	"fmt"
	"math"
	"strings"
	"time"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Writer appends records to a table. It owns the buffer and closes it in
// Close.
type Writer struct {
	b     *buffer.FileBuffer
	h     *Header
	codec codec
	lg    *zap.Logger

	now func() time.Time
}

// NewWriter starts a new table with the given fields.
func NewWriter(b *buffer.FileBuffer, fields []Field, opts ...Option[*Options]) (*Writer, error) {
	o := defaultOptions()
	ApplyOptions(&o, opts...)

	h, err := newHeader(fields, o.Codepage)
	if err != nil {
		return nil, err
	}
	w := newWriter(b, h, o)
	h.Updated = w.now()
	if err := h.write(b); err != nil {
		return nil, errors.Wrapf(err, "write header of %s", b.Name())
	}
	w.lg.Debug("create table", zap.String("file", b.Name()), zap.Stringer("header", h))
	return w, nil
}

// OpenWriter continues an existing table after its last record.
func OpenWriter(b *buffer.FileBuffer, opts ...Option[*Options]) (*Writer, error) {
	o := defaultOptions()
	ApplyOptions(&o, opts...)

	h, err := readHeader(b)
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", b.Name())
	}
	eof, err := b.EOFPosition()
	if err != nil {
		return nil, err
	}
	if eof < h.dataEnd() {
		return nil, errors.Wrapf(ErrInvalidHeader, "%s: %d records need %d bytes, file has %d", b.Name(), h.NumRecords, h.dataEnd(), eof)
	}
	o.Codepage = IfOr(h.LanguageDriver != 0, h.LanguageDriver, o.Codepage)
	return newWriter(b, h, o), nil
}

func newWriter(b *buffer.FileBuffer, h *Header, o Options) *Writer {
	return &Writer{
		b:     b,
		h:     h,
		codec: newCodec(o.Codepage),
		lg:    o.Logger.Named("dbf"),
		now:   time.Now,
	}
}

func (w *Writer) Header() *Header {
	return w.h
}

func (w *Writer) NumRecords() int {
	return int(w.h.NumRecords)
}

// Append writes one record, values in field order. nil leaves a field blank.
func (w *Writer) Append(values ...any) error {
	if len(values) != len(w.h.Fields) {
		return errors.Wrapf(ErrFieldCount, "got %d values for %d fields", len(values), len(w.h.Fields))
	}
	rec := make([]byte, w.h.RecordLen)
	rec[0] = activeFlag
	for i, f := range w.h.Fields {
		text, err := w.encodeValue(f, values[i])
		if err != nil {
			return errors.Wrapf(err, "field %s", f.Name)
		}
		copy(rec[f.offset:f.offset+int(f.Length)], text)
	}

	if err := w.b.PutBytesAt(w.h.dataEnd(), rec); err != nil {
		return err
	}
	w.h.NumRecords++
	return nil
}

// Delete sets the deletion flag of record i. The record keeps its slot.
func (w *Writer) Delete(i int) error {
	if i < 0 || i >= int(w.h.NumRecords) {
		return errors.Wrapf(ErrRecordOutOfRange, "record %d of %d", i, w.h.NumRecords)
	}
	return w.b.PutByteAt(w.h.recordOffset(i), deletedFlag)
}

// Close stamps the header, writes the end marker and closes the buffer.
func (w *Writer) Close() error {
	w.h.Updated = w.now()
	err := w.h.updateCount(w.b)
	if err == nil {
		err = w.b.PutByteAt(w.h.dataEnd(), eofMarker)
	}
	return multierr.Append(err, w.b.Close())
}

// encodeValue renders v as exactly f.Length bytes.
func (w *Writer) encodeValue(f Field, v any) ([]byte, error) {
	var text string
	rightAlign := false

	switch f.Type {
	case Character:
		if v != nil {
			text = fmt.Sprint(v)
		}
	case Number, Float:
		rightAlign = true
		if v != nil {
			n, err := toNumeric(v)
			if err != nil {
				return nil, err
			}
			text = n.format(f.Decimals)
		}
	case Logical:
		text = "?"
		if v != nil {
			b, ok := v.(bool)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidValue, "logical from %T", v)
			}
			text = IfOr(b, "T", "F")
		}
	case Date:
		if v != nil {
			t, ok := v.(time.Time)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidValue, "date from %T", v)
			}
			text = t.Format(dateLayout)
		}
	}

	raw, err := w.codec.encode(text)
	if err != nil {
		return nil, err
	}
	if len(raw) > int(f.Length) {
		return nil, errors.Wrapf(ErrValueTooLong, "%q in %d bytes", text, f.Length)
	}
	pad := []byte(strings.Repeat(" ", int(f.Length)-len(raw)))
	if rightAlign {
		return append(pad, raw...), nil
	}
	return append(raw, pad...), nil
}

func toNumeric(v any) (Numeric, error) {
	switch n := v.(type) {
	case Numeric:
		return n, nil
	case int:
		return toNumeric(int64(n))
	case int32:
		return Numeric{Kind: KindInt, Int: n}, nil
	case int64:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return Numeric{Kind: KindInt, Int: int32(n)}, nil
		}
		return Numeric{Kind: KindLong, Long: n}, nil
	case float32:
		return Numeric{Kind: KindDouble, Double: float64(n)}, nil
	case float64:
		return Numeric{Kind: KindDouble, Double: n}, nil
	case string:
		return ParseNumeric(n)
	}
	return Numeric{}, errors.Wrapf(ErrInvalidValue, "numeric from %T", v)
}
