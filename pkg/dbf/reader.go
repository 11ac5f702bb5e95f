package dbf

import (
	"strings"
	"time"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

const dateLayout = "20060102"

// Reader gives random access to the records of a table. It does not own
// the buffer.
type Reader struct {
	b     *buffer.FileBuffer
	h     *Header
	codec codec
	lg    *zap.Logger
}

func NewReader(b *buffer.FileBuffer, opts ...Option[*Options]) (*Reader, error) {
	o := defaultOptions()
	ApplyOptions(&o, opts...)

	h, err := readHeader(b)
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", b.Name())
	}
	id := IfOr(h.LanguageDriver != 0, h.LanguageDriver, o.Codepage)

	r := &Reader{
		b:     b,
		h:     h,
		codec: newCodec(id),
		lg:    o.Logger.Named("dbf"),
	}
	r.lg.Debug("open table", zap.String("file", b.Name()), zap.Stringer("header", h))
	return r, nil
}

func (r *Reader) Header() *Header {
	return r.h
}

func (r *Reader) Fields() []Field {
	return r.h.Fields
}

func (r *Reader) NumRecords() int {
	return int(r.h.NumRecords)
}

// FieldIndex looks a field up by name, ignoring case.
func (r *Reader) FieldIndex(name string) (int, error) {
	_, idx, ok := lo.FindIndexOf(r.h.Fields, func(f Field) bool {
		return strings.EqualFold(f.Name, name)
	})
	if !ok {
		return -1, errors.Wrap(ErrFieldNotFound, name)
	}
	return idx, nil
}

func (r *Reader) checkRecord(i int) error {
	if i < 0 || i >= int(r.h.NumRecords) {
		return errors.Wrapf(ErrRecordOutOfRange, "record %d of %d", i, r.h.NumRecords)
	}
	return nil
}

func (r *Reader) Deleted(i int) (bool, error) {
	if err := r.checkRecord(i); err != nil {
		return false, err
	}
	flag, err := r.b.ByteAt(r.h.recordOffset(i))
	if err != nil {
		return false, err
	}
	return flag == deletedFlag, nil
}

// RawValue returns a copy of the field bytes of record i.
func (r *Reader) RawValue(i, field int) ([]byte, error) {
	if err := r.checkRecord(i); err != nil {
		return nil, err
	}
	if field < 0 || field >= len(r.h.Fields) {
		return nil, errors.Wrapf(ErrFieldNotFound, "field %d", field)
	}
	f := r.h.Fields[field]
	raw := make([]byte, f.Length)
	if err := r.b.BytesAt(r.h.recordOffset(i)+int64(f.offset), raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// String decodes the field text with the table codepage, trimming padding.
func (r *Reader) String(i, field int) (string, error) {
	raw, err := r.RawValue(i, field)
	if err != nil {
		return "", err
	}
	s, err := r.codec.decode(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00")), nil
}

// Numeric returns None for blank fields and for overflow markers (all '*').
func (r *Reader) Numeric(i, field int) (mo.Option[Numeric], error) {
	s, err := r.String(i, field)
	if err != nil {
		return mo.None[Numeric](), err
	}
	if s == "" || strings.Trim(s, "*") == "" {
		return mo.None[Numeric](), nil
	}
	n, err := ParseNumeric(s)
	if err != nil {
		return mo.None[Numeric](), errors.Wrapf(err, "record %d field %s", i, r.h.Fields[field].Name)
	}
	return mo.Some(n), nil
}

func (r *Reader) Bool(i, field int) (mo.Option[bool], error) {
	s, err := r.String(i, field)
	if err != nil {
		return mo.None[bool](), err
	}
	switch s {
	case "T", "t", "Y", "y":
		return mo.Some(true), nil
	case "F", "f", "N", "n":
		return mo.Some(false), nil
	case "", "?":
		return mo.None[bool](), nil
	}
	return mo.None[bool](), errors.Wrapf(ErrInvalidValue, "logical %q", s)
}

func (r *Reader) Date(i, field int) (mo.Option[time.Time], error) {
	s, err := r.String(i, field)
	if err != nil {
		return mo.None[time.Time](), err
	}
	if s == "" || strings.Trim(s, "0") == "" {
		return mo.None[time.Time](), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return mo.None[time.Time](), errors.Wrapf(ErrInvalidValue, "date %q", s)
	}
	return mo.Some(t), nil
}

// Value decodes field according to its type. Missing values are nil.
func (r *Reader) Value(i, field int) (any, error) {
	if field < 0 || field >= len(r.h.Fields) {
		return nil, errors.Wrapf(ErrFieldNotFound, "field %d", field)
	}
	switch r.h.Fields[field].Type {
	case Number, Float:
		n, err := r.Numeric(i, field)
		if err != nil {
			return nil, err
		}
		return optionValue(n, Numeric.Value), nil
	case Logical:
		v, err := r.Bool(i, field)
		if err != nil {
			return nil, err
		}
		return optionValue(v, func(b bool) any { return b }), nil
	case Date:
		v, err := r.Date(i, field)
		if err != nil {
			return nil, err
		}
		return optionValue(v, func(t time.Time) any { return t.Format(time.DateOnly) }), nil
	default:
		return r.String(i, field)
	}
}

func optionValue[T any](o mo.Option[T], fn func(T) any) any {
	if v, ok := o.Get(); ok {
		return fn(v)
	}
	return nil
}

// Record decodes every field of record i, keyed by field name.
func (r *Reader) Record(i int) (map[string]any, error) {
	props := make(map[string]any, len(r.h.Fields))
	for idx, f := range r.h.Fields {
		v, err := r.Value(i, idx)
		if err != nil {
			return nil, err
		}
		props[f.Name] = v
	}
	return props, nil
}
