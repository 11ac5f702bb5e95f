package shp

import (
	"encoding/binary"
	"io"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Record struct {
	Number   int // 1-based, as stored
	Type     ShapeType
	Geometry orb.Geometry
}

// Reader scans a .shp file sequentially and, with an index, by record
// number. It does not own the buffers.
type Reader struct {
	shp, shx *buffer.FileBuffer
	h        *Header
	end      int64
	next     int64
	lg       *zap.Logger
}

// NewReader reads the .shp header. shx may be nil; Len and Record then
// fail with ErrNoIndex.
func NewReader(shp, shx *buffer.FileBuffer, opts ...Option[*Options]) (*Reader, error) {
	o := defaultOptions()
	ApplyOptions(&o, opts...)

	h, err := readHeader(shp)
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", shp.Name())
	}
	size, err := shp.Length()
	if err != nil {
		return nil, err
	}
	if shx != nil {
		if _, err := readHeader(shx); err != nil {
			return nil, errors.Wrapf(err, "read header of %s", shx.Name())
		}
	}

	r := &Reader{
		shp:  shp,
		shx:  shx,
		h:    h,
		end:  Min(h.FileLength, size),
		next: headerLen,
		lg:   o.Logger.Named("shp"),
	}
	r.lg.Debug("open shapefile", zap.String("file", shp.Name()), zap.Stringer("type", h.ShapeType),
		zap.Int64("length", h.FileLength), zap.Bool("indexed", shx != nil))
	return r, nil
}

func (r *Reader) Header() *Header {
	return r.h
}

// Next returns the record after the previous one, or io.EOF.
func (r *Reader) Next() (*Record, error) {
	if r.next+recHeaderLen > r.end {
		return nil, io.EOF
	}
	rec, size, err := r.readRecord(r.next)
	if err != nil {
		return nil, err
	}
	r.next += recHeaderLen + size
	return rec, nil
}

// Reset rewinds Next to the first record.
func (r *Reader) Reset() {
	r.next = headerLen
}

// Len is the number of records in the index.
func (r *Reader) Len() (int, error) {
	if r.shx == nil {
		return 0, ErrNoIndex
	}
	size, err := r.shx.Length()
	if err != nil {
		return 0, err
	}
	return int((size - headerLen) / indexEntryLen), nil
}

// Record reads the i-th record (0-based) through the index.
func (r *Reader) Record(i int) (*Record, error) {
	n, err := r.Len()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, errors.Wrapf(ErrRecordOutOfRange, "record %d of %d", i, n)
	}
	r.shx.SetOrder(binary.BigEndian)
	words, err := r.shx.Int32At(headerLen + int64(i)*indexEntryLen)
	if err != nil {
		return nil, err
	}
	rec, _, err := r.readRecord(int64(words) * 2)
	return rec, err
}

// readRecord decodes the record at pos and returns its content length.
func (r *Reader) readRecord(pos int64) (*Record, int64, error) {
	b := r.shp
	b.SetPosition(pos)

	b.SetOrder(binary.BigEndian)
	num, err := b.GetInt32()
	if err != nil {
		return nil, 0, err
	}
	words, err := b.GetInt32()
	if err != nil {
		return nil, 0, err
	}
	size := int64(words) * 2
	if words < 2 || pos+recHeaderLen+size > r.end {
		return nil, 0, errors.Wrapf(ErrInvalidRecord, "record %d at %d: content length %d", num, pos, size)
	}

	b.SetOrder(binary.LittleEndian)
	t, g, err := decodeShape(b, size)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "record %d", num)
	}
	if t != Null && t != r.h.ShapeType {
		return nil, 0, errors.Wrapf(ErrShapeTypeMismatch, "record %d is %s in a %s file", num, t, r.h.ShapeType)
	}
	return &Record{Number: int(num), Type: t, Geometry: g}, size, nil
}
