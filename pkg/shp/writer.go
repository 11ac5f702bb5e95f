package shp

import (
	"encoding/binary"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Writer appends geometries of one shape type to a .shp and its .shx. It
// owns both buffers.
type Writer struct {
	shp, shx *buffer.FileBuffer
	h        Header
	offset   int64
	count    int
	bounded  bool
	lg       *zap.Logger
}

func NewWriter(shp, shx *buffer.FileBuffer, t ShapeType, opts ...Option[*Options]) (*Writer, error) {
	o := defaultOptions()
	ApplyOptions(&o, opts...)

	if !writable(t) {
		return nil, errors.Wrapf(ErrUnsupportedShape, "%s", t)
	}
	w := &Writer{
		shp:    shp,
		shx:    shx,
		h:      Header{ShapeType: t, FileLength: headerLen},
		offset: headerLen,
		lg:     o.Logger.Named("shp"),
	}
	// placeholders until Close knows the lengths and bound
	if err := w.writeHeaders(); err != nil {
		return nil, err
	}
	return w, nil
}

func writable(t ShapeType) bool {
	switch t {
	case Point, PolyLine, Polygon, MultiPoint:
		return true
	}
	return false
}

func (w *Writer) Len() int {
	return w.count
}

// Write appends g and returns its 0-based record index. A nil geometry is
// stored as a Null shape.
func (w *Writer) Write(g orb.Geometry) (int, error) {
	t, parts, err := shapeOf(g)
	if err != nil {
		return -1, err
	}
	if t != Null && t != w.h.ShapeType {
		return -1, errors.Wrapf(ErrShapeTypeMismatch, "%s in a %s file", t, w.h.ShapeType)
	}
	size := contentSize(t, parts)

	w.shp.SetPosition(w.offset)
	w.shp.SetOrder(binary.BigEndian)
	if err := w.shp.PutInt32(int32(w.count + 1)); err != nil {
		return -1, err
	}
	if err := w.shp.PutInt32(int32(size / 2)); err != nil {
		return -1, err
	}
	w.shp.SetOrder(binary.LittleEndian)
	if err := encodeShape(w.shp, t, g, parts); err != nil {
		return -1, errors.Wrapf(err, "record %d", w.count+1)
	}

	w.shx.SetOrder(binary.BigEndian)
	entry := headerLen + int64(w.count)*indexEntryLen
	if err := w.shx.PutInt32At(entry, int32(w.offset/2)); err != nil {
		return -1, err
	}
	if err := w.shx.PutInt32At(entry+4, int32(size/2)); err != nil {
		return -1, err
	}

	if t != Null {
		w.h.Bound = IfOr(w.bounded, w.h.Bound.Union(g.Bound()), g.Bound())
		w.bounded = true
	}
	w.offset += recHeaderLen + size
	w.count++
	return w.count - 1, nil
}

func (w *Writer) writeHeaders() error {
	w.h.FileLength = w.offset
	if err := w.h.write(w.shp); err != nil {
		return errors.Wrapf(err, "write header of %s", w.shp.Name())
	}
	idx := w.h
	idx.FileLength = headerLen + int64(w.count)*indexEntryLen
	if err := idx.write(w.shx); err != nil {
		return errors.Wrapf(err, "write header of %s", w.shx.Name())
	}
	return nil
}

// Close rewrites both headers and closes both buffers.
func (w *Writer) Close() error {
	err := w.writeHeaders()
	w.lg.Debug("close shapefile", zap.String("file", w.shp.Name()), zap.Int("records", w.count),
		zap.Stringer("type", w.h.ShapeType), zap.Error(err))
	return multierr.Combine(err, w.shp.Close(), w.shx.Close())
}
