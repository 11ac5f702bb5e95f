// Package shp reads and writes ESRI shapefiles (.shp geometry plus the
// .shx record index) on top of buffer.FileBuffer.
//
// File and record headers are big-endian, everything else little-endian;
// the buffers switch order as they go.
package shp

import (
	"encoding/binary"
	"fmt"

	"github.com/afeish/flatio/pkg/buffer"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

const (
	fileCode      = 9994
	version       = 1000
	headerLen     = 100
	recHeaderLen  = 8
	indexEntryLen = 8
)

var (
	ErrInvalidFileCode   = errors.New("not a shapefile")
	ErrInvalidRecord     = errors.New("invalid shape record")
	ErrUnsupportedShape  = errors.New("unsupported shape type")
	ErrShapeTypeMismatch = errors.New("shape type does not match the file")
	ErrNoIndex           = errors.New("no .shx index")
	ErrRecordOutOfRange  = errors.New("record out of range")
)

type ShapeType int32

const (
	Null       ShapeType = 0
	Point      ShapeType = 1
	PolyLine   ShapeType = 3
	Polygon    ShapeType = 5
	MultiPoint ShapeType = 8
)

func (t ShapeType) String() string {
	switch t {
	case Null:
		return "Null"
	case Point:
		return "Point"
	case PolyLine:
		return "PolyLine"
	case Polygon:
		return "Polygon"
	case MultiPoint:
		return "MultiPoint"
	}
	return fmt.Sprintf("ShapeType(%d)", int32(t))
}

func ParseShapeType(s string) (ShapeType, error) {
	for _, t := range []ShapeType{Null, Point, PolyLine, Polygon, MultiPoint} {
		if t.String() == s {
			return t, nil
		}
	}
	return Null, errors.Wrap(ErrUnsupportedShape, s)
}

type Header struct {
	ShapeType  ShapeType
	FileLength int64 // bytes
	Bound      orb.Bound
	ZMin, ZMax float64
	MMin, MMax float64
}

func readHeader(b *buffer.FileBuffer) (*Header, error) {
	b.SetOrder(binary.BigEndian)
	code, err := b.Int32At(0)
	if err != nil {
		return nil, err
	}
	if code != fileCode {
		return nil, errors.Wrapf(ErrInvalidFileCode, "%s: file code %d", b.Name(), code)
	}
	words, err := b.Int32At(24)
	if err != nil {
		return nil, err
	}

	b.SetOrder(binary.LittleEndian)
	st, err := b.Int32At(32)
	if err != nil {
		return nil, err
	}
	var box [8]float64
	for i := range box {
		if box[i], err = b.Float64At(36 + int64(i)*8); err != nil {
			return nil, err
		}
	}

	return &Header{
		ShapeType:  ShapeType(st),
		FileLength: int64(words) * 2,
		Bound:      orb.Bound{Min: orb.Point{box[0], box[1]}, Max: orb.Point{box[2], box[3]}},
		ZMin:       box[4],
		ZMax:       box[5],
		MMin:       box[6],
		MMax:       box[7],
	}, nil
}

func (h *Header) write(b *buffer.FileBuffer) error {
	if err := b.PutBytesAt(0, make([]byte, headerLen)); err != nil {
		return err
	}

	b.SetOrder(binary.BigEndian)
	if err := b.PutInt32At(0, fileCode); err != nil {
		return err
	}
	if err := b.PutInt32At(24, int32(h.FileLength/2)); err != nil {
		return err
	}

	b.SetOrder(binary.LittleEndian)
	if err := b.PutInt32At(28, version); err != nil {
		return err
	}
	if err := b.PutInt32At(32, int32(h.ShapeType)); err != nil {
		return err
	}
	box := []float64{h.Bound.Min.X(), h.Bound.Min.Y(), h.Bound.Max.X(), h.Bound.Max.Y(), h.ZMin, h.ZMax, h.MMin, h.MMax}
	for i, v := range box {
		if err := b.PutFloat64At(36+int64(i)*8, v); err != nil {
			return err
		}
	}
	return nil
}
