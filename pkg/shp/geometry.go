package shp

import (
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// decodeShape reads one record content at the cursor. size is the content
// length in bytes and bounds every count read from the record.
func decodeShape(b *buffer.FileBuffer, size int64) (ShapeType, orb.Geometry, error) {
	st, err := b.GetInt32()
	if err != nil {
		return Null, nil, err
	}

	switch t := ShapeType(st); t {
	case Null:
		return t, nil, nil
	case Point:
		p, err := readPoint(b)
		return t, p, err
	case MultiPoint:
		b.Skip(32) // bbox
		n, err := b.GetInt32()
		if err != nil {
			return t, nil, err
		}
		if n < 0 || 40+16*int64(n) > size {
			return t, nil, errors.Wrapf(ErrInvalidRecord, "%d points in %d bytes", n, size)
		}
		mp, err := readPoints(b, int(n))
		return t, orb.MultiPoint(mp), err
	case PolyLine, Polygon:
		b.Skip(32)
		parts, err := readParts(b, size)
		if err != nil {
			return t, nil, err
		}
		if t == PolyLine {
			return t, lineGeometry(parts), nil
		}
		return t, polygonGeometry(parts), nil
	default:
		return t, nil, errors.Wrapf(ErrUnsupportedShape, "%d", st)
	}
}

func readPoint(b *buffer.FileBuffer) (orb.Point, error) {
	x, err := b.GetFloat64()
	if err != nil {
		return orb.Point{}, err
	}
	y, err := b.GetFloat64()
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{x, y}, nil
}

func readPoints(b *buffer.FileBuffer, n int) ([]orb.Point, error) {
	points := make([]orb.Point, n)
	for i := range points {
		p, err := readPoint(b)
		if err != nil {
			return nil, err
		}
		points[i] = p
	}
	return points, nil
}

// readParts reads the part index and point array of a PolyLine or Polygon
// and splits the points into parts.
func readParts(b *buffer.FileBuffer, size int64) ([][]orb.Point, error) {
	numParts, err := b.GetInt32()
	if err != nil {
		return nil, err
	}
	numPoints, err := b.GetInt32()
	if err != nil {
		return nil, err
	}
	if numParts < 0 || numPoints < 0 || 44+4*int64(numParts)+16*int64(numPoints) > size {
		return nil, errors.Wrapf(ErrInvalidRecord, "%d parts %d points in %d bytes", numParts, numPoints, size)
	}

	starts := make([]int, numParts+1)
	for i := 0; i < int(numParts); i++ {
		v, err := b.GetInt32()
		if err != nil {
			return nil, err
		}
		starts[i] = int(v)
	}
	starts[numParts] = int(numPoints)

	points, err := readPoints(b, int(numPoints))
	if err != nil {
		return nil, err
	}

	parts := make([][]orb.Point, numParts)
	for i := range parts {
		lo, hi := starts[i], starts[i+1]
		if lo < 0 || lo > hi || hi > len(points) {
			return nil, errors.Wrapf(ErrInvalidRecord, "part %d spans %d..%d of %d points", i, lo, hi, len(points))
		}
		parts[i] = points[lo:hi]
	}
	return parts, nil
}

func lineGeometry(parts [][]orb.Point) orb.Geometry {
	if len(parts) == 1 {
		return orb.LineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = p
	}
	return mls
}

// polygonGeometry groups rings: a clockwise ring starts a new polygon and
// the counter-clockwise rings after it are its holes.
func polygonGeometry(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range parts {
		ring := orb.Ring(p)
		if len(mp) == 0 || ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

// TypeOf is the shape type a geometry is written as. nil maps to Null.
func TypeOf(g orb.Geometry) (ShapeType, error) {
	t, _, err := shapeOf(g)
	return t, err
}

// shapeOf maps a geometry to its shape type and the parts written for it.
// Polygon rings are reoriented, outer rings clockwise and holes
// counter-clockwise.
func shapeOf(g orb.Geometry) (ShapeType, [][]orb.Point, error) {
	switch g := g.(type) {
	case nil:
		return Null, nil, nil
	case orb.Point:
		return Point, [][]orb.Point{{g}}, nil
	case orb.MultiPoint:
		return MultiPoint, [][]orb.Point{g}, nil
	case orb.LineString:
		return PolyLine, [][]orb.Point{g}, nil
	case orb.MultiLineString:
		parts := make([][]orb.Point, len(g))
		for i, ls := range g {
			parts[i] = ls
		}
		return PolyLine, parts, nil
	case orb.Polygon:
		return Polygon, polygonParts(nil, g), nil
	case orb.MultiPolygon:
		var parts [][]orb.Point
		for _, p := range g {
			parts = polygonParts(parts, p)
		}
		return Polygon, parts, nil
	}
	return Null, nil, errors.Wrapf(ErrUnsupportedShape, "%T", g)
}

func polygonParts(parts [][]orb.Point, p orb.Polygon) [][]orb.Point {
	for i, r := range p {
		want := orb.CCW
		if i == 0 {
			want = orb.CW
		}
		if r.Orientation() != want {
			r = r.Clone()
			r.Reverse()
		}
		parts = append(parts, r)
	}
	return parts
}

// contentSize is the record content length in bytes.
func contentSize(t ShapeType, parts [][]orb.Point) int64 {
	switch t {
	case Point:
		return 20
	case MultiPoint:
		return 40 + 16*int64(len(parts[0]))
	case PolyLine, Polygon:
		n := int64(0)
		for _, p := range parts {
			n += int64(len(p))
		}
		return 44 + 4*int64(len(parts)) + 16*n
	}
	return 4
}

// encodeShape writes the record content at the cursor.
func encodeShape(b *buffer.FileBuffer, t ShapeType, g orb.Geometry, parts [][]orb.Point) error {
	if err := b.PutInt32(int32(t)); err != nil {
		return err
	}
	switch t {
	case Null:
		return nil
	case Point:
		return writePoints(b, parts[0])
	case MultiPoint:
		if err := writeBound(b, g.Bound()); err != nil {
			return err
		}
		if err := b.PutInt32(int32(len(parts[0]))); err != nil {
			return err
		}
		return writePoints(b, parts[0])
	}

	if err := writeBound(b, g.Bound()); err != nil {
		return err
	}
	if err := b.PutInt32(int32(len(parts))); err != nil {
		return err
	}
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if err := b.PutInt32(int32(total)); err != nil {
		return err
	}
	start := 0
	for _, p := range parts {
		if err := b.PutInt32(int32(start)); err != nil {
			return err
		}
		start += len(p)
	}
	for _, p := range parts {
		if err := writePoints(b, p); err != nil {
			return err
		}
	}
	return nil
}

func writeBound(b *buffer.FileBuffer, bound orb.Bound) error {
	return writePoints(b, []orb.Point{bound.Min, bound.Max})
}

func writePoints(b *buffer.FileBuffer, points []orb.Point) error {
	for _, p := range points {
		if err := b.PutFloat64(p.X()); err != nil {
			return err
		}
		if err := b.PutFloat64(p.Y()); err != nil {
			return err
		}
	}
	return nil
}
